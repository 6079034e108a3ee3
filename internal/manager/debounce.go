package manager

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// debouncer collapses rapid changes of one path into a single call.
type debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func newDebouncer() *debouncer {
	return &debouncer{timers: make(map[string]*time.Timer)}
}

// schedule (re)starts the timer of path. fn runs once the path has been
// quiet for delay.
func (d *debouncer) schedule(path string, delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if t, ok := d.timers[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		d.mu.Lock()
		if d.timers[path] != t {
			d.mu.Unlock()
			return
		}
		delete(d.timers, path)
		d.mu.Unlock()
		fn()
	})
	d.timers[path] = t
}

// cancel drops the pending timer of path and reports whether there was one.
func (d *debouncer) cancel(path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.timers[path]
	if ok {
		t.Stop()
		delete(d.timers, path)
	}
	return ok
}

// cancelDir drops every pending timer below dir and returns their paths.
func (d *debouncer) cancelDir(dir string) []string {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	d.mu.Lock()
	defer d.mu.Unlock()
	var paths []string
	for path, t := range d.timers {
		if strings.HasPrefix(path, prefix) {
			t.Stop()
			delete(d.timers, path)
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

func (d *debouncer) pending() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths := make([]string, 0, len(d.timers))
	for path := range d.timers {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}
