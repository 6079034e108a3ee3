package manager

import (
	"path"
	"strings"
	"sync"
	"time"
)

// removal is a removed path whose vectors are still stored.
type removal struct {
	path  string
	docs  []string // stored documents at or below path
	seq   int
	timer *time.Timer
}

func (r *removal) isDocument() bool {
	return len(r.docs) == 1 && r.docs[0] == r.path
}

// removals holds removed paths for a short while so a create that follows
// can be paired with them as a rename.
type removals struct {
	mu      sync.Mutex
	pending map[string]*removal
	seq     int
	closed  bool
}

func newRemovals() *removals {
	return &removals{pending: make(map[string]*removal)}
}

// hold keeps path for delay, then hands it to expire unless a create
// claimed it first. It reports false once stopped.
func (rs *removals) hold(p string, docs []string, delay time.Duration, expire func(*removal)) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.closed {
		return false
	}
	if old, ok := rs.pending[p]; ok {
		old.timer.Stop()
	}
	rs.seq++
	rm := &removal{path: p, docs: docs, seq: rs.seq}
	rm.timer = time.AfterFunc(delay, func() {
		rs.mu.Lock()
		if rs.pending[p] != rm {
			rs.mu.Unlock()
			return
		}
		delete(rs.pending, p)
		rs.mu.Unlock()
		expire(rm)
	})
	rs.pending[p] = rm
	return true
}

// match claims the removal a created document most likely came from and
// returns it with the path it moves to. In order of preference:
//   - a document removed from the same path
//   - a document with the same file name
//   - a directory whose stored documents end the created path
//   - the most recently removed document
func (rs *removals) match(created string) (*removal, string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.pending) == 0 {
		return nil, ""
	}

	var sameName, latest, dir *removal
	var dirTarget string
	for _, rm := range rs.pending {
		if !rm.isDocument() {
			if dir == nil {
				if target, ok := movedDir(rm, created); ok {
					dir, dirTarget = rm, target
				}
			}
			continue
		}
		if rm.path == created {
			return rs.claim(rm), created
		}
		if path.Base(rm.path) == path.Base(created) && (sameName == nil || rm.seq > sameName.seq) {
			sameName = rm
		}
		if latest == nil || rm.seq > latest.seq {
			latest = rm
		}
	}

	switch {
	case sameName != nil:
		return rs.claim(sameName), created
	case dir != nil:
		return rs.claim(dir), dirTarget
	case latest != nil:
		return rs.claim(latest), created
	}
	return nil, ""
}

// movedDir reports the new location of a removed directory if created is
// one of its documents under a new parent.
func movedDir(rm *removal, created string) (string, bool) {
	for _, doc := range rm.docs {
		suffix := strings.TrimPrefix(doc, rm.path+"/")
		if target, ok := strings.CutSuffix(created, "/"+suffix); ok && target != "" && target != rm.path {
			return target, true
		}
	}
	return "", false
}

// claim removes rm from the pending set. Called with rs.mu held.
func (rs *removals) claim(rm *removal) *removal {
	rm.timer.Stop()
	delete(rs.pending, rm.path)
	return rm
}

func (rs *removals) len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.pending)
}

func (rs *removals) stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.closed = true
	for p, rm := range rs.pending {
		rm.timer.Stop()
		delete(rs.pending, p)
	}
}
