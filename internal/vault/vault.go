// Package vault enumerates, reads and watches the markdown documents of a
// vault directory. Paths are slash-separated and relative to the root.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/semindex/pkg/types"
)

var (
	ErrOutsideVault = errors.New("path is outside the vault")
	ErrNotDocument  = errors.New("not a vault document")
)

// DefaultExtensions are the document extensions indexed when none are configured.
var DefaultExtensions = []string{".md", ".markdown", ".txt"}

// Vault is the file collaborator of the manager.
type Vault interface {
	List(ctx context.Context) ([]types.Document, error)
	Stat(ctx context.Context, path string) (types.Document, error)
	Read(ctx context.Context, path string) (string, error)
	IsExcluded(path string) bool
}

// Options configures an FSVault.
type Options struct {
	Extensions []string
	Exclude    []string // doublestar patterns
	Logger     *zap.Logger
}

// FSVault is a Vault backed by a directory on disk.
type FSVault struct {
	root    string
	matcher *Matcher
	logger  *zap.Logger
}

// NewFSVault creates a vault rooted at dir.
func NewFSVault(dir string, opts Options) (*FSVault, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open vault: %s is not a directory", abs)
	}

	matcher, err := NewMatcher(opts.Exclude, opts.Extensions)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FSVault{root: abs, matcher: matcher, logger: logger}, nil
}

// Root returns the absolute vault directory.
func (v *FSVault) Root() string {
	return v.root
}

// Matcher returns the vault's exclusion rules.
func (v *FSVault) Matcher() *Matcher {
	return v.matcher
}

// List walks the vault and returns every document that is not excluded,
// sorted by path.
func (v *FSVault) List(ctx context.Context) ([]types.Document, error) {
	var docs []types.Document
	err := filepath.WalkDir(v.root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			v.logger.Debug("skipping unreadable entry", zap.String("path", abs), zap.Error(err))
			if d != nil && d.IsDir() && abs != v.root {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if abs == v.root {
			return nil
		}

		rel, err := v.rel(abs)
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if isHidden(d.Name()) || v.matcher.DirExcluded(rel) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || v.matcher.Excluded(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		docs = append(docs, types.Document{Path: rel, MTime: info.ModTime(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list vault: %w", err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

// Stat returns the document at a vault-relative path.
func (v *FSVault) Stat(ctx context.Context, p string) (types.Document, error) {
	abs, err := v.abs(p)
	if err != nil {
		return types.Document{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return types.Document{}, err
	}
	if info.IsDir() {
		return types.Document{}, fmt.Errorf("%w: %s is a directory", ErrNotDocument, p)
	}
	return types.Document{Path: Clean(p), MTime: info.ModTime(), Size: info.Size()}, nil
}

// Read returns the text of a document.
func (v *FSVault) Read(ctx context.Context, p string) (string, error) {
	abs, err := v.abs(p)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// IsExcluded reports whether a path is outside the indexed set: hidden,
// matched by an exclusion pattern or of an unsupported type.
func (v *FSVault) IsExcluded(p string) bool {
	return v.matcher.Excluded(Clean(p))
}

// Rel converts an absolute filesystem path to a vault path.
func (v *FSVault) Rel(abs string) (string, error) {
	return v.rel(abs)
}

func (v *FSVault) rel(abs string) (string, error) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, abs)
	}
	return rel, nil
}

func (v *FSVault) abs(p string) (string, error) {
	clean := Clean(p)
	if clean == "" || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, p)
	}
	return filepath.Join(v.root, filepath.FromSlash(clean)), nil
}

// Clean normalizes a vault path: forward slashes, no leading "./" or "/".
func Clean(p string) string {
	p = path.Clean(filepath.ToSlash(p))
	return strings.TrimPrefix(p, "/")
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
