package manager

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/semindex/internal/health"
)

var (
	// ErrRunInProgress is returned when a full run is requested while another holds the gate.
	ErrRunInProgress = errors.New("a processing run is already in progress")
	// ErrNotIndexed is returned by FindSimilar for a document without a usable root vector.
	ErrNotIndexed = errors.New("document is not indexed")
	// ErrEmptyQuery is returned by SearchSimilar for a blank query.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("manager is closed")
)

// CooldownError is returned while a scope waits out a failure.
type CooldownError struct {
	Scope     health.Scope
	Remaining time.Duration
	Until     time.Time
	Code      string // error code that started the cooldown
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s scope is cooling down after %s, retry in %s", e.Scope, e.Code, e.Remaining.Round(time.Second))
}
