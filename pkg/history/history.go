// Package history keeps a linear undo/redo log of edits that have already
// been applied to the remote store.
//
// Each Action carries the closures that revert it and re-apply it. The
// closures talk to the store themselves; the log only moves its cursor once a
// closure has succeeded, so a rejected write never leaves the cursor pointing
// at a state the store does not hold.
package history

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/cummap/backend/pkg/logging"
)

type Kind string

const (
	VenueAdded   Kind = "venue-added"
	VenueUpdated Kind = "venue-updated"
	VenueDeleted Kind = "venue-deleted"
	MatchAdded   Kind = "match-added"
	MatchUpdated Kind = "match-updated"
	MatchDeleted Kind = "match-deleted"
)

const DefaultCapacity = 100

var ErrIncompleteAction = errors.New("history action needs both undo and redo")

// Action is one committed edit.
type Action struct {
	Kind Kind
	// Data is the payload the redo closure re-derives the forward state from.
	Data any
	Undo func(ctx context.Context) error
	Redo func(ctx context.Context) error
}

// State is a read-only view of the log.
type State struct {
	Cursor  int    `json:"cursor"`
	Length  int    `json:"length"`
	CanUndo bool   `json:"canUndo"`
	CanRedo bool   `json:"canRedo"`
	Kinds   []Kind `json:"kinds"`
}

type History struct {
	mu       sync.Mutex
	log      []Action
	cursor   int
	capacity int
	logger   *zap.SugaredLogger
}

type Option func(*History)

// WithCapacity bounds the log; the oldest entries are dropped first.
// Non-positive values keep the default.
func WithCapacity(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.capacity = n
		}
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *History) {
		h.logger = logging.OrNop(l)
	}
}

func New(opts ...Option) *History {
	h := &History{
		cursor:   -1,
		capacity: DefaultCapacity,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Push records an action whose forward effect has already happened. Any
// redo tail beyond the cursor is discarded.
func (h *History) Push(a Action) error {
	if a.Undo == nil || a.Redo == nil {
		return xerrors.Errorf("%s: %w", a.Kind, ErrIncompleteAction)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.log = append(h.log[:h.cursor+1], a)
	if over := len(h.log) - h.capacity; over > 0 {
		h.log = append([]Action(nil), h.log[over:]...)
	}
	h.cursor = len(h.log) - 1
	return nil
}

// Undo reverts the action at the cursor. It reports false without error when
// there is nothing to undo. On failure the cursor stays where it was.
func (h *History) Undo(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor < 0 {
		return false, nil
	}
	a := h.log[h.cursor]
	if err := a.Undo(ctx); err != nil {
		h.logger.Errorf("Failed to undo %s: %v", a.Kind, err)
		return false, xerrors.Errorf("undo %s: %w", a.Kind, err)
	}
	h.cursor--
	return true, nil
}

// Redo re-applies the action after the cursor. It reports false without
// error when there is nothing to redo. On failure the cursor stays where it
// was.
func (h *History) Redo(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cursor >= len(h.log)-1 {
		return false, nil
	}
	a := h.log[h.cursor+1]
	if err := a.Redo(ctx); err != nil {
		h.logger.Errorf("Failed to redo %s: %v", a.Kind, err)
		return false, xerrors.Errorf("redo %s: %w", a.Kind, err)
	}
	h.cursor++
	return true, nil
}

func (h *History) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor >= 0
}

func (h *History) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor < len(h.log)-1
}

func (h *History) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	kinds := make([]Kind, len(h.log))
	for i, a := range h.log {
		kinds[i] = a.Kind
	}
	return State{
		Cursor:  h.cursor,
		Length:  len(h.log),
		CanUndo: h.cursor >= 0,
		CanRedo: h.cursor < len(h.log)-1,
		Kinds:   kinds,
	}
}
