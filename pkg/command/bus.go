package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultHistoryLimit = 50

// Record is one command snapshot captured while recording is active.
type Record struct {
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
	Success    bool           `json:"success"`
}

// Bus is the single execution funnel for user-triggered actions. It
// runs middleware in registration order, keeps a bounded undo history
// of committed undoable commands, and never lets a command's error or
// panic escape to the caller.
type Bus struct {
	mu           sync.Mutex
	middleware   []*middlewareEntry
	history      []Command // undoable, committed; oldest first
	redoStack    []Command
	historyLimit int
	recording    bool
	records      []Record
	logger       *slog.Logger
}

type middlewareEntry struct {
	fn Middleware
}

// BusOption customizes Bus construction.
type BusOption func(*Bus)

// WithHistoryLimit overrides the undo-history capacity.
func WithHistoryLimit(limit int) BusOption {
	return func(b *Bus) {
		if limit > 0 {
			b.historyLimit = limit
		}
	}
}

// NewBus creates a command bus.
func NewBus(logger *slog.Logger, opts ...BusOption) *Bus {
	b := &Bus{
		historyLimit: defaultHistoryLimit,
		logger:       logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Use registers a middleware and returns an unregister closure.
func (b *Bus) Use(mw Middleware) func() {
	entry := &middlewareEntry{fn: mw}

	b.mu.Lock()
	b.middleware = append(b.middleware, entry)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.middleware {
			if e == entry {
				b.middleware = append(b.middleware[:i:i], b.middleware[i+1:]...)
				return
			}
		}
	}
}

// Execute runs the command through the middleware chain. A committed
// undoable command is pushed onto history and closes the redo window;
// commands without undo are executed and forgotten.
func (b *Bus) Execute(ctx context.Context, cmd Command) Result {
	mc := MiddlewareContext{Name: cmd.Name(), Metadata: metadataOf(cmd), Command: cmd}

	b.mu.Lock()
	chain := make([]*middlewareEntry, len(b.middleware))
	copy(chain, b.middleware)
	b.mu.Unlock()

	for _, entry := range chain {
		if !entry.fn(mc) {
			b.logger.Debug("Command cancelled by middleware", "command", mc.Name)
			b.record(mc, false)
			return Result{Success: false, Reason: ReasonMiddlewareCancelled}
		}
	}

	if gate, ok := cmd.(Gate); ok && !gate.CanExecute() {
		b.logger.Debug("Command precondition failed", "command", mc.Name)
		b.record(mc, false)
		return Result{Success: false, Reason: ReasonPreconditionFailed}
	}

	if err := b.run(ctx, cmd); err != nil {
		b.logger.Error("Command failed", "command", mc.Name, "error", err)
		b.record(mc, false)
		return Result{Success: false, Err: err}
	}

	if _, undoable := cmd.(Undoer); undoable {
		b.mu.Lock()
		b.history = append(b.history, cmd)
		if len(b.history) > b.historyLimit {
			b.history = b.history[len(b.history)-b.historyLimit:]
		}
		// A new committed action invalidates previously undone ones.
		b.redoStack = nil
		b.mu.Unlock()
	}

	b.record(mc, true)
	b.logger.Debug("Command executed", "command", mc.Name)
	return Result{Success: true}
}

// run contains panics from Execute so the bus boundary holds.
func (b *Bus) run(ctx context.Context, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v", cmd.Name(), r)
		}
	}()
	return cmd.Execute(ctx)
}

// Undo reverses the most recent history entry. On failure the entry is
// pushed back so it is never lost; on success it moves to the redo
// stack.
func (b *Bus) Undo(ctx context.Context) bool {
	b.mu.Lock()
	if len(b.history) == 0 {
		b.mu.Unlock()
		return false
	}
	cmd := b.history[len(b.history)-1]
	b.history = b.history[:len(b.history)-1]
	b.mu.Unlock()

	if err := b.runUndo(ctx, cmd); err != nil {
		b.logger.Error("Undo failed", "command", cmd.Name(), "error", err)
		b.mu.Lock()
		b.history = append(b.history, cmd)
		b.mu.Unlock()
		return false
	}

	b.mu.Lock()
	b.redoStack = append(b.redoStack, cmd)
	b.mu.Unlock()
	b.logger.Debug("Command undone", "command", cmd.Name())
	return true
}

func (b *Bus) runUndo(ctx context.Context, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("undo of %s panicked: %v", cmd.Name(), r)
		}
	}()
	return cmd.(Undoer).Undo(ctx)
}

// Redo re-executes the most recently undone command. On failure it is
// pushed back onto the redo stack; on success it returns to history.
func (b *Bus) Redo(ctx context.Context) bool {
	b.mu.Lock()
	if len(b.redoStack) == 0 {
		b.mu.Unlock()
		return false
	}
	cmd := b.redoStack[len(b.redoStack)-1]
	b.redoStack = b.redoStack[:len(b.redoStack)-1]
	b.mu.Unlock()

	if err := b.run(ctx, cmd); err != nil {
		b.logger.Error("Redo failed", "command", cmd.Name(), "error", err)
		b.mu.Lock()
		b.redoStack = append(b.redoStack, cmd)
		b.mu.Unlock()
		return false
	}

	b.mu.Lock()
	b.history = append(b.history, cmd)
	b.mu.Unlock()
	b.logger.Debug("Command redone", "command", cmd.Name())
	return true
}

// CanUndo reports whether history holds a reversible command.
func (b *Bus) CanUndo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history) > 0
}

// CanRedo reports whether the redo window is open.
func (b *Bus) CanRedo() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.redoStack) > 0
}

// HistoryLen reports the undo-history depth.
func (b *Bus) HistoryLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.history)
}

// RedoLen reports the redo-stack depth.
func (b *Bus) RedoLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.redoStack)
}

// ClearHistory drops both the undo history and the redo stack.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
	b.redoStack = nil
}

// StartRecording begins snapshotting every command passed through
// Execute, independent of the undo history. Used for macro capture and
// analytics replay.
func (b *Bus) StartRecording() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recording = true
	b.records = nil
}

// StopRecording ends the capture and returns the recorded sequence.
func (b *Bus) StopRecording() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recording = false
	out := b.records
	b.records = nil
	return out
}

func (b *Bus) record(mc MiddlewareContext, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.recording {
		return
	}
	b.records = append(b.records, Record{
		Name:       mc.Name,
		Metadata:   mc.Metadata,
		ExecutedAt: time.Now(),
		Success:    success,
	})
}
