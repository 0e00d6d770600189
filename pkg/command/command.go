package command

import "context"

// Command is a user-triggered action funneled through the Bus.
type Command interface {
	// Name identifies the command for middleware, journaling and
	// diagnostics.
	Name() string

	// Execute performs the action.
	Execute(ctx context.Context) error
}

// Undoer is implemented by commands that can be reversed. Only undoable
// commands enter the bus history.
type Undoer interface {
	Undo(ctx context.Context) error
}

// Gate is implemented by commands with a precondition. A false return
// skips execution without treating it as an error.
type Gate interface {
	CanExecute() bool
}

// Describer optionally supplies metadata attached to middleware
// contexts, journal records and recordings.
type Describer interface {
	Metadata() map[string]any
}

// Result is the uniform outcome of Execute. Failures never propagate as
// panics or returned errors from the bus itself.
type Result struct {
	Success bool
	Reason  string // set when the command was skipped rather than failed
	Err     error  // set when Execute returned or panicked with an error
}

// Cancellation reasons reported in Result.Reason.
const (
	ReasonMiddlewareCancelled = "cancelled by middleware"
	ReasonPreconditionFailed  = "precondition failed"
)

// Middleware inspects a command before execution. Returning false
// cancels the command.
type Middleware func(mc MiddlewareContext) bool

// MiddlewareContext is what a middleware sees of the in-flight command.
type MiddlewareContext struct {
	Name     string
	Metadata map[string]any
	Command  Command
}

func metadataOf(cmd Command) map[string]any {
	if d, ok := cmd.(Describer); ok {
		return d.Metadata()
	}
	return nil
}
