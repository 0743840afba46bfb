package execcontext

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lacquerai/mathutils/internal/dispatch"
	"github.com/rs/zerolog"
)

// Status represents the state of a dispatcher run
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Source identifies where a run was requested from
type Source string

const (
	SourceHTTP   Source = "http"
	SourceStream Source = "stream"
	SourceCLI    Source = "cli"
)

// Record is the serialisable state of an invocation
type Record struct {
	RunID     string        `json:"run_id" yaml:"run_id"`
	Source    Source        `json:"source" yaml:"source"`
	Args      []string      `json:"args" yaml:"args"`
	Status    Status        `json:"status" yaml:"status"`
	Mode      dispatch.Mode `json:"mode,omitempty" yaml:"mode,omitempty"`
	StartTime time.Time     `json:"start_time" yaml:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
	Lines     []string      `json:"lines,omitempty" yaml:"lines,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Invocation records a single dispatcher run made on behalf of a host
type Invocation struct {
	Record

	Logger zerolog.Logger

	mu sync.RWMutex
}

// NewInvocation creates a running invocation with a fresh run ID
func NewInvocation(ctx context.Context, source Source, args []string) *Invocation {
	runID := uuid.NewString()

	copied := make([]string, len(args))
	copy(copied, args)

	return &Invocation{
		Record: Record{
			RunID:     runID,
			Source:    source,
			Args:      copied,
			Status:    StatusRunning,
			StartTime: time.Now(),
		},
		Logger: zerolog.Ctx(ctx).With().
			Str("run_id", runID).
			Str("source", string(source)).
			Logger(),
	}
}

// Execute runs the dispatcher on the invocation arguments and records the
// outcome. The returned error is the dispatcher error, if any.
func (inv *Invocation) Execute() (*dispatch.Outcome, error) {
	out, err := dispatch.Dispatch(inv.Args)
	inv.Finish(out, err)
	return out, err
}

// Finish marks the invocation completed or failed
func (inv *Invocation) Finish(out *dispatch.Outcome, err error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.EndTime = time.Now()
	inv.Duration = inv.EndTime.Sub(inv.StartTime)

	if err != nil {
		inv.Status = StatusFailed
		inv.Error = err.Error()
	} else {
		inv.Status = StatusCompleted
		if out != nil {
			inv.Mode = out.Mode
			inv.Lines = out.Lines
		}
	}

	inv.Logger.Debug().
		Str("status", string(inv.Status)).
		Dur("duration", inv.Duration).
		Msg("Invocation finished")
}

// Snapshot returns a copy that is safe to serialise while the original is updated
func (inv *Invocation) Snapshot() Record {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	return inv.Record
}

// RunContext bundles the context and output streams of a command
type RunContext struct {
	Context context.Context
	StdOut  io.Writer
	StdErr  io.Writer
}

func (rc RunContext) Write(p []byte) (n int, err error) {
	return rc.StdOut.Write(p)
}

func (rc RunContext) Printf(format string, v ...any) {
	fmt.Fprintf(rc.StdOut, format, v...)
}
