// Package resolver defines the ConflictResolver port the sync drivers call
// into whenever a document conflict needs a human decision, per spec.md
// §9 ("Conflict prompting. The merge engine and sync driver must remain
// UI-free..."). The real prompting UI (a modal, in the original system) is
// an out-of-scope external collaborator; this package only owns the
// abstract contract plus two concrete implementations a runnable repo
// needs: a deterministic resolver for tests and a TTY resolver for the CLI.
package resolver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/notesync/notesync/internal/merge"
)

// Decision is the user's choice at a conflict prompt.
type Decision int

const (
	// Cancel stops advancing the cursor for the current phase but lets
	// the rest of the run continue (§5 "Cancellation semantics").
	Cancel Decision = iota
	// UseLocal keeps the local file and force-pushes it to the server.
	UseLocal
	// UseRemote overwrites the local file with the server's content.
	UseRemote
	// FullReset escalates to the host-supplied reset callback and cancels
	// the current run (§7 "Full-sync-required").
	FullReset
)

func (d Decision) String() string {
	switch d {
	case UseLocal:
		return "UseLocal"
	case UseRemote:
		return "UseRemote"
	case FullReset:
		return "FullReset"
	default:
		return "Cancel"
	}
}

// Request carries everything a resolver needs to present a conflict,
// matching §9's abstract signature: "(path, localContent, remoteContent,
// remoteDeleted?, mergeConflicts?)".
type Request struct {
	Path             string
	LocalContent     string
	RemoteContent    string
	RemoteDeleted    bool
	MergeConflicts   []merge.ConflictRegion
	RequiresFullSync bool
	Reason           string
}

// Resolver is the abstract conflict-dispatch port.
type Resolver interface {
	Resolve(ctx context.Context, req Request) (Decision, error)
}

// Func adapts a plain function to Resolver.
type Func func(ctx context.Context, req Request) (Decision, error)

// Resolve implements Resolver.
func (f Func) Resolve(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

// Fixed is a deterministic resolver for tests: it always returns the
// configured Decision regardless of the request, mirroring §9's "Tests
// inject a deterministic resolver."
type Fixed struct {
	Decision Decision
	Err      error
}

// Resolve implements Resolver.
func (f Fixed) Resolve(context.Context, Request) (Decision, error) {
	return f.Decision, f.Err
}

// Scripted resolves a fixed sequence of decisions in order, one per call,
// erroring if exhausted. Useful for tests exercising multiple conflicts in
// one run where each needs a distinct answer.
type Scripted struct {
	Decisions []Decision
	pos       int
}

// Resolve implements Resolver.
func (s *Scripted) Resolve(context.Context, Request) (Decision, error) {
	if s.pos >= len(s.Decisions) {
		return Cancel, fmt.Errorf("resolver: scripted resolver exhausted after %d decisions", s.pos)
	}

	d := s.Decisions[s.pos]
	s.pos++

	return d, nil
}

// TTY prompts the user on an interactive terminal, reading one line of
// input per conflict. Grounded on the teacher's format.go console-output
// conventions (plain prompts written to Out, response read from In; the
// CLI passes stdout and stdin).
type TTY struct {
	In  io.Reader
	Out io.Writer
}

// NewTTY constructs a TTY resolver over the given streams.
func NewTTY(in io.Reader, out io.Writer) *TTY {
	return &TTY{In: in, Out: out}
}

// Resolve implements Resolver by printing the conflict and reading a
// single-letter choice: (l)ocal, (r)emote, (f)ull reset, anything else
// cancels.
func (t *TTY) Resolve(_ context.Context, req Request) (Decision, error) {
	fmt.Fprintf(t.Out, "\nConflict on %q\n", req.Path)

	if req.RequiresFullSync {
		fmt.Fprintf(t.Out, "  server cannot locate the base revision (%s)\n", req.Reason)
	} else if len(req.MergeConflicts) > 0 {
		fmt.Fprintf(t.Out, "  %d region(s) could not be auto-merged\n", len(req.MergeConflicts))
	}

	fmt.Fprint(t.Out, "Keep [l]ocal, [r]emote, [f]ull reset, or [c]ancel? ")

	reader := bufio.NewReader(t.In)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return Cancel, fmt.Errorf("resolver: reading response: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "l", "local":
		return UseLocal, nil
	case "r", "remote":
		return UseRemote, nil
	case "f", "full", "fullreset":
		return FullReset, nil
	default:
		return Cancel, nil
	}
}
