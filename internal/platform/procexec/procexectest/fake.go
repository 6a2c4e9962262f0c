// Package procexectest provides a scripted procexec.Commander for tests.
package procexectest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/animus-labs/wfrunner/internal/platform/procexec"
)

// Response is the scripted outcome of one invocation.
type Response struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
	// Do runs before the response is returned, e.g. to create files the real
	// command would have produced.
	Do func(cmd procexec.Command) error
}

// Fake records every invocation and answers from per-subcommand scripts.
type Fake struct {
	mu      sync.Mutex
	scripts map[string][]Response
	Calls   []procexec.Command
}

func New() *Fake {
	return &Fake{scripts: map[string][]Response{}}
}

// On queues responses for invocations whose first argument is sub. Once the
// queue is drained the last response repeats.
func (f *Fake) On(sub string, responses ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[sub] = append(f.scripts[sub], responses...)
	return f
}

// Set replaces the queued responses for sub.
func (f *Fake) Set(sub string, responses ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[sub] = append([]Response(nil), responses...)
	return f
}

// CallsTo returns the recorded invocations whose first argument is sub.
func (f *Fake) CallsTo(sub string) []procexec.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []procexec.Command
	for _, c := range f.Calls {
		if len(c.Args) > 0 && c.Args[0] == sub {
			out = append(out, c)
		}
	}
	return out
}

func (f *Fake) Run(_ context.Context, cmd procexec.Command) (procexec.Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	sub := ""
	if len(cmd.Args) > 0 {
		sub = cmd.Args[0]
	}
	queue := f.scripts[sub]
	var resp Response
	switch len(queue) {
	case 0:
	case 1:
		resp = queue[0]
	default:
		resp = queue[0]
		f.scripts[sub] = queue[1:]
	}
	f.mu.Unlock()

	if resp.Do != nil {
		if err := resp.Do(cmd); err != nil {
			return procexec.Result{}, fmt.Errorf("fake %s: %w", sub, err)
		}
	}
	if resp.Err != nil {
		return procexec.Result{}, resp.Err
	}
	if cmd.Stdout != nil && resp.Stdout != "" {
		_, _ = cmd.Stdout.Write([]byte(resp.Stdout))
	}
	res := procexec.Result{ExitCode: resp.ExitCode, Stdout: []byte(resp.Stdout), Stderr: []byte(resp.Stderr)}
	if resp.ExitCode != 0 {
		return res, &procexec.CommandError{
			Args:     append([]string{cmd.Name}, cmd.Args...),
			ExitCode: resp.ExitCode,
			Stdout:   resp.Stdout,
			Stderr:   resp.Stderr,
		}
	}
	return res, nil
}

// HasArg reports whether the command line contains arg.
func HasArg(cmd procexec.Command, arg string) bool {
	for _, a := range cmd.Args {
		if a == arg {
			return true
		}
	}
	return false
}

// Line renders the argument vector for assertions.
func Line(cmd procexec.Command) string {
	return strings.Join(cmd.Args, " ")
}
