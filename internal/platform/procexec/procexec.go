// Package procexec runs external command-line tools (container runtime, version
// control client) with captured output so failures can be reported verbatim.
package procexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Stdout and Stderr, when set, receive a live copy of the process output in
	// addition to the captured buffers.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line with every argument quoted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, `"`+c.Name+`"`)
	for _, arg := range c.Args {
		parts = append(parts, `"`+arg+`"`)
	}
	return strings.Join(parts, " ")
}

// Result is the captured outcome of a process that ran to completion.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Commander executes external processes. Run returns a *CommandError when the
// process exits non-zero; any other error means it could not be run at all.
type Commander interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// CommandError carries the captured output of a failed process.
type CommandError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s failed (retval %d)\n======\nSTDOUT\n======\n%s\n======\nSTDERR\n======\n%s",
		strings.Join(e.Args, " "), e.ExitCode, e.Stdout, e.Stderr)
}

// Exited reports whether err comes from a process that was started and then
// terminated unsuccessfully, including termination by a signal (exit code -1).
func Exited(err error) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr)
}

// ExitCode extracts the exit status from err, or -1 when err is not a CommandError.
func ExitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	return -1
}

// Exec runs commands on the host through os/exec.
type Exec struct{}

func (Exec) Run(ctx context.Context, c Command) (Result, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Result{}, errors.New("command name is required")
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = tee(&stdout, c.Stdout)
	cmd.Stderr = tee(&stderr, c.Stderr)

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return res, fmt.Errorf("start %s: %w", c.Name, err)
	}
	res.ExitCode = exitErr.ExitCode()
	return res, &CommandError{
		Args:     append([]string{c.Name}, c.Args...),
		ExitCode: res.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
}

func tee(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
