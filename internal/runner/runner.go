// Package runner executes external commands for component client operations.
//
// A run is blocking: it waits for the process to exit and returns the
// captured stdout, captured stderr, and a success flag derived from the
// acceptable return-code set. Timeout and cancellation arrive through the
// caller's context.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
)

const (
	// defaultInterpreter executes shell-mode commands.
	defaultInterpreter = "/bin/sh"

	// maxCaptureBytes caps the amount of stdout/stderr retained per stream.
	maxCaptureBytes = 64 * 1024
)

// Request describes one command execution.
type Request struct {
	// Command is the shell command line, used when Shell is true.
	Command string

	// Argv is the exec-style argument vector, used when Shell is false.
	Argv []string

	// Shell selects interpretation of Command by the Interpreter.
	Shell bool

	// Env is merged over the ambient environment, not a replacement for it.
	Env map[string]string

	// Interpreter overrides the shell binary. Default /bin/sh.
	Interpreter string

	// ReturnCodes is the acceptable exit-code set. Default {0}.
	ReturnCodes []int
}

// Result carries the captured output of a completed run.
type Result struct {
	Stdout []byte
	Stderr []byte
	OK     bool
}

// Run executes req and blocks until the process exits. A non-zero exit
// outside the acceptable set is not an error: it returns OK=false with the
// captured streams. The error return is reserved for runs that could not be
// started at all.
func Run(ctx context.Context, req Request) (Result, error) {
	cmd, err := buildCmd(ctx, req)
	if err != nil {
		return Result{}, err
	}

	if len(req.Env) > 0 {
		env := os.Environ()
		for k, v := range req.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	res := Result{
		Stdout: truncate(stdout.Bytes()),
		Stderr: truncate(stderr.Bytes()),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			// The process never ran: missing binary, bad interpreter,
			// cancelled context before start.
			return res, fmt.Errorf("start command: %w", runErr)
		}
		res.OK = accepted(exitErr.ExitCode(), req.ReturnCodes)
		return res, nil
	}

	res.OK = accepted(0, req.ReturnCodes)
	return res, nil
}

func buildCmd(ctx context.Context, req Request) (*exec.Cmd, error) {
	if req.Shell {
		if req.Command == "" {
			return nil, fmt.Errorf("shell run requires a command string")
		}
		interpreter := req.Interpreter
		if interpreter == "" {
			interpreter = defaultInterpreter
		}
		return exec.CommandContext(ctx, interpreter, "-c", req.Command), nil
	}

	if len(req.Argv) == 0 {
		return nil, fmt.Errorf("non-shell run requires an argv list")
	}
	return exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...), nil
}

func accepted(code int, returnCodes []int) bool {
	if len(returnCodes) == 0 {
		return code == 0
	}
	return slices.Contains(returnCodes, code)
}

func truncate(b []byte) []byte {
	if len(b) > maxCaptureBytes {
		return b[:maxCaptureBytes]
	}
	return b
}
