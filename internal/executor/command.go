package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// SuccessMarker is the explicit completion line the translator binary prints
// on stdout. A zero exit status alone is not trusted: the engine is known to
// exit cleanly after partial work, so both signals are required.
const SuccessMarker = "TRANSLATION_COMPLETE"

const stderrTailBytes = 512

// CommandExecutor shells out to a local translator binary through a
// generated invocation script. The script is a scoped resource: it is
// removed on every exit path.
type CommandExecutor struct {
	binary string
}

var _ Executor = (*CommandExecutor)(nil)

func NewCommandExecutor(binary string) *CommandExecutor {
	return &CommandExecutor{binary: binary}
}

func (e *CommandExecutor) Execute(ctx context.Context, req Request) error {
	script, err := os.CreateTemp("", "doctrans-invoke-*.sh")
	if err != nil {
		return fmt.Errorf("creating invocation script: %w", err)
	}
	defer func() {
		_ = os.Remove(script.Name())
	}()

	if _, err := script.WriteString(e.invocationScript(req)); err != nil {
		_ = script.Close()
		return fmt.Errorf("writing invocation script: %w", err)
	}
	if err := script.Close(); err != nil {
		return fmt.Errorf("closing invocation script: %w", err)
	}
	if err := os.Chmod(script.Name(), 0o700); err != nil {
		return fmt.Errorf("marking invocation script executable: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "/bin/sh", script.Name())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr != nil {
		return fmt.Errorf("translator exited abnormally: %w: %s", runErr, tail(stderr.String(), stderrTailBytes))
	}
	if !strings.Contains(stdout.String(), SuccessMarker) {
		return fmt.Errorf("translator exited 0 without success marker: %s", tail(stderr.String(), stderrTailBytes))
	}

	if fi, err := os.Stat(req.TargetPath); err != nil || fi.Size() == 0 {
		return fmt.Errorf("translator reported success but produced no output at %s", req.TargetPath)
	}
	return nil
}

func (e *CommandExecutor) invocationScript(req Request) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	b.WriteString("exec ")
	for i, arg := range []string{
		e.binary,
		"--input", req.SourcePath,
		"--output", req.TargetPath,
		"--source-lang", req.SourceLanguage,
		"--target-lang", req.TargetLanguage,
		"--doc-type", req.DocumentType,
	} {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(shellQuote(arg))
	}
	b.WriteByte('\n')
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
