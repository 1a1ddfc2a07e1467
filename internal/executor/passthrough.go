package executor

import (
	"context"
	"fmt"
	"io"
	"os"
)

// PassthroughExecutor copies the source to the target untouched. It exists
// for development and test deployments without a translation backend and is
// never selected when one is configured.
type PassthroughExecutor struct{}

var _ Executor = (*PassthroughExecutor)(nil)

func NewPassthroughExecutor() *PassthroughExecutor {
	return &PassthroughExecutor{}
}

func (e *PassthroughExecutor) Execute(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	source, err := os.Open(req.SourcePath)
	if err != nil {
		return fmt.Errorf("opening source file: %w", err)
	}
	defer source.Close()

	target, err := os.Create(req.TargetPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if _, err := io.Copy(target, source); err != nil {
		_ = target.Close()
		_ = os.Remove(req.TargetPath)
		return fmt.Errorf("copying file: %w", err)
	}
	return target.Close()
}
