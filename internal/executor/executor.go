package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/doctrans/doctrans/internal/config"
)

// Request carries one translation invocation. Source and target are local
// scratch paths staged by the dispatcher; the executor must materialize the
// translated bytes at TargetPath before reporting success.
type Request struct {
	SourcePath string
	TargetPath string

	SourceLanguage string
	TargetLanguage string
	DocumentType   string
}

// Executor is the pluggable translation strategy. Implementations fail by
// returning an error; the caller owns status bookkeeping.
type Executor interface {
	Execute(ctx context.Context, req Request) error
}

const (
	TypeCommand     = "command"
	TypeRemote      = "remote"
	TypePassthrough = "passthrough"
)

// New selects the executor from configuration. The passthrough fallback is
// used only when no external integration is configured at all; a named type
// with missing settings is a configuration error, never a silent downgrade.
func New(cfg config.Executor) (Executor, error) {
	switch cfg.Type {
	case TypeCommand:
		if cfg.TranslatorBinary == "" {
			return nil, errors.New("command executor requires a translator binary")
		}
		return NewCommandExecutor(cfg.TranslatorBinary), nil
	case TypeRemote:
		if cfg.RemoteURL == "" {
			return nil, errors.New("remote executor requires an endpoint URL")
		}
		return NewRemoteExecutor(cfg.RemoteURL, cfg.RemoteAPIKey, nil), nil
	case TypePassthrough:
		return NewPassthroughExecutor(), nil
	case "":
		if cfg.TranslatorBinary != "" {
			return NewCommandExecutor(cfg.TranslatorBinary), nil
		}
		if cfg.RemoteURL != "" {
			return NewRemoteExecutor(cfg.RemoteURL, cfg.RemoteAPIKey, nil), nil
		}
		zap.S().Named("executor").Warn("no translation backend configured, falling back to passthrough copies")
		return NewPassthroughExecutor(), nil
	default:
		return nil, fmt.Errorf("unknown executor type: %q", cfg.Type)
	}
}
