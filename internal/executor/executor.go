// Package executor defines the contract for running snippet code in a
// sandbox. The docker subpackage is the only implementation.
package executor

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnsupportedLanguage is returned for a language with no configured runtime.
var ErrUnsupportedLanguage = errors.New("executor: unsupported language")

// TimeoutExitCode is reported when a run is killed for exceeding its time
// limit, matching coreutils timeout(1).
const TimeoutExitCode = 124

type ExecutionRequest struct {
	Language string `json:"language"`
	Code     string `json:"code"`
}

type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exitCode"`
	Duration time.Duration `json:"duration"`
}

type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
	Supports(language string) bool
}

// NormalizeLanguage folds the aliases snippets are commonly tagged with
// onto one runtime key.
func NormalizeLanguage(lang string) string {
	switch l := strings.ToLower(strings.TrimSpace(lang)); l {
	case "py", "python3":
		return "python"
	case "js", "node", "nodejs":
		return "javascript"
	case "golang":
		return "go"
	default:
		return l
	}
}
