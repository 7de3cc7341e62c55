package docker

import (
	"time"
)

// Runtime describes how to run code for one language. Command is exec'd in
// the container with the snippet source in the CODE environment variable,
// so the code never has to be shell-quoted.
type Runtime struct {
	Image   string
	Command []string
}

// Config holds the sandbox limits shared by every language pool.
type Config struct {
	// Runtimes maps a normalized language name to its image and command.
	Runtimes map[string]Runtime

	// MemoryLimit in bytes. The kernel OOM-kills the process above it.
	MemoryLimit int64

	// CPULimit as a fraction of one core.
	CPULimit float64

	// Timeout is the wall-clock limit for one run.
	Timeout time.Duration

	// PoolSize is the number of pre-warmed containers kept per language.
	PoolSize int
}

func DefaultConfig() Config {
	return Config{
		Runtimes: map[string]Runtime{
			"python": {
				Image:   "python:3.12-alpine",
				Command: []string{"sh", "-c", `exec python -c "$CODE"`},
			},
			"javascript": {
				Image:   "node:22-alpine",
				Command: []string{"sh", "-c", `exec node -e "$CODE"`},
			},
			"go": {
				Image:   "golang:1.25-alpine",
				Command: []string{"sh", "-c", `printf '%s' "$CODE" > /tmp/main.go && exec go run /tmp/main.go`},
			},
		},
		MemoryLimit: 128 * 1024 * 1024,
		CPULimit:    0.5,
		Timeout:     10 * time.Second,
		PoolSize:    2,
	}
}
