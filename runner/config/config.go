package config

import (
	"context"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Server struct {
	ListenAddr string `env:"LISTEN_ADDR, default=0.0.0.0:6885"`
	DBPath     string `env:"DB_PATH, default=loom.db"`
	Dev        bool   `env:"DEV, default=false"`
}

type Pipelines struct {
	WorkflowTimeout string `env:"WORKFLOW_TIMEOUT, default=30m"`
	LogDir          string `env:"LOG_DIR, default=/var/log/loom"`
	WorkspaceDir    string `env:"WORKSPACE_DIR, default=/var/lib/loom/workspaces"`
	QueueSize       int    `env:"QUEUE_SIZE, default=100"`
	Workers         int    `env:"WORKERS, default=2"`
	PullAttempts    uint   `env:"PULL_ATTEMPTS, default=3"`
	DefaultImage    string `env:"DEFAULT_IMAGE, default=alpine:3.20"`
}

type Config struct {
	Server    Server    `env:",prefix=LOOM_SERVER_"`
	Pipelines Pipelines `env:",prefix=LOOM_PIPELINES_"`
}

// WorkflowTimeoutDuration parses the configured workflow timeout,
// falling back to 30 minutes on a malformed value.
func (p Pipelines) WorkflowTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(p.WorkflowTimeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
