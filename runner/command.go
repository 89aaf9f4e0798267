package runner

import (
	"github.com/urfave/cli/v3"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:   "server",
		Usage:  "run a pipeline runner",
		Action: Run,
		Description: `
Environment variables:
	LOOM_SERVER_LISTEN_ADDR          (default: 0.0.0.0:6885)
	LOOM_SERVER_DB_PATH              (default: loom.db)
	LOOM_SERVER_DEV                  (default: false)
	LOOM_PIPELINES_WORKFLOW_TIMEOUT  (default: 30m)
	LOOM_PIPELINES_LOG_DIR           (default: /var/log/loom)
	LOOM_PIPELINES_WORKSPACE_DIR     (default: /var/lib/loom/workspaces)
	LOOM_PIPELINES_QUEUE_SIZE        (default: 100)
	LOOM_PIPELINES_WORKERS           (default: 2)
	LOOM_PIPELINES_PULL_ATTEMPTS     (default: 3)
	LOOM_PIPELINES_DEFAULT_IMAGE     (default: alpine:3.20)
`,
	}
}
