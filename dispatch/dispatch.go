// Package dispatch triggers a pipeline for a local checkout by hand:
// it collects the repository's workflow files and submits them to a
// runner as a manual trigger.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/urfave/cli/v3"

	"loom.sh/core/log"
	"loom.sh/core/workflow"
)

const workflowDir = ".loom/workflows"

func Command() *cli.Command {
	return &cli.Command{
		Name:  "dispatch",
		Usage: "trigger a pipeline for a local checkout",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "runner",
				Usage: "endpoint of the pipeline runner",
				Value: "http://localhost:6885",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "path to the checkout",
				Value: ".",
			},
			&cli.StringFlag{
				Name:  "ref",
				Usage: "ref to build (defaults to the checked out branch)",
			},
		},
		Action: dispatch,
	}
}

func dispatch(ctx context.Context, cmd *cli.Command) error {
	l := log.FromContext(ctx)
	dir := cmd.String("dir")

	trigger, err := buildTrigger(dir, cmd.String("ref"))
	if err != nil {
		return err
	}

	workflows, err := collectWorkflows(dir)
	if err != nil {
		return err
	}
	if len(workflows) == 0 {
		return fmt.Errorf("no workflow files under %s", filepath.Join(dir, workflowDir))
	}

	payload, err := json.Marshal(struct {
		Trigger   workflow.TriggerMetadata `json:"trigger"`
		Workflows workflow.RawPipeline     `json:"workflows"`
	}{trigger, workflows})
	if err != nil {
		return err
	}

	endpoint := cmd.String("runner") + "/pipelines"
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to reach runner: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("runner rejected pipeline: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var result struct {
		Id       string   `json:"id"`
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("unexpected runner response: %w", err)
	}

	for _, w := range result.Warnings {
		l.Warn(w)
	}
	for _, e := range result.Errors {
		l.Error(e)
	}

	if result.Id == "" {
		l.Info("no workflows matched; nothing to run")
		return nil
	}

	l.Info("pipeline enqueued", "id", result.Id, "workflows", len(workflows))
	return nil
}

// buildTrigger derives manual trigger metadata from the checkout: the
// repository name and clone URL come from the origin remote, the
// default branch from HEAD.
func buildTrigger(dir, ref string) (workflow.TriggerMetadata, error) {
	var tr workflow.TriggerMetadata

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return tr, fmt.Errorf("opening repository: %w", err)
	}

	origin, err := repo.Remote("origin")
	if err != nil {
		return tr, fmt.Errorf("resolving origin remote: %w", err)
	}
	urls := origin.Config().URLs
	if len(urls) == 0 {
		return tr, fmt.Errorf("origin remote has no url")
	}
	cloneUrl := urls[0]

	head, err := repo.Head()
	if err != nil {
		return tr, fmt.Errorf("resolving HEAD: %w", err)
	}

	return workflow.TriggerMetadata{
		Kind: workflow.TriggerKindManual,
		Repo: &workflow.TriggerRepo{
			Name:          repoName(cloneUrl),
			CloneURL:      cloneUrl,
			DefaultBranch: head.Name().Short(),
		},
		Manual: &workflow.ManualTrigger{
			Ref: ref,
		},
	}, nil
}

// repoName extracts an "owner/repo" name from a clone URL.
func repoName(cloneUrl string) string {
	name := strings.TrimSuffix(cloneUrl, ".git")
	// ssh shorthand, e.g. git@forge:owner/repo
	if !strings.Contains(name, "://") {
		if _, after, found := strings.Cut(name, ":"); found {
			name = after
		}
	}
	name = strings.TrimSuffix(name, "/")

	parts := strings.Split(name, "/")
	if len(parts) >= 2 {
		return path.Join(parts[len(parts)-2], parts[len(parts)-1])
	}
	return path.Base(name)
}

func collectWorkflows(dir string) (workflow.RawPipeline, error) {
	root := filepath.Join(dir, workflowDir)

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var raw workflow.RawPipeline
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		contents, err := os.ReadFile(filepath.Join(root, entry.Name()))
		if err != nil {
			return nil, err
		}

		raw = append(raw, workflow.RawWorkflow{
			Name:     strings.TrimSuffix(entry.Name(), ext),
			Contents: contents,
		})
	}

	return raw, nil
}
