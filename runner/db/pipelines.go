package db

import (
	"fmt"

	"loom.sh/core/notifier"
	"loom.sh/core/runner/models"
)

type Pipeline struct {
	Id       models.PipelineId `json:"id"`
	Repo     string            `json:"repo"`
	Ref      string            `json:"ref"`
	GroupKey string            `json:"group"`
	Status   models.StatusKind `json:"status"`

	// only if failed
	Error    string `json:"error"`
	ExitCode int    `json:"exit_code"`

	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

func (db *DB) CreatePipeline(id models.PipelineId, repo, ref, groupKey string, n *notifier.Notifier) error {
	_, err := db.Exec(`
		insert into pipelines (id, repo, ref, group_key, status)
		values (?, ?, ?, ?, ?)
	`, id, repo, ref, groupKey, models.StatusKindPending)

	if err != nil {
		return err
	}
	n.NotifyAll()
	return nil
}

func (db *DB) MarkPipelineRunning(id models.PipelineId, n *notifier.Notifier) error {
	return db.markPipeline(id, models.StatusKindRunning, false, n)
}

func (db *DB) MarkPipelineSuccess(id models.PipelineId, n *notifier.Notifier) error {
	return db.markPipeline(id, models.StatusKindSuccess, true, n)
}

func (db *DB) MarkPipelineTimeout(id models.PipelineId, n *notifier.Notifier) error {
	return db.markPipeline(id, models.StatusKindTimeout, true, n)
}

func (db *DB) MarkPipelineCancelled(id models.PipelineId, n *notifier.Notifier) error {
	return db.markPipeline(id, models.StatusKindCancelled, true, n)
}

func (db *DB) markPipeline(id models.PipelineId, status models.StatusKind, finished bool, n *notifier.Notifier) error {
	finishedAt := "finished_at"
	if finished {
		finishedAt = "strftime('%Y-%m-%dT%H:%M:%SZ', 'now')"
	}

	_, err := db.Exec(fmt.Sprintf(`
		update pipelines
		set status = ?,
		    updated_at = strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', 'now'),
		    finished_at = %s
		where id = ?
	`, finishedAt), status, id)

	if err != nil {
		return err
	}
	n.NotifyAll()
	return nil
}

func (db *DB) MarkPipelineFailed(id models.PipelineId, exitCode int, errorMsg string, n *notifier.Notifier) error {
	_, err := db.Exec(`
		update pipelines
		set status = ?,
		    exit_code = ?,
		    error = ?,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		    finished_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		where id = ?
	`, models.StatusKindFailed, exitCode, errorMsg, id)
	if err != nil {
		return err
	}
	n.NotifyAll()
	return nil
}

func (db *DB) GetPipeline(id models.PipelineId) (Pipeline, error) {
	var p Pipeline
	err := db.QueryRow(`
		select id, repo, ref, group_key, status, error, exit_code, created_at, updated_at, finished_at
		from pipelines
		where id = ?
	`, id).Scan(&p.Id, &p.Repo, &p.Ref, &p.GroupKey, &p.Status, &p.Error, &p.ExitCode, &p.CreatedAt, &p.UpdatedAt, &p.FinishedAt)
	return p, err
}

func (db *DB) GetPipelines(cursor string) ([]Pipeline, error) {
	whereClause := ""
	args := []any{}
	if cursor != "" {
		whereClause = "where created_at > ?"
		args = append(args, cursor)
	}

	query := fmt.Sprintf(`
		select id, repo, ref, group_key, status, error, exit_code, created_at, updated_at, finished_at
		from pipelines
		%s
		order by created_at asc
		limit 100
	`, whereClause)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pipelines []Pipeline
	for rows.Next() {
		var p Pipeline
		if err := rows.Scan(&p.Id, &p.Repo, &p.Ref, &p.GroupKey, &p.Status, &p.Error, &p.ExitCode, &p.CreatedAt, &p.UpdatedAt, &p.FinishedAt); err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pipelines, nil
}
