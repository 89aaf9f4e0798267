package db

import (
	"encoding/json"
	"fmt"
	"time"

	"loom.sh/core/notifier"
	"loom.sh/core/runner/models"
)

type Event struct {
	PipelineId string `json:"pipeline"`
	Workflow   string `json:"workflow"`
	Created    int64  `json:"created"`
	EventJson  string `json:"event"`
}

func (d *DB) InsertEvent(event Event, n *notifier.Notifier) error {
	_, err := d.Exec(
		`insert into events (pipeline_id, workflow, event, created) values (?, ?, ?, ?)`,
		event.PipelineId,
		event.Workflow,
		event.EventJson,
		event.Created,
	)

	n.NotifyAll()

	return err
}

func (d *DB) GetEvents(cursor int64) ([]Event, error) {
	whereClause := ""
	args := []any{}
	if cursor > 0 {
		whereClause = "where created > ?"
		args = append(args, cursor)
	}

	query := fmt.Sprintf(`
		select pipeline_id, workflow, event, created
		from events
		%s
		order by created asc
		limit 100
	`, whereClause)

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evts []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.PipelineId, &ev.Workflow, &ev.EventJson, &ev.Created); err != nil {
			return nil, err
		}
		evts = append(evts, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return evts, nil
}

func (d *DB) createStatusEvent(
	wid models.WorkflowId,
	statusKind models.StatusKind,
	workflowError *string,
	exitCode *int64,
	n *notifier.Notifier,
) error {
	now := time.Now()
	s := models.StatusEvent{
		Pipeline:  wid.PipelineId,
		Workflow:  wid.Name,
		Status:    statusKind,
		Error:     workflowError,
		ExitCode:  exitCode,
		CreatedAt: now.Format(time.RFC3339),
	}

	eventJson, err := json.Marshal(s)
	if err != nil {
		return err
	}

	event := Event{
		PipelineId: string(wid.PipelineId),
		Workflow:   wid.Name,
		Created:    now.UnixNano(),
		EventJson:  string(eventJson),
	}

	return d.InsertEvent(event, n)
}

func (d *DB) GetStatus(wid models.WorkflowId) (*models.StatusEvent, error) {
	var eventJson string
	err := d.QueryRow(
		`
		select
			event from events
		where
			pipeline_id = ?
			and workflow = ?
		order by
			created desc
		limit
			1
		`,
		string(wid.PipelineId),
		wid.Name,
	).Scan(&eventJson)

	if err != nil {
		return nil, err
	}

	var status models.StatusEvent
	if err := json.Unmarshal([]byte(eventJson), &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// GetWorkflowStatuses returns the latest status event of every
// workflow in a pipeline, keyed by workflow name.
func (d *DB) GetWorkflowStatuses(id models.PipelineId) (map[string]models.StatusEvent, error) {
	rows, err := d.Query(
		`
		select workflow, event
		from events
		where pipeline_id = ?
		order by created asc
		`,
		string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[string]models.StatusEvent)
	for rows.Next() {
		var name, eventJson string
		if err := rows.Scan(&name, &eventJson); err != nil {
			return nil, err
		}

		var status models.StatusEvent
		if err := json.Unmarshal([]byte(eventJson), &status); err != nil {
			return nil, err
		}
		statuses[name] = status
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return statuses, nil
}

func (d *DB) StatusPending(wid models.WorkflowId, n *notifier.Notifier) error {
	return d.createStatusEvent(wid, models.StatusKindPending, nil, nil, n)
}

func (d *DB) StatusRunning(wid models.WorkflowId, n *notifier.Notifier) error {
	return d.createStatusEvent(wid, models.StatusKindRunning, nil, nil, n)
}

func (d *DB) StatusFailed(wid models.WorkflowId, workflowError string, exitCode int64, n *notifier.Notifier) error {
	return d.createStatusEvent(wid, models.StatusKindFailed, &workflowError, &exitCode, n)
}

func (d *DB) StatusSuccess(wid models.WorkflowId, n *notifier.Notifier) error {
	return d.createStatusEvent(wid, models.StatusKindSuccess, nil, nil, n)
}

func (d *DB) StatusTimeout(wid models.WorkflowId, n *notifier.Notifier) error {
	return d.createStatusEvent(wid, models.StatusKindTimeout, nil, nil, n)
}

func (d *DB) StatusCancelled(wid models.WorkflowId, n *notifier.Notifier) error {
	return d.createStatusEvent(wid, models.StatusKindCancelled, nil, nil, n)
}
