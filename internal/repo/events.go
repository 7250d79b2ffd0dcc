package repo

import (
	"context"
	"database/sql"

	"sitebrief/internal/domain"
)

const eventSelect = `SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events`

func (r Repo) LatestEvents(ctx context.Context, projectID string, limit int) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, eventSelect+` WHERE project_id=? ORDER BY id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r Repo) LatestEventsFrom(ctx context.Context, projectID string, beforeID int64, limit int) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, eventSelect+` WHERE project_id=? AND id<? ORDER BY id DESC LIMIT ?`, projectID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsAfter returns events with id strictly greater than afterID in
// ascending order, for tailing and webhook delivery.
func (r Repo) EventsAfter(ctx context.Context, projectID string, afterID int64, limit int) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, eventSelect+` WHERE project_id=? AND id>? ORDER BY id ASC LIMIT ?`, projectID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events WHERE project_id=?`, projectID).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, actorID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &entityID, &actorID, &payload); err != nil {
			return nil, err
		}
		e.EntityID = entityID.String
		e.ActorID = actorID.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}
