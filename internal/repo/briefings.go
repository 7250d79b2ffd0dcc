package repo

import (
	"context"
	"database/sql"

	"sitebrief/internal/domain"
)

// InsertBriefingIgnoreTx inserts a briefing unless one already exists for
// (project_id,date). Returns true when a row was actually created.
func (r Repo) InsertBriefingIgnoreTx(ctx context.Context, tx *sql.Tx, b domain.Briefing) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO briefings(id,project_id,date,status,overview,notes,safety_message,created_by,created_at,last_updated)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(project_id,date) DO NOTHING`,
		b.ID, b.ProjectID, b.Date, b.Status, nullable(b.Overview), nullable(b.Notes), nullable(b.SafetyMessage), nullable(b.CreatedBy), b.CreatedAt, b.LastUpdated)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) FindBriefing(ctx context.Context, projectID, date string) (domain.Briefing, error) {
	return scanBriefing(r.DB.QueryRowContext(ctx, briefingSelect+` WHERE project_id=? AND date=?`, projectID, date))
}

func (r Repo) FindBriefingTx(ctx context.Context, tx *sql.Tx, projectID, date string) (domain.Briefing, error) {
	return scanBriefing(tx.QueryRowContext(ctx, briefingSelect+` WHERE project_id=? AND date=?`, projectID, date))
}

func (r Repo) GetBriefing(ctx context.Context, projectID, id string) (domain.Briefing, error) {
	return scanBriefing(r.DB.QueryRowContext(ctx, briefingSelect+` WHERE project_id=? AND id=?`, projectID, id))
}

func (r Repo) UpdateBriefingContentTx(ctx context.Context, tx *sql.Tx, b domain.Briefing) error {
	res, err := tx.ExecContext(ctx, `UPDATE briefings SET status=?, overview=?, notes=?, safety_message=?, last_updated=? WHERE project_id=? AND id=?`,
		b.Status, nullable(b.Overview), nullable(b.Notes), nullable(b.SafetyMessage), b.LastUpdated, b.ProjectID, b.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BriefingDates lists the dates in [start,end] that have a briefing row.
func (r Repo) BriefingDates(ctx context.Context, projectID, start, end string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT date FROM briefings WHERE project_id=? AND date>=? AND date<=? ORDER BY date ASC`, projectID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

const briefingSelect = `SELECT id,project_id,date,status,overview,notes,safety_message,created_by,created_at,last_updated FROM briefings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBriefing(row rowScanner) (domain.Briefing, error) {
	var b domain.Briefing
	var overview, notes, safety, createdBy sql.NullString
	err := row.Scan(&b.ID, &b.ProjectID, &b.Date, &b.Status, &overview, &notes, &safety, &createdBy, &b.CreatedAt, &b.LastUpdated)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	b.Overview = overview.String
	b.Notes = notes.String
	b.SafetyMessage = safety.String
	b.CreatedBy = createdBy.String
	return b, nil
}
