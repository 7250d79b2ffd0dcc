package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"sitebrief/internal/domain"
)

// priorityRank sorts critical work first and unrecognized values last.
const priorityRank = `CASE priority WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END`

const activitySelect = `SELECT a.id,a.briefing_id,a.date,a.time_of_day,a.title,a.description,a.area,a.priority,a.labor_count,a.contractors_json,a.assigned_to,a.created_at,a.updated_at FROM activities a`

func (r Repo) InsertActivityTx(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	contractors, err := marshalContractorIDs(a.ContractorIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO activities(id,briefing_id,date,time_of_day,title,description,area,priority,labor_count,contractors_json,assigned_to,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.BriefingID, a.Date, nullable(a.TimeOfDay), a.Title, nullable(a.Description), nullable(a.Area), a.Priority, a.LaborCount, contractors, nullable(a.AssignedTo), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateActivityTx(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	contractors, err := marshalContractorIDs(a.ContractorIDs)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE activities SET time_of_day=?, title=?, description=?, area=?, priority=?, labor_count=?, contractors_json=?, assigned_to=?, updated_at=? WHERE id=?`,
		nullable(a.TimeOfDay), a.Title, nullable(a.Description), nullable(a.Area), a.Priority, a.LaborCount, contractors, nullable(a.AssignedTo), a.UpdatedAt, a.ID)
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

func (r Repo) DeleteActivityTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id=?`, id)
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

// GetActivity scopes the lookup to a project; an id belonging to another
// project's briefing reads as missing.
func (r Repo) GetActivity(ctx context.Context, projectID, id string) (domain.Activity, error) {
	row := r.DB.QueryRowContext(ctx, activitySelect+` JOIN briefings b ON b.id=a.briefing_id WHERE a.id=? AND b.project_id=?`, id, projectID)
	return scanActivity(row)
}

func (r Repo) ListActivitiesByBriefing(ctx context.Context, briefingID string) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, activitySelect+` WHERE a.briefing_id=? ORDER BY COALESCE(a.area,'') ASC, `+priorityRank+` ASC, a.title ASC`, briefingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

func (r Repo) ListActivitiesByDateRange(ctx context.Context, projectID, start, end string) ([]domain.Activity, error) {
	rows, err := r.DB.QueryContext(ctx, activitySelect+` JOIN briefings b ON b.id=a.briefing_id WHERE b.project_id=? AND a.date>=? AND a.date<=? ORDER BY a.date ASC, COALESCE(a.area,'') ASC, `+priorityRank+` ASC, a.title ASC`, projectID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

func (r Repo) CountActivitiesByBriefingTx(ctx context.Context, tx *sql.Tx, briefingID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE briefing_id=?`, briefingID).Scan(&n)
	return n, err
}

type AreaUsageRow struct {
	Area          string
	ActivityCount int
	TotalLabor    int
	MonthsActive  int
	FirstDate     string
	LastDate      string
}

// AreaUsage aggregates lifetime activity per work area, busiest areas first.
func (r Repo) AreaUsage(ctx context.Context, projectID string) ([]AreaUsageRow, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT COALESCE(a.area,'') AS area, COUNT(*), COALESCE(SUM(a.labor_count),0), COUNT(DISTINCT substr(a.date,1,7)), MIN(a.date), MAX(a.date)
FROM activities a JOIN briefings b ON b.id=a.briefing_id
WHERE b.project_id=? AND COALESCE(a.area,'')<>''
GROUP BY COALESCE(a.area,'')
ORDER BY COUNT(*) DESC, area ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AreaUsageRow
	for rows.Next() {
		var row AreaUsageRow
		if err := rows.Scan(&row.Area, &row.ActivityCount, &row.TotalLabor, &row.MonthsActive, &row.FirstDate, &row.LastDate); err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

func collectActivities(rows *sql.Rows) ([]domain.Activity, error) {
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func scanActivity(row rowScanner) (domain.Activity, error) {
	var a domain.Activity
	var timeOfDay, description, area, contractors, assignedTo sql.NullString
	err := row.Scan(&a.ID, &a.BriefingID, &a.Date, &timeOfDay, &a.Title, &description, &area, &a.Priority, &a.LaborCount, &contractors, &assignedTo, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.TimeOfDay = timeOfDay.String
	a.Description = description.String
	a.Area = area.String
	a.AssignedTo = assignedTo.String
	a.ContractorIDs = []string{}
	if contractors.Valid && contractors.String != "" {
		if err := json.Unmarshal([]byte(contractors.String), &a.ContractorIDs); err != nil {
			return a, err
		}
	}
	return a, nil
}

func marshalContractorIDs(ids []string) (any, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
