package repo

import (
	"context"
	"database/sql"

	"sitebrief/internal/domain"
)

// statusRank sorts crews currently on site first and unknown statuses last.
const statusRank = `CASE status WHEN 'Active' THEN 0 WHEN 'Standby' THEN 1 WHEN 'Delayed' THEN 2 WHEN 'Complete' THEN 3 WHEN 'Offsite' THEN 4 ELSE 5 END`

const contractorSelect = `SELECT id,project_id,name,trade,status,contact_name,phone,email,created_at,updated_at FROM contractors`

func (r Repo) InsertContractorTx(ctx context.Context, tx *sql.Tx, c domain.Contractor) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO contractors(id,project_id,name,trade,status,contact_name,phone,email,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.Name, c.Trade, c.Status, nullable(c.ContactName), nullable(c.Phone), nullable(c.Email), c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) UpdateContractorTx(ctx context.Context, tx *sql.Tx, c domain.Contractor) error {
	res, err := tx.ExecContext(ctx, `UPDATE contractors SET name=?, trade=?, status=?, contact_name=?, phone=?, email=?, updated_at=? WHERE project_id=? AND id=?`,
		c.Name, c.Trade, c.Status, nullable(c.ContactName), nullable(c.Phone), nullable(c.Email), c.UpdatedAt, c.ProjectID, c.ID)
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

func (r Repo) DeleteContractorTx(ctx context.Context, tx *sql.Tx, projectID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM contractors WHERE project_id=? AND id=?`, projectID, id)
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

func (r Repo) GetContractor(ctx context.Context, projectID, id string) (domain.Contractor, error) {
	return scanContractor(r.DB.QueryRowContext(ctx, contractorSelect+` WHERE project_id=? AND id=?`, projectID, id))
}

// FindContractorByName matches case-insensitively; the name column carries
// COLLATE NOCASE.
func (r Repo) FindContractorByName(ctx context.Context, projectID, name string) (domain.Contractor, error) {
	return scanContractor(r.DB.QueryRowContext(ctx, contractorSelect+` WHERE project_id=? AND name=?`, projectID, name))
}

func (r Repo) ListContractors(ctx context.Context, projectID string) ([]domain.Contractor, error) {
	rows, err := r.DB.QueryContext(ctx, contractorSelect+` WHERE project_id=? ORDER BY `+statusRank+` ASC, name ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contractor
	for rows.Next() {
		c, err := scanContractor(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func scanContractor(row rowScanner) (domain.Contractor, error) {
	var c domain.Contractor
	var contactName, phone, email sql.NullString
	err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Trade, &c.Status, &contactName, &phone, &email, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.ContactName = contactName.String
	c.Phone = phone.String
	c.Email = email.String
	return c, nil
}
