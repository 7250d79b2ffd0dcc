package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"sitebrief/internal/db"
	"sitebrief/internal/domain"
	"sitebrief/internal/migrate"
	"sitebrief/internal/repo"
)

// The pre-insert name probe in AddContractor races concurrent writers, so
// the unique index on (project_id, name) is the real guarantee. Make sure
// the driver's constraint error is recognized as a duplicate.
func TestUniqueViolationRecognized(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	r := repo.Repo{DB: conn}
	now := time.Now().UTC().Format(time.RFC3339)
	if err := r.InsertProject(ctx, nil, domain.Project{ID: "site-1", Status: "active", CreatedAt: now}); err != nil {
		t.Fatalf("insert project: %v", err)
	}

	insert := func(name string) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		defer tx.Rollback()
		err = r.InsertContractorTx(ctx, tx, domain.Contractor{
			ID: uuid.New().String(), ProjectID: "site-1", Name: name, Trade: "electrical",
			Status: "Active", CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		return tx.Commit()
	}

	if err := insert("Volt Electric"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err = insert("volt electric")
	if err == nil {
		t.Fatalf("expected the unique index to reject the duplicate")
	}
	if !isUniqueViolation(err) {
		t.Fatalf("constraint error not recognized: %v", err)
	}
	if isUniqueViolation(nil) || isUniqueViolation(errors.New("disk I/O error")) {
		t.Fatalf("unrelated errors must not read as duplicates")
	}
}
