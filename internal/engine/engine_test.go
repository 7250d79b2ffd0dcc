package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sitebrief/internal/config"
	"sitebrief/internal/db"
	"sitebrief/internal/engine"
	"sitebrief/internal/engine/fault"
	"sitebrief/internal/migrate"
	"sitebrief/internal/repo"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("site-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if err := eng.InitProject(ctx, "site-1", "test site", "foreman"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) addContractor(t *testing.T, name, trade, status string) string {
	t.Helper()
	c, err := env.Engine.AddContractor(env.Ctx, engine.ContractorCreateOptions{
		ProjectID: "site-1",
		Name:      name,
		Trade:     trade,
		Status:    status,
		ActorID:   "foreman",
	})
	if err != nil {
		t.Fatalf("add contractor %s: %v", name, err)
	}
	return c.ID
}

func TestContractorRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	id := env.addContractor(t, "Volt Electric", "electrical", "Active")
	c, err := env.Engine.Repo.GetContractor(env.Ctx, "site-1", id)
	if err != nil {
		t.Fatalf("get contractor: %v", err)
	}
	if c.Name != "Volt Electric" || c.Trade != "electrical" || c.Status != "Active" {
		t.Fatalf("unexpected contractor: %+v", c)
	}
}

func TestContractorListOrder(t *testing.T) {
	env := newTestEnv(t)
	env.addContractor(t, "Zeta Concrete", "concrete", "Active")
	env.addContractor(t, "Alpha Steel", "steel", "Complete")
	env.addContractor(t, "Beta Plumbing", "plumbing", "Standby")
	env.addContractor(t, "Acme Drywall", "drywall", "Active")

	items, err := env.Engine.Repo.ListContractors(env.Ctx, "site-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"Acme Drywall", "Zeta Concrete", "Beta Plumbing", "Alpha Steel"}
	if len(items) != len(want) {
		t.Fatalf("expected %d contractors, got %d", len(want), len(items))
	}
	for i, name := range want {
		if items[i].Name != name {
			t.Fatalf("position %d: expected %s, got %s", i, name, items[i].Name)
		}
	}
}

func TestContractorDuplicateNameCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.addContractor(t, "Volt Electric", "electrical", "Active")
	_, err := env.Engine.AddContractor(env.Ctx, engine.ContractorCreateOptions{
		ProjectID: "site-1",
		Name:      "VOLT ELECTRIC",
		Trade:     "electrical",
		ActorID:   "foreman",
	})
	var dup fault.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}
}

func TestContractorValidation(t *testing.T) {
	env := newTestEnv(t)
	var ve fault.ValidationError
	_, err := env.Engine.AddContractor(env.Ctx, engine.ContractorCreateOptions{
		ProjectID: "site-1", Name: "  ", Trade: "electrical", ActorID: "foreman",
	})
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Fatalf("expected name validation error, got %v", err)
	}
	_, err = env.Engine.AddContractor(env.Ctx, engine.ContractorCreateOptions{
		ProjectID: "site-1", Name: "Volt Electric", Trade: "", ActorID: "foreman",
	})
	if !errors.As(err, &ve) || ve.Field != "trade" {
		t.Fatalf("expected trade validation error, got %v", err)
	}
}

func TestContractorStatusCoercion(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.Engine.AddContractor(env.Ctx, engine.ContractorCreateOptions{
		ProjectID: "site-1",
		Name:      "Volt Electric",
		Trade:     "electrical",
		Status:    "vacationing",
		ActorID:   "foreman",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if c.Status != "Active" {
		t.Fatalf("expected coerced status Active, got %s", c.Status)
	}
}

func TestBriefingGetOrCreateIdempotent(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.FindBriefing(env.Ctx, "site-1", "2024-01-05"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found before creation, got %v", err)
	}
	first, err := env.Engine.GetOrCreateBriefing(env.Ctx, "site-1", "2024-01-05", "foreman")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if first.Status != "draft" {
		t.Fatalf("expected draft, got %s", first.Status)
	}
	second, err := env.Engine.GetOrCreateBriefing(env.Ctx, "site-1", "2024-01-05", "foreman")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same briefing, got %s and %s", first.ID, second.ID)
	}
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, "site-1", 50)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	created := 0
	for _, evt := range events {
		if evt.Type == "briefing.created" {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("expected exactly one briefing.created event, got %d", created)
	}
}

func TestBriefingUpdate(t *testing.T) {
	env := newTestEnv(t)
	status := "published"
	safety := "hard hats past gate 2"
	b, err := env.Engine.UpdateBriefing(env.Ctx, engine.BriefingUpdateOptions{
		ProjectID:     "site-1",
		Date:          "2024-01-05",
		Status:        &status,
		SafetyMessage: &safety,
		ActorID:       "foreman",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if b.Status != "published" || b.SafetyMessage != safety {
		t.Fatalf("unexpected briefing: %+v", b)
	}
	bad := "archived"
	_, err = env.Engine.UpdateBriefing(env.Ctx, engine.BriefingUpdateOptions{
		ProjectID: "site-1", Date: "2024-01-05", Status: &bad, ActorID: "foreman",
	})
	var ve fault.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for status, got %v", err)
	}
}

func TestActivityListOrder(t *testing.T) {
	env := newTestEnv(t)
	add := func(title, area, priority string) {
		t.Helper()
		_, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
			ProjectID: "site-1", Date: "2024-01-05", Title: title, Area: area, Priority: priority, ActorID: "foreman",
		})
		if err != nil {
			t.Fatalf("add %s: %v", title, err)
		}
	}
	add("pour slab", "B-Wing", "low")
	add("rough-in", "A-Wing", "medium")
	add("panel upgrade", "A-Wing", "critical")
	add("conduit run", "A-Wing", "critical")

	items, err := env.Engine.ListActivities(env.Ctx, "site-1", "2024-01-05")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"conduit run", "panel upgrade", "rough-in", "pour slab"}
	if len(items) != len(want) {
		t.Fatalf("expected %d activities, got %d", len(want), len(items))
	}
	for i, title := range want {
		if items[i].Title != title {
			t.Fatalf("position %d: expected %s, got %s", i, title, items[i].Title)
		}
	}
}

func TestActivityContractorFiltering(t *testing.T) {
	env := newTestEnv(t)
	id := env.addContractor(t, "Volt Electric", "electrical", "Active")
	a, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
		ProjectID:     "site-1",
		Date:          "2024-01-05",
		Title:         "panel upgrade",
		ContractorIDs: []string{id, "ghost-id", id},
		ActorID:       "foreman",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(a.ContractorIDs) != 1 || a.ContractorIDs[0] != id {
		t.Fatalf("expected filtered ids [%s], got %v", id, a.ContractorIDs)
	}
}

func TestActivityValidation(t *testing.T) {
	env := newTestEnv(t)
	var ve fault.ValidationError
	_, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
		ProjectID: "site-1", Date: "2024-01-05", Title: "  ", ActorID: "foreman",
	})
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
	_, err = env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
		ProjectID: "site-1", Date: "2024-01-05", Title: "pour slab", LaborCount: -3, ActorID: "foreman",
	})
	if !errors.As(err, &ve) || ve.Field != "labor_count" {
		t.Fatalf("expected labor_count validation error, got %v", err)
	}
}

func TestActivityCoercion(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
		ProjectID: "site-1",
		Date:      "not-a-date",
		Title:     "pour slab",
		Priority:  "urgent-ish",
		ActorID:   "foreman",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if a.Priority != "medium" {
		t.Fatalf("expected coerced priority medium, got %s", a.Priority)
	}
	if a.Date != "2024-01-01" {
		t.Fatalf("expected today for bad date, got %s", a.Date)
	}
}

func TestActivityUpdateReplaces(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
		ProjectID:  "site-1",
		Date:       "2024-01-05",
		Title:      "pour slab",
		Area:       "B-Wing",
		LaborCount: 6,
		AssignedTo: "smith",
		ActorID:    "foreman",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	updated, err := env.Engine.UpdateActivity(env.Ctx, engine.ActivityUpdateOptions{
		ProjectID:  "site-1",
		ID:         a.ID,
		Title:      "pour slab phase 2",
		LaborCount: 4,
		ActorID:    "foreman",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "pour slab phase 2" || updated.LaborCount != 4 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	// Update is a full replace: fields omitted from the options clear.
	if updated.Area != "" || updated.AssignedTo != "" {
		t.Fatalf("expected cleared area/assigned_to, got %+v", updated)
	}
}

func TestActivityDeleteReturnsSnapshot(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
		ProjectID: "site-1", Date: "2024-01-05", Title: "pour slab", LaborCount: 6, ActorID: "foreman",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	gone, err := env.Engine.DeleteActivity(env.Ctx, "site-1", a.ID, "foreman")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if gone.Title != "pour slab" || gone.LaborCount != 6 {
		t.Fatalf("expected prior snapshot, got %+v", gone)
	}
	if _, err := env.Engine.Repo.GetActivity(env.Ctx, "site-1", a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestActivityCrossProjectReadsAsMissing(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.InitProject(env.Ctx, "site-2", "other site", "foreman"); err != nil {
		t.Fatalf("init second project: %v", err)
	}
	a, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
		ProjectID: "site-1", Date: "2024-01-05", Title: "pour slab", ActorID: "foreman",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := env.Engine.Repo.GetActivity(env.Ctx, "site-2", a.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected cross-project lookup to miss, got %v", err)
	}
}

func TestCopyDayNoSourceData(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CopyDay(env.Ctx, "site-1", "2024-01-05", "2024-01-06", "foreman")
	var nse fault.NoSourceDataError
	if !errors.As(err, &nse) {
		t.Fatalf("expected NoSourceDataError, got %v", err)
	}
}

func TestCopyDayNothingToCopyLeavesGhostTarget(t *testing.T) {
	env := newTestEnv(t)
	// Source briefing exists but holds no activities.
	if _, err := env.Engine.GetOrCreateBriefing(env.Ctx, "site-1", "2024-01-05", "foreman"); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	_, err := env.Engine.CopyDay(env.Ctx, "site-1", "2024-01-05", "2024-01-06", "foreman")
	var nce fault.NothingToCopyError
	if !errors.As(err, &nce) {
		t.Fatalf("expected NothingToCopyError, got %v", err)
	}
	// The target briefing created on the way in stays.
	if _, err := env.Engine.FindBriefing(env.Ctx, "site-1", "2024-01-06"); err != nil {
		t.Fatalf("expected target briefing to survive, got %v", err)
	}
}

func TestCopyDayTargetNotEmpty(t *testing.T) {
	env := newTestEnv(t)
	seed := func(date, title string) {
		t.Helper()
		if _, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
			ProjectID: "site-1", Date: date, Title: title, ActorID: "foreman",
		}); err != nil {
			t.Fatalf("seed %s: %v", date, err)
		}
	}
	seed("2024-01-05", "pour slab")
	seed("2024-01-06", "existing work")

	_, err := env.Engine.CopyDay(env.Ctx, "site-1", "2024-01-05", "2024-01-06", "foreman")
	var tne fault.TargetNotEmptyError
	if !errors.As(err, &tne) {
		t.Fatalf("expected TargetNotEmptyError, got %v", err)
	}
	if tne.Count != 1 {
		t.Fatalf("expected count 1, got %d", tne.Count)
	}
	items, err := env.Engine.ListActivities(env.Ctx, "site-1", "2024-01-06")
	if err != nil {
		t.Fatalf("list target: %v", err)
	}
	if len(items) != 1 || items[0].Title != "existing work" {
		t.Fatalf("target day changed: %+v", items)
	}
}

func TestCopyDayCopiesContractorIDsVerbatim(t *testing.T) {
	env := newTestEnv(t)
	id := env.addContractor(t, "Volt Electric", "electrical", "Active")
	a, err := env.Engine.AddActivity(env.Ctx, engine.ActivityCreateOptions{
		ProjectID:     "site-1",
		Date:          "2024-01-05",
		Title:         "panel upgrade",
		LaborCount:    5,
		ContractorIDs: []string{id},
		ActorID:       "foreman",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	// The referenced contractor leaves the roster before the copy.
	if _, err := env.Engine.DeleteContractor(env.Ctx, "site-1", id, "foreman"); err != nil {
		t.Fatalf("delete contractor: %v", err)
	}
	copied, err := env.Engine.CopyDay(env.Ctx, "site-1", "2024-01-05", "2024-01-06", "foreman")
	if err != nil {
		t.Fatalf("copy: %v", err)
	}
	if copied != 1 {
		t.Fatalf("expected 1 copied, got %d", copied)
	}
	items, err := env.Engine.ListActivities(env.Ctx, "site-1", "2024-01-06")
	if err != nil {
		t.Fatalf("list target: %v", err)
	}
	clone := items[0]
	if clone.ID == a.ID {
		t.Fatalf("clone must get a fresh id")
	}
	if clone.Date != "2024-01-06" {
		t.Fatalf("expected target date, got %s", clone.Date)
	}
	if len(clone.ContractorIDs) != 1 || clone.ContractorIDs[0] != id {
		t.Fatalf("expected verbatim contractor ids, got %v", clone.ContractorIDs)
	}
}
