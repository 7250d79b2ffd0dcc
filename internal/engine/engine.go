package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitebrief/internal/config"
	"sitebrief/internal/domain"
	"sitebrief/internal/engine/fault"
	"sitebrief/internal/events"
	"sitebrief/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) *Engine {
	return &Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) requireConfig() error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	return nil
}

// InitProject records the project row and seeds its stored config.
func (e *Engine) InitProject(ctx context.Context, projectID, name, actorID string) error {
	if e.Config == nil {
		cfg := config.Default(projectID)
		cfg.Project.Name = name
		e.Config = cfg
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	project := domain.Project{ID: projectID, Name: name, Status: "active", CreatedAt: now}
	if err := e.Repo.InsertProject(ctx, tx, project); err != nil {
		return err
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, projectID, e.Config); err != nil {
		return err
	}
	err = e.Events.Append(ctx, tx, events.TypeProjectInit, projectID, "project", projectID, actorID, events.EventPayload{
		"name": name,
	})
	if err != nil {
		return err
	}
	return tx.Commit()
}

type ContractorCreateOptions struct {
	ProjectID   string
	Name        string
	Trade       string
	Status      string
	ContactName string
	Phone       string
	Email       string
	ActorID     string
}

// AddContractor registers a crew on the project roster. Names are unique per
// project ignoring case; unknown statuses fall back to the configured default.
func (e *Engine) AddContractor(ctx context.Context, opts ContractorCreateOptions) (domain.Contractor, error) {
	if err := e.requireConfig(); err != nil {
		return domain.Contractor{}, err
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Contractor{}, fault.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	trade := strings.TrimSpace(opts.Trade)
	if trade == "" {
		return domain.Contractor{}, fault.ValidationError{Field: "trade", Reason: "must not be empty"}
	}
	if _, err := e.Repo.FindContractorByName(ctx, opts.ProjectID, name); err == nil {
		return domain.Contractor{}, fault.DuplicateNameError{Name: name}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Contractor{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	c := domain.Contractor{
		ID:          uuid.New().String(),
		ProjectID:   opts.ProjectID,
		Name:        name,
		Trade:       trade,
		Status:      e.coerceContractorStatus(opts.Status),
		ContactName: strings.TrimSpace(opts.ContactName),
		Phone:       strings.TrimSpace(opts.Phone),
		Email:       strings.TrimSpace(opts.Email),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contractor{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertContractorTx(ctx, tx, c); err != nil {
		// The name-probe above races concurrent inserts; the unique index
		// on (project_id, name) is the authority.
		if isUniqueViolation(err) {
			return domain.Contractor{}, fault.DuplicateNameError{Name: name}
		}
		return domain.Contractor{}, err
	}
	err = e.Events.Append(ctx, tx, events.TypeContractorCreated, opts.ProjectID, "contractor", c.ID, opts.ActorID, events.EventPayload{
		"name":  c.Name,
		"trade": c.Trade,
	})
	if err != nil {
		return domain.Contractor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contractor{}, err
	}
	return c, nil
}

type ContractorUpdateOptions struct {
	ProjectID   string
	ID          string
	Name        *string
	Trade       *string
	Status      *string
	ContactName *string
	Phone       *string
	Email       *string
	ActorID     string
}

func (e *Engine) UpdateContractor(ctx context.Context, opts ContractorUpdateOptions) (domain.Contractor, error) {
	if err := e.requireConfig(); err != nil {
		return domain.Contractor{}, err
	}
	c, err := e.Repo.GetContractor(ctx, opts.ProjectID, opts.ID)
	if err != nil {
		return domain.Contractor{}, err
	}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return domain.Contractor{}, fault.ValidationError{Field: "name", Reason: "must not be empty"}
		}
		if !strings.EqualFold(name, c.Name) {
			if existing, err := e.Repo.FindContractorByName(ctx, opts.ProjectID, name); err == nil && existing.ID != c.ID {
				return domain.Contractor{}, fault.DuplicateNameError{Name: name}
			} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return domain.Contractor{}, err
			}
		}
		c.Name = name
	}
	if opts.Trade != nil {
		trade := strings.TrimSpace(*opts.Trade)
		if trade == "" {
			return domain.Contractor{}, fault.ValidationError{Field: "trade", Reason: "must not be empty"}
		}
		c.Trade = trade
	}
	if opts.Status != nil {
		c.Status = e.coerceContractorStatus(*opts.Status)
	}
	if opts.ContactName != nil {
		c.ContactName = strings.TrimSpace(*opts.ContactName)
	}
	if opts.Phone != nil {
		c.Phone = strings.TrimSpace(*opts.Phone)
	}
	if opts.Email != nil {
		c.Email = strings.TrimSpace(*opts.Email)
	}
	c.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contractor{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateContractorTx(ctx, tx, c); err != nil {
		if isUniqueViolation(err) {
			return domain.Contractor{}, fault.DuplicateNameError{Name: c.Name}
		}
		return domain.Contractor{}, err
	}
	err = e.Events.Append(ctx, tx, events.TypeContractorUpdated, opts.ProjectID, "contractor", c.ID, opts.ActorID, events.EventPayload{
		"name": c.Name,
	})
	if err != nil {
		return domain.Contractor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contractor{}, err
	}
	return c, nil
}

// DeleteContractor removes the roster entry. Activities keep any references
// to the deleted id; resolution silently omits them from then on.
func (e *Engine) DeleteContractor(ctx context.Context, projectID, id, actorID string) (domain.Contractor, error) {
	c, err := e.Repo.GetContractor(ctx, projectID, id)
	if err != nil {
		return domain.Contractor{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Contractor{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteContractorTx(ctx, tx, projectID, id); err != nil {
		return domain.Contractor{}, err
	}
	err = e.Events.Append(ctx, tx, events.TypeContractorDeleted, projectID, "contractor", id, actorID, events.EventPayload{
		"name": c.Name,
	})
	if err != nil {
		return domain.Contractor{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Contractor{}, err
	}
	return c, nil
}

// GetOrCreateBriefing returns the briefing for a date, creating an empty
// draft when none exists yet. The audit event fires only on creation.
func (e *Engine) GetOrCreateBriefing(ctx context.Context, projectID, date, actorID string) (domain.Briefing, error) {
	date = e.normalizeDate(date)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Briefing{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	candidate := domain.Briefing{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Date:        date,
		Status:      domain.BriefingStatusDraft,
		CreatedBy:   actorID,
		CreatedAt:   now,
		LastUpdated: now,
	}
	created, err := e.Repo.InsertBriefingIgnoreTx(ctx, tx, candidate)
	if err != nil {
		return domain.Briefing{}, err
	}
	b, err := e.Repo.FindBriefingTx(ctx, tx, projectID, date)
	if err != nil {
		return domain.Briefing{}, err
	}
	if created {
		err = e.Events.Append(ctx, tx, events.TypeBriefingCreated, projectID, "briefing", b.ID, actorID, events.EventPayload{
			"date": date,
		})
		if err != nil {
			return domain.Briefing{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Briefing{}, err
	}
	return b, nil
}

// FindBriefing is the read-only lookup; it never creates.
func (e *Engine) FindBriefing(ctx context.Context, projectID, date string) (domain.Briefing, error) {
	return e.Repo.FindBriefing(ctx, projectID, e.normalizeDate(date))
}

type BriefingUpdateOptions struct {
	ProjectID     string
	Date          string
	Status        *string
	Overview      *string
	Notes         *string
	SafetyMessage *string
	ActorID       string
}

func (e *Engine) UpdateBriefing(ctx context.Context, opts BriefingUpdateOptions) (domain.Briefing, error) {
	b, err := e.GetOrCreateBriefing(ctx, opts.ProjectID, opts.Date, opts.ActorID)
	if err != nil {
		return domain.Briefing{}, err
	}
	if opts.Status != nil {
		status := strings.TrimSpace(*opts.Status)
		if status != domain.BriefingStatusDraft && status != domain.BriefingStatusPublished {
			return domain.Briefing{}, fault.ValidationError{Field: "status", Reason: "must be draft or published"}
		}
		b.Status = status
	}
	if opts.Overview != nil {
		b.Overview = *opts.Overview
	}
	if opts.Notes != nil {
		b.Notes = *opts.Notes
	}
	if opts.SafetyMessage != nil {
		b.SafetyMessage = *opts.SafetyMessage
	}
	b.LastUpdated = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Briefing{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateBriefingContentTx(ctx, tx, b); err != nil {
		return domain.Briefing{}, err
	}
	err = e.Events.Append(ctx, tx, events.TypeBriefingUpdated, opts.ProjectID, "briefing", b.ID, opts.ActorID, events.EventPayload{
		"date": b.Date,
	})
	if err != nil {
		return domain.Briefing{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Briefing{}, err
	}
	return b, nil
}

type ActivityCreateOptions struct {
	ProjectID     string
	Date          string
	TimeOfDay     string
	Title         string
	Description   string
	Area          string
	Priority      string
	LaborCount    int
	ContractorIDs []string
	AssignedTo    string
	ActorID       string
}

// AddActivity files a work item under the day's briefing, creating the
// briefing on demand. Contractor ids that do not resolve on the roster are
// dropped before the write.
func (e *Engine) AddActivity(ctx context.Context, opts ActivityCreateOptions) (domain.Activity, error) {
	if err := e.requireConfig(); err != nil {
		return domain.Activity{}, err
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Activity{}, fault.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if opts.LaborCount < 0 {
		return domain.Activity{}, fault.ValidationError{Field: "labor_count", Reason: "must not be negative"}
	}

	b, err := e.GetOrCreateBriefing(ctx, opts.ProjectID, opts.Date, opts.ActorID)
	if err != nil {
		return domain.Activity{}, err
	}
	maps, err := e.BuildLookupMaps(ctx, opts.ProjectID)
	if err != nil {
		return domain.Activity{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Activity{
		ID:            uuid.New().String(),
		BriefingID:    b.ID,
		Date:          b.Date,
		TimeOfDay:     strings.TrimSpace(opts.TimeOfDay),
		Title:         title,
		Description:   opts.Description,
		Area:          strings.TrimSpace(opts.Area),
		Priority:      e.coercePriority(opts.Priority),
		LaborCount:    opts.LaborCount,
		ContractorIDs: filterContractorIDs(opts.ContractorIDs, maps),
		AssignedTo:    strings.TrimSpace(opts.AssignedTo),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertActivityTx(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	err = e.Events.Append(ctx, tx, events.TypeActivityCreated, opts.ProjectID, "activity", a.ID, opts.ActorID, events.EventPayload{
		"date":  a.Date,
		"title": a.Title,
	})
	if err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

type ActivityUpdateOptions struct {
	ProjectID     string
	ID            string
	TimeOfDay     string
	Title         string
	Description   string
	Area          string
	Priority      string
	LaborCount    int
	ContractorIDs []string
	AssignedTo    string
	ActorID       string
}

// UpdateActivity replaces the mutable fields wholesale; callers send the
// complete record, not a patch.
func (e *Engine) UpdateActivity(ctx context.Context, opts ActivityUpdateOptions) (domain.Activity, error) {
	if err := e.requireConfig(); err != nil {
		return domain.Activity{}, err
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Activity{}, fault.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if opts.LaborCount < 0 {
		return domain.Activity{}, fault.ValidationError{Field: "labor_count", Reason: "must not be negative"}
	}
	a, err := e.Repo.GetActivity(ctx, opts.ProjectID, opts.ID)
	if err != nil {
		return domain.Activity{}, err
	}
	maps, err := e.BuildLookupMaps(ctx, opts.ProjectID)
	if err != nil {
		return domain.Activity{}, err
	}

	a.TimeOfDay = strings.TrimSpace(opts.TimeOfDay)
	a.Title = title
	a.Description = opts.Description
	a.Area = strings.TrimSpace(opts.Area)
	a.Priority = e.coercePriority(opts.Priority)
	a.LaborCount = opts.LaborCount
	a.ContractorIDs = filterContractorIDs(opts.ContractorIDs, maps)
	a.AssignedTo = strings.TrimSpace(opts.AssignedTo)
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateActivityTx(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	err = e.Events.Append(ctx, tx, events.TypeActivityUpdated, opts.ProjectID, "activity", a.ID, opts.ActorID, events.EventPayload{
		"date":  a.Date,
		"title": a.Title,
	})
	if err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// DeleteActivity removes the work item and returns its last state.
func (e *Engine) DeleteActivity(ctx context.Context, projectID, id, actorID string) (domain.Activity, error) {
	a, err := e.Repo.GetActivity(ctx, projectID, id)
	if err != nil {
		return domain.Activity{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteActivityTx(ctx, tx, id); err != nil {
		return domain.Activity{}, err
	}
	err = e.Events.Append(ctx, tx, events.TypeActivityDeleted, projectID, "activity", id, actorID, events.EventPayload{
		"date":  a.Date,
		"title": a.Title,
	})
	if err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// CopyDay duplicates every activity from one date's briefing onto another
// date. The target must exist (it is created if missing) and must hold no
// activities. Contractor id lists are carried over verbatim, including ids
// that no longer resolve. Returns the number of activities copied.
func (e *Engine) CopyDay(ctx context.Context, projectID, sourceDate, targetDate, actorID string) (int, error) {
	sourceDate = e.normalizeDate(sourceDate)
	targetDate = e.normalizeDate(targetDate)

	source, err := e.Repo.FindBriefing(ctx, projectID, sourceDate)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return 0, fault.NoSourceDataError{Date: sourceDate}
		}
		return 0, err
	}

	target, err := e.GetOrCreateBriefing(ctx, projectID, targetDate, actorID)
	if err != nil {
		return 0, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	existing, err := e.Repo.CountActivitiesByBriefingTx(ctx, tx, target.ID)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, fault.TargetNotEmptyError{Date: targetDate, Count: existing}
	}

	sourceActivities, err := e.Repo.ListActivitiesByBriefing(ctx, source.ID)
	if err != nil {
		return 0, err
	}
	if len(sourceActivities) == 0 {
		return 0, fault.NothingToCopyError{Date: sourceDate}
	}

	now := e.now().UTC().Format(time.RFC3339)
	copied := 0
	for _, src := range sourceActivities {
		clone := src
		clone.ID = uuid.New().String()
		clone.BriefingID = target.ID
		clone.Date = targetDate
		clone.CreatedAt = now
		clone.UpdatedAt = now
		if err := e.Repo.InsertActivityTx(ctx, tx, clone); err != nil {
			return copied, err
		}
		copied++
	}
	err = e.Events.Append(ctx, tx, events.TypeDayCopied, projectID, "briefing", target.ID, actorID, events.EventPayload{
		"source_date": sourceDate,
		"target_date": targetDate,
		"copied":      copied,
	})
	if err != nil {
		return copied, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return copied, nil
}

// ListActivities returns the day's work items in site briefing order.
func (e *Engine) ListActivities(ctx context.Context, projectID, date string) ([]domain.Activity, error) {
	b, err := e.Repo.FindBriefing(ctx, projectID, e.normalizeDate(date))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return []domain.Activity{}, nil
		}
		return nil, err
	}
	list, err := e.Repo.ListActivitiesByBriefing(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Activity{}
	}
	return list, nil
}

const dateLayout = "2006-01-02"

// normalizeDate validates YYYY-MM-DD input and substitutes today for
// anything unparseable.
func (e *Engine) normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if t, err := time.Parse(dateLayout, date); err == nil {
		return t.Format(dateLayout)
	}
	return e.now().UTC().Format(dateLayout)
}

func (e *Engine) coercePriority(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if domain.ValidPriority(p) {
		return p
	}
	return e.Config.Priority()
}

func (e *Engine) coerceContractorStatus(s string) string {
	s = strings.TrimSpace(s)
	if domain.ValidContractorStatus(s) {
		return s
	}
	return e.Config.ContractorStatus()
}

// isUniqueViolation reports whether err is a SQLite unique-index failure.
// modernc.org/sqlite surfaces these as plain errors carrying the constraint
// text rather than a typed value.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
