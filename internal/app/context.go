package app

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"sitebrief/internal/config"
	"sitebrief/internal/engine"
	"sitebrief/internal/repo"
)

// ResolveProjectAndConfig settles which project a command targets and loads
// its stored config. Resolution order: explicit override, workspace
// sitebrief.yml, the single existing project. When nothing exists yet a
// project is created and its config seeded, so first use needs no setup step.
func ResolveProjectAndConfig(ctx context.Context, db *sql.DB, workspace, projectOverride, actorID string) (string, *config.Config, error) {
	r := repo.Repo{DB: db}

	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	projectID := projectOverride
	if projectID == "" && fileCfg != nil {
		projectID = fileCfg.Project.ID
	}
	if projectID == "" {
		p, err := r.SingleProject(ctx)
		switch {
		case err == nil:
			projectID = p.ID
		case errors.Is(err, repo.ErrNotFound):
			projectID = uuid.New().String()
		default:
			return "", nil, err
		}
	}

	if _, err := r.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		seed := fileCfg
		if seed == nil {
			seed = config.Default(projectID)
		}
		e := engine.New(db, seed)
		name := seed.Project.Name
		if err := e.InitProject(ctx, projectID, name, actorID); err != nil {
			return "", nil, err
		}
	}

	cfg, err := r.GetProjectConfig(ctx, projectID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = fileCfg
		if cfg == nil {
			cfg = config.Default(projectID)
		}
		if err := r.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
			return "", nil, err
		}
	}
	return projectID, cfg, nil
}
