package engine

import (
	"context"

	"sitebrief/internal/domain"
)

// LookupMaps index the contractor roster by id for a single request.
// Build fresh per operation; roster edits invalidate them.
type LookupMaps struct {
	Names  map[string]string
	Trades map[string]string
	Refs   map[string]domain.ContractorRef
}

func (e *Engine) BuildLookupMaps(ctx context.Context, projectID string) (LookupMaps, error) {
	contractors, err := e.Repo.ListContractors(ctx, projectID)
	if err != nil {
		return LookupMaps{}, err
	}
	maps := LookupMaps{
		Names:  make(map[string]string, len(contractors)),
		Trades: make(map[string]string, len(contractors)),
		Refs:   make(map[string]domain.ContractorRef, len(contractors)),
	}
	for _, c := range contractors {
		maps.Names[c.ID] = c.Name
		maps.Trades[c.ID] = c.Trade
		maps.Refs[c.ID] = domain.ContractorRef{ID: c.ID, Name: c.Name, Trade: c.Trade, Status: c.Status}
	}
	return maps, nil
}

// ResolveActivityContractors maps an activity's stored contractor ids onto
// roster entries. Ids with no roster match are omitted without error; a
// deleted contractor simply disappears from the resolved view.
func ResolveActivityContractors(a domain.Activity, maps LookupMaps) []domain.ContractorRef {
	refs := []domain.ContractorRef{}
	for _, id := range a.ContractorIDs {
		if ref, ok := maps.Refs[id]; ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// filterContractorIDs dedupes and drops ids that do not resolve, preserving
// first-seen order. Applied on activity writes only; stored lists are never
// rewritten retroactively.
func filterContractorIDs(ids []string, maps LookupMaps) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := maps.Refs[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
