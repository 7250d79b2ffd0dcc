package server

import (
	"encoding/json"

	"sitebrief/internal/config"
	"sitebrief/internal/domain"
	"sitebrief/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID   string  `json:"id"`
	Name *string `json:"name,omitempty"`
}

type UpdateBriefingRequest struct {
	Status        *string `json:"status,omitempty" enum:"draft,published"`
	Overview      *string `json:"overview,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	SafetyMessage *string `json:"safety_message,omitempty"`
}

type CreateActivityRequest struct {
	TimeOfDay     *string  `json:"time_of_day,omitempty"`
	Title         string   `json:"title"`
	Description   *string  `json:"description,omitempty"`
	Area          *string  `json:"area,omitempty"`
	Priority      *string  `json:"priority,omitempty"`
	LaborCount    *int     `json:"labor_count,omitempty"`
	ContractorIDs []string `json:"contractor_ids,omitempty"`
	AssignedTo    *string  `json:"assigned_to,omitempty"`
}

type UpdateActivityRequest struct {
	TimeOfDay     *string  `json:"time_of_day,omitempty"`
	Title         string   `json:"title"`
	Description   *string  `json:"description,omitempty"`
	Area          *string  `json:"area,omitempty"`
	Priority      *string  `json:"priority,omitempty"`
	LaborCount    *int     `json:"labor_count,omitempty"`
	ContractorIDs []string `json:"contractor_ids,omitempty"`
	AssignedTo    *string  `json:"assigned_to,omitempty"`
}

type CreateContractorRequest struct {
	Name        string  `json:"name"`
	Trade       string  `json:"trade"`
	Status      *string `json:"status,omitempty"`
	ContactName *string `json:"contact_name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`
}

type UpdateContractorRequest struct {
	Name        *string `json:"name,omitempty"`
	Trade       *string `json:"trade,omitempty"`
	Status      *string `json:"status,omitempty"`
	ContactName *string `json:"contact_name,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`
}

type CopyDayRequest struct {
	SourceDate string `json:"source_date" format:"date"`
	TargetDate string `json:"target_date" format:"date"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type ProjectResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type BriefingResponse struct {
	ID            string `json:"id"`
	ProjectID     string `json:"project_id"`
	Date          string `json:"date" format:"date"`
	Status        string `json:"status" enum:"draft,published"`
	Overview      string `json:"overview,omitempty"`
	Notes         string `json:"notes,omitempty"`
	SafetyMessage string `json:"safety_message,omitempty"`
	CreatedBy     string `json:"created_by"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	LastUpdated   string `json:"last_updated" format:"date-time"`
}

type ContractorRefResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Trade  string `json:"trade"`
	Status string `json:"status"`
}

type ActivityResponse struct {
	ID            string                  `json:"id"`
	BriefingID    string                  `json:"briefing_id"`
	Date          string                  `json:"date" format:"date"`
	TimeOfDay     string                  `json:"time_of_day,omitempty"`
	Title         string                  `json:"title"`
	Description   string                  `json:"description,omitempty"`
	Area          string                  `json:"area,omitempty"`
	Priority      string                  `json:"priority" enum:"low,medium,high,critical"`
	LaborCount    int                     `json:"labor_count"`
	ContractorIDs []string                `json:"contractor_ids"`
	Contractors   []ContractorRefResponse `json:"contractors"`
	AssignedTo    string                  `json:"assigned_to,omitempty"`
	CreatedAt     string                  `json:"created_at" format:"date-time"`
	UpdatedAt     string                  `json:"updated_at" format:"date-time"`
}

type ContractorResponse struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Trade       string `json:"trade"`
	Status      string `json:"status" enum:"Active,Standby,Delayed,Complete,Offsite"`
	ContactName string `json:"contact_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type CopyDayResponse struct {
	SourceDate  string `json:"source_date" format:"date"`
	TargetDate  string `json:"target_date" format:"date"`
	CopiedCount int    `json:"copied_count"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID string `json:"actor_id"`
	Source  string `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ProjectConfigResponse struct {
	Project struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Timezone string `json:"timezone"`
	} `json:"project"`
	Defaults struct {
		Priority         string `json:"priority"`
		ContractorStatus string `json:"contractor_status"`
	} `json:"defaults"`
	Stats struct {
		RollingWindowDays int `json:"rolling_window_days"`
	} `json:"stats"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func briefingResponse(b domain.Briefing) BriefingResponse {
	return BriefingResponse(b)
}

func contractorResponse(c domain.Contractor) ContractorResponse {
	return ContractorResponse(c)
}

func contractorRefResponse(ref domain.ContractorRef) ContractorRefResponse {
	return ContractorRefResponse(ref)
}

func activityResponse(a domain.Activity, maps engine.LookupMaps) ActivityResponse {
	refs := engine.ResolveActivityContractors(a, maps)
	resolved := make([]ContractorRefResponse, 0, len(refs))
	for _, ref := range refs {
		resolved = append(resolved, contractorRefResponse(ref))
	}
	return ActivityResponse{
		ID:            a.ID,
		BriefingID:    a.BriefingID,
		Date:          a.Date,
		TimeOfDay:     a.TimeOfDay,
		Title:         a.Title,
		Description:   a.Description,
		Area:          a.Area,
		Priority:      a.Priority,
		LaborCount:    a.LaborCount,
		ContractorIDs: nonNilSlice(a.ContractorIDs),
		Contractors:   resolved,
		AssignedTo:    a.AssignedTo,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

func configResponse(cfg *config.Config) ProjectConfigResponse {
	var res ProjectConfigResponse
	res.Project.ID = cfg.Project.ID
	res.Project.Name = cfg.Project.Name
	res.Project.Timezone = cfg.Project.Timezone
	res.Defaults.Priority = cfg.Priority()
	res.Defaults.ContractorStatus = cfg.ContractorStatus()
	res.Stats.RollingWindowDays = cfg.RollingWindowDays()
	return res
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func mapContractors(items []domain.Contractor) []ContractorResponse {
	res := make([]ContractorResponse, 0, len(items))
	for _, c := range items {
		res = append(res, contractorResponse(c))
	}
	return res
}

func mapActivities(items []domain.Activity, maps engine.LookupMaps) []ActivityResponse {
	res := make([]ActivityResponse, 0, len(items))
	for _, a := range items {
		res = append(res, activityResponse(a, maps))
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func intOrZero(ptr *int) int {
	if ptr == nil {
		return 0
	}
	return *ptr
}
