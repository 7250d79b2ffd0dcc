package domain

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Briefing struct {
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

type Activity struct {
	ID            string   `json:"id"`
	BriefingID    string   `json:"briefing_id"`
	Date          string   `json:"date" format:"date"`
	TimeOfDay     string   `json:"time_of_day,omitempty"`
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Area          string   `json:"area,omitempty"`
	Priority      string   `json:"priority" enum:"low,medium,high,critical"`
	LaborCount    int      `json:"labor_count"`
	ContractorIDs []string `json:"contractor_ids"`
	AssignedTo    string   `json:"assigned_to,omitempty"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	UpdatedAt     string   `json:"updated_at" format:"date-time"`
}

type Contractor struct {
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

// ContractorRef is the resolved descriptor embedded in activity responses.
type ContractorRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Trade  string `json:"trade"`
	Status string `json:"status"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

const (
	BriefingStatusDraft     = "draft"
	BriefingStatusPublished = "published"
)

// Priority values in descending urgency. Listing order surfaces
// critical work first within each area.
var Priorities = []string{"critical", "high", "medium", "low"}

// ContractorStatuses in registry display order.
var ContractorStatuses = []string{"Active", "Standby", "Delayed", "Complete", "Offsite"}

func ValidPriority(p string) bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

func ValidContractorStatus(s string) bool {
	for _, v := range ContractorStatuses {
		if v == s {
			return true
		}
	}
	return false
}
