package stage

import "time"

// Profile holds the accumulated, validated booking fields for one client.
// Fields fill monotonically: an accepted value is only replaced when a later
// turn supplies a new value that also passes validation, or when a
// confirmation-stage correction explicitly clears a dependent field.
type Profile struct {
	ClientID      string     `json:"client_id"`
	FullName      string     `json:"full_name,omitempty"`
	Procedure     string     `json:"procedure,omitempty"`
	DesiredDay    *time.Time `json:"desired_day,omitempty"`
	DesiredTime   string     `json:"desired_time,omitempty"` // canonical HH:MM
	TimeWindow    string     `json:"time_window,omitempty"`  // manhã, tarde or noite
	ProposedSlots []string   `json:"proposed_slots,omitempty"`
	CurrentStage  Stage      `json:"current_stage"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewProfile returns a fresh profile at the initial stage.
func NewProfile(clientID string, now time.Time) *Profile {
	return &Profile{
		ClientID:     clientID,
		CurrentStage: Greeting,
		UpdatedAt:    now.UTC(),
	}
}

// merge applies accepted fields onto the profile. Only non-empty accepted
// values are written, so partial extractions never erase earlier state.
func (p *Profile) merge(accepted Candidates) (changed bool) {
	if accepted.FullName != "" && accepted.FullName != p.FullName {
		p.FullName = accepted.FullName
		changed = true
	}
	if accepted.Procedure != "" && accepted.Procedure != p.Procedure {
		p.Procedure = accepted.Procedure
		changed = true
	}
	if accepted.Day != nil {
		if p.DesiredDay == nil || !accepted.Day.Equal(*p.DesiredDay) {
			d := *accepted.Day
			p.DesiredDay = &d
			changed = true
		}
	}
	if accepted.Time != "" && accepted.Time != p.DesiredTime {
		p.DesiredTime = accepted.Time
		changed = true
	}
	if accepted.Window != "" && accepted.Window != p.TimeWindow {
		p.TimeWindow = accepted.Window
		changed = true
	}
	return changed
}

// HistoryRecord is the immutable audit row appended for every turn,
// self-loops included. Candidates hold the raw extraction before validation.
type HistoryRecord struct {
	ClientID   string     `json:"client_id"`
	FromStage  Stage      `json:"from_stage"`
	ToStage    Stage      `json:"to_stage"`
	Candidates Candidates `json:"extracted_fields"`
	CreatedAt  time.Time  `json:"created_at"`
}

// PromptTemplate is the per-stage prompt configuration. Exactly one template
// is active per stage; inactive rows are retained for audit only.
type PromptTemplate struct {
	StageName    Stage  `json:"stage_name"`
	SystemPrompt string `json:"system_prompt"`
	UserTemplate string `json:"user_template"`
	Active       bool   `json:"active"`
}

// Stats is the read-only aggregate exposed by GET /stats.
type Stats struct {
	TotalClients     int            `json:"total_clients"`
	TotalConvos      int            `json:"total_conversations"`
	TotalMessages    int            `json:"total_messages"`
	TotalTransitions int            `json:"total_stage_transitions"`
	Stages           map[string]int `json:"stages"`
}
