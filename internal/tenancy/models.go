package tenancy

import "time"

// AgentConfig is a tenant: one voice agent on the upstream platform plus the
// branding and evaluation schema the dashboard shows for its records.
type AgentConfig struct {
	ID                       string                     `json:"id" db:"id"`
	BrandingName             string                     `json:"branding_name" db:"branding_name"`
	EvaluationCriteriaConfig map[string]CriterionConfig `json:"evaluation_criteria_config" db:"evaluation_criteria_config"`
	CreatedAt                time.Time                  `json:"created_at" db:"created_at"`
}

// CriterionConfig describes one evaluation criterion for display.
type CriterionConfig struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DashboardUser is a dashboard login.
//
// PasswordHash never leaves the auth package; it is excluded from JSON.
type DashboardUser struct {
	ID              string    `json:"id" db:"id"`
	Username        string    `json:"username" db:"username"`
	PasswordHash    string    `json:"-" db:"password_hash"`
	AllowedAgentIDs []string  `json:"allowed_agent_ids" db:"allowed_agent_ids"`
	IsDeveloper     bool      `json:"is_developer" db:"is_developer"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}
