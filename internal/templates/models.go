package templates

import "time"

// Template is a user-defined set of custom extraction targets. OrgID is
// empty for personal templates, which only the owning user may use.
type Template struct {
	ID        string    `json:"id" db:"id"`
	OrgID     string    `json:"org_id,omitempty" db:"org_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type TemplateField struct {
	ID         string `json:"id" db:"id"`
	TemplateID string `json:"template_id" db:"template_id"`
	Name       string `json:"name" db:"name"`
	FieldType  string `json:"field_type" db:"field_type"`
	// Position fixes the extraction order presented to the model.
	Position int `json:"position" db:"position"`
}
