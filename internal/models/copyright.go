package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/journal-portal-api/internal/schema"
)

// CopyrightStatus tracks the lifecycle of a copyright record.
type CopyrightStatus string

const (
	CopyrightStatusDraft      CopyrightStatus = "draft"
	CopyrightStatusSubmitted  CopyrightStatus = "submitted"
	CopyrightStatusSuperseded CopyrightStatus = "superseded"
)

// Author is one entry of the copyright form. Order matters: the first author is the corresponding author.
type Author struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Designation string `json:"designation,omitempty"`
	Institution string `json:"institution,omitempty"`
	Address     string `json:"address,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Authors is stored as a JSONB array.
type Authors []Author

func (a Authors) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Author(a))
}

func (a *Authors) Scan(src interface{}) error {
	return scanJSON(src, a, "authors")
}

// Signatures is stored as a JSONB object keyed by author slot.
type Signatures map[int]*schema.Signature

func (s Signatures) Value() (driver.Value, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[int]*schema.Signature(s))
}

func (s *Signatures) Scan(src interface{}) error {
	return scanJSON(src, s, "signatures")
}

// Map returns the signatures as the renderer expects them.
func (s Signatures) Map() schema.SignatureMap {
	out := make(schema.SignatureMap, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// CopyrightSubmission is the full paper copyright agreement for an accepted abstract.
type CopyrightSubmission struct {
	ID              string          `db:"id" json:"id"`
	SubmissionID    string          `db:"submission_id" json:"submission_id"`
	AuthorID        string          `db:"author_id" json:"author_id"`
	JournalID       string          `db:"journal_id" json:"journal_id"`
	ManuscriptTitle string          `db:"manuscript_title" json:"manuscript_title"`
	Authors         Authors         `db:"authors" json:"authors"`
	Signatures      Signatures      `db:"signatures" json:"signatures"`
	TemplateVersion int             `db:"template_version" json:"template_version"`
	Status          CopyrightStatus `db:"status" json:"status"`
	ManuscriptKey   *string         `db:"manuscript_key" json:"-"`
	ManuscriptName  *string         `db:"manuscript_name" json:"manuscript_name,omitempty"`
	ManuscriptMIME  *string         `db:"manuscript_mime" json:"manuscript_mime,omitempty"`
	ManuscriptSize  *int64          `db:"manuscript_size" json:"manuscript_size,omitempty"`
	PDFKey          *string         `db:"pdf_key" json:"-"`
	SubmittedAt     *time.Time      `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Journal is a publication venue selectable on the copyright form.
type Journal struct {
	ID     string `db:"id" json:"id"`
	Title  string `db:"title" json:"title"`
	ISSN   string `db:"issn" json:"issn,omitempty"`
	Active bool   `db:"active" json:"active"`
}

// FormTemplate is a versioned copyright form schema. One version is active at a time.
type FormTemplate struct {
	ID          string         `db:"id" json:"id"`
	Version     int            `db:"version" json:"version"`
	Name        string         `db:"name" json:"name"`
	Schema      types.JSONText `db:"schema" json:"-"`
	Active      bool           `db:"active" json:"active"`
	PublishedBy *string        `db:"published_by" json:"published_by,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

func scanJSON(src interface{}, dst interface{}, name string) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("%s: unsupported type %T", name, src)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
