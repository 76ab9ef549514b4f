package tracking

import (
	"encoding/json"
	"time"
)

// ProcessStatus is the overall lifecycle status of a form submission.
type ProcessStatus string

const (
	StatusInProgress ProcessStatus = "InProgress"
	StatusSuccessful ProcessStatus = "Successful"
	StatusFailed     ProcessStatus = "Failed"
)

// Terminal reports whether the status excludes the form from future fetches.
// Failed is deliberately non-terminal: failed forms stay eligible for retry
// until their attempt counter reaches the configured maximum.
func (s ProcessStatus) Terminal() bool {
	return s == StatusSuccessful
}

// FormSubmission is one pending web-form row in a form-type table.
// Rows are written by the form intake and are read-only to the worker
// apart from the process_status and attempts columns.
type FormSubmission struct {
	FormID      string          `gorm:"type:uuid;column:uuid;primaryKey" json:"formId"`
	FormData    json.RawMessage `gorm:"type:jsonb;column:form_data;not null" json:"formData"`
	SubmittedAt time.Time       `gorm:"type:timestamptz;column:form_submitted_date;not null" json:"submittedAt"`
	Status      *ProcessStatus  `gorm:"type:varchar(32);column:process_status" json:"status,omitempty"`
	Attempts    int             `gorm:"type:int;column:attempts;not null;default:0" json:"attempts"`
}

// StatusEntry is one step-level audit fragment for a form submission.
// Entries are upserted keyed by (form_id, step_name) and never deleted;
// together they form the audit trail and the resume point for later runs.
type StatusEntry struct {
	FormID       string    `gorm:"type:uuid;column:form_id;primaryKey" json:"formId"`
	StepName     string    `gorm:"type:varchar(64);column:step_name;primaryKey" json:"stepName"`
	JSONFragment string    `gorm:"type:jsonb;column:json_fragment" json:"jsonFragment"`
	UpdatedAt    time.Time `gorm:"type:timestamptz;column:updated_at;not null" json:"updatedAt"`
}

func (StatusEntry) TableName() string {
	return "status_entries"
}

// CaseProfile mirrors one row of the case-profile lookup view.
type CaseProfile struct {
	Name          string `gorm:"type:varchar(255);column:name" json:"name"`
	CaseProfileID string `gorm:"type:varchar(64);column:case_profile_id" json:"caseProfileId"`
}

func (CaseProfile) TableName() string {
	return "go_case_profiles_view"
}
