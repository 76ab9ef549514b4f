// Package journalize drives the per-form pipeline that turns a submitted
// web form into a journalized case in the case-management backend:
// contact lookup, case-folder resolution, case creation and document
// upload/journalize/finalize, with step-level status tracking and
// stakeholder notification.
package journalize

import (
	"context"
	"fmt"

	"github.com/mbu-rpa/journalize/internal/tracking"
)

// Step names the pipeline stage a status fragment or failure belongs to.
// The values are the step names written to the tracking store.
type Step string

const (
	StepParse         Step = "ParseFormData"
	StepContactLookup Step = "ContactLookup"
	StepCaseFolder    Step = "CaseFolder"
	StepCase          Step = "Case"
	StepCaseFiles     Step = "Case Files"
	StepStatus        Step = "StatusUpdate"
)

// FailureDetail is the explicit per-step failure result the orchestrator
// matches on. A step that fails never throws past its boundary; it returns
// one of these and the orchestrator moves to the next form.
type FailureDetail struct {
	Step Step
	Err  error
}

func (f *FailureDetail) Error() string {
	return fmt.Sprintf("step %s: %v", f.Step, f.Err)
}

func (f *FailureDetail) Unwrap() error { return f.Err }

func failure(step Step, err error) *FailureDetail {
	return &FailureDetail{Step: step, Err: err}
}

// Source fetches pending form submissions for a form-type table.
// Implemented by tracking.Store.
type Source interface {
	FetchPending(ctx context.Context, tableName string) ([]tracking.FormSubmission, error)
}

// Tracker writes lifecycle status and step fragments for form submissions,
// and resolves case-profile ids. Implemented by tracking.Store.
type Tracker interface {
	Mark(ctx context.Context, tableName, formID string, status tracking.ProcessStatus) error
	IncrementAttempts(ctx context.Context, tableName, formID string) error
	RecordStep(ctx context.Context, formID, stepName, jsonFragment string) error
	FindCaseProfileID(ctx context.Context, profileName string) (string, error)
}

// ProcessingContext is the per-form working state accumulated by the
// orchestrator. Fields are filled in strict dependency order: the person
// fields only after identity resolution, the case id only after the folder
// is known (for citizen cases).
type ProcessingContext struct {
	FormID       string
	SSN          string
	FullName     string
	PersonID     string
	CaseFolderID string
	CaseID       string
	CaseTitle    string
	CaseRelURL   string
}
