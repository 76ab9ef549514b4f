package journalize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mbu-rpa/journalize/internal/formdata"
	"github.com/mbu-rpa/journalize/internal/formtype"
	"github.com/mbu-rpa/journalize/internal/getorganized"
	"github.com/mbu-rpa/journalize/internal/metadata"
	"github.com/mbu-rpa/journalize/internal/notify"
	"github.com/mbu-rpa/journalize/internal/tracking"
)

// Notifier dispatches stakeholder notifications. Implemented by
// notify.Dispatcher; delivery failures never surface here.
type Notifier interface {
	Dispatch(n notify.Notification)
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Source    Source
	Tracker   Tracker
	Identity  *IdentityResolver
	Folders   *CaseFolderResolver
	Cases     *CaseCreator
	Documents *DocumentJournalizer
	Notifier  Notifier
	Meta      *metadata.CaseMetadata
}

// Orchestrator sequences the per-form pipeline and isolates failures per
// form: a failed step marks the form Failed, notifies operations and moves
// on to the next form. No error from a single form ever aborts the run.
type Orchestrator struct {
	source    Source
	tracker   Tracker
	identity  *IdentityResolver
	folders   *CaseFolderResolver
	cases     *CaseCreator
	documents *DocumentJournalizer
	notifier  Notifier
	meta      *metadata.CaseMetadata
	def       formtype.Definition
}

// NewOrchestrator creates the pipeline orchestrator for one form type.
func NewOrchestrator(d Deps) (*Orchestrator, error) {
	def, ok := formtype.Lookup(d.Meta.FormTypeID)
	if !ok {
		return nil, fmt.Errorf("unknown form type %q", d.Meta.FormTypeID)
	}
	return &Orchestrator{
		source:    d.Source,
		tracker:   d.Tracker,
		identity:  d.Identity,
		folders:   d.Folders,
		cases:     d.Cases,
		documents: d.Documents,
		notifier:  d.Notifier,
		meta:      d.Meta,
		def:       def,
	}, nil
}

// Summary is the outcome of one run.
type Summary struct {
	RunID      uuid.UUID `json:"runId"`
	FormType   string    `json:"formType"`
	Processed  int       `json:"processed"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Run fetches all pending forms and processes them sequentially in
// submission order. Only a store fetch failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	summary := Summary{
		RunID:     uuid.New(),
		FormType:  o.meta.FormTypeID,
		StartedAt: time.Now().UTC(),
	}

	forms, err := o.source.FetchPending(ctx, o.meta.TableName)
	if err != nil {
		return summary, err
	}
	slog.InfoContext(ctx, "run started",
		"run_id", summary.RunID,
		"form_type", o.meta.FormTypeID,
		"pending", len(forms),
	)

	for _, form := range forms {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = time.Now().UTC()
			return summary, err
		}

		summary.Processed++
		if fail := o.processForm(ctx, form); fail != nil {
			summary.Failed++
			o.failForm(ctx, form.FormID, fail)
		} else {
			summary.Succeeded++
		}
	}

	summary.FinishedAt = time.Now().UTC()
	slog.InfoContext(ctx, "run finished",
		"run_id", summary.RunID,
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	return summary, nil
}

// processForm runs the full pipeline for one submission and returns the
// failure detail of the first step that failed, or nil on success.
func (o *Orchestrator) processForm(ctx context.Context, form tracking.FormSubmission) *FailureDetail {
	slog.InfoContext(ctx, "processing form", "form_id", form.FormID)

	payload, err := formdata.Parse(form.FormData)
	if err != nil {
		return failure(StepParse, err)
	}

	if err := o.tracker.Mark(ctx, o.meta.TableName, form.FormID, tracking.StatusInProgress); err != nil {
		return failure(StepStatus, err)
	}
	if err := o.tracker.IncrementAttempts(ctx, o.meta.TableName, form.FormID); err != nil {
		return failure(StepStatus, err)
	}

	pc := ProcessingContext{FormID: form.FormID}

	// Identity and folder resolution only apply to citizen cases; other
	// case types skip straight to case creation.
	if o.meta.CitizenCase() {
		pc.SSN = o.def.ExtractSSN(payload)
		if pc.SSN == "" {
			return failure(StepContactLookup, fmt.Errorf("no citizen identifier in form data"))
		}

		contact, err := o.identity.Resolve(ctx, form.FormID, pc.SSN)
		if err != nil {
			return failure(StepContactLookup, err)
		}
		pc.FullName = contact.FullName
		pc.PersonID = contact.ID

		folderID, err := o.folders.Resolve(ctx, form.FormID, getorganized.FolderQuery{
			CaseType: o.meta.CaseType,
			FullName: pc.FullName,
			PersonID: pc.PersonID,
			SSN:      pc.SSN,
		})
		if err != nil {
			return failure(StepCaseFolder, err)
		}
		pc.CaseFolderID = folderID
	}

	caseResult, title, err := o.cases.Create(ctx, form.FormID, CaseInput{
		Meta:         o.meta,
		Def:          o.def,
		Payload:      payload,
		FullName:     pc.FullName,
		SSN:          pc.SSN,
		CaseFolderID: pc.CaseFolderID,
	})
	if err != nil {
		return failure(StepCase, err)
	}
	pc.CaseID = caseResult.CaseID
	pc.CaseTitle = title
	pc.CaseRelURL = caseResult.RelativeURL

	docResult, err := o.documents.Process(ctx, form.FormID, pc.CaseID, o.meta, payload)
	if err != nil {
		return failure(StepCaseFiles, err)
	}

	if err := o.tracker.Mark(ctx, o.meta.TableName, form.FormID, tracking.StatusSuccessful); err != nil {
		return failure(StepStatus, err)
	}

	var attachment *notify.Attachment
	if len(docResult.LastFileBytes) > 0 {
		attachment = &notify.Attachment{
			Filename: docResult.LastFileName,
			Data:     docResult.LastFileBytes,
		}
	}
	o.notifier.Dispatch(notify.Notification{
		FormID:     form.FormID,
		FormType:   o.def,
		CaseID:     pc.CaseID,
		CaseTitle:  pc.CaseTitle,
		CaseRelURL: pc.CaseRelURL,
		Attachment: attachment,
	})

	slog.InfoContext(ctx, "form journalized", "form_id", form.FormID, "case_id", pc.CaseID)
	return nil
}

// failForm records the terminal failure and alerts operations. A Failed mark
// that itself fails is logged; there is nothing further to fall back to.
func (o *Orchestrator) failForm(ctx context.Context, formID string, fail *FailureDetail) {
	slog.ErrorContext(ctx, "form processing failed",
		"form_id", formID,
		"step", string(fail.Step),
		"error", fail.Err,
	)

	if err := o.tracker.Mark(ctx, o.meta.TableName, formID, tracking.StatusFailed); err != nil {
		slog.ErrorContext(ctx, "failed to mark form as failed", "form_id", formID, "error", err)
	}

	o.notifier.Dispatch(notify.Notification{
		FormID:      formID,
		FormType:    o.def,
		ErrorDetail: fail.Error(),
	})
}
