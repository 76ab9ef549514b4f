package journalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mbu-rpa/journalize/internal/formdata"
	"github.com/mbu-rpa/journalize/internal/formtype"
	"github.com/mbu-rpa/journalize/internal/getorganized"
	"github.com/mbu-rpa/journalize/internal/metadata"
)

// CaseCreator derives the case title and profile for a form and creates the
// case record under the resolved folder.
type CaseCreator struct {
	cases   getorganized.CaseAPI
	tracker Tracker
}

// NewCaseCreator creates a case creator.
func NewCaseCreator(cases getorganized.CaseAPI, tracker Tracker) *CaseCreator {
	return &CaseCreator{cases: cases, tracker: tracker}
}

// CaseInput carries everything case creation depends on.
type CaseInput struct {
	Meta         *metadata.CaseMetadata
	Def          formtype.Definition
	Payload      *formdata.Value
	FullName     string
	SSN          string
	CaseFolderID string
}

// Create builds and submits the case record. It returns the backend result
// and the derived title, and records the case id as a step fragment.
func (c *CaseCreator) Create(ctx context.Context, formID string, in CaseInput) (getorganized.CaseResult, string, error) {
	title := deriveCaseTitle(in)

	profileID, profileName, err := c.deriveCaseProfile(ctx, in)
	if err != nil {
		return getorganized.CaseResult{}, "", err
	}

	caseData := in.Meta.CaseData
	req := getorganized.CaseRequest{
		CaseType:                 in.Meta.CaseType,
		Title:                    title,
		CaseFolderID:             in.CaseFolderID,
		CaseCategory:             caseData.CaseCategory,
		OwnerID:                  caseData.CaseOwnerID,
		OwnerName:                caseData.CaseOwnerName,
		ProfileID:                profileID,
		ProfileName:              profileName,
		DepartmentID:             caseData.DepartmentID,
		DepartmentName:           caseData.DepartmentName,
		SupplementaryCaseOwners:  caseData.SupplementaryCaseOwners,
		SupplementaryDepartments: caseData.SupplementaryDepartments,
		KLENumber:                caseData.KLENumber,
		Facet:                    caseData.Facet,
		ReceivedDate:             receivedDate(in),
		SpecialGroup:             caseData.SpecialGroup,
		CustomMasterCase:         caseData.CustomMasterCase,
	}

	result, err := c.cases.CreateCase(ctx, req)
	if err != nil {
		return getorganized.CaseResult{}, "", err
	}

	fragment, err := json.Marshal(map[string]string{"CaseId": result.CaseID})
	if err != nil {
		return getorganized.CaseResult{}, "", fmt.Errorf("failed to encode case fragment: %w", err)
	}
	if err := c.tracker.RecordStep(ctx, formID, string(StepCase), string(fragment)); err != nil {
		return getorganized.CaseResult{}, "", err
	}

	slog.InfoContext(ctx, "case created", "form_id", formID, "case_id", result.CaseID, "title", title)
	return result, title, nil
}

// deriveCaseTitle is a pure function of the form type, person and payload.
// A metadata title template wins for form types outside the
// boundary-violation family; those always derive from the payload's area.
func deriveCaseTitle(in CaseInput) string {
	if in.Meta.CaseData.CaseTitle != "" && in.Def.Family != formtype.FamilyRespekt {
		return formtype.ApplyTitleTemplate(in.Meta.CaseData.CaseTitle, in.FullName, in.SSN)
	}
	return in.Def.CaseTitle(formtype.TitleInput{
		FullName: in.FullName,
		SSN:      in.SSN,
		Payload:  in.Payload,
	})
}

// deriveCaseProfile resolves the case profile id and name. An explicit
// metadata override always wins; otherwise the form type's profile rule maps
// the payload to a profile name, and the id is looked up in the tracking
// store by partial name match. A missing match propagates as empty values.
func (c *CaseCreator) deriveCaseProfile(ctx context.Context, in CaseInput) (string, string, error) {
	caseData := in.Meta.CaseData
	if caseData.CaseProfileID != "" && caseData.CaseProfileName != "" {
		return caseData.CaseProfileID, caseData.CaseProfileName, nil
	}

	profileName := in.Def.ProfileName(in.Payload)
	if profileName == "" {
		return "", "", nil
	}

	profileID, err := c.tracker.FindCaseProfileID(ctx, profileName)
	if err != nil {
		return "", "", err
	}
	return profileID, profileName, nil
}

// receivedDate prefers the form's own completion date and falls back to the
// configured default start date.
func receivedDate(in CaseInput) string {
	if completed := in.Payload.CompletedAt(); completed != "" {
		return completed
	}
	return in.Meta.CaseData.StartDate
}
