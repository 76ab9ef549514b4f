package getorganized

import (
	"context"
	"fmt"
)

// RequestError reports a non-success response from the case-management API.
// The status and body are kept for diagnostics and stakeholder error mails.
type RequestError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("getorganized: %s returned %d: %s", e.Op, e.StatusCode, e.Body)
}

// Contact is a resolved canonical person identity.
type Contact struct {
	FullName string `json:"FullName"`
	ID       string `json:"ID"`
}

// FolderQuery identifies a citizen-level case folder by its contact data.
type FolderQuery struct {
	CaseType string
	FullName string
	PersonID string
	SSN      string
}

// CaseRequest is the assembled data for creating a case record.
type CaseRequest struct {
	CaseType                 string
	Title                    string
	CaseFolderID             string
	CaseCategory             string
	OwnerID                  string
	OwnerName                string
	ProfileID                string
	ProfileName              string
	DepartmentID             string
	DepartmentName           string
	SupplementaryCaseOwners  string
	SupplementaryDepartments string
	KLENumber                string
	Facet                    string
	ReceivedDate             string
	SpecialGroup             string
	CustomMasterCase         string
}

// CaseResult is the backend's answer to a case or folder creation.
type CaseResult struct {
	CaseID      string `json:"CaseID"`
	RelativeURL string `json:"CaseRelativeUrl"`
}

// DocumentUpload is one attachment destined for a case's document list.
type DocumentUpload struct {
	CaseID   string
	Filename string
	Title    string
	Category string
	Date     string
	Bytes    []byte
}

// ContactAPI looks up canonical person identities by citizen identifier.
type ContactAPI interface {
	ContactLookup(ctx context.Context, ssn string) (Contact, error)
}

// CaseFolderAPI searches for and creates citizen-level case folders.
type CaseFolderAPI interface {
	// SearchCaseFolder returns the folder id, or "" when no folder exists.
	SearchCaseFolder(ctx context.Context, q FolderQuery) (string, error)
	CreateCaseFolder(ctx context.Context, q FolderQuery) (string, error)
}

// CaseAPI creates case records under a resolved folder.
type CaseAPI interface {
	CreateCase(ctx context.Context, req CaseRequest) (CaseResult, error)
}

// DocumentAPI uploads, journalizes and finalizes case documents.
type DocumentAPI interface {
	UploadDocument(ctx context.Context, req DocumentUpload) (string, error)
	JournalizeDocuments(ctx context.Context, documentIDs []string) error
	FinalizeDocuments(ctx context.Context, documentIDs []string) error
}
