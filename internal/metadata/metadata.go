package metadata

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mbu-rpa/journalize/internal/formdata"
)

// CategorySeparator is the GetOrganized convention for delimiter-joined
// key/value strings in metadata blocks.
const CategorySeparator = ";#"

// CaseMetadata is the per-form-type run configuration, loaded once per run.
// It is shared read-only across all form iterations.
type CaseMetadata struct {
	FormTypeID   string          `json:"os2formWebformId"`
	TableName    string          `json:"tableName"`
	CaseType     string          `json:"caseType"`
	CaseData     CaseData        `json:"caseData"`
	DocumentData json.RawMessage `json:"documentData"`

	// Policy is decoded from DocumentData at load time.
	Policy DocumentPolicy `json:"-"`
}

// CaseData carries the default owner/profile/department fields merged into
// every created case. Explicit profile values here always win over derived ones.
type CaseData struct {
	CaseCategory             string `json:"caseCategory"`
	CaseOwnerID              string `json:"caseOwnerId"`
	CaseOwnerName            string `json:"caseOwnerName"`
	CaseProfileID            string `json:"caseProfileId"`
	CaseProfileName          string `json:"caseProfileName"`
	CaseTitle                string `json:"caseTitle"` // optional placeholder template
	DepartmentID             string `json:"departmentId"`
	DepartmentName           string `json:"departmentName"`
	SupplementaryCaseOwners  string `json:"supplementaryCaseOwners"`
	SupplementaryDepartments string `json:"supplementaryDepartments"`
	KLENumber                string `json:"kleNumber"`
	Facet                    string `json:"facet"`
	StartDate                string `json:"startDate"`
	SpecialGroup             string `json:"specialGroup"`
	CustomMasterCase         string `json:"customMasterCase"`
}

// DocumentPolicy holds the document handling flags of a form type.
type DocumentPolicy struct {
	Journalize       bool `json:"journalizeDocuments"`
	Finalize         bool `json:"finalizeDocuments"`
	UseCompletedDate bool `json:"useCompletedDateFromFormAsDate"`
}

// Load reads and validates the case metadata JSON at the given path.
func Load(path string) (*CaseMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case metadata: %w", err)
	}
	return Parse(raw)
}

// Parse decodes case metadata from raw JSON.
func Parse(raw []byte) (*CaseMetadata, error) {
	var meta CaseMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode case metadata: %w", err)
	}
	if meta.FormTypeID == "" {
		return nil, fmt.Errorf("case metadata: os2formWebformId is required")
	}
	if meta.TableName == "" {
		return nil, fmt.Errorf("case metadata: tableName is required")
	}
	if meta.CaseType == "" {
		return nil, fmt.Errorf("case metadata: caseType is required")
	}
	if len(meta.DocumentData) > 0 {
		if err := json.Unmarshal(meta.DocumentData, &meta.Policy); err != nil {
			return nil, fmt.Errorf("case metadata: invalid documentData: %w", err)
		}
	}
	return &meta, nil
}

// CitizenCase reports whether the case type is the citizen ("BOR") category,
// which requires identity resolution and a per-citizen case folder.
func (m *CaseMetadata) CitizenCase() bool {
	return m.CaseType == "BOR"
}

// CategoryMap extracts the document title → category mapping from the
// documentCategory nodes of the document-policy block.
func (m *CaseMetadata) CategoryMap() map[string]string {
	if len(m.DocumentData) == 0 {
		return map[string]string{}
	}
	v, err := formdata.Parse(m.DocumentData)
	if err != nil {
		return map[string]string{}
	}
	return formdata.ExtractKeyValuePairs(v, "documentCategory", CategorySeparator)
}
