// Package getorganized is the HTTP client for the GetOrganized
// case-management API.
package getorganized

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	contactLookupPath    = "/borgersager/_goapi/contacts/readitem"
	folderSearchPath     = "/_goapi/cases/findbycaseproperties"
	casesPath            = "/_goapi/Cases"
	documentUploadPath   = "/_goapi/Documents/AddToCase"
	journalizePath       = "/_goapi/Documents/MarkMultipleAsCaseRecord/ByDocumentId"
	finalizePath         = "/_goapi/Documents/FinalizeMultiple/ByDocumentId"
	defaultClientTimeout = 60 * time.Second
)

// Client is the concrete HTTP-backed implementation of the ContactAPI,
// CaseFolderAPI, CaseAPI and DocumentAPI capabilities.
type Client struct {
	endpoint   string
	username   string
	password   string
	httpClient *http.Client
}

// NewClient creates a GetOrganized client for the given endpoint and
// basic-auth credentials.
func NewClient(endpoint, username, password string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
	}
}

// ContactLookup resolves a person's full name and internal id by SSN.
func (c *Client) ContactLookup(ctx context.Context, ssn string) (Contact, error) {
	body := map[string]string{"PersonSSN": ssn}

	var contact Contact
	if err := c.postJSON(ctx, "contact lookup", contactLookupPath, body, &contact); err != nil {
		return Contact{}, err
	}
	return contact, nil
}

// SearchCaseFolder searches for a citizen case folder by contact properties.
// An empty result set is not an error; it returns "".
func (c *Client) SearchCaseFolder(ctx context.Context, q FolderQuery) (string, error) {
	body := map[string]any{
		"CaseTypePrefix": q.CaseType,
		"MetadataXml":    folderMetadataXML(q),
	}

	var result struct {
		CasesInfo []struct {
			CaseID string `json:"CaseID"`
		} `json:"CasesInfo"`
	}
	if err := c.postJSON(ctx, "case folder search", folderSearchPath, body, &result); err != nil {
		return "", err
	}
	if len(result.CasesInfo) == 0 {
		return "", nil
	}
	return result.CasesInfo[0].CaseID, nil
}

// CreateCaseFolder creates a citizen case folder.
func (c *Client) CreateCaseFolder(ctx context.Context, q FolderQuery) (string, error) {
	body := map[string]any{
		"CaseTypePrefix":             q.CaseType,
		"MetadataXml":                folderMetadataXML(q),
		"ReturnWhenCaseFullyCreated": true,
	}

	var result CaseResult
	if err := c.postJSON(ctx, "case folder create", casesPath, body, &result); err != nil {
		return "", err
	}
	return result.CaseID, nil
}

// CreateCase creates a case record under the given folder.
func (c *Client) CreateCase(ctx context.Context, req CaseRequest) (CaseResult, error) {
	body := map[string]any{
		"CaseTypePrefix":             req.CaseType,
		"MetadataXml":                caseMetadataXML(req),
		"ReturnWhenCaseFullyCreated": true,
	}

	var result CaseResult
	if err := c.postJSON(ctx, "case create", casesPath, body, &result); err != nil {
		return CaseResult{}, err
	}
	return result, nil
}

// UploadDocument adds one document to a case and returns the backend
// document id.
func (c *Client) UploadDocument(ctx context.Context, req DocumentUpload) (string, error) {
	// The backend expects the file content as a JSON array of byte values,
	// not base64.
	byteList := make([]int, len(req.Bytes))
	for i, b := range req.Bytes {
		byteList[i] = int(b)
	}

	body := map[string]any{
		"CaseId":     req.CaseID,
		"ListName":   "Dokumenter",
		"FolderPath": "null",
		"FileName":   req.Filename,
		"Metadata":   documentMetadataXML(req),
		"Overwrite":  "true",
		"Bytes":      byteList,
	}

	var result struct {
		DocID json.Number `json:"DocId"`
	}
	if err := c.postJSON(ctx, "document upload", documentUploadPath, body, &result); err != nil {
		return "", err
	}
	return result.DocID.String(), nil
}

// JournalizeDocuments marks the given documents as case records.
func (c *Client) JournalizeDocuments(ctx context.Context, documentIDs []string) error {
	body := map[string]any{"DocIds": documentIDs}
	return c.postJSON(ctx, "document journalize", journalizePath, body, nil)
}

// FinalizeDocuments locks the given documents against further edits.
func (c *Client) FinalizeDocuments(ctx context.Context, documentIDs []string) error {
	body := map[string]any{"DocIds": documentIDs}
	return c.postJSON(ctx, "document finalize", finalizePath, body, nil)
}

func (c *Client) postJSON(ctx context.Context, op, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("getorganized: failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("getorganized: failed to build %s request: %w", op, err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("getorganized: %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("getorganized: failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("getorganized: failed to decode %s response: %w", op, err)
		}
	}
	return nil
}

var xmlAttrEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"<", "&lt;",
	">", "&gt;",
)

// folderMetadataXML builds the rowset metadata for a citizen case folder.
// The CCMContactData field carries name, person id and ssn joined by ";#".
func folderMetadataXML(q FolderQuery) string {
	contactData := fmt.Sprintf("%s;#%s;#%s;#;#", q.FullName, q.PersonID, q.SSN)
	return fmt.Sprintf(
		`<z:row xmlns:z="#RowsetSchema" ows_CaseCategory="Borgermappe" ows_CCMContactData="%s" />`,
		xmlAttrEscaper.Replace(contactData),
	)
}

// caseMetadataXML builds the rowset metadata for a case record.
func caseMetadataXML(req CaseRequest) string {
	var sb strings.Builder
	sb.WriteString(`<z:row xmlns:z="#RowsetSchema" ows_CaseStatus="Åben" `)

	attr := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&sb, `ows_%s="%s" `, name, xmlAttrEscaper.Replace(value))
		}
	}

	attr("CaseCategory", req.CaseCategory)
	attr("Title", req.Title)
	if req.OwnerID != "" {
		attr("CaseOwner", fmt.Sprintf("%s;#%s", req.OwnerID, req.OwnerName))
	}
	if req.CaseFolderID != "" {
		attr("CCMParentCase", fmt.Sprintf("%s;#%s", req.CaseFolderID, req.CaseType))
	}
	if req.DepartmentID != "" {
		attr("Afdeling", fmt.Sprintf("%s;#%s", req.DepartmentID, req.DepartmentName))
	}
	if req.ProfileID != "" || req.ProfileName != "" {
		attr("Sagsprofil_BOR", fmt.Sprintf("%s;#%s", req.ProfileID, req.ProfileName))
	}
	attr("SupplerendeSagsbehandlere", req.SupplementaryCaseOwners)
	attr("SupplerendeAfdelinger", req.SupplementaryDepartments)
	attr("KLENummer", req.KLENumber)
	attr("Facet", req.Facet)
	attr("Modtaget", req.ReceivedDate)
	attr("Saerliggruppe", req.SpecialGroup)
	attr("CCMMasterCase", req.CustomMasterCase)

	sb.WriteString("/>")
	return sb.String()
}

// documentMetadataXML builds the rowset metadata for a document upload.
func documentMetadataXML(req DocumentUpload) string {
	var sb strings.Builder
	sb.WriteString(`<z:row xmlns:z="#RowsetSchema" `)
	if req.Date != "" {
		fmt.Fprintf(&sb, `ows_Dato="%s" `, xmlAttrEscaper.Replace(req.Date))
	}
	if req.Title != "" {
		fmt.Fprintf(&sb, `ows_Title="%s" `, xmlAttrEscaper.Replace(req.Title))
	}
	if req.Category != "" {
		fmt.Fprintf(&sb, `ows_Korrespondance="%s" `, xmlAttrEscaper.Replace(req.Category))
	}
	sb.WriteString("/>")
	return sb.String()
}
