package journalize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbu-rpa/journalize/internal/getorganized"
	"github.com/mbu-rpa/journalize/internal/metadata"
	"github.com/mbu-rpa/journalize/internal/notify"
	"github.com/mbu-rpa/journalize/internal/tracking"
)

type fakeStore struct {
	forms    []tracking.FormSubmission
	fetchErr error

	statuses map[string]tracking.ProcessStatus
	attempts map[string]int
	steps    map[string]string // formID + "/" + stepName
	profiles map[string]string // profile name -> id
	markErr  error
}

func newFakeStore(forms ...tracking.FormSubmission) *fakeStore {
	return &fakeStore{
		forms:    forms,
		statuses: make(map[string]tracking.ProcessStatus),
		attempts: make(map[string]int),
		steps:    make(map[string]string),
		profiles: make(map[string]string),
	}
}

func (s *fakeStore) FetchPending(_ context.Context, _ string) ([]tracking.FormSubmission, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.forms, nil
}

func (s *fakeStore) Mark(_ context.Context, _ string, formID string, status tracking.ProcessStatus) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.statuses[formID] = status
	return nil
}

func (s *fakeStore) IncrementAttempts(_ context.Context, _ string, formID string) error {
	s.attempts[formID]++
	return nil
}

func (s *fakeStore) RecordStep(_ context.Context, formID, stepName, jsonFragment string) error {
	s.steps[formID+"/"+stepName] = jsonFragment
	return nil
}

func (s *fakeStore) FindCaseProfileID(_ context.Context, profileName string) (string, error) {
	for name, id := range s.profiles {
		if strings.Contains(strings.ToLower(name), strings.ToLower(profileName)) {
			return id, nil
		}
	}
	return "", nil
}

// fakeBackend implements the contact, folder, case, document and download
// interfaces and records the call order so tests can assert sequencing.
type fakeBackend struct {
	calls []string

	contact    getorganized.Contact
	contactErr error
	lastSSN    string

	folderID  string // search result, "" means no folder exists
	searchErr error

	caseResult getorganized.CaseResult
	caseErr    error
	lastCase   getorganized.CaseRequest

	files       map[string][]byte
	downloadErr error

	uploads        []getorganized.DocumentUpload
	uploadFailures int // fail this many upload calls before succeeding
	uploadCalls    int

	journalized [][]string
	finalized   [][]string
}

func (b *fakeBackend) ContactLookup(_ context.Context, ssn string) (getorganized.Contact, error) {
	b.calls = append(b.calls, "contact")
	b.lastSSN = ssn
	if b.contactErr != nil {
		return getorganized.Contact{}, b.contactErr
	}
	return b.contact, nil
}

func (b *fakeBackend) SearchCaseFolder(_ context.Context, _ getorganized.FolderQuery) (string, error) {
	b.calls = append(b.calls, "searchFolder")
	if b.searchErr != nil {
		return "", b.searchErr
	}
	return b.folderID, nil
}

func (b *fakeBackend) CreateCaseFolder(_ context.Context, _ getorganized.FolderQuery) (string, error) {
	b.calls = append(b.calls, "createFolder")
	return "F1", nil
}

func (b *fakeBackend) CreateCase(_ context.Context, req getorganized.CaseRequest) (getorganized.CaseResult, error) {
	b.calls = append(b.calls, "createCase")
	b.lastCase = req
	if b.caseErr != nil {
		return getorganized.CaseResult{}, b.caseErr
	}
	return b.caseResult, nil
}

func (b *fakeBackend) DownloadFile(_ context.Context, url string) ([]byte, error) {
	b.calls = append(b.calls, "download")
	if b.downloadErr != nil {
		return nil, b.downloadErr
	}
	if data, ok := b.files[url]; ok {
		return data, nil
	}
	return []byte("file-bytes"), nil
}

func (b *fakeBackend) UploadDocument(_ context.Context, req getorganized.DocumentUpload) (string, error) {
	b.calls = append(b.calls, "upload")
	b.uploadCalls++
	if b.uploadFailures > 0 {
		b.uploadFailures--
		return "", errors.New("backend unavailable")
	}
	b.uploads = append(b.uploads, req)
	return fmt.Sprintf("%d", 9000+len(b.uploads)), nil
}

func (b *fakeBackend) JournalizeDocuments(_ context.Context, ids []string) error {
	b.calls = append(b.calls, "journalize")
	b.journalized = append(b.journalized, ids)
	return nil
}

func (b *fakeBackend) FinalizeDocuments(_ context.Context, ids []string) error {
	b.calls = append(b.calls, "finalize")
	b.finalized = append(b.finalized, ids)
	return nil
}

type fakeNotifier struct {
	sent []notify.Notification
}

func (n *fakeNotifier) Dispatch(msg notify.Notification) {
	n.sent = append(n.sent, msg)
}

func testMeta(t *testing.T) *metadata.CaseMetadata {
	t.Helper()
	meta, err := metadata.Parse([]byte(`{
		"os2formWebformId": "tilmelding_til_modersmaalsunderv",
		"tableName": "modersmaal_forms",
		"caseType": "BOR",
		"caseData": {
			"caseCategory": "Standard",
			"caseOwnerId": "42",
			"caseOwnerName": "Sagsbehandler",
			"startDate": "2026-01-01"
		},
		"documentData": {
			"journalizeDocuments": true,
			"finalizeDocuments": true,
			"useCompletedDateFromFormAsDate": true,
			"documents": [{"documentCategory": "Indgående;#Kvittering"}]
		}
	}`))
	require.NoError(t, err)
	return meta
}

const happyPayload = `{
	"data": {
		"barnets_cpr_nummer": "010101-1234",
		"attachments": {
			"kvittering": {"name": "Kvittering", "url": "https://selvbetjening.example.dk/files/kvittering.pdf"}
		}
	},
	"entity": {"completed": [{"value": "2026-01-05"}]}
}`

func newTestJournalizer(backend *fakeBackend, store *fakeStore) *DocumentJournalizer {
	j := &DocumentJournalizer{
		docs:       backend,
		source:     backend,
		tracker:    store,
		retries:    5,
		retryDelay: 10 * time.Second,
		interDelay: 0,
		sleep:      func(time.Duration) {},
	}
	return j
}

func newTestOrchestrator(t *testing.T, meta *metadata.CaseMetadata, store *fakeStore, backend *fakeBackend, notifier *fakeNotifier) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(Deps{
		Source:    store,
		Tracker:   store,
		Identity:  NewIdentityResolver(backend, store),
		Folders:   NewCaseFolderResolver(backend, store),
		Cases:     NewCaseCreator(backend, store),
		Documents: newTestJournalizer(backend, store),
		Notifier:  notifier,
		Meta:      meta,
	})
	require.NoError(t, err)
	return orch
}

func TestRunJournalizesSingleForm(t *testing.T) {
	store := newFakeStore(tracking.FormSubmission{
		FormID:   "form-1",
		FormData: json.RawMessage(happyPayload),
	})
	backend := &fakeBackend{
		contact:    getorganized.Contact{FullName: "Jane Doe", ID: "GO123"},
		folderID:   "", // no existing folder, force creation
		caseResult: getorganized.CaseResult{CaseID: "C1", RelativeURL: "/cases/C1"},
	}
	notifier := &fakeNotifier{}

	orch := newTestOrchestrator(t, testMeta(t), store, backend, notifier)
	summary, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)

	assert.Equal(t, tracking.StatusSuccessful, store.statuses["form-1"])
	assert.Equal(t, 1, store.attempts["form-1"])

	// SSN is normalized before the lookup.
	assert.Equal(t, "0101011234", backend.lastSSN)

	// The missing folder is created and the case lands under it.
	assert.Equal(t, []string{"contact", "searchFolder", "createFolder", "createCase", "download", "upload", "journalize", "finalize"}, backend.calls)
	assert.Equal(t, "F1", backend.lastCase.CaseFolderID)
	assert.Equal(t, "Modersmålsundervisning Jane Doe", backend.lastCase.Title)
	assert.Equal(t, "2026-01-05", backend.lastCase.ReceivedDate)

	require.Len(t, backend.uploads, 1)
	assert.Equal(t, "kvittering.pdf", backend.uploads[0].Filename)
	assert.Equal(t, "Kvittering", backend.uploads[0].Title)
	assert.Equal(t, "Indgående", backend.uploads[0].Category)
	assert.Equal(t, "2026-01-05", backend.uploads[0].Date)

	require.Len(t, backend.journalized, 1)
	assert.Equal(t, []string{"9001"}, backend.journalized[0])
	require.Len(t, backend.finalized, 1)
	assert.Equal(t, []string{"9001"}, backend.finalized[0])

	// Each resolved id is recorded as a step fragment.
	assert.JSONEq(t, `{"ContactId":"GO123"}`, store.steps["form-1/ContactLookup"])
	assert.JSONEq(t, `{"CaseFolderId":"F1"}`, store.steps["form-1/CaseFolder"])
	assert.JSONEq(t, `{"CaseId":"C1"}`, store.steps["form-1/Case"])
	assert.JSONEq(t, `[{"DocumentId":"9001"}]`, store.steps["form-1/Case Files"])

	require.Len(t, notifier.sent, 1)
	assert.Empty(t, notifier.sent[0].ErrorDetail)
	assert.Equal(t, "C1", notifier.sent[0].CaseID)
	assert.Equal(t, "Modersmålsundervisning Jane Doe", notifier.sent[0].CaseTitle)
	require.NotNil(t, notifier.sent[0].Attachment)
	assert.Equal(t, "kvittering.pdf", notifier.sent[0].Attachment.Filename)
}

func TestRunReusesExistingCaseFolder(t *testing.T) {
	store := newFakeStore(tracking.FormSubmission{
		FormID:   "form-1",
		FormData: json.RawMessage(happyPayload),
	})
	backend := &fakeBackend{
		contact:    getorganized.Contact{FullName: "Jane Doe", ID: "GO123"},
		folderID:   "F-existing",
		caseResult: getorganized.CaseResult{CaseID: "C1"},
	}
	notifier := &fakeNotifier{}

	orch := newTestOrchestrator(t, testMeta(t), store, backend, notifier)
	_, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.NotContains(t, backend.calls, "createFolder")
	assert.Equal(t, "F-existing", backend.lastCase.CaseFolderID)
}

func TestRunIsolatesFailures(t *testing.T) {
	store := newFakeStore(
		tracking.FormSubmission{FormID: "form-bad", FormData: json.RawMessage(`{not json`)},
		tracking.FormSubmission{FormID: "form-good", FormData: json.RawMessage(happyPayload)},
	)
	backend := &fakeBackend{
		contact:    getorganized.Contact{FullName: "Jane Doe", ID: "GO123"},
		caseResult: getorganized.CaseResult{CaseID: "C1"},
	}
	notifier := &fakeNotifier{}

	orch := newTestOrchestrator(t, testMeta(t), store, backend, notifier)
	summary, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	assert.Equal(t, tracking.StatusFailed, store.statuses["form-bad"])
	assert.Equal(t, tracking.StatusSuccessful, store.statuses["form-good"])

	require.Len(t, notifier.sent, 2)
	assert.Contains(t, notifier.sent[0].ErrorDetail, "ParseFormData")
	assert.Empty(t, notifier.sent[1].ErrorDetail)
}

func TestRunAbortsWhenStoreUnavailable(t *testing.T) {
	store := newFakeStore()
	store.fetchErr = &tracking.StoreUnavailableError{Err: errors.New("connection refused")}

	orch := newTestOrchestrator(t, testMeta(t), store, &fakeBackend{}, &fakeNotifier{})
	summary, err := orch.Run(context.Background())

	var unavailable *tracking.StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 0, summary.Processed)
}

func TestRunFailsFormWithoutCitizenIdentifier(t *testing.T) {
	store := newFakeStore(tracking.FormSubmission{
		FormID:   "form-1",
		FormData: json.RawMessage(`{"data": {}}`),
	})
	backend := &fakeBackend{}
	notifier := &fakeNotifier{}

	orch := newTestOrchestrator(t, testMeta(t), store, backend, notifier)
	summary, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, tracking.StatusFailed, store.statuses["form-1"])
	assert.NotContains(t, backend.calls, "contact")
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].ErrorDetail, "ContactLookup")
}

func TestRunSkipsIdentityForNonCitizenCase(t *testing.T) {
	meta, err := metadata.Parse([]byte(`{
		"os2formWebformId": "tilmelding_til_modersmaalsunderv",
		"tableName": "modersmaal_forms",
		"caseType": "EMN",
		"caseData": {"caseTitle": "Henvendelse placeholder_person_full_name", "startDate": "2026-01-01"}
	}`))
	require.NoError(t, err)

	store := newFakeStore(tracking.FormSubmission{
		FormID:   "form-1",
		FormData: json.RawMessage(`{"data": {}}`),
	})
	backend := &fakeBackend{caseResult: getorganized.CaseResult{CaseID: "C9"}}
	notifier := &fakeNotifier{}

	orch := newTestOrchestrator(t, meta, store, backend, notifier)
	summary, err := orch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	assert.NotContains(t, backend.calls, "contact")
	assert.NotContains(t, backend.calls, "searchFolder")
	assert.Empty(t, backend.lastCase.CaseFolderID)
	// No completion date in the payload, so the configured start date is used.
	assert.Equal(t, "2026-01-01", backend.lastCase.ReceivedDate)
}

func TestNewOrchestratorRejectsUnknownFormType(t *testing.T) {
	meta, err := metadata.Parse([]byte(`{
		"os2formWebformId": "unknown_webform",
		"tableName": "some_table",
		"caseType": "BOR"
	}`))
	require.NoError(t, err)

	_, err = NewOrchestrator(Deps{Meta: meta})
	assert.ErrorContains(t, err, "unknown form type")
}
