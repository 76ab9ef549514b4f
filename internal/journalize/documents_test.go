package journalize

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbu-rpa/journalize/internal/formdata"
	"github.com/mbu-rpa/journalize/internal/metadata"
)

const twoAttachmentPayload = `{
	"data": {
		"attachments": {
			"kvittering": {"name": "Kvittering", "url": "https://forms.example.dk/files/kvittering.pdf"},
			"bilag": {"name": "Bilag", "url": "https://forms.example.dk/files/bilag%20A.pdf"}
		}
	},
	"entity": {"completed": [{"value": "2026-02-01"}]}
}`

func mustParse(t *testing.T, raw string) *formdata.Value {
	t.Helper()
	payload, err := formdata.Parse([]byte(raw))
	require.NoError(t, err)
	return payload
}

func TestProcessUploadsRetriesUntilSuccess(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{uploadFailures: 4}
	j := newTestJournalizer(backend, store)

	var sleeps []time.Duration
	j.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	meta := testMeta(t)
	payload := mustParse(t, happyPayload)

	result, err := j.Process(context.Background(), "form-1", "C1", meta, payload)
	require.NoError(t, err)

	assert.Equal(t, 5, backend.uploadCalls)
	assert.Equal(t, []string{"9001"}, result.DocumentIDs)
	// A fixed delay between each failed attempt and the next.
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second}, sleeps)
}

func TestProcessUploadGivesUpAfterRetryCap(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{uploadFailures: 10}
	j := newTestJournalizer(backend, store)

	meta := testMeta(t)
	payload := mustParse(t, happyPayload)

	_, err := j.Process(context.Background(), "form-1", "C1", meta, payload)
	require.ErrorContains(t, err, "after 5 attempts")
	assert.Equal(t, 5, backend.uploadCalls)
	assert.Empty(t, backend.journalized)
	assert.Empty(t, backend.finalized)
}

func TestProcessJournalizesAfterAllUploads(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{}
	j := newTestJournalizer(backend, store)

	meta := testMeta(t)
	payload := mustParse(t, twoAttachmentPayload)

	result, err := j.Process(context.Background(), "form-1", "C1", meta, payload)
	require.NoError(t, err)

	assert.Equal(t, []string{"download", "upload", "download", "upload", "journalize", "finalize"}, backend.calls)
	assert.Equal(t, []string{"9001", "9002"}, result.DocumentIDs)
	require.Len(t, backend.journalized, 1)
	assert.Equal(t, []string{"9001", "9002"}, backend.journalized[0])
	require.Len(t, backend.finalized, 1)
	assert.Equal(t, []string{"9001", "9002"}, backend.finalized[0])

	// The escaped URL segment becomes a plain filename.
	assert.Equal(t, "bilag A.pdf", backend.uploads[1].Filename)
	assert.Equal(t, "bilag A.pdf", result.LastFileName)

	assert.JSONEq(t, `[{"DocumentId":"9001"},{"DocumentId":"9002"}]`, store.steps["form-1/Case Files"])
}

func TestProcessDefaultsUnmappedCategory(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{}
	j := newTestJournalizer(backend, store)

	meta := testMeta(t)
	payload := mustParse(t, twoAttachmentPayload)

	_, err := j.Process(context.Background(), "form-1", "C1", meta, payload)
	require.NoError(t, err)

	require.Len(t, backend.uploads, 2)
	// "Kvittering" is mapped in the metadata category block; "Bilag" is not.
	assert.Equal(t, "Indgående", backend.uploads[0].Category)
	assert.Equal(t, "Indgående", backend.uploads[1].Category)
	assert.Equal(t, "Kvittering", backend.uploads[0].Title)
	assert.Equal(t, "Bilag", backend.uploads[1].Title)
}

func TestProcessSkipsJournalizeWithoutAttachments(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{}
	j := newTestJournalizer(backend, store)

	meta := testMeta(t)
	payload := mustParse(t, `{"data": {}}`)

	result, err := j.Process(context.Background(), "form-1", "C1", meta, payload)
	require.NoError(t, err)

	assert.Empty(t, result.DocumentIDs)
	assert.Empty(t, backend.calls)
	assert.JSONEq(t, `[]`, store.steps["form-1/Case Files"])
}

func TestProcessHonorsPolicyFlags(t *testing.T) {
	meta, err := metadata.Parse([]byte(`{
		"os2formWebformId": "tilmelding_til_modersmaalsunderv",
		"tableName": "modersmaal_forms",
		"caseType": "BOR",
		"documentData": {"journalizeDocuments": false, "finalizeDocuments": false}
	}`))
	require.NoError(t, err)

	store := newFakeStore()
	backend := &fakeBackend{}
	j := newTestJournalizer(backend, store)

	payload := mustParse(t, happyPayload)

	result, err := j.Process(context.Background(), "form-1", "C1", meta, payload)
	require.NoError(t, err)

	assert.Equal(t, []string{"9001"}, result.DocumentIDs)
	assert.NotContains(t, backend.calls, "journalize")
	assert.NotContains(t, backend.calls, "finalize")
	// UseCompletedDate is off, so the upload carries no document date.
	assert.Empty(t, backend.uploads[0].Date)
}

func TestProcessDelaysBetweenDocuments(t *testing.T) {
	store := newFakeStore()
	backend := &fakeBackend{}
	j := newTestJournalizer(backend, store)
	j.interDelay = 2 * time.Second

	var sleeps []time.Duration
	j.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }

	meta := testMeta(t)
	payload := mustParse(t, twoAttachmentPayload)

	_, err := j.Process(context.Background(), "form-1", "C1", meta, payload)
	require.NoError(t, err)

	// One pause between the two documents, none before the first.
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps)
}
