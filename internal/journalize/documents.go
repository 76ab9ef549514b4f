package journalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbu-rpa/journalize/internal/archive"
	"github.com/mbu-rpa/journalize/internal/config"
	"github.com/mbu-rpa/journalize/internal/formdata"
	"github.com/mbu-rpa/journalize/internal/getorganized"
	"github.com/mbu-rpa/journalize/internal/metadata"
)

// DefaultCategory tags documents whose title has no entry in the form type's
// category map.
const DefaultCategory = "Indgående"

// Downloader fetches attachment bytes by URL. Implemented by os2forms.Client.
type Downloader interface {
	DownloadFile(ctx context.Context, url string) ([]byte, error)
}

// DocumentJournalizer discovers attachments in a form payload, downloads and
// uploads them to the case, and journalizes/finalizes them per the form
// type's document policy.
type DocumentJournalizer struct {
	docs     getorganized.DocumentAPI
	source   Downloader
	archiver *archive.Archiver // nil disables archiving
	tracker  Tracker

	retries    int
	retryDelay time.Duration
	interDelay time.Duration
	sleep      func(time.Duration)
}

// NewDocumentJournalizer creates a document journalizer with the worker's
// retry and backpressure settings.
func NewDocumentJournalizer(
	docs getorganized.DocumentAPI,
	source Downloader,
	archiver *archive.Archiver,
	tracker Tracker,
	cfg config.WorkerConfig,
) *DocumentJournalizer {
	return &DocumentJournalizer{
		docs:       docs,
		source:     source,
		archiver:   archiver,
		tracker:    tracker,
		retries:    cfg.UploadRetries,
		retryDelay: cfg.UploadRetryDelay,
		interDelay: cfg.InterDocumentDelay,
		sleep:      time.Sleep,
	}
}

// DocumentResult is the outcome of a completed document step.
type DocumentResult struct {
	DocumentIDs []string
	// Last downloaded file, optionally attached to the success notification.
	LastFileName  string
	LastFileBytes []byte
}

// Process runs the document step for one form. Journalize is only attempted
// after every upload in the batch has completed, and finalize only after
// journalize.
func (j *DocumentJournalizer) Process(
	ctx context.Context,
	formID, caseID string,
	meta *metadata.CaseMetadata,
	payload *formdata.Value,
) (DocumentResult, error) {
	var result DocumentResult

	attachments := formdata.Attachments(payload)
	categories := meta.CategoryMap()

	documentDate := ""
	if meta.Policy.UseCompletedDate {
		documentDate = payload.CompletedAt()
	}

	fragments := make([]map[string]string, 0, len(attachments))
	for i, att := range attachments {
		if i > 0 && j.interDelay > 0 {
			// Backpressure against the backend between uploads.
			j.sleep(j.interDelay)
		}

		data, err := j.source.DownloadFile(ctx, att.URL)
		if err != nil {
			return result, err
		}
		filename := formdata.FilenameFromURL(att.URL)

		if j.archiver != nil {
			if _, err := j.archiver.Archive(ctx, formID, filename, data); err != nil {
				slog.WarnContext(ctx, "attachment archive failed", "form_id", formID, "file", filename, "error", err)
			}
		}

		category := categories[att.Name]
		if category == "" {
			category = DefaultCategory
		}

		docID, err := j.uploadWithRetry(ctx, getorganized.DocumentUpload{
			CaseID:   caseID,
			Filename: filename,
			Title:    att.Name,
			Category: category,
			Date:     documentDate,
			Bytes:    data,
		})
		if err != nil {
			return result, err
		}

		slog.InfoContext(ctx, "document uploaded", "form_id", formID, "case_id", caseID, "document_id", docID)
		result.DocumentIDs = append(result.DocumentIDs, docID)
		fragments = append(fragments, map[string]string{"DocumentId": docID})
		result.LastFileName = filename
		result.LastFileBytes = data
	}

	fragment, err := json.Marshal(fragments)
	if err != nil {
		return result, fmt.Errorf("failed to encode document fragment: %w", err)
	}
	if err := j.tracker.RecordStep(ctx, formID, string(StepCaseFiles), string(fragment)); err != nil {
		return result, err
	}

	if len(result.DocumentIDs) == 0 {
		slog.InfoContext(ctx, "no attachments discovered", "form_id", formID)
		return result, nil
	}

	if meta.Policy.Journalize {
		if err := j.docs.JournalizeDocuments(ctx, result.DocumentIDs); err != nil {
			return result, err
		}
		slog.InfoContext(ctx, "documents journalized", "form_id", formID, "count", len(result.DocumentIDs))
	}

	if meta.Policy.Finalize {
		if err := j.docs.FinalizeDocuments(ctx, result.DocumentIDs); err != nil {
			return result, err
		}
		slog.InfoContext(ctx, "documents finalized", "form_id", formID, "count", len(result.DocumentIDs))
	}

	return result, nil
}

// uploadWithRetry attempts the upload up to the configured cap with a fixed
// delay between attempts.
func (j *DocumentJournalizer) uploadWithRetry(ctx context.Context, req getorganized.DocumentUpload) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= j.retries; attempt++ {
		docID, err := j.docs.UploadDocument(ctx, req)
		if err == nil {
			return docID, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "document upload attempt failed",
			"file", req.Filename,
			"attempt", attempt,
			"max_attempts", j.retries,
			"error", err,
		)
		if attempt < j.retries {
			j.sleep(j.retryDelay)
		}
	}
	return "", fmt.Errorf("document upload failed after %d attempts: %w", j.retries, lastErr)
}
