package journalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mbu-rpa/journalize/internal/getorganized"
)

// CaseFolderResolver ensures a citizen-level case folder exists. It always
// searches before creating, so repeated runs against a backend that already
// has a folder return the existing id without creating a duplicate.
type CaseFolderResolver struct {
	folders getorganized.CaseFolderAPI
	tracker Tracker
}

// NewCaseFolderResolver creates a case-folder resolver.
func NewCaseFolderResolver(folders getorganized.CaseFolderAPI, tracker Tracker) *CaseFolderResolver {
	return &CaseFolderResolver{folders: folders, tracker: tracker}
}

// Resolve returns the citizen's case-folder id, creating the folder when the
// search comes back empty. The resolved id is recorded as a step fragment
// before returning.
func (r *CaseFolderResolver) Resolve(ctx context.Context, formID string, q getorganized.FolderQuery) (string, error) {
	folderID, err := r.folders.SearchCaseFolder(ctx, q)
	if err != nil {
		return "", err
	}

	if folderID == "" {
		folderID, err = r.folders.CreateCaseFolder(ctx, q)
		if err != nil {
			return "", err
		}
		slog.InfoContext(ctx, "case folder created", "form_id", formID, "case_folder_id", folderID)
	} else {
		slog.InfoContext(ctx, "case folder found", "form_id", formID, "case_folder_id", folderID)
	}

	fragment, err := json.Marshal(map[string]string{"CaseFolderId": folderID})
	if err != nil {
		return "", fmt.Errorf("failed to encode case folder fragment: %w", err)
	}
	if err := r.tracker.RecordStep(ctx, formID, string(StepCaseFolder), string(fragment)); err != nil {
		return "", err
	}
	return folderID, nil
}
