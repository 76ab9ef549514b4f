package journalize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mbu-rpa/journalize/internal/getorganized"
)

// IdentityResolver resolves a canonical person identity from a citizen
// identifier and records the resolution in the tracking store.
type IdentityResolver struct {
	contacts getorganized.ContactAPI
	tracker  Tracker
}

// NewIdentityResolver creates an identity resolver.
func NewIdentityResolver(contacts getorganized.ContactAPI, tracker Tracker) *IdentityResolver {
	return &IdentityResolver{contacts: contacts, tracker: tracker}
}

// Resolve looks up the person behind the given SSN. Callers pre-validate that
// the identifier is non-empty; resolution is skipped entirely for
// non-citizen case types and never reaches this method.
func (r *IdentityResolver) Resolve(ctx context.Context, formID, ssn string) (getorganized.Contact, error) {
	if ssn == "" {
		return getorganized.Contact{}, fmt.Errorf("citizen identifier is empty")
	}

	contact, err := r.contacts.ContactLookup(ctx, ssn)
	if err != nil {
		return getorganized.Contact{}, err
	}

	fragment, err := json.Marshal(map[string]string{"ContactId": contact.ID})
	if err != nil {
		return getorganized.Contact{}, fmt.Errorf("failed to encode contact fragment: %w", err)
	}
	if err := r.tracker.RecordStep(ctx, formID, string(StepContactLookup), string(fragment)); err != nil {
		return getorganized.Contact{}, err
	}

	slog.InfoContext(ctx, "contact resolved", "form_id", formID, "person_id", contact.ID)
	return contact, nil
}
