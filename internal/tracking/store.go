package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseError reports a tracking-store write that failed despite a working
// connection. It is fatal for the form being processed, not for the run.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("tracking store: %s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// StoreUnavailableError reports that pending work could not be fetched at all.
// It is fatal for the whole run.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("tracking store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Store reads pending form submissions and writes lifecycle status and
// step-level audit fragments, backed by the relational tracking database.
type Store struct {
	db          *gorm.DB
	maxAttempts int
}

// NewStore creates a tracking store. maxAttempts bounds how often a failed
// form is re-fetched before it is permanently skipped.
func NewStore(db *gorm.DB, maxAttempts int) *Store {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Store{db: db, maxAttempts: maxAttempts}
}

// FetchPending returns submissions from the given form-type table whose status
// is unset or non-terminal and whose attempt counter is below the retry cap,
// ordered by submission date ascending (oldest first).
func (s *Store) FetchPending(ctx context.Context, tableName string) ([]FormSubmission, error) {
	var rows []FormSubmission
	err := s.db.WithContext(ctx).
		Table(tableName).
		Where("process_status IS NULL OR process_status = ?", StatusFailed).
		Where("attempts < ?", s.maxAttempts).
		Order("form_submitted_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, &StoreUnavailableError{Err: err}
	}
	return rows, nil
}

// Mark upserts the overall process status for a form. The write is synchronous
// and idempotent; repeating a mark with the same status is a no-op update.
func (s *Store) Mark(ctx context.Context, tableName, formID string, status ProcessStatus) error {
	res := s.db.WithContext(ctx).
		Table(tableName).
		Where("uuid = ?", formID).
		Update("process_status", status)
	if res.Error != nil {
		return &DatabaseError{Op: fmt.Sprintf("mark %s", status), Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &DatabaseError{Op: fmt.Sprintf("mark %s", status), Err: fmt.Errorf("form %s not found in %s", formID, tableName)}
	}
	return nil
}

// IncrementAttempts bumps the retry counter for a form. Called once per form
// when processing starts so a permanently broken submission cannot be
// reprocessed forever.
func (s *Store) IncrementAttempts(ctx context.Context, tableName, formID string) error {
	res := s.db.WithContext(ctx).
		Table(tableName).
		Where("uuid = ?", formID).
		Update("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return &DatabaseError{Op: "increment attempts", Err: res.Error}
	}
	return nil
}

// RecordStep upserts a step-level JSON fragment for a form, keyed by
// (form_id, step_name).
func (s *Store) RecordStep(ctx context.Context, formID, stepName, jsonFragment string) error {
	entry := StatusEntry{
		FormID:       formID,
		StepName:     stepName,
		JSONFragment: jsonFragment,
		UpdatedAt:    time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "form_id"}, {Name: "step_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"json_fragment", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return &DatabaseError{Op: fmt.Sprintf("record step %q", stepName), Err: err}
	}
	return nil
}

// StepEntries returns all recorded step fragments for a form, ordered by step name.
func (s *Store) StepEntries(ctx context.Context, formID string) ([]StatusEntry, error) {
	var entries []StatusEntry
	err := s.db.WithContext(ctx).
		Where("form_id = ?", formID).
		Order("step_name ASC").
		Find(&entries).Error
	if err != nil {
		return nil, &DatabaseError{Op: "read step entries", Err: err}
	}
	return entries, nil
}

// FindCaseProfileID resolves a case-profile id by a case-insensitive partial
// match on the profile name. A missing profile is not an error: the empty id
// propagates and surfaces as a downstream API rejection.
func (s *Store) FindCaseProfileID(ctx context.Context, profileName string) (string, error) {
	if profileName == "" {
		return "", nil
	}
	var profile CaseProfile
	err := s.db.WithContext(ctx).
		Where("LOWER(name) LIKE LOWER(?)", "%"+profileName+"%").
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", &DatabaseError{Op: "case profile lookup", Err: err}
	}
	return profile.CaseProfileID, nil
}
