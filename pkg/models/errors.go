package models

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// ValidationError reports malformed or out-of-vocabulary input.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
}

func (e *ValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusBadRequest, e.Error()).AddMetaValue("field", e.Field)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusBadRequest
}

// NotFoundError reports a lookup by id that matched nothing.
type NotFoundError struct {
	Kind string
	ID   string
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.ID)
}

func (e *NotFoundError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusNotFound, e.Error()).AddMetaValue("id", e.ID)
}

func IsNotFoundError(err error) bool {
	var nfe *NotFoundError
	if errors.As(err, &nfe) {
		return true
	}
	return httperror.IsHTTPError(err) && httperror.GetStatusCode(err) == http.StatusNotFound
}

// MergeValidationError reports a merge precondition failure: unknown
// entities, mismatched types, self-merge, or an already-merged participant.
type MergeValidationError struct {
	PrimaryID   string
	DuplicateID string
	Reason      string
}

func NewMergeValidationError(primaryID, duplicateID, format string, args ...any) *MergeValidationError {
	return &MergeValidationError{
		PrimaryID:   primaryID,
		DuplicateID: duplicateID,
		Reason:      fmt.Sprintf(format, args...),
	}
}

func (e *MergeValidationError) Error() string {
	return fmt.Sprintf("cannot merge '%s' into '%s': %s", e.DuplicateID, e.PrimaryID, e.Reason)
}

func (e *MergeValidationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("primary_id", e.PrimaryID).
		AddMetaValue("duplicate_id", e.DuplicateID)
}

func IsMergeValidationError(err error) bool {
	var mve *MergeValidationError
	return errors.As(err, &mve)
}

// RollbackError reports that a merge cannot be undone.
type RollbackError struct {
	HistoryID string
	Reason    string
}

func NewRollbackError(historyID, format string, args ...any) *RollbackError {
	return &RollbackError{
		HistoryID: historyID,
		Reason:    fmt.Sprintf(format, args...),
	}
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("cannot undo merge '%s': %s", e.HistoryID, e.Reason)
}

func (e *RollbackError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).AddMetaValue("history_id", e.HistoryID)
}

func IsRollbackError(err error) bool {
	var re *RollbackError
	return errors.As(err, &re)
}

// TransientStoreError wraps a store failure that is worth retrying.
type TransientStoreError struct {
	Store string
	Op    string
	Err   error
}

func NewTransientStoreError(store, op string, err error) *TransientStoreError {
	return &TransientStoreError{Store: store, Op: op, Err: err}
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Store, e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

func IsTransientStoreError(err error) bool {
	var tse *TransientStoreError
	return errors.As(err, &tse)
}
