package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	t.Run("validation error matches through wrapping", func(t *testing.T) {
		err := fmt.Errorf("handling record: %w", NewValidationError("type", "unknown entity type '%s'", "deity"))
		assert.True(t, IsValidationError(err))
		assert.False(t, IsNotFoundError(err))
	})

	t.Run("not found error matches through wrapping", func(t *testing.T) {
		err := fmt.Errorf("loading: %w", NewNotFoundError("entity", "person_marpa"))
		assert.True(t, IsNotFoundError(err))
		assert.False(t, IsValidationError(err))
	})

	t.Run("merge validation error is not a rollback error", func(t *testing.T) {
		err := NewMergeValidationError("a", "b", "type mismatch")
		assert.True(t, IsMergeValidationError(err))
		assert.False(t, IsRollbackError(err))
	})

	t.Run("transient store error unwraps to the cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewTransientStoreError("graph", "upsert node", cause)
		assert.True(t, IsTransientStoreError(err))
		assert.ErrorIs(t, err, cause)
	})
}

func TestErrorHTTPMapping(t *testing.T) {
	t.Run("validation maps to 400", func(t *testing.T) {
		he := NewValidationError("predicate", "unknown predicate").ToHTTPError()
		assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(he))
	})

	t.Run("not found maps to 404", func(t *testing.T) {
		he := NewNotFoundError("relationship", "rel_1").ToHTTPError()
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(he))
	})

	t.Run("merge validation maps to 409", func(t *testing.T) {
		he := NewMergeValidationError("a", "b", "already merged").ToHTTPError()
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(he))
	})

	t.Run("rollback maps to 409", func(t *testing.T) {
		he := NewRollbackError("hist_1", "hard delete").ToHTTPError()
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(he))
	})

	t.Run("400 http error counts as validation", func(t *testing.T) {
		he := httperror.NewHTTPError(http.StatusBadRequest, "bad body")
		assert.True(t, IsValidationError(he))
	})
}

func TestErrorMessages(t *testing.T) {
	t.Run("field name is included when present", func(t *testing.T) {
		assert.Equal(t, "field 'type': unknown entity type", NewValidationError("type", "unknown entity type").Error())
	})

	t.Run("field name is omitted when empty", func(t *testing.T) {
		assert.Equal(t, "record is empty", NewValidationError("", "record is empty").Error())
	})

	t.Run("merge direction reads duplicate into primary", func(t *testing.T) {
		err := NewMergeValidationError("keep", "drop", "type mismatch")
		assert.Equal(t, "cannot merge 'drop' into 'keep': type mismatch", err.Error())
	})
}

func TestMergeOptions(t *testing.T) {
	t.Run("soft delete defaults on", func(t *testing.T) {
		assert.True(t, MergeOptions{}.WantsSoftDelete())
	})

	t.Run("explicit hard delete", func(t *testing.T) {
		hard := false
		assert.False(t, MergeOptions{SoftDelete: &hard}.WantsSoftDelete())
	})

	t.Run("request defaults strategy to highest confidence", func(t *testing.T) {
		opts := MergeRequest{PrimaryID: "a", DuplicateID: "b"}.Options()
		assert.Equal(t, StrategyHighestConfidence, opts.Strategy)
	})

	t.Run("request keeps an explicit strategy", func(t *testing.T) {
		opts := MergeRequest{PrimaryID: "a", DuplicateID: "b", Strategy: StrategyMostRecent}.Options()
		assert.Equal(t, StrategyMostRecent, opts.Strategy)
	})
}
