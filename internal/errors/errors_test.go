package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFatalityByCategory(t *testing.T) {
	assert.False(t, IsFatal(NewParseError("bad row")))
	assert.False(t, IsFatal(NewReferenceError("bad reference line", nil)))

	assert.True(t, IsFatal(NewPrereqError(CodeMissingDirectory, "no raw dir")))
	assert.True(t, IsFatal(NewEncodingError("undecodable", nil)))
	assert.True(t, IsFatal(NewStoreError(CodeInsertFailed, "insert failed", nil)))
	assert.True(t, IsFatal(NewInternalError("unexpected", nil)))
}

func TestUnclassifiedErrorsAreFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("plain error")))
	assert.False(t, IsFatal(nil))
}

func TestWrappingPreservesCategoryAndCode(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := NewStoreError(CodeInsertFailed, "failed to insert into candidates", cause)

	wrapped := fmt.Errorf("import: %w", err)
	assert.Equal(t, ErrCategoryStore, GetCategory(wrapped))
	assert.Equal(t, CodeInsertFailed, GetCode(wrapped))
	assert.True(t, errors.Is(wrapped, err))
	assert.ErrorContains(t, wrapped, "disk full")
}

func TestErrorStringFormat(t *testing.T) {
	err := New(ErrCategoryPrereq, CodeMissingFile, "04cands.txt not found")
	assert.Equal(t, "[PREREQ:MISSING_FILE] 04cands.txt not found", err.Error())
}

func TestIsMatchesCategoryAndCode(t *testing.T) {
	a := New(ErrCategoryStore, CodeExecFailed, "one")
	b := New(ErrCategoryStore, CodeExecFailed, "two")
	c := New(ErrCategoryStore, CodeInsertFailed, "three")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}
