package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnDemandError_ErrorString(t *testing.T) {
	e := New(CategoryResolution, SeverityError, "page has no matching source")
	assert.Equal(t, "resolution (error): page has no matching source", e.Error())

	wrapped := Wrap(fmt.Errorf("boom"), CategoryBuild, SeverityError, "compilation pass failed")
	assert.Equal(t, "build (error): compilation pass failed: boom", wrapped.Error())
}

func TestOnDemandError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	e := BuildError(cause, "pass-1")
	require.ErrorIs(t, e, cause)
}

func TestCategoryHelpers(t *testing.T) {
	res := ResolutionError("/missing")
	assert.True(t, IsCategory(res, CategoryResolution))
	assert.False(t, IsCategory(res, CategoryBuild))
	assert.Equal(t, CategoryResolution, GetCategory(res))

	// Plain errors fall back to internal.
	assert.Equal(t, CategoryInternal, GetCategory(fmt.Errorf("plain")))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestBuildErrorIsRetryable(t *testing.T) {
	e := BuildError(fmt.Errorf("compile failed"), "pass-2")
	assert.True(t, IsRetryable(e))
	assert.Equal(t, "pass-2", e.Context["pass_id"])
}

func TestWithContext(t *testing.T) {
	e := New(CategoryProtocol, SeverityWarning, "bad ping").
		WithContext("remote", "127.0.0.1").
		WithContext("size", 12)
	assert.Equal(t, "127.0.0.1", e.Context["remote"])
	assert.Equal(t, 12, e.Context["size"])
}
