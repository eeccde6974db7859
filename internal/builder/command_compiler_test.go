package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandCompiler_Success(t *testing.T) {
	c := NewCommandCompiler(testLogger(), "sh", []string{"-c", "exit 0"}, t.TempDir())
	err := c.Compile(context.Background(), []EntryTarget{{PageID: "/a", TargetName: "pages/a", Request: "./pages/a.js"}})
	require.NoError(t, err)
}

func TestCommandCompiler_FailureIncludesOutput(t *testing.T) {
	c := NewCommandCompiler(testLogger(), "sh", []string{"-c", "echo kaput >&2; exit 3"}, t.TempDir())
	err := c.Compile(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaput")
}
