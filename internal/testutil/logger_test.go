package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureTB struct {
	testing.TB
	lines []string
}

func (c *captureTB) Helper() {}

func (c *captureTB) Log(args ...any) {
	c.lines = append(c.lines, fmt.Sprint(args...))
}

func TestNewTestLogger_SourceFromRecord(t *testing.T) {
	tb := &captureTB{TB: t}
	logger := NewTestLogger(tb)

	logger.With("component", "lineage").Debug("expanded", "hops", 2)

	require.Len(t, tb.lines, 1)
	line := tb.lines[0]
	assert.Contains(t, line, "source=testutil/logger_test.go:")
	assert.NotContains(t, line, "log/slog")
	assert.Contains(t, line, "msg=expanded")
	assert.Contains(t, line, "component=lineage")
	assert.Contains(t, line, "hops=2")
	assert.False(t, strings.HasPrefix(line, "time="), "time is dropped")
	assert.False(t, strings.HasSuffix(line, "\n"))
}
