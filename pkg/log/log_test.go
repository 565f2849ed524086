package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitJSONOutputWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	WithComponent("worker").Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "worker", line["component"])
	assert.Equal(t, "hello", line["message"])
}

func TestWithHelpersAttachTheirNamedField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	cases := []struct {
		name  string
		log   func() map[string]any
		field string
		value string
	}{
		{"agent", func() map[string]any { WithAgent("agent-1").Info().Msg("x"); return decodeLast(t, &buf) }, "agent", "agent-1"},
		{"experiment", func() map[string]any { WithExperiment("exp-1").Info().Msg("x"); return decodeLast(t, &buf) }, "experiment", "exp-1"},
		{"task", func() map[string]any { WithTaskID("task-1").Info().Msg("x"); return decodeLast(t, &buf) }, "task_id", "task-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := tc.log()
			assert.Equal(t, tc.value, line[tc.field])
		})
	}
}

func decodeLast(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	buf.Reset()
	return line
}
