package logcapture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/crater/pkg/log"
)

func init() {
	log.Init(log.Config{Level: log.DebugLevel})
}

func TestAttachCapturesRecords(t *testing.T) {
	c := New()
	g, err := Attach(c, "task-1")
	require.NoError(t, err)
	defer g.Detach()

	g.Logger().Info().Msg("first")
	g.Logger().Error().Msg("second")

	records := c.Snapshot("task-1")
	require.Len(t, records, 2)
	assert.Equal(t, "first", records[0].Message)
	assert.Equal(t, "second", records[1].Message)
}

func TestSnapshotUnknownKeyIsNil(t *testing.T) {
	c := New()
	assert.Nil(t, c.Snapshot("missing"))
}

func TestOverflowMarksTruncation(t *testing.T) {
	c := &Capture{rings: map[string]*ring{"t": newRing(4)}}
	r := c.rings["t"]
	for i := 0; i < 10; i++ {
		r.push(Record{Message: "line"})
	}
	records := c.Snapshot("t")
	require.NotEmpty(t, records)
	last := records[len(records)-1]
	assert.Contains(t, last.Message, "overflow")
}

func TestDiscardRemovesRing(t *testing.T) {
	c := New()
	g, err := Attach(c, "task-2")
	require.NoError(t, err)
	g.Logger().Info().Msg("hello")
	c.Discard("task-2")
	assert.Nil(t, c.Snapshot("task-2"))
}
