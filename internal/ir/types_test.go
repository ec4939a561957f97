package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"root", "function", "data"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, Kind(s), k)
	}

	_, err := ParseKind("Function")
	assert.Error(t, err)
}

func TestSnapshotLastSeq(t *testing.T) {
	snap := Snapshot{
		Nodes:   []BlockNode{{Seq: 1}, {Seq: 4}, {Seq: 2}},
		OGEdges: []ExecutionEdge{{Order: 3}},
	}
	assert.Equal(t, int64(4), snap.LastSeq())

	var empty Snapshot
	assert.Equal(t, int64(0), empty.LastSeq())
}

func TestTimeRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 30, 0, 123456789, time.FixedZone("JST", 9*3600))

	s := FormatTime(at)
	assert.Equal(t, "2026-10-18T00:30:00.123456789Z", s)

	back, err := ParseTime(s)
	require.NoError(t, err)
	assert.True(t, at.Equal(back))
	assert.Equal(t, time.UTC, back.Location())
}

func TestParseTimeInvalid(t *testing.T) {
	_, err := ParseTime("yesterday")
	assert.Error(t, err)
}
