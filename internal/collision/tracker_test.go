package collision

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redthing1/covtool/errs"
)

func TestNewTracker(t *testing.T) {
	tracker := NewTracker()

	require.NotNil(t, tracker)
	require.Equal(t, 0, tracker.Count())
	require.Empty(t, tracker.Paths())
}

func TestTracker_Track(t *testing.T) {
	tracker := NewTracker()

	first, err := tracker.Track("/bin/ls", 0x1)
	require.NoError(t, err)
	require.True(t, first)

	first, err = tracker.Track("/lib/libc.so.6", 0x2)
	require.NoError(t, err)
	require.True(t, first)

	// Same path again is not new and not a collision
	first, err = tracker.Track("/bin/ls", 0x1)
	require.NoError(t, err)
	require.False(t, first)

	require.Equal(t, 2, tracker.Count())
	require.Equal(t, []string{"/bin/ls", "/lib/libc.so.6"}, tracker.Paths())

	p, ok := tracker.Path(0x2)
	require.True(t, ok)
	require.Equal(t, "/lib/libc.so.6", p)
}

func TestTracker_Collision(t *testing.T) {
	tracker := NewTracker()

	_, err := tracker.Track("/bin/ls", 0xdead)
	require.NoError(t, err)

	_, err = tracker.Track("/bin/cat", 0xdead)
	require.ErrorIs(t, err, errs.ErrHashCollision)
	require.Contains(t, err.Error(), "/bin/cat")
	require.Equal(t, 1, tracker.Count())
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker()
	_, _ = tracker.Track("/bin/ls", 0x1)

	tracker.Reset()

	require.Equal(t, 0, tracker.Count())
	_, ok := tracker.Path(0x1)
	require.False(t, ok)
}
