package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterMappingIsComplete(t *testing.T) {
	seenColumns := make(map[string]Action)
	for _, action := range Actions() {
		c, ok := counters[action]
		require.True(t, ok)
		assert.NotEmpty(t, c.column, "action=%s", action)
		assert.NotEmpty(t, c.display, "action=%s", action)
		prev, dup := seenColumns[c.column]
		assert.False(t, dup, "column %s shared by %s and %s", c.column, prev, action)
		seenColumns[c.column] = action
	}
	assert.Len(t, seenColumns, 7)
}

func TestUsedNilRecordIsZero(t *testing.T) {
	var r *Record
	for _, action := range Actions() {
		assert.Equal(t, int64(0), r.Used(action))
	}
}

func TestSetTouchesExactlyOneCounter(t *testing.T) {
	for _, action := range Actions() {
		r := &Record{}
		counters[action].set(r, 1)
		for _, other := range Actions() {
			if other == action {
				assert.Equal(t, int64(1), r.Used(other))
			} else {
				assert.Equal(t, int64(0), r.Used(other), "action=%s leaked into %s", action, other)
			}
		}
	}
}

func TestActionsAreStableAndSorted(t *testing.T) {
	expected := []Action{
		ActionCoDrawing,
		ActionFitCheck,
		ActionGeneratedImage,
		ActionGIF,
		ActionPastForward,
		ActionPhoto,
		ActionPixshop,
	}
	assert.Equal(t, expected, Actions())
	assert.Equal(t, Actions(), Actions())
}

func TestUnknownActionIsNotKnown(t *testing.T) {
	assert.False(t, Known(Action("teleport")))
	assert.True(t, Known(ActionPhoto))
}

func TestDefaultPeriod(t *testing.T) {
	ref := time.Date(2021, time.March, 15, 13, 37, 0, 0, time.UTC)
	start, end := DefaultPeriod(ref)
	assert.Equal(t, time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2021, time.April, 1, 0, 0, 0, 0, time.UTC), end)
	assert.True(t, !ref.Before(start) && ref.Before(end))

	// December rolls into the next year
	ref = time.Date(2021, time.December, 31, 23, 59, 59, 0, time.UTC)
	start, end = DefaultPeriod(ref)
	assert.Equal(t, time.Date(2021, time.December, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC), end)
}
