package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmenterSingleSentence(t *testing.T) {
	seg := NewSegmenter()

	units := seg.Feed("Hello world.")
	require.Len(t, units, 1)
	assert.Equal(t, 0, units[0].Index)
	assert.Equal(t, "Hello world.", units[0].Text)
	assert.Nil(t, seg.Flush())
}

func TestSegmenterMultipleTerminatorsInOneDelta(t *testing.T) {
	seg := NewSegmenter()

	units := seg.Feed("One. Two! Three")
	require.Len(t, units, 2)
	assert.Equal(t, "One.", units[0].Text)
	assert.Equal(t, "Two!", units[1].Text)

	unit := seg.Flush()
	require.NotNil(t, unit)
	assert.Equal(t, 2, unit.Index)
	assert.Equal(t, "Three", unit.Text)
}

func TestSegmenterSplitAcrossDeltas(t *testing.T) {
	seg := NewSegmenter()

	assert.Empty(t, seg.Feed("Xin "))

	units := seg.Feed("chào. ")
	require.Len(t, units, 1)
	assert.Equal(t, 0, units[0].Index)
	assert.Equal(t, "Xin chào.", units[0].Text)

	assert.Empty(t, seg.Feed("Khỏe "))

	units = seg.Feed("không?")
	require.Len(t, units, 1)
	assert.Equal(t, 1, units[0].Index)
	assert.Equal(t, "Khỏe không?", units[0].Text)

	assert.Nil(t, seg.Flush())
	assert.Equal(t, 2, seg.Count())
}

func TestSegmenterFullwidthTerminators(t *testing.T) {
	seg := NewSegmenter()

	units := seg.Feed("你好。世界")
	require.Len(t, units, 1)
	assert.Equal(t, "你好。", units[0].Text)

	unit := seg.Flush()
	require.NotNil(t, unit)
	assert.Equal(t, "世界", unit.Text)
	assert.Equal(t, 1, unit.Index)
}

func TestSegmenterNewlineAndColonTerminate(t *testing.T) {
	seg := NewSegmenter()

	units := seg.Feed("First line\nSecond part: rest")
	require.Len(t, units, 2)
	assert.Equal(t, "First line", units[0].Text)
	assert.Equal(t, "Second part:", units[1].Text)
}

func TestSegmenterWhitespaceOnlySentencesDropped(t *testing.T) {
	seg := NewSegmenter()

	units := seg.Feed("Hello.   \n")
	require.Len(t, units, 1)
	assert.Equal(t, "Hello.", units[0].Text)
	// The whitespace-only fragment before the newline consumed no ordinal.
	assert.Equal(t, 1, seg.Count())
}

func TestSegmenterEmptyDelta(t *testing.T) {
	seg := NewSegmenter()
	assert.Nil(t, seg.Feed(""))
	assert.Nil(t, seg.Flush())
}

func TestSegmenterFlushResetsBuffer(t *testing.T) {
	seg := NewSegmenter()

	seg.Feed("partial")
	require.NotNil(t, seg.Flush())
	assert.Nil(t, seg.Flush())
}
