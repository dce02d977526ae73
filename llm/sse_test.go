package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectSSE(t *testing.T, stream string) []string {
	t.Helper()
	r := newSSEReader(strings.NewReader(stream))
	var out []string
	for r.Next() {
		out = append(out, r.Data())
	}
	require.NoError(t, r.Err())
	return out
}

func TestSSEReader_DataEvents(t *testing.T) {
	stream := "data: one\n\ndata: two\n\n"
	assert.Equal(t, []string{"one", "two"}, collectSSE(t, stream))
}

func TestSSEReader_SkipsCommentsAndUnusedFields(t *testing.T) {
	stream := ": keep-alive\n" +
		"id: 42\n" +
		"retry: 3000\n" +
		"data: payload\n\n" +
		": another comment\n\n"
	assert.Equal(t, []string{"payload"}, collectSSE(t, stream))
}

func TestSSEReader_MultiLineData(t *testing.T) {
	stream := "data: first\ndata: second\n\n"
	assert.Equal(t, []string{"first\nsecond"}, collectSSE(t, stream))
}

func TestSSEReader_NamedEvent(t *testing.T) {
	r := newSSEReader(strings.NewReader("event: done\ndata: [DONE]\n\n"))
	require.True(t, r.Next())
	assert.Equal(t, "done", r.Event())
	assert.Equal(t, "[DONE]", r.Data())
	assert.False(t, r.Next())
}

func TestSSEReader_TrailingEventWithoutBlankLine(t *testing.T) {
	stream := "data: one\n\ndata: last"
	assert.Equal(t, []string{"one", "last"}, collectSSE(t, stream))
}

func TestSSEReader_EmptyStream(t *testing.T) {
	r := newSSEReader(strings.NewReader(""))
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}
