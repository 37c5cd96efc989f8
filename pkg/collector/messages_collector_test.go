package collector

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	ctx := map[string]any{"name": "bob", "n": 3, "ratio": 0.5, "obj": map[string]any{"a": 1}}
	assert.Equal(t, "user bob has 3 items (0.5) {obj}", Interpolate("user {name} has {n} items ({ratio}) {obj}", ctx))
	assert.Equal(t, "plain", Interpolate("plain", ctx))
	assert.Equal(t, "{name}", Interpolate("{name}", nil))
}

func TestMessagesCollector(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	c := NewMessagesCollector("", WithClock(clock))
	assert.Equal(t, "messages", c.Name())

	c.AddMessage("hello", "")
	clock.Advance(time.Millisecond)
	c.AddMessage(map[string]int{"a": 1}, LevelDebug)
	clock.Advance(time.Millisecond)
	c.Warning("disk at {pct}%", map[string]any{"pct": 91})

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, LevelInfo, msgs[0].Label)
	assert.True(t, msgs[0].IsString)
	assert.False(t, msgs[1].IsString)
	assert.Contains(t, msgs[1].Message, "\"a\"")
	assert.Equal(t, "disk at 91%", msgs[2].Message)
	assert.Equal(t, LevelWarning, msgs[2].Label)

	data := c.Collect().(map[string]any)
	assert.Equal(t, 3, data["count"])
	first := data["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, "hello", first["message"])
	assert.NotContains(t, first, "collector")

	c.Clear()
	assert.Empty(t, c.Messages())
}

func TestMessagesCollectorAggregate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	main := NewMessagesCollector("messages", WithClock(clock))
	logs := NewMessagesCollector("logs", WithClock(clock))
	main.Aggregate(logs)

	main.Info("first", nil)
	clock.Advance(time.Millisecond)
	logs.Error("second", nil)
	clock.Advance(time.Millisecond)
	main.Info("third", nil)

	msgs := main.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{msgs[0].Message, msgs[1].Message, msgs[2].Message})
	assert.Equal(t, "logs", msgs[1].Collector)
	assert.Empty(t, msgs[0].Collector)

	widgets := main.Widgets()
	assert.Equal(t, "messages.count", widgets["messages:badge"].Map)
}
