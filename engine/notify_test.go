package engine

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/internal/testutil"
	"github.com/hupe1980/gambit/logging"
)

func TestBroadcaster_FansOut(t *testing.T) {
	b := NewBroadcaster()
	all, stopAll := b.Subscribe(4)
	defer stopAll()
	one, stopOne := b.Subscribe(4, ForSession("s1"))
	defer stopOne()
	moves, stopMoves := b.Subscribe(4, OfType(core.EventMoveApplied))
	defer stopMoves()

	b.Notify(core.NewEvent(core.EventMoveApplied, "s1"))
	b.Notify(core.NewEvent(core.EventSessionReset, "s2"))
	b.Notify(core.NewEvent(core.EventAgentLoaded, ""))

	assert.Len(t, all, 3)
	assert.Len(t, one, 2)
	assert.Len(t, moves, 1)
	assert.Equal(t, 3, b.Subscribers())
}

func TestBroadcaster_NeverBlocks(t *testing.T) {
	b := NewBroadcaster()
	ch, stop := b.Subscribe(1)
	defer stop()

	for i := 0; i < 5; i++ {
		b.Notify(core.NewEvent(core.EventMoveApplied, "s"))
	}
	assert.Len(t, ch, 1)
	assert.Equal(t, int64(4), b.Dropped())
}

func TestBroadcaster_UnsubscribeAndClose(t *testing.T) {
	b := NewBroadcaster()
	ch, stop := b.Subscribe(1)
	stop()
	stop()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())

	ch2, _ := b.Subscribe(1)
	b.Close()
	_, open = <-ch2
	assert.False(t, open)

	ch3, stop3 := b.Subscribe(1)
	defer stop3()
	_, open = <-ch3
	assert.False(t, open)

	// publishing after close is a no-op
	b.Notify(core.NewEvent(core.EventMoveApplied, "s"))
}

func TestLoggingNotifier(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	n := LoggingNotifier{Logger: logger}

	ev := core.NewEvent(core.EventIllegalMove, "s1")
	ev.Move = "z9z9"
	n.Notify(ev.WithError(core.ErrIllegalMove))

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "event=illegal_move")
	assert.Contains(t, out, "move=z9z9")
	assert.Contains(t, out, "session_id=s1")
}

func TestMultiNotifier(t *testing.T) {
	a, b := &testutil.EventRecorder{}, &testutil.EventRecorder{}
	m := MultiNotifier{a, nil, b}

	m.Notify(core.NewEvent(core.EventGameOver, "s"))

	require.Len(t, a.Events(), 1)
	require.Len(t, b.Events(), 1)
	assert.Equal(t, a.Events()[0].ID, b.Events()[0].ID)
}
