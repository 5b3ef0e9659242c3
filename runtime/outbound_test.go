package runtime

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-router/domain"
	"chat-router/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chanSink records pushed envelopes and signals when it is closed.
type chanSink struct {
	got       chan domain.Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func newChanSink() *chanSink {
	return &chanSink{got: make(chan domain.Envelope, 64), closed: make(chan struct{})}
}

func (s *chanSink) Push(env domain.Envelope) error {
	s.got <- env
	return nil
}

func (s *chanSink) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *chanSink) next(t *testing.T) domain.Envelope {
	t.Helper()
	select {
	case env := <-s.got:
		return env
	case <-time.After(time.Second):
		t.Fatal("no envelope delivered")
		return domain.Envelope{}
	}
}

// gatedSink blocks every Push until the gate is released.
type gatedSink struct {
	*chanSink
	entered chan struct{}
	gate    chan struct{}
}

func newGatedSink() *gatedSink {
	return &gatedSink{
		chanSink: newChanSink(),
		entered:  make(chan struct{}, 64),
		gate:     make(chan struct{}),
	}
}

func (s *gatedSink) Push(env domain.Envelope) error {
	s.entered <- struct{}{}
	<-s.gate
	return s.chanSink.Push(env)
}

// failingSink rejects every push.
type failingSink struct {
	closeOnce sync.Once
	closed    chan struct{}
}

func newFailingSink() *failingSink {
	return &failingSink{closed: make(chan struct{})}
}

func (s *failingSink) Push(domain.Envelope) error {
	return fmt.Errorf("connection reset")
}

func (s *failingSink) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func envelope(text string) domain.Envelope {
	return domain.Envelope{
		Message:     domain.ChatMessage{Timestamp: 100, UserID: "alice", RoomID: "r1", Text: text},
		LastEventID: "100/alice",
	}
}

func TestOutbound_DeliversInOrderAndClosesSink(t *testing.T) {
	req := require.New(t)
	sink := newChanSink()
	out := NewOutbound("s1", sink, 8, DropNewest, testLogger())

	req.NoError(out.Publish(envelope("one")))
	req.NoError(out.Publish(envelope("two")))
	req.NoError(out.Publish(envelope("three")))

	req.Equal("one", sink.next(t).Message.Text)
	req.Equal("two", sink.next(t).Message.Text)
	req.Equal("three", sink.next(t).Message.Text)

	out.Close()
	select {
	case <-sink.closed:
	case <-time.After(time.Second):
		t.Fatal("sink was not closed")
	}
}

func TestOutbound_DropNewestDiscardsWhenBufferFull(t *testing.T) {
	req := require.New(t)
	sink := newGatedSink()
	out := NewOutbound("s1", sink, 1, DropNewest, testLogger())

	// Given the pump stuck mid-push on the first envelope
	req.NoError(out.Publish(envelope("one")))
	select {
	case <-sink.entered:
	case <-time.After(time.Second):
		t.Fatal("pump never reached the sink")
	}

	// And a second envelope filling the buffer
	req.NoError(out.Publish(envelope("two")))

	// When a third arrives, it is dropped without blocking or erroring
	req.NoError(out.Publish(envelope("three")))

	// Then releasing the gate delivers only the first two
	close(sink.gate)
	req.Equal("one", sink.next(t).Message.Text)
	req.Equal("two", sink.next(t).Message.Text)

	out.Close()
	select {
	case <-sink.closed:
	case <-time.After(time.Second):
		t.Fatal("sink was not closed")
	}
	req.Empty(sink.got)
}

func TestOutbound_BlockPolicyNeverDrops(t *testing.T) {
	req := require.New(t)
	sink := newChanSink()
	out := NewOutbound("s1", sink, 1, Block, testLogger())

	for i := range 10 {
		req.NoError(out.Publish(envelope(fmt.Sprintf("msg-%d", i))))
	}
	for i := range 10 {
		req.Equal(fmt.Sprintf("msg-%d", i), sink.next(t).Message.Text)
	}
}

func TestOutbound_PushFailureSurfacesOnNextPublish(t *testing.T) {
	req := require.New(t)
	out := NewOutbound("s1", newFailingSink(), 8, DropNewest, testLogger())

	// the first publish only enqueues; the pump fails asynchronously
	req.NoError(out.Publish(envelope("doomed")))

	req.Eventually(func() bool {
		return out.Publish(envelope("probe")) != nil
	}, time.Second, 5*time.Millisecond)

	err := out.Publish(envelope("probe"))
	req.ErrorIs(err, errors.ErrSessionClosed)
}
