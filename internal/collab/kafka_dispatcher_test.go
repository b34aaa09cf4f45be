package collab

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newIdleDispatcher() *KafkaDispatcher {
	// producer 为 nil 时 sendOnce 直接成功，只测队列与关停语义
	return NewKafkaDispatcher(nil, "", nil, KafkaDispatcherOptions{
		QueueSize: 8,
		Workers:   2,
	})
}

func TestKafkaDispatcher_EnqueueAndClose(t *testing.T) {
	d := newIdleDispatcher()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := d.Enqueue(ctx, OpCommittedEvent{DocID: "doc1", Sequence: uint64(i + 1)}); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		d.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close() did not return, workers stuck")
	}
}

func TestKafkaDispatcher_EnqueueAfterClose(t *testing.T) {
	d := newIdleDispatcher()
	d.Close()

	err := d.Enqueue(context.Background(), OpCommittedEvent{DocID: "doc1"})
	if !errors.Is(err, ErrDispatcherClosed) {
		t.Fatalf("Enqueue() error = %v, want ErrDispatcherClosed", err)
	}
}
