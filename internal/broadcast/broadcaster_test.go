package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mr1hm/go-hazard-tasks/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func event(taskID string, status models.TaskStatus) *models.TaskEvent {
	return &models.TaskEvent{
		TaskID:    taskID,
		EventID:   "us6000jlqa",
		Filename:  "earthquake-us6000jlqa-interferogram",
		Status:    status,
		Timestamp: time.Now(),
	}
}

func TestBroadcaster_SubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	id, ch := b.Subscribe("")
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber, got %d", b.SubscriberCount())
	}

	b.Unsubscribe(id)
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	default:
		t.Error("channel should be closed and readable")
	}

	// Unsubscribing twice is a no-op.
	b.Unsubscribe(id)
}

func TestBroadcaster_Broadcast(t *testing.T) {
	b := NewBroadcaster()

	id, ch := b.Subscribe("")
	defer b.Unsubscribe(id)

	b.Broadcast(event("task-1", models.TaskStatusCompleted))

	select {
	case received := <-ch:
		if received.TaskID != "task-1" || received.Status != models.TaskStatusCompleted {
			t.Errorf("unexpected event %+v", received)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for broadcast")
	}
}

func TestBroadcaster_ConcurrentSubscribeBroadcast(t *testing.T) {
	b := NewBroadcaster()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ch := b.Subscribe("")
			done := make(chan struct{})
			go func() {
				for range ch {
				}
				close(done)
			}()
			time.Sleep(5 * time.Millisecond)
			b.Unsubscribe(id)
			<-done
		}()
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			b.Broadcast(event(fmt.Sprintf("task-%d", n), models.TaskStatusProcessing))
		}(i)
	}

	wg.Wait()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()

	var channels []<-chan *models.TaskEvent
	for i := 0; i < 5; i++ {
		_, ch := b.Subscribe("")
		channels = append(channels, ch)
	}

	b.Close()

	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", b.SubscriberCount())
	}
	for i, ch := range channels {
		select {
		case _, ok := <-ch:
			if ok {
				t.Errorf("channel %d should be closed", i)
			}
		default:
			t.Errorf("channel %d should be closed and readable", i)
		}
	}
}

func TestBroadcaster_SlowSubscriber(t *testing.T) {
	b := NewBroadcaster()

	id, ch := b.Subscribe("")
	defer b.Unsubscribe(id)

	for i := 0; i < subscriberBuffer+1; i++ {
		b.Broadcast(event(fmt.Sprintf("task-%d", i), models.TaskStatusProcessing))
	}

	count := 0
	for len(ch) > 0 {
		<-ch
		count++
	}

	if count != subscriberBuffer {
		t.Errorf("expected %d buffered events, got %d", subscriberBuffer, count)
	}
	if b.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", b.Dropped())
	}
}

func TestBroadcaster_EventFilter(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	_, filtered := b.Subscribe("us6000jlqa")
	_, all := b.Subscribe("")

	other := event("task-2", models.TaskStatusProcessing)
	other.EventID = "us7000abcd"
	b.Broadcast(other)
	b.Broadcast(event("task-1", models.TaskStatusCompleted))

	if len(filtered) != 1 {
		t.Fatalf("expected 1 event for filtered subscriber, got %d", len(filtered))
	}
	if e := <-filtered; e.TaskID != "task-1" {
		t.Errorf("expected task-1, got %s", e.TaskID)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 events for unfiltered subscriber, got %d", len(all))
	}
}

func TestBroadcaster_FilteredEventsDoNotFillBuffer(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	_, ch := b.Subscribe("us6000jlqa")

	for i := 0; i < subscriberBuffer*2; i++ {
		e := event(fmt.Sprintf("task-%d", i), models.TaskStatusProcessing)
		e.EventID = "us7000abcd"
		b.Broadcast(e)
	}

	if len(ch) != 0 {
		t.Errorf("expected no buffered events, got %d", len(ch))
	}
	if b.Dropped() != 0 {
		t.Errorf("expected no drops for unrelated events, got %d", b.Dropped())
	}
}
