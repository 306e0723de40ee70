package bus

import (
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe(TopicMessageSent)
	defer b.Unsubscribe(sub)

	b.Publish(TopicMessageSent, MessageSentEvent{MessageID: "m1", From: "ContentAgent", To: "UXAgent"})

	select {
	case event := <-sub.Ch():
		if event.Topic != TopicMessageSent {
			t.Fatalf("topic = %q, want %q", event.Topic, TopicMessageSent)
		}
		payload, ok := event.Payload.(MessageSentEvent)
		if !ok {
			t.Fatalf("payload type = %T, want MessageSentEvent", event.Payload)
		}
		if payload.MessageID != "m1" {
			t.Fatalf("message id = %q, want m1", payload.MessageID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_PrefixMatching(t *testing.T) {
	b := New()

	taskSub := b.Subscribe("task.")
	defer b.Unsubscribe(taskSub)

	allSub := b.Subscribe("")
	defer b.Unsubscribe(allSub)

	b.Publish(TopicTaskCreated, TaskEvent{TaskID: "t1"})
	b.Publish(TopicAgentStatusChanged, AgentStatusChangedEvent{Agent: "UXAgent"})

	// taskSub receives only the task event.
	select {
	case event := <-taskSub.Ch():
		if event.Topic != TopicTaskCreated {
			t.Fatalf("topic = %q, want %q", event.Topic, TopicTaskCreated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for task event")
	}
	select {
	case event := <-taskSub.Ch():
		t.Fatalf("unexpected event on taskSub: %v", event)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}

	// allSub receives both.
	for i := 0; i < 2; i++ {
		select {
		case <-allSub.Ch():
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event on allSub")
		}
	}
}

func TestBus_NonBlocking(t *testing.T) {
	b := New()
	sub := b.Subscribe("job.")
	defer b.Unsubscribe(sub)

	// Overfill the buffer; Publish must not block.
	for i := 0; i < defaultBufferSize+10; i++ {
		b.Publish(TopicJobRunCompleted, JobRunEvent{JobID: "j1"})
	}

	count := 0
	for {
		select {
		case <-sub.Ch():
			count++
		default:
			if count != defaultBufferSize {
				t.Fatalf("received %d events, want %d (buffer size)", count, defaultBufferSize)
			}
			return
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe("")

	if b.SubscriberCount() != 1 {
		t.Fatalf("count = %d, want 1", b.SubscriberCount())
	}

	b.Unsubscribe(sub)

	if b.SubscriberCount() != 0 {
		t.Fatalf("count = %d, want 0", b.SubscriberCount())
	}

	if _, ok := <-sub.Ch(); ok {
		t.Fatal("expected closed channel")
	}

	// Double unsubscribe is a no-op.
	b.Unsubscribe(sub)
}
