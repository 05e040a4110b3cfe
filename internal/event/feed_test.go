package event

import "testing"

func TestFeedDeliversInSubscriptionOrder(t *testing.T) {
	t.Parallel()

	var feed Feed[string]
	var got []string
	feed.Subscribe(func(v string) { got = append(got, "a:"+v) })
	feed.Subscribe(func(v string) { got = append(got, "b:"+v) })

	if n := feed.Emit("x"); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if len(got) != 2 || got[0] != "a:x" || got[1] != "b:x" {
		t.Fatalf("unexpected delivery order: %v", got)
	}
}

func TestFeedUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	var feed Feed[int]
	calls := 0
	sub := feed.Subscribe(func(int) { calls++ })
	feed.Emit(1)
	sub.Unsubscribe()
	sub.Unsubscribe()
	feed.Emit(2)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if sub.Active() {
		t.Fatalf("expected subscription to be inactive")
	}
	if feed.Len() != 0 {
		t.Fatalf("expected no handlers, got %d", feed.Len())
	}
}

func TestFeedUnsubscribeDuringDispatchSkipsLaterHandler(t *testing.T) {
	t.Parallel()

	var feed Feed[string]
	var second *Subscription
	secondCalls := 0
	feed.Subscribe(func(string) { second.Unsubscribe() })
	second = feed.Subscribe(func(string) { secondCalls++ })

	if n := feed.Emit("x"); n != 1 {
		t.Fatalf("expected only the first handler to run, got %d", n)
	}
	if secondCalls != 0 {
		t.Fatalf("released handler ran during dispatch")
	}
}

func TestFeedSubscribeDuringDispatchWaitsForNextEmit(t *testing.T) {
	t.Parallel()

	var feed Feed[string]
	lateCalls := 0
	subscribed := false
	feed.Subscribe(func(string) {
		if subscribed {
			return
		}
		subscribed = true
		feed.Subscribe(func(string) { lateCalls++ })
	})

	feed.Emit("first")
	if lateCalls != 0 {
		t.Fatalf("handler added mid-dispatch should not see the current value")
	}
	feed.Emit("second")
	if lateCalls != 1 {
		t.Fatalf("expected late handler to run once, got %d", lateCalls)
	}
}

func TestGroupUnsubscribeReleasesAll(t *testing.T) {
	t.Parallel()

	var a Feed[string]
	var b Feed[error]
	var group Group
	group.Add(a.Subscribe(func(string) {}))
	group.Add(b.Subscribe(func(error) {}))
	if group.Len() != 2 {
		t.Fatalf("expected 2 tracked subscriptions")
	}

	group.Unsubscribe()
	if a.Len() != 0 || b.Len() != 0 || group.Len() != 0 {
		t.Fatalf("expected all handlers released")
	}
}

func TestNilSubscriptionIsSafe(t *testing.T) {
	t.Parallel()

	var sub *Subscription
	sub.Unsubscribe()
	if sub.Active() {
		t.Fatalf("nil subscription cannot be active")
	}
}
