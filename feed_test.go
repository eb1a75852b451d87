package timeline

import (
	"strings"
	"testing"
)

type msg struct {
	Text string `msgpack:"t"`
}

func TestFeedOptimisticFlow(t *testing.T) {
	f := NewFeed[string, msg](FeedOptions[string, msg]{})

	ensure(f.Append("t1", msg{"hello"}))
	envs := f.Snapshot()
	deepEqual(t, envs, []Envelope[string, msg]{
		{Key: "t1", Message: msg{"hello"}, PendingKey: "t1", Status: StatusSending},
	})

	ensure(f.ConfirmDelivery("t1", "r1"))
	deepEqual(t, f.Len(), 1)
	_, found := f.Get("t1")
	deepEqual(t, found, false)
	env, found := f.Get("r1")
	deepEqual(t, found, true)
	deepEqual(t, env, Envelope[string, msg]{Key: "r1", Message: msg{"hello"}, PendingKey: "t1", Status: StatusConfirmed})
	deepEqual(t, env.HasPendingKey(), true)
}

func TestFeedConfirmDeliveryReordersToTail(t *testing.T) {
	f := NewFeed[string, msg](FeedOptions[string, msg]{})
	ensure(f.Append("t1", msg{"first"}))
	ensure(f.Append("t2", msg{"second"}))

	// t1 is not the newest entry anymore, yet confirmation re-inserts it at
	// the tail: freshly confirmed messages always show up as newest.
	ensure(f.ConfirmDelivery("t1", "r1"))
	deepEqual(t, keysOf(f.Snapshot()), []string{"t2", "r1"})
}

func TestFeedConfirmDeliveryOfReconciledEntry(t *testing.T) {
	f := NewFeed[string, msg](FeedOptions[string, msg]{})
	ensure(f.Reconcile([]Entry[string, msg]{{Key: "m1", Value: msg{"one"}}}))

	// An entry that arrived via Reconcile carries no pending key, yet
	// confirmation still records the key it was confirmed from.
	ensure(f.ConfirmDelivery("m1", "r1"))
	env, found := f.Get("r1")
	deepEqual(t, found, true)
	deepEqual(t, env, Envelope[string, msg]{Key: "r1", Message: msg{"one"}, PendingKey: "m1", Status: StatusConfirmed})
}

func TestFeedConfirmDeliveryAbsentIsNoop(t *testing.T) {
	var calls int
	f := NewFeed[string, msg](FeedOptions[string, msg]{
		OnChange: func([]Envelope[string, msg]) { calls++ },
	})
	ensure(f.Append("t1", msg{"hello"}))

	ensure(f.ConfirmDelivery("nope", "r1"))
	deepEqual(t, keysOf(f.Snapshot()), []string{"t1"})
	deepEqual(t, calls, 2)
}

func TestFeedConfirmDeliveryDuplicateRealKey(t *testing.T) {
	f := NewFeed[string, msg](FeedOptions[string, msg]{})
	ensure(f.Append("t1", msg{"one"}))
	ensure(f.ConfirmDelivery("t1", "r1"))
	ensure(f.Append("t2", msg{"two"}))

	err := f.ConfirmDelivery("t2", "r1")
	iserr(t, err, ErrDuplicateKey)
	// The optimistic entry is gone by the time the insert is rejected.
	deepEqual(t, keysOf(f.Snapshot()), []string{"r1"})
}

func TestFeedMarkFailedAndResend(t *testing.T) {
	f := NewFeed[string, msg](FeedOptions[string, msg]{})
	ensure(f.Append("t1", msg{"one"}))
	ensure(f.Append("t2", msg{"two"}))

	f.MarkFailed("t1")
	deepEqual(t, keysOf(f.Snapshot()), []string{"t1", "t2"})
	env, _ := f.Get("t1")
	deepEqual(t, env.Status, StatusFailed)

	f.Resend("t1")
	deepEqual(t, keysOf(f.Snapshot()), []string{"t1", "t2"})
	env, _ = f.Get("t1")
	deepEqual(t, env.Status, StatusSending)

	// Absent keys are no-ops.
	f.MarkFailed("nope")
	f.Resend("nope")
	deepEqual(t, f.Len(), 2)
}

func TestFeedReconcilePreservesOverlayMetadata(t *testing.T) {
	f := NewFeed[string, msg](FeedOptions[string, msg]{})
	ensure(f.Append("k", msg{"draft"}))
	f.MarkFailed("k")

	err := f.Reconcile([]Entry[string, msg]{{Key: "k", Value: msg{"server copy"}}})
	ensure(err)
	env, _ := f.Get("k")
	deepEqual(t, env, Envelope[string, msg]{Key: "k", Message: msg{"server copy"}, PendingKey: "k", Status: StatusFailed})
}

func TestFeedReconcileAroundOptimisticEntry(t *testing.T) {
	f := NewFeed[string, msg](FeedOptions[string, msg]{})
	ensure(f.Reconcile([]Entry[string, msg]{{Key: "m1", Value: msg{"one"}}}))
	ensure(f.Append("t1", msg{"pending"}))

	// A fresh page covering m1 and a new m2: m1 refreshes in place, m2 goes
	// to the tail, and the in-flight t1 stays put with its metadata.
	ensure(f.Reconcile([]Entry[string, msg]{
		{Key: "m1", Value: msg{"one v2"}},
		{Key: "m2", Value: msg{"two"}},
	}))
	deepEqual(t, keysOf(f.Snapshot()), []string{"m1", "t1", "m2"})
	env, _ := f.Get("t1")
	deepEqual(t, env.Status, StatusSending)
	env, _ = f.Get("m1")
	deepEqual(t, env.Message, msg{"one v2"})
	deepEqual(t, env.HasPendingKey(), false)
}

func TestFeedNotifiesOncePerCall(t *testing.T) {
	var calls int
	f := NewFeed[string, msg](FeedOptions[string, msg]{
		OnChange: func([]Envelope[string, msg]) { calls++ },
	})

	ensure(f.Append("t1", msg{"one"}))
	deepEqual(t, calls, 1)
	ensure(f.ConfirmDelivery("t1", "r1"))
	deepEqual(t, calls, 2)
	f.MarkFailed("nope")
	deepEqual(t, calls, 3)
	ensure(f.Reconcile([]Entry[string, msg]{{Key: "m", Value: msg{"m"}}}))
	deepEqual(t, calls, 4)
}

func TestFeedStats(t *testing.T) {
	f := NewFeed[string, msg](FeedOptions[string, msg]{})
	ensure(f.Append("t1", msg{"one"}))
	f.MarkFailed("t1")
	f.Resend("t1")
	ensure(f.ConfirmDelivery("t1", "r1"))
	ensure(f.Reconcile(nil))

	deepEqual(t, f.Stats(), FeedStats{Appends: 1, Confirms: 1, Failures: 1, Resends: 1, Reconciles: 1})
}

func TestFeedRestore(t *testing.T) {
	f := NewFeed[string, msg](FeedOptions[string, msg]{})
	saved := []Envelope[string, msg]{
		{Key: "a", Message: msg{"one"}},
		{Key: "t2", Message: msg{"two"}, PendingKey: "t2", Status: StatusFailed},
	}
	ensure(f.Restore(saved))
	deepEqual(t, f.Snapshot(), saved)
}

func TestNewPendingKey(t *testing.T) {
	k1, k2 := NewPendingKey(), NewPendingKey()
	if !strings.HasPrefix(k1, "pending-") {
		t.Errorf("** got %q, wanted pending- prefix", k1)
	}
	if k1 == k2 {
		t.Errorf("** got two equal pending keys %q", k1)
	}
}

func TestSendStatusString(t *testing.T) {
	deepEqual(t, StatusConfirmed.String(), "confirmed")
	deepEqual(t, StatusSending.String(), "sending")
	deepEqual(t, StatusFailed.String(), "failed")
}

func keysOf[K comparable, M any](envs []Envelope[K, M]) []K {
	keys := make([]K, len(envs))
	for i, env := range envs {
		keys[i] = env.Key
	}
	return keys
}
