package timeline

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// SendStatus is the optimistic-send state of an envelope. The zero value
// means the message is confirmed (at rest): either it was never sent
// optimistically, or the server has acknowledged it.
type SendStatus uint8

const (
	StatusConfirmed SendStatus = iota
	StatusSending
	StatusFailed
)

func (s SendStatus) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusSending:
		return "sending"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("invalid send status %d", uint8(s))
	}
}

// Envelope wraps a message with its optimistic-send metadata. PendingKey is
// the temporary key the message was enqueued under before the server
// assigned a real one; the zero value of K means there is none. A confirmed
// envelope keeps its PendingKey as provenance.
type Envelope[K comparable, M any] struct {
	Key        K          `msgpack:"k"`
	Message    M          `msgpack:"m"`
	PendingKey K          `msgpack:"p"`
	Status     SendStatus `msgpack:"s"`
}

// HasPendingKey reports whether the envelope went through an optimistic send.
func (e Envelope[K, M]) HasPendingKey() bool {
	var zero K
	return e.PendingKey != zero
}

func (e Envelope[K, M]) String() string {
	if e.HasPendingKey() {
		return fmt.Sprintf("%v [%v, pending %v]", e.Key, e.Status, e.PendingKey)
	}
	return fmt.Sprintf("%v [%v]", e.Key, e.Status)
}

// NewPendingKey returns a fresh temporary key for an optimistic send.
func NewPendingKey() string {
	return "pending-" + uuid.NewString()
}

// FeedOptions configure a Feed.
type FeedOptions[K comparable, M any] struct {
	// OnChange, if set, receives a full ordered snapshot of envelopes at the
	// end of every mutating call.
	OnChange func([]Envelope[K, M])

	// Log, if set, records every successful mutation for replay after a
	// restart. See OpLog.
	Log *OpLog[K, M]

	Logger  *slog.Logger
	Verbose bool
}

// FeedStats counts feed operations that actually changed state.
type FeedStats struct {
	Appends    uint64
	Confirms   uint64
	Failures   uint64
	Resends    uint64
	Reconciles uint64
}

// Feed is an ordered keyed message cache with an optimistic-send overlay:
// messages enter under a caller-generated temporary key in the Sending
// state, then either transition to Failed in place or get re-keyed to the
// server-assigned key once delivery is confirmed. Bulk pages fetched from
// the server are merged in via Reconcile, which keeps overlay metadata on
// entries the page overlaps.
//
// Like List, a Feed assumes a single logical thread of control.
type Feed[K comparable, M any] struct {
	list     *List[K, Envelope[K, M]]
	onChange func([]Envelope[K, M])
	log      *OpLog[K, M]
	logger   *slog.Logger
	verbose  bool
	stats    FeedStats
}

// NewFeed returns an empty Feed.
func NewFeed[K comparable, M any](opt FeedOptions[K, M]) *Feed[K, M] {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Feed[K, M]{
		list:     New[K, Envelope[K, M]](Options[Envelope[K, M]]{}),
		onChange: opt.OnChange,
		log:      opt.Log,
		logger:   opt.Logger,
		verbose:  opt.Verbose,
	}
}

// Len returns the number of envelopes.
func (f *Feed[K, M]) Len() int {
	return f.list.Len()
}

// Get returns the envelope stored under key.
func (f *Feed[K, M]) Get(key K) (Envelope[K, M], bool) {
	return f.list.Get(key)
}

// Snapshot returns all envelopes in order.
func (f *Feed[K, M]) Snapshot() []Envelope[K, M] {
	return f.list.Snapshot()
}

// Stats returns operation counters.
func (f *Feed[K, M]) Stats() FeedStats {
	return f.stats
}

// Append adds a message under a temporary key at the tail of the feed, in
// the Sending state. New content is assumed newest. Fails with
// ErrDuplicateKey if tempKey is already taken.
func (f *Feed[K, M]) Append(tempKey K, msg M) error {
	env := Envelope[K, M]{Key: tempKey, Message: msg, PendingKey: tempKey, Status: StatusSending}
	err := f.list.InsertAtTail(tempKey, env)
	if err == nil {
		f.stats.Appends++
		f.record(opAppend, env)
	}
	f.notify()
	return err
}

// ConfirmDelivery transitions the optimistic entry under tempKey to the
// Confirmed state under the server-assigned realKey. The entry is removed
// and re-inserted at the tail, keeping its message and recording tempKey as
// provenance. Note that this moves the entry to the end even if other
// entries were appended after it while the send was in flight; a freshly
// confirmed message always shows up as newest.
//
// If tempKey is absent, ConfirmDelivery is a no-op. If realKey is already
// taken by another entry, the optimistic entry has been removed by the time
// the insert is rejected, and ErrDuplicateKey is returned.
func (f *Feed[K, M]) ConfirmDelivery(tempKey, realKey K) error {
	env, found := f.list.Get(tempKey)
	if !found {
		f.notify()
		return nil
	}
	f.list.remove(tempKey)
	env.Key = realKey
	// The temporary key stays on as provenance, even for entries that
	// arrived via Reconcile and never carried one.
	env.PendingKey = tempKey
	env.Status = StatusConfirmed
	err := f.list.insertAfter(f.list.tail.prev, realKey, env)
	if err == nil {
		f.stats.Confirms++
		f.record(opConfirm, env)
	} else {
		// The optimistic entry is gone even though the insert was rejected;
		// the log must reflect that for replay to match the live feed.
		f.record(opRemove, Envelope[K, M]{Key: tempKey})
	}
	f.notify()
	return err
}

// MarkFailed transitions the optimistic entry under tempKey to the Failed
// state, in place. No-op if tempKey is absent.
func (f *Feed[K, M]) MarkFailed(tempKey K) {
	f.setStatus(tempKey, StatusFailed, opFail, &f.stats.Failures)
}

// Resend transitions the entry under tempKey back to the Sending state, in
// place, for another delivery attempt. No-op if tempKey is absent.
func (f *Feed[K, M]) Resend(tempKey K) {
	f.setStatus(tempKey, StatusSending, opResend, &f.stats.Resends)
}

func (f *Feed[K, M]) setStatus(key K, status SendStatus, op opKind, counter *uint64) {
	env, found := f.list.Get(key)
	if found {
		env.Status = status
		ensure(f.list.update(key, env))
		*counter++
		f.record(op, env)
	}
	f.notify()
}

// Reconcile merges a freshly fetched ordered page of messages into the feed
// per List.Reconcile, using each record's key as the merge key. For records
// that overlap cached entries, the incoming message replaces the cached one
// while the cached entry's pending key and send status are preserved.
func (f *Feed[K, M]) Reconcile(batch []Entry[K, M]) error {
	envs := make([]Entry[K, Envelope[K, M]], len(batch))
	for i, rec := range batch {
		envs[i] = Entry[K, Envelope[K, M]]{
			Key:   rec.Key,
			Value: Envelope[K, M]{Key: rec.Key, Message: rec.Value},
		}
	}
	var errs []error
	f.list.reconcile(envs, mergeKeepOverlay[K, M], &errs)
	f.stats.Reconciles++
	if f.log != nil {
		f.recordSnapshot()
	}
	f.notify()
	return errors.Join(errs...)
}

func mergeKeepOverlay[K comparable, M any](old, incoming Envelope[K, M]) Envelope[K, M] {
	incoming.PendingKey = old.PendingKey
	incoming.Status = old.Status
	return incoming
}

// Restore loads a previously saved snapshot into the feed, appending the
// envelopes in order. Intended for warm starts on an empty feed; duplicate
// keys are reported per-element like any batch insert.
func (f *Feed[K, M]) Restore(envs []Envelope[K, M]) error {
	var errs []error
	for _, env := range envs {
		if err := f.list.insertAfter(f.list.tail.prev, env.Key, env); err != nil {
			errs = append(errs, err)
		}
	}
	f.notify()
	return errors.Join(errs...)
}

func (f *Feed[K, M]) record(op opKind, env Envelope[K, M]) {
	if f.verbose {
		f.logger.Debug("feed op", "op", op, "envelope", env.String())
	}
	if f.log == nil {
		return
	}
	if err := f.log.append(opRecord[K, M]{Op: op, Env: env}); err != nil {
		f.logger.Warn("feed op log append failed", "op", op, "err", err)
	}
}

// Reconciliation can touch an unbounded part of the feed, so the op log gets
// a full snapshot record instead of a diff.
func (f *Feed[K, M]) recordSnapshot() {
	if err := f.log.append(opRecord[K, M]{Op: opSnapshot, Snapshot: f.list.Snapshot()}); err != nil {
		f.logger.Warn("feed op log append failed", "op", opSnapshot, "err", err)
	}
}

func (f *Feed[K, M]) notify() {
	if f.onChange != nil {
		f.onChange(f.list.Snapshot())
	}
}
