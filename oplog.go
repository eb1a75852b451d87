package timeline

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/timeline/journal"
)

type opKind uint8

const (
	opAppend opKind = iota + 1
	opConfirm
	opFail
	opResend
	opSnapshot
	opRemove
)

func (op opKind) String() string {
	switch op {
	case opAppend:
		return "append"
	case opConfirm:
		return "confirm"
	case opFail:
		return "fail"
	case opResend:
		return "resend"
	case opSnapshot:
		return "snapshot"
	case opRemove:
		return "remove"
	default:
		return fmt.Sprintf("invalid op %d", uint8(op))
	}
}

type opRecord[K comparable, M any] struct {
	Op       opKind           `msgpack:"o"`
	Env      Envelope[K, M]   `msgpack:"e"`
	Snapshot []Envelope[K, M] `msgpack:"ss"`
}

// OpLog records feed mutations in an append-only journal so the feed can be
// rebuilt after a restart. Wire one into a feed via FeedOptions.Log; on
// startup, replay it with ReplayInto. Compact by saving a full snapshot to a
// Store and starting a fresh log file.
type OpLog[K comparable, M any] struct {
	j *journal.Journal
}

// OpenOpLog opens the mutation log at path, creating it if missing.
func OpenOpLog[K comparable, M any](path string, o journal.Options) (*OpLog[K, M], error) {
	j, err := journal.Open(path, o)
	if err != nil {
		return nil, err
	}
	return &OpLog[K, M]{j: j}, nil
}

// Count returns the number of logged records.
func (lg *OpLog[K, M]) Count() int {
	return lg.j.Count()
}

// Sync flushes logged mutations to stable storage.
func (lg *OpLog[K, M]) Sync() error {
	return lg.j.Sync()
}

func (lg *OpLog[K, M]) Close() error {
	return lg.j.Close()
}

func (lg *OpLog[K, M]) append(rec opRecord[K, M]) error {
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return err
	}
	return lg.j.Append(data)
}

// ReplayInto applies all logged mutations to f, in order. Typically f is a
// fresh feed restored from the last saved snapshot and the log covers
// whatever happened since. One OnChange notification is delivered at the
// end. Business-level failures of individual replayed records indicate the
// log does not match the feed's starting state; they are collected and
// returned joined, and the remaining records still apply.
func (lg *OpLog[K, M]) ReplayInto(f *Feed[K, M]) error {
	var errs []error
	err := lg.j.Records(func(payload []byte) error {
		var rec opRecord[K, M]
		if err := msgpack.Unmarshal(payload, &rec); err != nil {
			return err
		}
		f.apply(rec, &errs)
		return nil
	})
	f.notify()
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (f *Feed[K, M]) apply(rec opRecord[K, M], errs *[]error) {
	switch rec.Op {
	case opAppend, opConfirm:
		if rec.Op == opConfirm {
			f.list.remove(rec.Env.PendingKey)
		}
		if err := f.list.insertAfter(f.list.tail.prev, rec.Env.Key, rec.Env); err != nil {
			*errs = append(*errs, err)
		}
	case opFail, opResend:
		if err := f.list.update(rec.Env.Key, rec.Env); err != nil {
			*errs = append(*errs, err)
		}
	case opRemove:
		f.list.remove(rec.Env.Key)
	case opSnapshot:
		f.list = New[K, Envelope[K, M]](Options[Envelope[K, M]]{})
		for _, env := range rec.Snapshot {
			if err := f.list.insertAfter(f.list.tail.prev, env.Key, env); err != nil {
				*errs = append(*errs, err)
			}
		}
	default:
		*errs = append(*errs, fmt.Errorf("timeline: unknown logged op %v", rec.Op))
	}
}
