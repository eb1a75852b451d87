package timeline

import (
	"errors"
	"fmt"
)

// Entry is a keyed value, the unit of batch operations like InsertManyAtHead
// and Reconcile.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// Options configure a List.
type Options[V any] struct {
	// OnChange, if set, receives a full ordered snapshot at the end of every
	// mutating call. This is the synchronization boundary to the surrounding
	// application (say, a UI state store), and the only side effect the list
	// ever produces.
	OnChange func([]V)
}

// List is an ordered, keyed sequence: a doubly-linked list between two
// sentinel nodes, paired with a key index for O(1) random access. Insertion
// at either end, in-place updates, position-preserving key replacement and
// removal are all O(1). Keys are unique; re-insertion under a live key is
// rejected, never silently overwritten.
//
// A List is a plain mutable object owned by its caller. It is not safe for
// concurrent use; if multiple goroutines share one, the caller serializes
// access.
type List[K comparable, V any] struct {
	head     *node[K, V]
	tail     *node[K, V]
	index    map[K]*node[K, V]
	onChange func([]V)
}

type node[K comparable, V any] struct {
	key   K
	value V
	prev  *node[K, V]
	next  *node[K, V]
}

// New returns an empty List.
func New[K comparable, V any](opt Options[V]) *List[K, V] {
	l := &List[K, V]{
		head:     &node[K, V]{},
		tail:     &node[K, V]{},
		index:    make(map[K]*node[K, V]),
		onChange: opt.OnChange,
	}
	l.head.next = l.tail
	l.tail.prev = l.head
	return l
}

// Len returns the number of entries.
func (l *List[K, V]) Len() int {
	return len(l.index)
}

// Contains reports whether key is present.
func (l *List[K, V]) Contains(key K) bool {
	_, found := l.index[key]
	return found
}

// Get returns the value stored under key. No side effects.
func (l *List[K, V]) Get(key K) (V, bool) {
	if n := l.index[key]; n != nil {
		return n.value, true
	}
	var zero V
	return zero, false
}

// InsertAtHead adds a new entry at the front of the list.
// Fails with ErrDuplicateKey if key is already present.
func (l *List[K, V]) InsertAtHead(key K, value V) error {
	err := l.insertAfter(l.head, key, value)
	l.notify()
	return err
}

// InsertAtTail adds a new entry at the back of the list.
// Fails with ErrDuplicateKey if key is already present.
func (l *List[K, V]) InsertAtTail(key K, value V) error {
	err := l.insertAfter(l.tail.prev, key, value)
	l.notify()
	return err
}

// InsertManyAtHead inserts an ordered batch at the front of the list,
// preserving the batch's relative order: afterwards the snapshot begins with
// the batch, immediately followed by the previous contents. A duplicate key
// aborts only that element; the rest of the batch still goes in. Per-element
// failures are returned joined, nil if none.
func (l *List[K, V]) InsertManyAtHead(entries []Entry[K, V]) error {
	var errs []error
	l.insertManyAtHead(entries, &errs)
	l.notify()
	return errors.Join(errs...)
}

// Processing in reverse makes head insertion order-preserving: every element
// lands immediately before the one inserted after it.
func (l *List[K, V]) insertManyAtHead(entries []Entry[K, V], errs *[]error) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := l.insertAfter(l.head, e.Key, e.Value); err != nil {
			*errs = append(*errs, err)
		}
	}
}

// InsertManyAtTail inserts an ordered batch at the back of the list,
// preserving the batch's relative order. Failure semantics match
// InsertManyAtHead.
func (l *List[K, V]) InsertManyAtTail(entries []Entry[K, V]) error {
	var errs []error
	for _, e := range entries {
		if err := l.insertAfter(l.tail.prev, e.Key, e.Value); err != nil {
			errs = append(errs, err)
		}
	}
	l.notify()
	return errors.Join(errs...)
}

func (l *List[K, V]) insertAfter(pred *node[K, V], key K, value V) error {
	if _, found := l.index[key]; found {
		return keyErrf("insert", key, ErrDuplicateKey)
	}
	n := &node[K, V]{key: key, value: value, prev: pred, next: pred.next}
	pred.next.prev = n
	pred.next = n
	l.index[key] = n
	return nil
}

// Update overwrites the value stored under key in place, never changing its
// position. Fails with ErrNotFound if key is absent.
func (l *List[K, V]) Update(key K, value V) error {
	err := l.update(key, value)
	l.notify()
	return err
}

func (l *List[K, V]) update(key K, value V) error {
	n := l.index[key]
	if n == nil {
		return keyErrf("update", key, ErrNotFound)
	}
	n.value = value
	return nil
}

// Replace retires the entry under oldKey and installs value under newKey in
// exactly the position oldKey occupied. Fails with ErrNotFound if oldKey is
// absent, and with ErrDuplicateKey if newKey is present and distinct from
// oldKey.
func (l *List[K, V]) Replace(oldKey, newKey K, value V) error {
	err := l.replace(oldKey, newKey, value)
	l.notify()
	return err
}

func (l *List[K, V]) replace(oldKey, newKey K, value V) error {
	old := l.index[oldKey]
	if old == nil {
		return keyErrf("replace", oldKey, ErrNotFound)
	}
	if newKey != oldKey {
		if _, taken := l.index[newKey]; taken {
			return keyErrf("replace", newKey, ErrDuplicateKey)
		}
	}
	n := &node[K, V]{key: newKey, value: value, prev: old.prev, next: old.next}
	old.prev.next = n
	old.next.prev = n
	old.prev, old.next = nil, nil
	delete(l.index, oldKey)
	l.index[newKey] = n
	return nil
}

// Remove deletes the entry under key. Removal is idempotent: if key is
// absent, the desired postcondition already holds and Remove succeeds as a
// no-op.
func (l *List[K, V]) Remove(key K) {
	l.remove(key)
	l.notify()
}

func (l *List[K, V]) remove(key K) {
	n := l.index[key]
	if n == nil {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
	delete(l.index, key)
}

// Snapshot returns all values in order, walking head to tail. Every visited
// node is cross-checked against the index; a mismatch means the list and the
// index have desynchronized, which is a programming error inside this
// package, and Snapshot panics rather than silently returning wrong data.
func (l *List[K, V]) Snapshot() []V {
	result := make([]V, 0, len(l.index))
	for n := l.head.next; n != l.tail; n = n.next {
		if l.index[n.key] != n {
			panic(fmt.Sprintf("timeline: index desynchronized from list at key %v", n.key))
		}
		result = append(result, n.value)
	}
	if len(result) != len(l.index) {
		panic(fmt.Sprintf("timeline: list holds %d entries, index holds %d", len(result), len(l.index)))
	}
	return result
}

// Entries returns all entries in order, with the same structural checks as
// Snapshot.
func (l *List[K, V]) Entries() []Entry[K, V] {
	result := make([]Entry[K, V], 0, len(l.index))
	for n := l.head.next; n != l.tail; n = n.next {
		if l.index[n.key] != n {
			panic(fmt.Sprintf("timeline: index desynchronized from list at key %v", n.key))
		}
		result = append(result, Entry[K, V]{Key: n.key, Value: n.value})
	}
	if len(result) != len(l.index) {
		panic(fmt.Sprintf("timeline: list holds %d entries, index holds %d", len(result), len(l.index)))
	}
	return result
}

func (l *List[K, V]) notify() {
	if l.onChange != nil {
		l.onChange(l.Snapshot())
	}
}
