package timeline

import "errors"

// MergeFunc combines the cached value with the freshly fetched one during the
// in-place refresh of a reconciled batch's overlapping segment. A nil
// MergeFunc means the incoming value wins wholesale.
type MergeFunc[V any] func(old, incoming V) V

// Reconcile merges a freshly fetched ordered batch into the list without
// disturbing cached entries the batch does not mention. The batch is split
// into three contiguous segments by cache membership:
//
//   - the run of unknown keys before the first cached key is assumed to be
//     older records and is prepended at the head, order preserved;
//   - the run of unknown keys after the last cached key is assumed to be
//     newer records and is appended at the tail, order preserved;
//   - everything in between overlaps the cache and is refreshed strictly in
//     place via merge, never repositioned.
//
// A batch with no cached key at all is treated entirely as older records and
// goes to the front.
//
// The overlapping segment is assumed to be ordered consistently with the
// cache for the keys they share; this precondition is not validated, and
// violating it yields stale positions rather than a failure.
//
// Per-element failures (a duplicate boundary key, an overlapping key that is
// gone from the cache) abort only that element and are returned joined; the
// rest of the batch still applies. One OnChange notification is delivered at
// the end regardless.
func (l *List[K, V]) Reconcile(batch []Entry[K, V], merge MergeFunc[V]) error {
	var errs []error
	l.reconcile(batch, merge, &errs)
	l.notify()
	return errors.Join(errs...)
}

func (l *List[K, V]) reconcile(batch []Entry[K, V], merge MergeFunc[V], errs *[]error) {
	left := -1
	for i, e := range batch {
		if _, found := l.index[e.Key]; found {
			left = i
			break
		}
	}
	if left < 0 {
		l.insertManyAtHead(batch, errs)
		return
	}

	right := left
	for i := len(batch) - 1; i > left; i-- {
		if _, found := l.index[batch[i].Key]; found {
			right = i
			break
		}
	}

	l.insertManyAtHead(batch[:left], errs)

	for _, e := range batch[right+1:] {
		if err := l.insertAfter(l.tail.prev, e.Key, e.Value); err != nil {
			*errs = append(*errs, err)
		}
	}

	for _, e := range batch[left : right+1] {
		n := l.index[e.Key]
		if n == nil {
			// A gap inside the overlapping segment: the key was cached when
			// the segment boundaries say so, but is not anymore.
			*errs = append(*errs, keyErrf("reconcile", e.Key, ErrNotFound))
			continue
		}
		if merge != nil {
			n.value = merge(n.value, e.Value)
		} else {
			n.value = e.Value
		}
	}
}
