/*
Package timeline implements an in-memory, ordered, keyed cache for linear
records such as chat messages.

We implement:

1. Lists, ordered keyed sequences with O(1) lookup, O(1) insertion at either
end, in-place updates and position-preserving key replacement.

2. Reconciliation, a three-segment merge of a freshly fetched ordered page
into the cached order: older records are prepended, newer records are
appended, and overlapping records are refreshed strictly in place, without
disturbing cached entries the page does not mention.

3. Feeds, an optimistic-send overlay on top of a list: messages enter under
a temporary key in the Sending state, transition to Failed in place, and get
re-keyed to the server-assigned key once delivery is confirmed.

4. Snapshot stores and op logs, the persistence collaborators for warm
starts: a Store saves the full ordered snapshot (Bolt-backed or in-memory),
and an OpLog records individual mutations for replay since the last
snapshot.

# Technical Details

**Structure.**
A list is a doubly-linked sequence between two payload-less sentinel nodes,
plus a key index used for O(1) random access. The central invariant is that
the index matches list membership exactly: every node reachable between the
sentinels has a matching index entry and vice versa. Snapshot traversal
cross-checks this and panics on a mismatch rather than silently returning
wrong data.

**Synchronization callback.**
A list or feed constructed with an OnChange callback hands a full ordered
snapshot to it at the end of every mutating call. This is the only boundary
to the surrounding application; the cache performs no other I/O.

**Error reporting.**
Insertion under a live key fails with ErrDuplicateKey, update and replace of
an absent key fail with ErrNotFound, and removal of an absent key is a
successful no-op. Batch operations never abort on a per-element failure:
failures are collected via errors.Join and later elements apply regardless.

**Threading.**
A single logical thread of control is assumed. Nothing here locks; if
multiple goroutines share a cache, the caller serializes access.
*/
package timeline
