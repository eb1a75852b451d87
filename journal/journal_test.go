package journal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestJournalAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")

	j := open(t, path)
	append3(t, j, "one", "two", "three")
	eq(t, j.Count(), 3)
	ensure(t, j.Sync())
	ensure(t, j.Close())

	j = open(t, path)
	defer j.Close()
	eq(t, j.Count(), 3)
	eqRecords(t, j, "one", "two", "three")
}

func TestJournalTrimsCorruptedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")

	j := open(t, path)
	append3(t, j, "aaaa", "bbbb", "cccc")
	size := j.Size()
	ensure(t, j.Close())

	// Flip a byte inside the second record's payload.
	data, err := os.ReadFile(path)
	ensure(t, err)
	data[size-2*recordSize("bbbb")+1] ^= 0xFF
	ensure(t, os.WriteFile(path, data, 0o666))

	j = open(t, path)
	defer j.Close()
	eq(t, j.Count(), 1)
	eqRecords(t, j, "aaaa")

	// The journal stays writable after the trim.
	ensure(t, j.Append([]byte("dddd")))
	eqRecords(t, j, "aaaa", "dddd")
}

func TestJournalTrimsShortTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")

	j := open(t, path)
	append3(t, j, "one", "two", "three")
	size := j.Size()
	ensure(t, j.Close())

	ensure(t, os.Truncate(path, size-3))

	j = open(t, path)
	defer j.Close()
	eq(t, j.Count(), 2)
	eqRecords(t, j, "one", "two")
}

func TestJournalRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")
	ensure(t, os.WriteFile(path, []byte("definitely not a journal file"), 0o666))

	_, err := Open(path, Options{})
	if err != ErrIncompatible {
		t.Fatalf("** got %v, wanted ErrIncompatible", err)
	}
}

func TestJournalEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")

	j := open(t, path)
	eq(t, j.Count(), 0)
	eqRecords(t, j)
	ensure(t, j.Close())

	j = open(t, path)
	defer j.Close()
	eq(t, j.Count(), 0)
}

func open(t testing.TB, path string) *Journal {
	t.Helper()
	j, err := Open(path, Options{})
	ensure(t, err)
	return j
}

func append3(t testing.TB, j *Journal, payloads ...string) {
	t.Helper()
	for _, p := range payloads {
		ensure(t, j.Append([]byte(p)))
	}
}

func eqRecords(t testing.TB, j *Journal, expected ...string) {
	t.Helper()
	var actual []string
	ensure(t, j.Records(func(payload []byte) error {
		actual = append(actual, string(payload))
		return nil
	}))
	if len(actual) != len(expected) {
		t.Fatalf("** got %d records %v, wanted %d %v", len(actual), actual, len(expected), expected)
	}
	for i := range actual {
		if actual[i] != expected[i] {
			t.Errorf("** record %d = %q, wanted %q", i, actual[i], expected[i])
		}
	}
}

// recordSize is the on-disk footprint of a record with a short payload
// (1-byte uvarint length).
func recordSize(payload string) int64 {
	return 1 + int64(len(payload)) + 8
}

func eq[T comparable](t testing.TB, a, e T) {
	if a != e {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func must[T any](t testing.TB, v T, err error) T {
	if err != nil {
		t.Helper()
		t.Fatal(err)
	}
	return v
}

func ensure(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatal(err)
	}
}
