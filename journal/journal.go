// Package journal implements a small append-only record log with
// per-record checksums.
//
// Intended use case: client-side mutation logs that get compacted by
// rewriting from a snapshot, so a single file without segment rotation is
// enough.
//
// File format:
//
//   - file = header record*
//   - header = magic:64 version:8 reserved:24 createdAt:32
//   - record = size:uvarint payload checksum:64
//
// The checksum is xxhash64 of the payload. Open scans all records and
// truncates the file after the first corrupted or incomplete one, so a crash
// in the middle of an append loses at most the unfinished record (if
// followed by an fsync, see Sync).
package journal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
)

var (
	ErrIncompatible       = errors.New("incompatible journal file")
	ErrUnsupportedVersion = errors.New("unsupported journal version")
)

const (
	magic            = 0x4C4A4C4E454D4954 // "TIMELNJL" as little-endian uint64
	version0   uint8 = 0
	headerSize       = 16
)

type Options struct {
	Now     func() time.Time
	Logger  *slog.Logger
	Verbose bool
}

// Journal is an append-only record log backed by a single file.
type Journal struct {
	path    string
	f       *os.File
	now     func() time.Time
	logger  *slog.Logger
	verbose bool

	size     int64 // end of the last valid record
	count    int
	writeErr error
	buf      []byte
}

// Open opens the journal at path, creating the file if missing. Any
// corrupted or incomplete tail left behind by a crash is trimmed off.
func Open(path string, o Options) (*Journal, error) {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, err
	}
	j := &Journal{
		path:    path,
		f:       f,
		now:     o.Now,
		logger:  o.Logger,
		verbose: o.Verbose,
	}
	if err := j.load(); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) String() string {
	return j.path
}

// Count returns the number of valid records.
func (j *Journal) Count() int {
	return j.count
}

// Size returns the file size in bytes, not counting any trimmed tail.
func (j *Journal) Size() int64 {
	return j.size
}

func (j *Journal) load() error {
	st, err := j.f.Stat()
	if err != nil {
		return err
	}
	if st.Size() == 0 {
		var hdr [headerSize]byte
		binary.LittleEndian.PutUint64(hdr[0:], magic)
		hdr[8] = version0
		binary.LittleEndian.PutUint32(hdr[12:], timestamp(j.now()))
		if _, err := j.f.Write(hdr[:]); err != nil {
			return err
		}
		j.size = headerSize
		return nil
	}

	if st.Size() < headerSize {
		return ErrIncompatible
	}
	var hdr [headerSize]byte
	if _, err := j.f.ReadAt(hdr[:], 0); err != nil {
		return err
	}
	if binary.LittleEndian.Uint64(hdr[0:]) != magic {
		return ErrIncompatible
	}
	if hdr[8] != version0 {
		return ErrUnsupportedVersion
	}

	good, count, err := scan(j.f, st.Size(), nil)
	if err != nil {
		return err
	}
	j.size = good
	j.count = count
	if good < st.Size() {
		j.logger.Warn("trimming corrupted journal tail", "journal", j.path, "offset", good, "lost", st.Size()-good)
		if err := j.f.Truncate(good); err != nil {
			return err
		}
	}
	if _, err := j.f.Seek(good, io.SeekStart); err != nil {
		return err
	}
	if j.verbose {
		j.logger.Debug("journal loaded", "journal", j.path, "records", count, "size", good)
	}
	return nil
}

// Append adds a record holding payload. Write errors are sticky: after the
// first failure, all subsequent appends fail with the same error, and the
// (possibly partial) tail will be trimmed by the next Open.
func (j *Journal) Append(payload []byte) error {
	if j.writeErr != nil {
		return j.writeErr
	}
	j.buf = binary.AppendUvarint(j.buf[:0], uint64(len(payload)))
	j.buf = append(j.buf, payload...)
	j.buf = binary.LittleEndian.AppendUint64(j.buf, xxhash.Sum64(payload))
	n, err := j.f.Write(j.buf)
	if err != nil {
		j.writeErr = err
		return err
	}
	j.size += int64(n)
	j.count++
	if j.verbose {
		j.logger.Debug("journal record appended", "journal", j.path, "bytes", len(payload))
	}
	return nil
}

// Records replays all valid record payloads in order. The payload slice is
// owned by fn.
func (j *Journal) Records(fn func(payload []byte) error) error {
	_, _, err := scan(j.f, j.size, fn)
	return err
}

// Sync flushes appended records to stable storage.
func (j *Journal) Sync() error {
	return j.f.Sync()
}

func (j *Journal) Close() error {
	return j.f.Close()
}

// scan walks records following the header and returns the offset just past
// the last valid one. A record that is short, unreadable or fails its
// checksum ends the scan; only errors returned by fn propagate.
func scan(r io.ReaderAt, size int64, fn func(payload []byte) error) (int64, int, error) {
	br := bufio.NewReader(io.NewSectionReader(r, headerSize, size-headerSize))
	off := int64(headerSize)
	count := 0
	var lenBuf [binary.MaxVarintLen64]byte
	for {
		n, err := binary.ReadUvarint(br)
		if err != nil {
			return off, count, nil
		}
		if n > uint64(size) {
			// A length prefix larger than the whole file is corruption, not
			// a record worth allocating for.
			return off, count, nil
		}
		buf := make([]byte, int(n)+8)
		if _, err := io.ReadFull(br, buf); err != nil {
			return off, count, nil
		}
		payload, sum := buf[:n], binary.LittleEndian.Uint64(buf[n:])
		if xxhash.Sum64(payload) != sum {
			return off, count, nil
		}
		off += int64(binary.PutUvarint(lenBuf[:], n)) + int64(n) + 8
		count++
		if fn != nil {
			if err := fn(payload); err != nil {
				return off, count, err
			}
		}
	}
}

func timestamp(t time.Time) uint32 {
	v := t.Unix()
	if v < 0 || v > 0xFFFF_FFFF {
		panic("time travel disallowed")
	}
	return uint32(v)
}
