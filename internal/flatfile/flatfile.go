// Package flatfile implements the append-only, numbered-file payload log
// used for block bodies and undo records. Grounded byte-for-byte on
// original_source/fluxd_rust/crates/chainstate/src/flatfiles.rs: the same
// FileLocation encoding, append/read/recovery-at-open algorithm, and
// per-append fsync-without-directory-fsync durability (preserved per the
// flagged Open Question rather than "fixed").
package flatfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileLocation identifies a payload previously written by Append: which
// numbered file, at what byte offset, with what length.
type FileLocation struct {
	FileID uint32
	Offset uint64
	Len    uint32
}

// Encode returns the canonical 16-byte little-endian encoding of loc.
func (loc FileLocation) Encode() [16]byte {
	var out [16]byte
	binary.LittleEndian.PutUint32(out[0:4], loc.FileID)
	binary.LittleEndian.PutUint64(out[4:12], loc.Offset)
	binary.LittleEndian.PutUint32(out[12:16], loc.Len)
	return out
}

// DecodeFileLocation parses the 16-byte encoding produced by Encode.
func DecodeFileLocation(b []byte) (FileLocation, error) {
	if len(b) != 16 {
		return FileLocation{}, fmt.Errorf("flatfile: location must be 16 bytes, got %d", len(b))
	}
	return FileLocation{
		FileID: binary.LittleEndian.Uint32(b[0:4]),
		Offset: binary.LittleEndian.Uint64(b[4:12]),
		Len:    binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

var (
	// ErrInvalidLocation is returned when a FileLocation cannot refer to a
	// valid record (e.g. zero length).
	ErrInvalidLocation = errors.New("flatfile: invalid location")
	// ErrLengthMismatch is returned when the length prefix stored at a
	// location does not match the length recorded in the KV index.
	ErrLengthMismatch = errors.New("flatfile: length mismatch")
)

// Store is an append-only log of length-prefixed byte payloads, split
// across numbered files capped at MaxFileSize bytes each.
type Store struct {
	dir         string
	prefix      string
	maxFileSize uint64

	mu          sync.Mutex
	currentFile uint32
	currentLen  uint64
}

// New creates (or resumes) a flat-file store in dir, using prefix for file
// names (<dir>/<prefix>NNNNN.dat) and rolling to a new file once the
// current one would exceed maxFileSize.
func New(dir, prefix string, maxFileSize uint64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("flatfile: create dir %s: %w", dir, err)
	}
	fileID, length, err := locateActiveFile(dir, prefix, maxFileSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		dir:         dir,
		prefix:      prefix,
		maxFileSize: maxFileSize,
		currentFile: fileID,
		currentLen:  length,
	}, nil
}

func (s *Store) filePath(fileID uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%05d.dat", s.prefix, fileID))
}

// Append writes len_le(4) ‖ bytes to the active file, rolling to the next
// numbered file first if the write would exceed maxFileSize. The write is
// fsynced before Append returns. Never rewrites or reorders prior records.
func (s *Store) Append(payload []byte) (FileLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needed := uint64(4 + len(payload))
	if s.currentLen+needed > s.maxFileSize {
		s.currentFile++
		s.currentLen = 0
	}

	offset := s.currentLen
	path := s.filePath(s.currentFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return FileLocation{}, fmt.Errorf("flatfile: open %s: %w", path, err)
	}
	defer f.Close()

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return FileLocation{}, fmt.Errorf("flatfile: write length: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return FileLocation{}, fmt.Errorf("flatfile: write payload: %w", err)
	}
	// fsync per append; no directory fsync after rollover — preserved
	// Open Question behavior, see DESIGN.md.
	if err := f.Sync(); err != nil {
		return FileLocation{}, fmt.Errorf("flatfile: fsync: %w", err)
	}

	s.currentLen += needed
	return FileLocation{FileID: s.currentFile, Offset: offset, Len: uint32(len(payload))}, nil
}

// Read returns the payload previously written at loc, verifying the stored
// length prefix matches loc.Len.
func (s *Store) Read(loc FileLocation) ([]byte, error) {
	if loc.Len == 0 {
		return nil, ErrInvalidLocation
	}
	path := s.filePath(loc.FileID)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flatfile: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(int64(loc.Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("flatfile: seek: %w", err)
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, ErrInvalidLocation
	}
	storedLen := binary.LittleEndian.Uint32(lenBuf[:])
	if storedLen != loc.Len {
		return nil, ErrLengthMismatch
	}
	buf := make([]byte, storedLen)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, ErrLengthMismatch
	}
	return buf, nil
}

// locateActiveFile scans <dir>/<prefix>NNNNN.dat in order to find the
// append cursor on recovery: the last existing file and its length, rolled
// forward to a fresh file if that one is already at capacity.
func locateActiveFile(dir, prefix string, maxFileSize uint64) (uint32, uint64, error) {
	var lastID uint32
	var lastLen uint64
	found := false

	for fileID := uint32(0); ; fileID++ {
		path := filepath.Join(dir, fmt.Sprintf("%s%05d.dat", prefix, fileID))
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return 0, 0, fmt.Errorf("flatfile: stat %s: %w", path, err)
		}
		lastID = fileID
		lastLen = uint64(info.Size())
		found = true
	}

	if !found {
		return 0, 0, nil
	}
	if lastLen >= maxFileSize {
		return lastID + 1, 0, nil
	}
	return lastID, lastLen, nil
}
