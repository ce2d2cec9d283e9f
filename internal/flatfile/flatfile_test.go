package flatfile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileLocationRoundTrip(t *testing.T) {
	loc := FileLocation{FileID: 7, Offset: 123456789, Len: 4096}
	enc := loc.Encode()
	require.Len(t, enc, 16)
	got, err := DecodeFileLocation(enc[:])
	require.NoError(t, err)
	require.Equal(t, loc, got)
}

func TestDecodeFileLocationRejectsWrongLength(t *testing.T) {
	_, err := DecodeFileLocation([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestAppendReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "blk", 1<<20)
	require.NoError(t, err)

	payloads := [][]byte{
		[]byte("first record"),
		[]byte("second, a bit longer record"),
		[]byte("x"),
	}
	var locs []FileLocation
	for _, p := range payloads {
		loc, err := s.Append(p)
		require.NoError(t, err)
		locs = append(locs, loc)
	}

	for i, loc := range locs {
		got, err := s.Read(loc)
		require.NoError(t, err)
		require.Equal(t, payloads[i], got)
	}
}

func TestAppendRollsOverAtCapacity(t *testing.T) {
	dir := t.TempDir()
	// Small enough that a handful of records force a rollover.
	s, err := New(dir, "blk", 32)
	require.NoError(t, err)

	payload := []byte("0123456789012345") // 16 bytes + 4-byte length prefix = 20
	loc1, err := s.Append(payload)
	require.NoError(t, err)
	loc2, err := s.Append(payload)
	require.NoError(t, err)

	require.Equal(t, uint32(0), loc1.FileID)
	require.NotEqual(t, loc1.FileID, loc2.FileID, "second append should roll to a new file")
	require.Equal(t, uint64(0), loc2.Offset)

	got1, err := s.Read(loc1)
	require.NoError(t, err)
	require.Equal(t, payload, got1)

	got2, err := s.Read(loc2)
	require.NoError(t, err)
	require.Equal(t, payload, got2)
}

func TestRecoveryResumesAtLastFile(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir, "blk", 1<<20)
	require.NoError(t, err)
	loc1, err := s1.Append([]byte("persisted record"))
	require.NoError(t, err)

	// Simulate a restart: a fresh Store value over the same directory.
	s2, err := New(dir, "blk", 1<<20)
	require.NoError(t, err)

	loc2, err := s2.Append([]byte("second record after restart"))
	require.NoError(t, err)
	require.Equal(t, loc1.FileID, loc2.FileID)
	require.Greater(t, loc2.Offset, loc1.Offset)

	got, err := s2.Read(loc1)
	require.NoError(t, err)
	require.Equal(t, []byte("persisted record"), got)
}

func TestReadDetectsLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "blk", 1<<20)
	require.NoError(t, err)
	loc, err := s.Append([]byte("abc"))
	require.NoError(t, err)

	tampered := loc
	tampered.Len = 99
	_, err = s.Read(tampered)
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestInfoObserveTracksRanges(t *testing.T) {
	var info Info
	info = info.Observe(100, 10, 1000)
	info = info.Observe(200, 5, 2000)
	info = info.Observe(50, 20, 1500)

	require.Equal(t, uint32(3), info.Blocks)
	require.Equal(t, int32(5), info.HeightFrst)
	require.Equal(t, int32(20), info.HeightLast)
	require.Equal(t, uint32(1000), info.TimeFirst)
	require.Equal(t, uint32(2000), info.TimeLast)
}

func TestInfoEncodeRoundTrip(t *testing.T) {
	info := Info{Blocks: 12, Size: 98765, HeightFrst: 10, HeightLast: 120, TimeFirst: 111, TimeLast: 222, Flags: FlagsFull}
	got, err := DecodeInfo(info.Encode())
	require.NoError(t, err)
	require.Equal(t, info, got)
}

func TestMetaKeyDeterministic(t *testing.T) {
	k1 := MetaKey("blocks", 5)
	k2 := MetaKey("blocks", 5)
	require.Equal(t, k1, k2)
	k3 := MetaKey("blocks", 6)
	require.NotEqual(t, k1, k3)
}
