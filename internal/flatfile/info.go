package flatfile

import (
	"encoding/binary"
	"fmt"
)

// Info is the best-effort, non-consensus-critical metadata record kept
// per numbered file: block count, total size, height/time ranges. Grounded
// on original_source/fluxd_rust/crates/chainstate/src/filemeta.rs.
// Encoding: blocks_u32le ‖ size_u64le ‖ height_first_i32le ‖
// height_last_i32le ‖ time_first_u32le ‖ time_last_u32le ‖ flags_u32le.
type Info struct {
	Blocks     uint32
	Size       uint64
	HeightFrst int32
	HeightLast int32
	TimeFirst  uint32
	TimeLast   uint32
	Flags      uint32
}

const (
	// FlagsNone marks a file with no special status.
	FlagsNone uint32 = 0
	// FlagsFull marks a file that has reached its capacity and will not
	// receive further appends.
	FlagsFull uint32 = 1 << 0
)

const infoEncodedLen = 4 + 8 + 4 + 4 + 4 + 4 + 4

// Encode returns the canonical little-endian encoding of the metadata
// record.
func (i Info) Encode() []byte {
	out := make([]byte, infoEncodedLen)
	binary.LittleEndian.PutUint32(out[0:4], i.Blocks)
	binary.LittleEndian.PutUint64(out[4:12], i.Size)
	binary.LittleEndian.PutUint32(out[12:16], uint32(i.HeightFrst))
	binary.LittleEndian.PutUint32(out[16:20], uint32(i.HeightLast))
	binary.LittleEndian.PutUint32(out[20:24], i.TimeFirst)
	binary.LittleEndian.PutUint32(out[24:28], i.TimeLast)
	binary.LittleEndian.PutUint32(out[28:32], i.Flags)
	return out
}

// DecodeInfo parses the encoding produced by Encode.
func DecodeInfo(b []byte) (Info, error) {
	if len(b) != infoEncodedLen {
		return Info{}, fmt.Errorf("flatfile: info record must be %d bytes, got %d", infoEncodedLen, len(b))
	}
	return Info{
		Blocks:     binary.LittleEndian.Uint32(b[0:4]),
		Size:       binary.LittleEndian.Uint64(b[4:12]),
		HeightFrst: int32(binary.LittleEndian.Uint32(b[12:16])),
		HeightLast: int32(binary.LittleEndian.Uint32(b[16:20])),
		TimeFirst:  binary.LittleEndian.Uint32(b[20:24]),
		TimeLast:   binary.LittleEndian.Uint32(b[24:28]),
		Flags:      binary.LittleEndian.Uint32(b[28:32]),
	}, nil
}

// MetaKey returns the store key under which this file's Info record is
// kept: "flatfiles:<prefix>:file:<file_id_le4>".
func MetaKey(prefix string, fileID uint32) []byte {
	out := make([]byte, 0, len("flatfiles:blocks:file:")+len(prefix)+4)
	out = append(out, []byte("flatfiles:"+prefix+":file:")...)
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], fileID)
	return append(out, idBuf[:]...)
}

// Observe folds a newly appended record's height/time into the running
// Info for its file, updating block count and size and widening the
// height/time ranges. It only returns the updated value; nothing in this
// module writes Info records to the KV store.
func (i Info) Observe(recordLen uint32, height int32, blockTime uint32) Info {
	first := i.Blocks == 0
	i.Blocks++
	i.Size += uint64(4 + recordLen)
	if first {
		i.HeightFrst, i.HeightLast = height, height
		i.TimeFirst, i.TimeLast = blockTime, blockTime
		return i
	}
	if height < i.HeightFrst {
		i.HeightFrst = height
	}
	if height > i.HeightLast {
		i.HeightLast = height
	}
	if blockTime < i.TimeFirst {
		i.TimeFirst = blockTime
	}
	if blockTime > i.TimeLast {
		i.TimeLast = blockTime
	}
	return i
}
