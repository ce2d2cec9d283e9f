package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompactSizeRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 0xfc, 0xfd, 0xfe, 0xffff, 0x10000, 0x1000000, 0x1ffffff, MaxCompactSize}
	for _, v := range values {
		e := NewEncoder()
		e.WriteCompactSize(v)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadCompactSize()
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.NoError(t, d.Finish())
	}
}

func TestCompactSizeCanonicalityRejection(t *testing.T) {
	cases := [][]byte{
		{0xfd, 0xfc, 0x00},
		{0xfe, 0xff, 0x00, 0x00, 0x00},
		{0xff, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	}
	for _, c := range cases {
		d := NewDecoder(c)
		_, err := d.ReadCompactSize()
		require.Error(t, err)
	}
}

func TestCompactSizeAcceptsFullRange(t *testing.T) {
	for _, v := range []uint64{0, 1000, 0x0200_0000} {
		e := NewEncoder()
		e.WriteCompactSize(v)
		d := NewDecoder(e.Bytes())
		got, err := d.ReadCompactSize()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	// Just over the maximum must be rejected.
	e := NewEncoder()
	e.WriteCompactSize(MaxCompactSize + 1)
	d := NewDecoder(e.Bytes())
	_, err := d.ReadCompactSize()
	require.Error(t, err)
}

func TestTrailingBytesIsError(t *testing.T) {
	e := NewEncoder()
	e.WriteU32LE(42)
	e.WriteU8(0xAA)
	d := NewDecoder(e.Bytes())
	_, err := d.ReadU32LE()
	require.NoError(t, err)
	require.Error(t, d.Finish())
}

func TestVarBytesRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	e := NewEncoder()
	e.WriteVarBytes(payload)
	d := NewDecoder(e.Bytes())
	got, err := d.ReadVarBytes()
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.NoError(t, d.Finish())
}

func TestVarStrRejectsInvalidUTF8(t *testing.T) {
	e := NewEncoder()
	e.WriteVarBytes([]byte{0xff, 0xfe, 0xfd})
	d := NewDecoder(e.Bytes())
	_, err := d.ReadVarStr()
	require.Error(t, err)
}
