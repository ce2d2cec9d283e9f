package wire

// MinimalPushHeight returns the minimal-push scriptSig encoding of height,
// the BIP34-style height commitment every coinbase above height 20 must
// begin its scriptSig with (spec.md §4.6 item 4 / testable property 12).
//
// Encoding: a CompactSize-like push — height is serialized as the fewest
// little-endian bytes needed (with a high bit padding byte if the most
// significant byte would otherwise be interpreted as a sign bit), preceded
// by a single opcode byte giving that byte count.
func MinimalPushHeight(height int32) []byte {
	if height == 0 {
		return []byte{0x00}
	}

	negative := height < 0
	v := uint64(height)
	if negative {
		v = uint64(-height)
	}

	var b []byte
	for v > 0 {
		b = append(b, byte(v&0xff))
		v >>= 8
	}

	if b[len(b)-1]&0x80 != 0 {
		if negative {
			b = append(b, 0x80)
		} else {
			b = append(b, 0x00)
		}
	} else if negative {
		b[len(b)-1] |= 0x80
	}

	return append([]byte{byte(len(b))}, b...)
}

// HasMinimalPushHeight reports whether scriptSig begins with the minimal
// push encoding of height.
func HasMinimalPushHeight(scriptSig []byte, height int32) bool {
	want := MinimalPushHeight(height)
	if len(scriptSig) < len(want) {
		return false
	}
	for i, v := range want {
		if scriptSig[i] != v {
			return false
		}
	}
	return true
}
