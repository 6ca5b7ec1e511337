package adminsearch

import (
	"math/bits"
	"net/netip"
)

// uint128 is just enough unsigned 128-bit arithmetic for CIDR cover
// computation; both address families go through it (IPv4 in mapped form).
type uint128 struct {
	hi, lo uint64
}

func addrToUint128(addr netip.Addr) uint128 {
	b := addr.As16()
	var v uint128
	for i := 0; i < 8; i++ {
		v.hi = v.hi<<8 | uint64(b[i])
		v.lo = v.lo<<8 | uint64(b[i+8])
	}
	return v
}

func uint128ToAddr(v uint128, v4 bool) netip.Addr {
	var b [16]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(v.hi >> (8 * (7 - i)))
		b[i+8] = byte(v.lo >> (8 * (7 - i)))
	}
	if v4 {
		return netip.AddrFrom4([4]byte{b[12], b[13], b[14], b[15]})
	}
	return netip.AddrFrom16(b)
}

func (v uint128) greaterThan(other uint128) bool {
	if v.hi != other.hi {
		return v.hi > other.hi
	}
	return v.lo > other.lo
}

func (v uint128) trailingZeros() int {
	if v.lo != 0 {
		return bits.TrailingZeros64(v.lo)
	}
	if v.hi != 0 {
		return 64 + bits.TrailingZeros64(v.hi)
	}
	return 128
}

// blockEnd returns the last value of the 2^nbits block starting at v.
// v must be aligned to the block size.
func (v uint128) blockEnd(nbits int) uint128 {
	if nbits >= 128 {
		return uint128{hi: ^uint64(0), lo: ^uint64(0)}
	}
	if nbits >= 64 {
		return uint128{hi: v.hi | (1<<(nbits-64) - 1), lo: ^uint64(0)}
	}
	return uint128{hi: v.hi, lo: v.lo | (1<<nbits - 1)}
}

func (v uint128) addOne() (uint128, bool) {
	lo, carry := bits.Add64(v.lo, 1, 0)
	hi, overflow := bits.Add64(v.hi, 0, carry)
	return uint128{hi: hi, lo: lo}, overflow != 0
}
