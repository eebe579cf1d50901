// Package siphash implements the SipHash pseudo-random function family,
// used by bcachefs to hash directory entry names for lookup. The
// constants, round function and finalization below are a direct port of
// the reference libbenzina SipHash implementation this reader's dirent
// hashing is modeled on.
package siphash

func rol64(x uint64, c uint) uint64 {
	const bw = 64
	c &= bw - 1
	if c == 0 {
		return x
	}
	return x<<c | x>>(bw-c)
}

type state struct {
	v [4]uint64
}

func (s *state) init(k0, k1 uint64) {
	s.v[0] = k0 ^ 0x736f6d6570736575 // "somepseu"
	s.v[1] = k1 ^ 0x646f72616e646f6d // "dorandom"
	s.v[2] = k0 ^ 0x6c7967656e657261 // "lygenera"
	s.v[3] = k1 ^ 0x7465646279746573 // "tedbytes"
}

func (s *state) rounds(m uint64, r int) {
	v0, v1, v2, v3 := s.v[0], s.v[1], s.v[2], s.v[3]

	v3 ^= m

	for ; r > 0; r-- {
		v0 += v1
		v1 = rol64(v1, 13)
		v1 ^= v0
		v0 = rol64(v0, 32)

		v2 += v3
		v3 = rol64(v3, 16)
		v3 ^= v2

		v0 += v3
		v3 = rol64(v3, 21)
		v3 ^= v0

		v2 += v1
		v1 = rol64(v1, 17)
		v1 ^= v2
		v2 = rol64(v2, 32)
	}

	v0 ^= m

	s.v[0], s.v[1], s.v[2], s.v[3] = v0, v1, v2, v3
}

func padword(buf []byte, length uint64) uint64 {
	var tail [8]byte
	start := length &^ 7
	copy(tail[:length&7], buf[start:length])
	return leU64(tail[:]) | length<<56
}

func (s *state) finalize(d int) uint64 {
	s.v[2] ^= 0xFF
	s.rounds(0, d)
	return s.v[0] ^ s.v[1] ^ s.v[2] ^ s.v[3]
}

func leU64(b []byte) uint64 {
	var x uint64
	for i := 0; i < 8 && i < len(b); i++ {
		x |= uint64(b[i]) << (8 * uint(i))
	}
	return x
}

// Digestx computes the generic SipHash-c-d PRF over buf using keys k0, k1.
func Digestx(buf []byte, k0, k1 uint64, c, d int) uint64 {
	var s state
	s.init(k0, k1)

	length := uint64(len(buf))
	var l uint64
	for ; l+7 < length; l += 8 {
		s.rounds(leU64(buf[l:l+8]), c)
	}
	s.rounds(padword(buf, length), c)
	return s.finalize(d)
}

// Digest computes SipHash-2-4, the variant bcachefs uses for name hashing.
func Digest(buf []byte, k0, k1 uint64) uint64 {
	return Digestx(buf, k0, k1, 2, 4)
}
