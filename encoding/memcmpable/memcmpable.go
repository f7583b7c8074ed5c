// Package memcmpable provides a self-delimiting, order-preserving byte
// encoding: a variable-length byte string is split into fixed-size groups,
// each followed by a length marker, so an encoded value's boundary can be
// found without a separate length prefix and two encoded values compare
// equal under plain byte comparison iff their sources do. This is what
// lets heap records and catalog schema rows pack a variable number of
// variable-length columns back-to-back and recover exactly where one
// column's bytes end and the next begins on decode. A zero-length value
// still takes one group (all padding, marker 0), so empty columns survive
// a round trip.
package memcmpable

// groupSize is the number of payload bytes (not counting the trailing
// marker byte) per encoded group.
const groupSize = EscapeLength - 1

// EscapeLength is the total length, in bytes, of one encoded group: up to
// groupSize payload bytes followed by one marker byte.
const EscapeLength = 9

// EncodedSize calculates the size needed to encode a byte sequence of the given length.
func EncodedSize(len int) int {
	if len == 0 {
		return EscapeLength
	}
	return (len + groupSize - 1) / groupSize * EscapeLength
}

// Encode appends src to dst in groups of groupSize bytes, each followed by
// a marker byte: EscapeLength if more groups follow, or the number of
// payload bytes in this (final, zero-padded) group otherwise.
func Encode(src []byte, dst *[]byte) {
	if len(src) == 0 {
		*dst = append(*dst, make([]byte, EscapeLength)...)
		return
	}
	for len(src) > 0 {
		copyLen := min(groupSize, len(src))
		*dst = append(*dst, src[0:copyLen]...)
		src = src[copyLen:]
		if len(src) == 0 {
			if padSize := groupSize - copyLen; padSize > 0 {
				*dst = append(*dst, make([]byte, padSize)...)
			}
			*dst = append(*dst, byte(copyLen))
			break
		}
		*dst = append(*dst, EscapeLength)
	}
}

// Decode consumes one encoded value's worth of groups from the front of
// src, appending its original bytes to dst. src is advanced past the
// consumed groups, leaving any following encoded values intact for a
// subsequent Decode call.
func Decode(src *[]byte, dst *[]byte) {
	for len(*src) > 0 {
		marker := (*src)[EscapeLength-1]
		payloadLen := min(groupSize, int(marker))
		*dst = append(*dst, (*src)[:payloadLen]...)
		*src = (*src)[EscapeLength:]
		if marker < EscapeLength {
			break
		}
	}
}
