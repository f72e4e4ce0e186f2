package omaf

import (
	"errors"
	"fmt"

	"github.com/Eyevinn/mp4ff/bits"
)

// wrapTruncated normalizes the accumulated read error mp4ff's bits.SliceReader
// reports once a read runs past the end of the slice into this package's
// ErrStructureTruncated, per the failure model of §4.1.
func wrapTruncated(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStructureTruncated, err)
}

// IsTruncated reports whether err is (or wraps) ErrStructureTruncated.
func IsTruncated(err error) bool {
	return errors.Is(err, ErrStructureTruncated)
}

// Structure is implemented by every bit-exact type in the OMAF catalogue
// that needs no external context to parse (§3.3). Context-bearing types
// (SphereRegionDynamic, DynamicViewpointSample, the overlay control payloads)
// take their context as an explicit parameter on Encode/Decode instead of
// satisfying this interface, since Go has no template parameter for it.
type Structure interface {
	Size() uint64
	EncodeSW(sw bits.SliceWriter) error
	DecodeSW(sr bits.SliceReader) error
}

// writeString writes a NUL-terminated UTF-8 string, per the "Variable-length
// strings are NUL-terminated UTF-8" encoding rule of §4.1.
func writeString(sw bits.SliceWriter, s string) {
	sw.WriteString(s, true)
}

// stringSize returns the wire size of a NUL-terminated string.
func stringSize(s string) uint64 {
	return uint64(len(s)) + 1
}

// readFlag reads a single bit as a bool, MSB-first within the current byte.
func readFlag(sr bits.SliceReader) bool {
	return sr.ReadBits(1) == 1
}

// writeFlag writes a single bit.
func writeFlag(sw bits.SliceWriter, v bool) {
	if v {
		sw.WriteBits(1, 1)
	} else {
		sw.WriteBits(0, 1)
	}
}

// writeReservedBits writes n zero bits, the "trailing reserved bits within a
// flag byte are written as zero" rule of §4.1.
func writeReservedBits(sw bits.SliceWriter, n int) {
	if n > 0 {
		sw.WriteBits(0, n)
	}
}

// skipReservedBits discards n bits on read; reserved bits are ignored per §4.1.
func skipReservedBits(sr bits.SliceReader, n int) {
	if n > 0 {
		_ = sr.ReadBits(n)
	}
}
