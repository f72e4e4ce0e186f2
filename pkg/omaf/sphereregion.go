package omaf

import "github.com/Eyevinn/mp4ff/bits"

// SphereRegionShapeType selects how a sphere region's boundary is
// constructed from its azimuth/elevation ranges.
type SphereRegionShapeType uint8

const (
	ShapeFourGreatCircles                 SphereRegionShapeType = 0
	ShapeTwoAzimuthAndTwoElevationCircles SphereRegionShapeType = 1
)

// SphereRegionRange is the optional azimuth/elevation range pair carried by
// a sphere region when its containing structure's has-range flag is set.
type SphereRegionRange struct {
	AzimuthRange   uint32
	ElevationRange uint32
}

// Size returns the fixed 8-byte wire size of a present SphereRegionRange.
func (SphereRegionRange) Size() uint64 { return 8 }

func (r SphereRegionRange) encode(sw bits.SliceWriter) {
	sw.WriteUint32(r.AzimuthRange)
	sw.WriteUint32(r.ElevationRange)
}

func (r *SphereRegionRange) decode(sr bits.SliceReader) {
	r.AzimuthRange = sr.ReadUint32()
	r.ElevationRange = sr.ReadUint32()
}

// SphereRegionContext carries the two presence variables that govern a
// dynamic sphere region sample's wire shape: whether the range words are
// present and whether the interpolate byte is present. It is derived from
// the owning sample entry and must be supplied by the caller; the codec
// itself never guesses presence from the bytes (§4.1).
type SphereRegionContext struct {
	HasRange       bool
	HasInterpolate bool
}

// SphereRegion is the rectangular region on the unit sphere described in the
// glossary: a centre (azimuth, elevation, tilt) in 16.16 fixed-point
// degrees, plus an optional azimuth/elevation range and an optional
// interpolate flag, both gated by ctx.
//
// This is the "dynamic" flavour (SphereRegionDynamic in the reference
// source): presence of the optional fields is a runtime property of ctx,
// not a compile-time one. The "static" flavours used by sample entries
// (HasRange/HasInterpolate fixed at compile time in the reference source)
// collapse to the same type here with ctx fixed at construction.
type SphereRegion struct {
	CentreAzimuth   int32
	CentreElevation int32
	CentreTilt      int32
	Range           SphereRegionRange // meaningful only if ctx.HasRange
	Interpolate     bool              // meaningful only if ctx.HasInterpolate
}

// Size returns the wire size of r under ctx.
func (r SphereRegion) Size(ctx SphereRegionContext) uint64 {
	size := uint64(12)
	if ctx.HasRange {
		size += r.Range.Size()
	}
	if ctx.HasInterpolate {
		size++
	}
	return size
}

// EncodeSW writes r under ctx. Fields whose presence ctx does not request
// are not written, regardless of their in-memory value.
func (r SphereRegion) EncodeSW(sw bits.SliceWriter, ctx SphereRegionContext) error {
	sw.WriteInt32(r.CentreAzimuth)
	sw.WriteInt32(r.CentreElevation)
	sw.WriteInt32(r.CentreTilt)
	if ctx.HasRange {
		r.Range.encode(sw)
	}
	if ctx.HasInterpolate {
		writeFlag(sw, r.Interpolate)
		writeReservedBits(sw, 7)
	}
	return sw.AccError()
}

// DecodeSW reads r under ctx. Fields ctx does not mark present keep their
// zero value.
func (r *SphereRegion) DecodeSW(sr bits.SliceReader, ctx SphereRegionContext) error {
	r.CentreAzimuth = sr.ReadInt32()
	r.CentreElevation = sr.ReadInt32()
	r.CentreTilt = sr.ReadInt32()
	if ctx.HasRange {
		r.Range.decode(sr)
	}
	if ctx.HasInterpolate {
		r.Interpolate = readFlag(sr)
		skipReservedBits(sr, 7)
	}
	return wrapTruncated(sr.AccError())
}

// Equal compares two sphere regions field by field; Range is only compared
// when both contexts mark it present, matching the tagged-union equality
// discipline of §3.3 (compare active payload only).
func (r SphereRegion) Equal(other SphereRegion, ctx SphereRegionContext) bool {
	if r.CentreAzimuth != other.CentreAzimuth ||
		r.CentreElevation != other.CentreElevation ||
		r.CentreTilt != other.CentreTilt {
		return false
	}
	if ctx.HasRange && r.Range != other.Range {
		return false
	}
	if ctx.HasInterpolate && r.Interpolate != other.Interpolate {
		return false
	}
	return true
}

// SphereRegionSample is the DynArray<SphereRegionDynamic> sample payload of
// a recommended-viewport or initial-viewing-orientation timed-metadata
// track: a plain list of sphere regions sharing one context.
type SphereRegionSample struct {
	Regions []SphereRegion
}

// Size returns the wire size of the whole sample.
func (s SphereRegionSample) Size(ctx SphereRegionContext) uint64 {
	size := uint64(0)
	for _, r := range s.Regions {
		size += r.Size(ctx)
	}
	return size
}

// EncodeSW writes every region in order.
func (s SphereRegionSample) EncodeSW(sw bits.SliceWriter, ctx SphereRegionContext) error {
	for _, r := range s.Regions {
		if err := r.EncodeSW(sw, ctx); err != nil {
			return err
		}
	}
	return sw.AccError()
}

// DecodeSW reads nrRegions sphere regions; the count is not self-describing
// in the wire format and must come from the sample's box/track context.
func (s *SphereRegionSample) DecodeSW(sr bits.SliceReader, ctx SphereRegionContext, nrRegions int) error {
	s.Regions = make([]SphereRegion, nrRegions)
	for i := range s.Regions {
		if err := s.Regions[i].DecodeSW(sr, ctx); err != nil {
			return err
		}
	}
	return wrapTruncated(sr.AccError())
}
