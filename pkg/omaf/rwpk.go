package omaf

import "github.com/Eyevinn/mp4ff/bits"

// TransformType is the 8-value rectangular-region transform enum applied
// when mapping a projected region to its packed counterpart: identity,
// mirror, the three 90-degree-step rotations, and the mirror+rotation
// combinations.
type TransformType uint8

const (
	TransformNone                       TransformType = 0
	TransformMirrorHorizontal           TransformType = 1
	TransformRotateCCW180               TransformType = 2
	TransformRotateCCW180BeforeMirror   TransformType = 3
	TransformRotateCCW90BeforeMirror    TransformType = 4
	TransformRotateCCW90                TransformType = 5
	TransformRotateCCW270BeforeMirror   TransformType = 6
	TransformRotateCCW270               TransformType = 7
	transformReservedClamp              TransformType = 7 // clamp target for out-of-range tags
)

// clampTransformType implements the §4.1 failure model for enums: an
// out-of-range tag is clamped rather than failing, and the writer preserves
// that clamped tag on round-trip. All eight tags are defined transforms, so
// the clamp target is the highest one, 7 (TransformRotateCCW270).
func clampTransformType(v uint8) TransformType {
	if v > uint8(transformReservedClamp) {
		return transformReservedClamp
	}
	return TransformType(v)
}

// GuardBand describes the optional guard band around one packed region,
// present only when the region pair's HasGuardBands flag is set.
type GuardBand struct {
	LeftWidth    uint8
	RightWidth   uint8
	TopHeight    uint8
	BottomHeight uint8
	// NotUsedForPredFlag marks whether the guard band content may be used
	// as a prediction source when decoding neighbouring regions.
	NotUsedForPredFlag bool
	GuardType          uint8 // 3-bit field, values 0-7
}

// Size returns the fixed 5-byte wire size of a present GuardBand.
func (GuardBand) Size() uint64 { return 5 }

func (g GuardBand) encode(sw bits.SliceWriter) {
	sw.WriteUint8(g.LeftWidth)
	sw.WriteUint8(g.RightWidth)
	sw.WriteUint8(g.TopHeight)
	sw.WriteUint8(g.BottomHeight)
	writeFlag(sw, g.NotUsedForPredFlag)
	sw.WriteBits(uint(g.GuardType&0x07), 3)
	writeReservedBits(sw, 4)
}

func (g *GuardBand) decode(sr bits.SliceReader) {
	g.LeftWidth = sr.ReadUint8()
	g.RightWidth = sr.ReadUint8()
	g.TopHeight = sr.ReadUint8()
	g.BottomHeight = sr.ReadUint8()
	g.NotUsedForPredFlag = readFlag(sr)
	g.GuardType = uint8(sr.ReadBits(3))
	skipReservedBits(sr, 4)
}

// RegionPair is one projected-to-packed region mapping: the source
// rectangle on the projected picture, its destination on the packed
// picture, the transform applied between them, and optional guard bands
// around the packed rectangle.
type RegionPair struct {
	ProjRegion   ProjectedPictureRegion
	PackedRegion PackedPictureRegion
	Transform    TransformType
	GuardLeft    *GuardBand
	GuardRight   *GuardBand
	GuardTop     *GuardBand
	GuardBottom  *GuardBand
}

// HasGuardBands reports whether any guard band is present on this pair.
func (r RegionPair) HasGuardBands() bool {
	return r.GuardLeft != nil || r.GuardRight != nil || r.GuardTop != nil || r.GuardBottom != nil
}

// Size returns the wire size of the region pair.
func (r RegionPair) Size() uint64 {
	size := r.ProjRegion.Size() + r.PackedRegion.Size() + 1 // +1 for transform + guard-band flag byte
	if r.HasGuardBands() {
		size += 4 * GuardBand{}.Size()
	}
	return size
}

// EncodeSW writes the region pair: projected rectangle, packed rectangle,
// one byte carrying the 3-bit transform tag and the guard-band presence
// flag, then the four guard bands in left/right/top/bottom order if present.
func (r RegionPair) EncodeSW(sw bits.SliceWriter) error {
	if err := r.ProjRegion.EncodeSW(sw); err != nil {
		return err
	}
	if err := r.PackedRegion.EncodeSW(sw); err != nil {
		return err
	}
	sw.WriteBits(uint(r.Transform&0x07), 3)
	writeFlag(sw, r.HasGuardBands())
	writeReservedBits(sw, 4)
	if r.HasGuardBands() {
		zero := GuardBand{}
		for _, g := range []*GuardBand{r.GuardLeft, r.GuardRight, r.GuardTop, r.GuardBottom} {
			if g != nil {
				g.encode(sw)
			} else {
				zero.encode(sw)
			}
		}
	}
	return sw.AccError()
}

// DecodeSW reads a region pair.
func (r *RegionPair) DecodeSW(sr bits.SliceReader) error {
	r.ProjRegion = ProjectedPictureRegion{}
	if err := r.ProjRegion.DecodeSW(sr); err != nil {
		return err
	}
	if err := r.PackedRegion.DecodeSW(sr); err != nil {
		return err
	}
	r.Transform = clampTransformType(uint8(sr.ReadBits(3)))
	hasGuards := readFlag(sr)
	skipReservedBits(sr, 4)
	if hasGuards {
		var left, right, top, bottom GuardBand
		left.decode(sr)
		right.decode(sr)
		top.decode(sr)
		bottom.decode(sr)
		r.GuardLeft, r.GuardRight, r.GuardTop, r.GuardBottom = &left, &right, &top, &bottom
	} else {
		r.GuardLeft, r.GuardRight, r.GuardTop, r.GuardBottom = nil, nil, nil, nil
	}
	return wrapTruncated(sr.AccError())
}

// RegionWisePacking maps a projected picture onto a packed picture via an
// ordered list of RegionPair mappings, per the glossary's RWPK definition.
type RegionWisePacking struct {
	ProjPictureWidth  uint32
	ProjPictureHeight uint32
	PackedPictureWidth  uint32
	PackedPictureHeight uint32
	Regions             []RegionPair
}

// Size returns the wire size of the whole structure.
func (r RegionWisePacking) Size() uint64 {
	size := uint64(16 + 2) // four uint32 dimensions + a 2-byte region count
	for _, reg := range r.Regions {
		size += reg.Size()
	}
	return size
}

// EncodeSW writes the picture dimensions, the region count, then each
// region pair in order.
func (r RegionWisePacking) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteUint32(r.ProjPictureWidth)
	sw.WriteUint32(r.ProjPictureHeight)
	sw.WriteUint32(r.PackedPictureWidth)
	sw.WriteUint32(r.PackedPictureHeight)
	sw.WriteUint16(uint16(len(r.Regions)))
	for _, reg := range r.Regions {
		if err := reg.EncodeSW(sw); err != nil {
			return err
		}
	}
	return sw.AccError()
}

// DecodeSW reads the structure, including its self-describing region count.
func (r *RegionWisePacking) DecodeSW(sr bits.SliceReader) error {
	r.ProjPictureWidth = sr.ReadUint32()
	r.ProjPictureHeight = sr.ReadUint32()
	r.PackedPictureWidth = sr.ReadUint32()
	r.PackedPictureHeight = sr.ReadUint32()
	count := int(sr.ReadUint16())
	r.Regions = make([]RegionPair, count)
	for i := range r.Regions {
		if err := r.Regions[i].DecodeSW(sr); err != nil {
			return err
		}
	}
	return wrapTruncated(sr.AccError())
}
