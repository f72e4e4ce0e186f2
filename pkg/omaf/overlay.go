package omaf

import "github.com/Eyevinn/mp4ff/bits"

// fullSphereCtx is the context under which every overlay control's embedded
// sphere region is encoded: OMAF fixes has-range and has-interpolate both
// true for these inline uses (SphereRegionStatic<true,true> in the reference
// source), so callers never need to supply it themselves.
var fullSphereCtx = SphereRegionContext{HasRange: true, HasInterpolate: true}

// MediaAlignmentType selects how source media is fitted into a viewport-
// relative overlay's rectangle (stretch, scale-and-center, scale-and-crop,
// in each horizontal/vertical alignment combination).
type MediaAlignmentType uint8

const (
	AlignStretchToFill MediaAlignmentType = 0
	AlignHCVCScale      MediaAlignmentType = 1
	AlignHCVTScale      MediaAlignmentType = 2
	AlignHCVBScale      MediaAlignmentType = 3
	AlignHLVCScale      MediaAlignmentType = 4
	AlignHRVCScale      MediaAlignmentType = 5
	AlignHLVTScale      MediaAlignmentType = 6
	AlignHRVTScale      MediaAlignmentType = 7
	AlignHLVBScale      MediaAlignmentType = 8
	AlignHRVBScale      MediaAlignmentType = 9
	AlignHCVCCrop       MediaAlignmentType = 10
	AlignHCVTCrop       MediaAlignmentType = 11
	AlignHCVBCrop       MediaAlignmentType = 12
	AlignHLVCCrop       MediaAlignmentType = 13
	AlignHRVCCrop       MediaAlignmentType = 14
	AlignHLVTCrop       MediaAlignmentType = 15
	AlignHRVTCrop       MediaAlignmentType = 16
	AlignHLVBCrop       MediaAlignmentType = 17
	AlignHRVBCrop       MediaAlignmentType = 18
)

// RegionIndicationType tags which payload OmniRegion carries.
type RegionIndicationType uint8

const (
	RegionIndicationProjectedPicture RegionIndicationType = 0
	RegionIndicationSphere           RegionIndicationType = 1
)

// OmniRegion is the tagged union of ProjectedPictureRegion and a full sphere
// region used by SphereRelativeOmniOverlay. Only the payload matching Kind
// is meaningful; Equal enforces the tagged-union equality discipline of
// §3.3 by comparing the tag first.
type OmniRegion struct {
	Kind      RegionIndicationType
	Projected ProjectedPictureRegion
	Sphere    SphereRegion
}

func (r OmniRegion) size() uint64 {
	if r.Kind == RegionIndicationProjectedPicture {
		return r.Projected.Size()
	}
	return r.Sphere.Size(fullSphereCtx)
}

func (r OmniRegion) encode(sw bits.SliceWriter) error {
	if r.Kind == RegionIndicationProjectedPicture {
		return r.Projected.EncodeSW(sw)
	}
	return r.Sphere.EncodeSW(sw, fullSphereCtx)
}

func (r *OmniRegion) decode(sr bits.SliceReader, kind RegionIndicationType) error {
	r.Kind = kind
	if kind == RegionIndicationProjectedPicture {
		return r.Projected.DecodeSW(sr)
	}
	return r.Sphere.DecodeSW(sr, fullSphereCtx)
}

// Equal compares tag first, then the active payload only.
func (r OmniRegion) Equal(other OmniRegion) bool {
	if r.Kind != other.Kind {
		return false
	}
	if r.Kind == RegionIndicationProjectedPicture {
		return r.Projected == other.Projected
	}
	return r.Sphere.Equal(other.Sphere, fullSphereCtx)
}

// ctrlBase is embedded by every concrete overlay control payload and
// carries the essential flag OverlayControlFlagBase defines: whether the
// control is essential to correct rendering. Whether a control is present
// at all is not stored here; SingleOverlay holds it as a non-nil pointer.
type ctrlBase struct {
	EssentialFlag bool
}

// ViewportRelativeOverlay anchors the overlay to a fixed rectangle of the
// viewport rather than to a position on the sphere.
type ViewportRelativeOverlay struct {
	ctrlBase
	RectLeftPercent, RectTopPercent     uint16
	RectWidthPercent, RectHeightPercent uint16
	MediaAlignment                      MediaAlignmentType
	RelativeDisparityFlag               bool
	Disparity                           int16 // pixels, or percent*100 normalized to -100..100 when relative
}

func (ViewportRelativeOverlay) size() uint64 { return 8 + 1 + 1 + 2 }

func (c ViewportRelativeOverlay) encode(sw bits.SliceWriter) error {
	sw.WriteUint16(c.RectLeftPercent)
	sw.WriteUint16(c.RectTopPercent)
	sw.WriteUint16(c.RectWidthPercent)
	sw.WriteUint16(c.RectHeightPercent)
	sw.WriteUint8(uint8(c.MediaAlignment))
	writeFlag(sw, c.RelativeDisparityFlag)
	writeReservedBits(sw, 7)
	sw.WriteInt16(c.Disparity)
	return sw.AccError()
}

func (c *ViewportRelativeOverlay) decode(sr bits.SliceReader) error {
	c.RectLeftPercent = sr.ReadUint16()
	c.RectTopPercent = sr.ReadUint16()
	c.RectWidthPercent = sr.ReadUint16()
	c.RectHeightPercent = sr.ReadUint16()
	c.MediaAlignment = MediaAlignmentType(sr.ReadUint8())
	c.RelativeDisparityFlag = readFlag(sr)
	skipReservedBits(sr, 7)
	c.Disparity = sr.ReadInt16()
	return wrapTruncated(sr.AccError())
}

// SphereRelativeOmniOverlay anchors the overlay to a region of the sphere
// expressed either in projected-picture or sphere coordinates.
type SphereRelativeOmniOverlay struct {
	ctrlBase
	Region              OmniRegion
	TimelineChangeFlag  bool
	RegionDepthMinus1   uint16
}

func (c SphereRelativeOmniOverlay) size() uint64 { return 1 + c.Region.size() + 1 + 2 }

func (c SphereRelativeOmniOverlay) encode(sw bits.SliceWriter) error {
	sw.WriteUint8(uint8(c.Region.Kind))
	if err := c.Region.encode(sw); err != nil {
		return err
	}
	writeFlag(sw, c.TimelineChangeFlag)
	writeReservedBits(sw, 7)
	sw.WriteUint16(c.RegionDepthMinus1)
	return sw.AccError()
}

func (c *SphereRelativeOmniOverlay) decode(sr bits.SliceReader) error {
	kind := RegionIndicationType(sr.ReadUint8())
	if err := c.Region.decode(sr, kind); err != nil {
		return err
	}
	c.TimelineChangeFlag = readFlag(sr)
	skipReservedBits(sr, 7)
	c.RegionDepthMinus1 = sr.ReadUint16()
	return wrapTruncated(sr.AccError())
}

// SphereRelative2DOverlay anchors a rectangular overlay to a full sphere
// region plus an independent 3D rotation of the overlay plane itself.
type SphereRelative2DOverlay struct {
	ctrlBase
	SphereRegion       SphereRegion
	TimelineChangeFlag bool
	OverlayRotation    Rotation
	RegionDepthMinus1  uint16
}

func (c SphereRelative2DOverlay) size() uint64 {
	return c.SphereRegion.Size(fullSphereCtx) + 1 + c.OverlayRotation.Size() + 2
}

func (c SphereRelative2DOverlay) encode(sw bits.SliceWriter) error {
	if err := c.SphereRegion.EncodeSW(sw, fullSphereCtx); err != nil {
		return err
	}
	writeFlag(sw, c.TimelineChangeFlag)
	writeReservedBits(sw, 7)
	if err := c.OverlayRotation.EncodeSW(sw); err != nil {
		return err
	}
	sw.WriteUint16(c.RegionDepthMinus1)
	return sw.AccError()
}

func (c *SphereRelative2DOverlay) decode(sr bits.SliceReader) error {
	if err := c.SphereRegion.DecodeSW(sr, fullSphereCtx); err != nil {
		return err
	}
	c.TimelineChangeFlag = readFlag(sr)
	skipReservedBits(sr, 7)
	if err := c.OverlayRotation.DecodeSW(sr); err != nil {
		return err
	}
	c.RegionDepthMinus1 = sr.ReadUint16()
	return wrapTruncated(sr.AccError())
}

// OverlaySourceRegion identifies the packed-picture rectangle the overlay's
// pixels are sourced from, and the transform applied to it.
type OverlaySourceRegion struct {
	ctrlBase
	Region    PackedPictureRegion
	Transform TransformType
}

func (OverlaySourceRegion) size() uint64 { return PackedPictureRegion{}.Size() + 1 }

func (c OverlaySourceRegion) encode(sw bits.SliceWriter) error {
	if err := c.Region.EncodeSW(sw); err != nil {
		return err
	}
	sw.WriteUint8(uint8(c.Transform))
	return sw.AccError()
}

func (c *OverlaySourceRegion) decode(sr bits.SliceReader) error {
	if err := c.Region.DecodeSW(sr); err != nil {
		return err
	}
	c.Transform = clampTransformType(sr.ReadUint8())
	return wrapTruncated(sr.AccError())
}

// RecommendedViewportOverlay carries no payload beyond ctrlBase: its mere
// presence signals that the overlay should be treated as a recommended
// viewport rather than rendered media.
type RecommendedViewportOverlay struct {
	ctrlBase
}

func (RecommendedViewportOverlay) size() uint64              { return 0 }
func (RecommendedViewportOverlay) encode(bits.SliceWriter) error { return nil }
func (*RecommendedViewportOverlay) decode(bits.SliceReader) error { return nil }

// OverlayLayeringOrder gives the overlay's draw order relative to siblings;
// lower values are drawn first (further from the viewer).
type OverlayLayeringOrder struct {
	ctrlBase
	LayeringOrder int16
}

func (OverlayLayeringOrder) size() uint64 { return 2 }
func (c OverlayLayeringOrder) encode(sw bits.SliceWriter) error {
	sw.WriteInt16(c.LayeringOrder)
	return sw.AccError()
}
func (c *OverlayLayeringOrder) decode(sr bits.SliceReader) error {
	c.LayeringOrder = sr.ReadInt16()
	return wrapTruncated(sr.AccError())
}

// OverlayOpacity is the overlay's alpha blend factor, 0 (transparent) to
// 255 (opaque over source-over compositing).
type OverlayOpacity struct {
	ctrlBase
	Opacity uint8
}

func (OverlayOpacity) size() uint64 { return 1 }
func (c OverlayOpacity) encode(sw bits.SliceWriter) error {
	sw.WriteUint8(c.Opacity)
	return sw.AccError()
}
func (c *OverlayOpacity) decode(sr bits.SliceReader) error {
	c.Opacity = sr.ReadUint8()
	return wrapTruncated(sr.AccError())
}

// OverlayInteraction declares which user interactions the renderer permits
// on this overlay.
type OverlayInteraction struct {
	ctrlBase
	ChangePositionFlag bool
	ChangeDepthFlag    bool
	SwitchOnOffFlag    bool
	ChangeOpacityFlag  bool
	ResizeFlag         bool
	RotationFlag       bool
	SourceSwitchingFlag bool
	CropFlag           bool
}

func (OverlayInteraction) size() uint64 { return 1 }

func (c OverlayInteraction) encode(sw bits.SliceWriter) error {
	writeFlag(sw, c.ChangePositionFlag)
	writeFlag(sw, c.ChangeDepthFlag)
	writeFlag(sw, c.SwitchOnOffFlag)
	writeFlag(sw, c.ChangeOpacityFlag)
	writeFlag(sw, c.ResizeFlag)
	writeFlag(sw, c.RotationFlag)
	writeFlag(sw, c.SourceSwitchingFlag)
	writeFlag(sw, c.CropFlag)
	return sw.AccError()
}

func (c *OverlayInteraction) decode(sr bits.SliceReader) error {
	c.ChangePositionFlag = readFlag(sr)
	c.ChangeDepthFlag = readFlag(sr)
	c.SwitchOnOffFlag = readFlag(sr)
	c.ChangeOpacityFlag = readFlag(sr)
	c.ResizeFlag = readFlag(sr)
	c.RotationFlag = readFlag(sr)
	c.SourceSwitchingFlag = readFlag(sr)
	c.CropFlag = readFlag(sr)
	return wrapTruncated(sr.AccError())
}

// OverlayLabel is a free-form human-readable overlay name.
type OverlayLabel struct {
	ctrlBase
	Label string
}

func (c OverlayLabel) size() uint64 { return stringSize(c.Label) }
func (c OverlayLabel) encode(sw bits.SliceWriter) error {
	writeString(sw, c.Label)
	return sw.AccError()
}
func (c *OverlayLabel) decode(sr bits.SliceReader) error {
	c.Label = sr.ReadZeroTerminatedString(256)
	return wrapTruncated(sr.AccError())
}

// OverlayPriority orders overlapping overlays for occlusion resolution;
// lower value wins.
type OverlayPriority struct {
	ctrlBase
	Priority uint8
}

func (OverlayPriority) size() uint64 { return 1 }
func (c OverlayPriority) encode(sw bits.SliceWriter) error {
	sw.WriteUint8(c.Priority)
	return sw.AccError()
}
func (c *OverlayPriority) decode(sr bits.SliceReader) error {
	c.Priority = sr.ReadUint8()
	return wrapTruncated(sr.AccError())
}

// AssociatedSphereRegion binds the overlay to a sphere region used for
// occlusion/visibility decisions independent of where the overlay is drawn.
type AssociatedSphereRegion struct {
	ctrlBase
	ShapeType    SphereRegionShapeType
	SphereRegion SphereRegion
}

func (c AssociatedSphereRegion) size() uint64 { return 1 + c.SphereRegion.Size(fullSphereCtx) }
func (c AssociatedSphereRegion) encode(sw bits.SliceWriter) error {
	sw.WriteUint8(uint8(c.ShapeType))
	return c.SphereRegion.EncodeSW(sw, fullSphereCtx)
}
func (c *AssociatedSphereRegion) decode(sr bits.SliceReader) error {
	c.ShapeType = SphereRegionShapeType(sr.ReadUint8())
	return c.SphereRegion.DecodeSW(sr, fullSphereCtx)
}

// AlphaBlendingModeType selects the compositing equation for
// OverlayAlphaCompositing; only source-over is currently defined.
type AlphaBlendingModeType uint8

const AlphaBlendingSourceOver AlphaBlendingModeType = 0

// OverlayAlphaCompositing selects the alpha blending equation used when
// drawing the overlay over the background.
type OverlayAlphaCompositing struct {
	ctrlBase
	Mode AlphaBlendingModeType
}

func (OverlayAlphaCompositing) size() uint64 { return 1 }
func (c OverlayAlphaCompositing) encode(sw bits.SliceWriter) error {
	sw.WriteUint8(uint8(c.Mode))
	return sw.AccError()
}
func (c *OverlayAlphaCompositing) decode(sr bits.SliceReader) error {
	c.Mode = AlphaBlendingModeType(sr.ReadUint8())
	return wrapTruncated(sr.AccError())
}

// ReservedOverlayControl is a forward-compatibility placeholder for the two
// reserved control slots the catalogue allocates but does not yet define.
// Its payload is opaque raw bytes sized by the size-or-zero header.
type ReservedOverlayControl struct {
	ctrlBase
	Raw []byte
}

func (c ReservedOverlayControl) size() uint64 { return uint64(len(c.Raw)) }
func (c ReservedOverlayControl) encode(sw bits.SliceWriter) error {
	for _, b := range c.Raw {
		sw.WriteUint8(b)
	}
	return sw.AccError()
}
func (c *ReservedOverlayControl) decodeN(sr bits.SliceReader, n int) error {
	c.Raw = make([]byte, n)
	for i := range c.Raw {
		c.Raw[i] = sr.ReadUint8()
	}
	return wrapTruncated(sr.AccError())
}

// SingleOverlay is the per-overlay record of §3.3: an overlay id plus the
// fourteen optional control payloads, with a bitmask (carried by the
// OverlayStruct flag bytes) naming which are present on the wire.
type SingleOverlay struct {
	OverlayID uint16

	ViewportRelative       *ViewportRelativeOverlay
	SphereRelativeOmni     *SphereRelativeOmniOverlay
	SphereRelative2D       *SphereRelative2DOverlay
	SourceRegion           *OverlaySourceRegion
	RecommendedViewport    *RecommendedViewportOverlay
	LayeringOrder          *OverlayLayeringOrder
	Opacity                *OverlayOpacity
	Interaction            *OverlayInteraction
	Label                  *OverlayLabel
	Priority               *OverlayPriority
	AssociatedSphereRegion *AssociatedSphereRegion
	AlphaCompositing       *OverlayAlphaCompositing
	Reserved1              *ReservedOverlayControl
	Reserved2              *ReservedOverlayControl
}

// overlayControlCount is the fixed catalogue size: twelve named controls
// plus two reserved slots, matching §3.3's "fourteen concrete control
// payloads".
const overlayControlCount = 14

// controlSlot is one entry of the flag-byte bitmask in declared order; each
// slot knows how to probe/size/encode/decode its payload without the caller
// needing a type switch.
type controlSlot struct {
	present func(*SingleOverlay) bool
	size    func(*SingleOverlay) uint64
	encode  func(*SingleOverlay, bits.SliceWriter) error
	decode  func(*SingleOverlay, bits.SliceReader, int) error
}

var overlayControlSlots = [overlayControlCount]controlSlot{
	{
		present: func(s *SingleOverlay) bool { return s.ViewportRelative != nil },
		size:    func(s *SingleOverlay) uint64 { return s.ViewportRelative.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.ViewportRelative.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.ViewportRelative = &ViewportRelativeOverlay{}
			return s.ViewportRelative.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.SphereRelativeOmni != nil },
		size:    func(s *SingleOverlay) uint64 { return s.SphereRelativeOmni.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.SphereRelativeOmni.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.SphereRelativeOmni = &SphereRelativeOmniOverlay{}
			return s.SphereRelativeOmni.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.SphereRelative2D != nil },
		size:    func(s *SingleOverlay) uint64 { return s.SphereRelative2D.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.SphereRelative2D.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.SphereRelative2D = &SphereRelative2DOverlay{}
			return s.SphereRelative2D.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.SourceRegion != nil },
		size:    func(s *SingleOverlay) uint64 { return s.SourceRegion.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.SourceRegion.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.SourceRegion = &OverlaySourceRegion{}
			return s.SourceRegion.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.RecommendedViewport != nil },
		size:    func(s *SingleOverlay) uint64 { return s.RecommendedViewport.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.RecommendedViewport.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.RecommendedViewport = &RecommendedViewportOverlay{}
			return s.RecommendedViewport.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.LayeringOrder != nil },
		size:    func(s *SingleOverlay) uint64 { return s.LayeringOrder.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.LayeringOrder.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.LayeringOrder = &OverlayLayeringOrder{}
			return s.LayeringOrder.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.Opacity != nil },
		size:    func(s *SingleOverlay) uint64 { return s.Opacity.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.Opacity.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.Opacity = &OverlayOpacity{}
			return s.Opacity.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.Interaction != nil },
		size:    func(s *SingleOverlay) uint64 { return s.Interaction.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.Interaction.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.Interaction = &OverlayInteraction{}
			return s.Interaction.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.Label != nil },
		size:    func(s *SingleOverlay) uint64 { return s.Label.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.Label.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.Label = &OverlayLabel{}
			return s.Label.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.Priority != nil },
		size:    func(s *SingleOverlay) uint64 { return s.Priority.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.Priority.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.Priority = &OverlayPriority{}
			return s.Priority.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.AssociatedSphereRegion != nil },
		size:    func(s *SingleOverlay) uint64 { return s.AssociatedSphereRegion.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.AssociatedSphereRegion.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.AssociatedSphereRegion = &AssociatedSphereRegion{}
			return s.AssociatedSphereRegion.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.AlphaCompositing != nil },
		size:    func(s *SingleOverlay) uint64 { return s.AlphaCompositing.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.AlphaCompositing.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, _ int) error {
			s.AlphaCompositing = &OverlayAlphaCompositing{}
			return s.AlphaCompositing.decode(sr)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.Reserved1 != nil },
		size:    func(s *SingleOverlay) uint64 { return s.Reserved1.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.Reserved1.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, n int) error {
			s.Reserved1 = &ReservedOverlayControl{}
			return s.Reserved1.decodeN(sr, n)
		},
	},
	{
		present: func(s *SingleOverlay) bool { return s.Reserved2 != nil },
		size:    func(s *SingleOverlay) uint64 { return s.Reserved2.size() },
		encode:  func(s *SingleOverlay, sw bits.SliceWriter) error { return s.Reserved2.encode(sw) },
		decode: func(s *SingleOverlay, sr bits.SliceReader, n int) error {
			s.Reserved2 = &ReservedOverlayControl{}
			return s.Reserved2.decodeN(sr, n)
		},
	},
}

// essentialFlag returns the essential bit for each present slot in
// declared order, needed by encode since ctrlBase lives inside each
// pointer's struct rather than in a side array.
func (s *SingleOverlay) essentialFlag(i int) bool {
	switch i {
	case 0:
		return s.ViewportRelative != nil && s.ViewportRelative.EssentialFlag
	case 1:
		return s.SphereRelativeOmni != nil && s.SphereRelativeOmni.EssentialFlag
	case 2:
		return s.SphereRelative2D != nil && s.SphereRelative2D.EssentialFlag
	case 3:
		return s.SourceRegion != nil && s.SourceRegion.EssentialFlag
	case 4:
		return s.RecommendedViewport != nil && s.RecommendedViewport.EssentialFlag
	case 5:
		return s.LayeringOrder != nil && s.LayeringOrder.EssentialFlag
	case 6:
		return s.Opacity != nil && s.Opacity.EssentialFlag
	case 7:
		return s.Interaction != nil && s.Interaction.EssentialFlag
	case 8:
		return s.Label != nil && s.Label.EssentialFlag
	case 9:
		return s.Priority != nil && s.Priority.EssentialFlag
	case 10:
		return s.AssociatedSphereRegion != nil && s.AssociatedSphereRegion.EssentialFlag
	case 11:
		return s.AlphaCompositing != nil && s.AlphaCompositing.EssentialFlag
	case 12:
		return s.Reserved1 != nil && s.Reserved1.EssentialFlag
	default:
		return s.Reserved2 != nil && s.Reserved2.EssentialFlag
	}
}

func (s *SingleOverlay) setEssentialFlag(i int, v bool) {
	switch i {
	case 0:
		s.ViewportRelative.EssentialFlag = v
	case 1:
		s.SphereRelativeOmni.EssentialFlag = v
	case 2:
		s.SphereRelative2D.EssentialFlag = v
	case 3:
		s.SourceRegion.EssentialFlag = v
	case 4:
		s.RecommendedViewport.EssentialFlag = v
	case 5:
		s.LayeringOrder.EssentialFlag = v
	case 6:
		s.Opacity.EssentialFlag = v
	case 7:
		s.Interaction.EssentialFlag = v
	case 8:
		s.Label.EssentialFlag = v
	case 9:
		s.Priority.EssentialFlag = v
	case 10:
		s.AssociatedSphereRegion.EssentialFlag = v
	case 11:
		s.AlphaCompositing.EssentialFlag = v
	case 12:
		s.Reserved1.EssentialFlag = v
	case 13:
		s.Reserved2.EssentialFlag = v
	}
}

// Size returns the wire size of this overlay's id, presence mask (numFlagBytes
// bytes), and every present control's header + payload.
func (s *SingleOverlay) Size(numFlagBytes int) uint64 {
	size := uint64(2 + numFlagBytes)
	for i, slot := range overlayControlSlots {
		if slot.present(s) {
			size += 1 + 2 + slot.size(s) // essential-flag byte + size-or-zero header + payload
		}
	}
	return size
}

// EncodeSW writes the overlay id, the presence bitmask packed MSB-first
// across numFlagBytes bytes, then each present control's essential flag,
// size-or-zero header, and payload in declared order.
func (s *SingleOverlay) EncodeSW(sw bits.SliceWriter, numFlagBytes int) error {
	sw.WriteUint16(s.OverlayID)
	writeControlMask(sw, s, numFlagBytes)
	for i, slot := range overlayControlSlots {
		if !slot.present(s) {
			continue
		}
		writeFlag(sw, s.essentialFlag(i))
		writeReservedBits(sw, 7)
		payloadSize := slot.size(s)
		sw.WriteUint16(uint16(payloadSize))
		if err := slot.encode(s, sw); err != nil {
			return err
		}
	}
	return sw.AccError()
}

// DecodeSW reads a SingleOverlay; numFlagBytes must match the value used to
// encode it (carried by the owning OverlayStruct).
func (s *SingleOverlay) DecodeSW(sr bits.SliceReader, numFlagBytes int) error {
	s.OverlayID = sr.ReadUint16()
	mask := readControlMask(sr, numFlagBytes)
	for i := range overlayControlSlots {
		if mask&(1<<uint(overlayControlCount-1-i)) == 0 {
			continue
		}
		essential := readFlag(sr)
		skipReservedBits(sr, 7)
		payloadSize := int(sr.ReadUint16())
		if err := overlayControlSlots[i].decode(s, sr, payloadSize); err != nil {
			return err
		}
		s.setEssentialFlag(i, essential)
	}
	return wrapTruncated(sr.AccError())
}

func writeControlMask(sw bits.SliceWriter, s *SingleOverlay, numFlagBytes int) {
	// Pack MSB-first: bit (overlayControlCount-1) is the first control,
	// written into the highest bit of the first flag byte.
	for b := 0; b < numFlagBytes; b++ {
		var byteVal uint
		for bit := 0; bit < 8; bit++ {
			ctrlIndex := b*8 + bit
			if ctrlIndex >= overlayControlCount {
				break
			}
			if overlayControlSlots[ctrlIndex].present(s) {
				byteVal |= 1 << uint(7-bit)
			}
		}
		sw.WriteUint8(uint8(byteVal))
	}
}

func readControlMask(sr bits.SliceReader, numFlagBytes int) uint32 {
	var mask uint32
	for b := 0; b < numFlagBytes; b++ {
		byteVal := sr.ReadUint8()
		for bit := 0; bit < 8; bit++ {
			ctrlIndex := b*8 + bit
			if ctrlIndex >= overlayControlCount {
				break
			}
			if byteVal&(1<<uint(7-bit)) != 0 {
				mask |= 1 << uint(overlayControlCount-1-ctrlIndex)
			}
		}
	}
	return mask
}

// OverlayStruct is the count-plus-vector container of §3.3, shared by the
// povd box, the dyol sample entry/sample, visual sample entries, and inline
// metadata samples.
type OverlayStruct struct {
	NumFlagBytes int // 1, 2, or 3
	Overlays     []SingleOverlay
}

// Size returns the wire size: a 1-byte numFlagBytes, a 1-byte overlay count,
// then each overlay.
func (o OverlayStruct) Size() uint64 {
	size := uint64(2)
	for i := range o.Overlays {
		size += o.Overlays[i].Size(o.NumFlagBytes)
	}
	return size
}

// EncodeSW writes the struct.
func (o OverlayStruct) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteUint8(uint8(o.NumFlagBytes))
	sw.WriteUint8(uint8(len(o.Overlays)))
	for i := range o.Overlays {
		if err := o.Overlays[i].EncodeSW(sw, o.NumFlagBytes); err != nil {
			return err
		}
	}
	return sw.AccError()
}

// DecodeSW reads the struct.
func (o *OverlayStruct) DecodeSW(sr bits.SliceReader) error {
	o.NumFlagBytes = int(sr.ReadUint8())
	count := int(sr.ReadUint8())
	o.Overlays = make([]SingleOverlay, count)
	for i := range o.Overlays {
		if err := o.Overlays[i].DecodeSW(sr, o.NumFlagBytes); err != nil {
			return err
		}
	}
	return wrapTruncated(sr.AccError())
}
