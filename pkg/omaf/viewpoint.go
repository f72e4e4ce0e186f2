package omaf

import "github.com/Eyevinn/mp4ff/bits"

// ViewpointPosStruct is a viewpoint's 3D position in millimeters on an
// arbitrary global coordinate system.
type ViewpointPosStruct struct {
	X, Y, Z int32
}

func (ViewpointPosStruct) Size() uint64 { return 12 }

func (v ViewpointPosStruct) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteInt32(v.X)
	sw.WriteInt32(v.Y)
	sw.WriteInt32(v.Z)
	return sw.AccError()
}

func (v *ViewpointPosStruct) DecodeSW(sr bits.SliceReader) error {
	v.X = sr.ReadInt32()
	v.Y = sr.ReadInt32()
	v.Z = sr.ReadInt32()
	return wrapTruncated(sr.AccError())
}

// ViewpointGpsPositionStruct locates a viewpoint by GPS coordinates.
type ViewpointGpsPositionStruct struct {
	Longitude, Latitude, Altitude int32
}

func (ViewpointGpsPositionStruct) Size() uint64 { return 12 }

func (v ViewpointGpsPositionStruct) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteInt32(v.Longitude)
	sw.WriteInt32(v.Latitude)
	sw.WriteInt32(v.Altitude)
	return sw.AccError()
}

func (v *ViewpointGpsPositionStruct) DecodeSW(sr bits.SliceReader) error {
	v.Longitude = sr.ReadInt32()
	v.Latitude = sr.ReadInt32()
	v.Altitude = sr.ReadInt32()
	return wrapTruncated(sr.AccError())
}

// ViewpointGeomagneticInfoStruct orients a viewpoint relative to magnetic
// north, in 16.16 fixed point degrees.
type ViewpointGeomagneticInfoStruct struct {
	Yaw, Pitch, Roll int32
}

func (ViewpointGeomagneticInfoStruct) Size() uint64 { return 12 }

func (v ViewpointGeomagneticInfoStruct) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteInt32(v.Yaw)
	sw.WriteInt32(v.Pitch)
	sw.WriteInt32(v.Roll)
	return sw.AccError()
}

func (v *ViewpointGeomagneticInfoStruct) DecodeSW(sr bits.SliceReader) error {
	v.Yaw = sr.ReadInt32()
	v.Pitch = sr.ReadInt32()
	v.Roll = sr.ReadInt32()
	return wrapTruncated(sr.AccError())
}

// ViewpointGlobalCoordinateSysRotationStruct is the rotation that maps the
// viewpoint's local coordinate system onto the common reference coordinate
// system shared by every viewpoint in a group.
type ViewpointGlobalCoordinateSysRotationStruct struct {
	Yaw, Pitch, Roll int32
}

func (ViewpointGlobalCoordinateSysRotationStruct) Size() uint64 { return 12 }

func (v ViewpointGlobalCoordinateSysRotationStruct) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteInt32(v.Yaw)
	sw.WriteInt32(v.Pitch)
	sw.WriteInt32(v.Roll)
	return sw.AccError()
}

func (v *ViewpointGlobalCoordinateSysRotationStruct) DecodeSW(sr bits.SliceReader) error {
	v.Yaw = sr.ReadInt32()
	v.Pitch = sr.ReadInt32()
	v.Roll = sr.ReadInt32()
	return wrapTruncated(sr.AccError())
}

// ViewpointGroupStruct assigns a viewpoint to a numbered group, with an
// optional human-readable description carried only on the group's first
// occurrence in a track (the GroupDescrIncludedFlag of the reference type).
type ViewpointGroupStruct struct {
	GroupID            uint8
	DescriptionPresent bool
	Description        string
}

func (g ViewpointGroupStruct) Size() uint64 {
	size := uint64(1)
	if g.DescriptionPresent {
		size += stringSize(g.Description)
	}
	return size
}

func (g ViewpointGroupStruct) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteUint8(g.GroupID)
	if g.DescriptionPresent {
		writeString(sw, g.Description)
	}
	return sw.AccError()
}

func (g *ViewpointGroupStruct) DecodeSW(sr bits.SliceReader, descriptionPresent bool) error {
	g.DescriptionPresent = descriptionPresent
	g.GroupID = sr.ReadUint8()
	if descriptionPresent {
		g.Description = sr.ReadZeroTerminatedString(1024)
	}
	return wrapTruncated(sr.AccError())
}

// OffsetKind tags ViewpointTimelineSwitchStruct.TOffset: either an absolute
// media timestamp or an offset relative to the current playback position.
type OffsetKind uint8

const (
	OffsetAbsolute OffsetKind = 0
	OffsetRelative OffsetKind = 1
)

// ViewpointTimelineSwitchStruct bounds the time window during which an
// automatic viewpoint switch may take effect, and the destination offset.
type ViewpointTimelineSwitchStruct struct {
	MinTime        *int32
	MaxTime        *int32
	TOffsetKind    OffsetKind
	TOffsetAbs     uint32
	TOffsetRelative int64
}

func (t ViewpointTimelineSwitchStruct) Size() uint64 {
	size := uint64(1) // flag byte
	if t.MinTime != nil {
		size += 4
	}
	if t.MaxTime != nil {
		size += 4
	}
	if t.TOffsetKind == OffsetAbsolute {
		size += 4
	} else {
		size += 8
	}
	return size
}

func (t ViewpointTimelineSwitchStruct) EncodeSW(sw bits.SliceWriter) error {
	writeFlag(sw, t.TOffsetKind == OffsetRelative)
	writeFlag(sw, t.MinTime != nil)
	writeFlag(sw, t.MaxTime != nil)
	writeReservedBits(sw, 5)
	if t.MinTime != nil {
		sw.WriteInt32(*t.MinTime)
	}
	if t.MaxTime != nil {
		sw.WriteInt32(*t.MaxTime)
	}
	if t.TOffsetKind == OffsetAbsolute {
		sw.WriteUint32(t.TOffsetAbs)
	} else {
		sw.WriteInt64(t.TOffsetRelative)
	}
	return sw.AccError()
}

func (t *ViewpointTimelineSwitchStruct) DecodeSW(sr bits.SliceReader) error {
	relative := readFlag(sr)
	hasMin := readFlag(sr)
	hasMax := readFlag(sr)
	skipReservedBits(sr, 5)
	if hasMin {
		v := sr.ReadInt32()
		t.MinTime = &v
	} else {
		t.MinTime = nil
	}
	if hasMax {
		v := sr.ReadInt32()
		t.MaxTime = &v
	} else {
		t.MaxTime = nil
	}
	if relative {
		t.TOffsetKind = OffsetRelative
		t.TOffsetRelative = sr.ReadInt64()
	} else {
		t.TOffsetKind = OffsetAbsolute
		t.TOffsetAbs = sr.ReadUint32()
	}
	return wrapTruncated(sr.AccError())
}

// TransitionEffectType tags TransitionEffect's payload.
type TransitionEffectType uint8

const (
	TransitionZoomIn            TransitionEffectType = 0
	TransitionWalkThrough       TransitionEffectType = 1
	TransitionFadeToBlack       TransitionEffectType = 2
	TransitionMirror            TransitionEffectType = 3
	TransitionVideoTrackID      TransitionEffectType = 4
	TransitionVideoURL          TransitionEffectType = 5
	transitionReservedClamp     TransitionEffectType = 6
)

func clampTransitionEffectType(v uint8) TransitionEffectType {
	if v > uint8(transitionReservedClamp) {
		return transitionReservedClamp
	}
	return TransitionEffectType(v)
}

// TransitionEffect is the tagged union of the visual effect applied while
// switching viewpoints: four parameterless effects, a destination track id,
// or a destination URL.
type TransitionEffect struct {
	Kind     TransitionEffectType
	TrackID  uint32
	VideoURL string
}

func (e TransitionEffect) size() uint64 {
	switch e.Kind {
	case TransitionVideoTrackID:
		return 1 + 4
	case TransitionVideoURL:
		return 1 + stringSize(e.VideoURL)
	default:
		return 1
	}
}

func (e TransitionEffect) encode(sw bits.SliceWriter) error {
	sw.WriteUint8(uint8(e.Kind))
	switch e.Kind {
	case TransitionVideoTrackID:
		sw.WriteUint32(e.TrackID)
	case TransitionVideoURL:
		writeString(sw, e.VideoURL)
	}
	return sw.AccError()
}

func (e *TransitionEffect) decode(sr bits.SliceReader) error {
	e.Kind = clampTransitionEffectType(sr.ReadUint8())
	switch e.Kind {
	case TransitionVideoTrackID:
		e.TrackID = sr.ReadUint32()
	case TransitionVideoURL:
		e.VideoURL = sr.ReadZeroTerminatedString(2048)
	}
	return wrapTruncated(sr.AccError())
}

// Equal compares tag first, then only the payload that tag selects.
func (e TransitionEffect) Equal(other TransitionEffect) bool {
	if e.Kind != other.Kind {
		return false
	}
	switch e.Kind {
	case TransitionVideoTrackID:
		return e.TrackID == other.TrackID
	case TransitionVideoURL:
		return e.VideoURL == other.VideoURL
	default:
		return true
	}
}

// ViewpointRegionType tags ViewpointSwitchRegionStruct's payload.
type ViewpointRegionType uint8

const (
	ViewpointRegionViewportRelative ViewpointRegionType = 0
	ViewpointRegionSphereRelative   ViewpointRegionType = 1
	ViewpointRegionOverlay          ViewpointRegionType = 2
)

// ViewportRelativeRegion is a rectangle of the destination viewport,
// expressed as percentages in 0.01% units (matching ViewportRelativeOverlay).
type ViewportRelativeRegion struct {
	RectLeftPercent, RectTopPercent     uint16
	RectWidthPercent, RectHeightPercent uint16
}

func (ViewportRelativeRegion) size() uint64 { return 8 }

func (r ViewportRelativeRegion) encode(sw bits.SliceWriter) error {
	sw.WriteUint16(r.RectLeftPercent)
	sw.WriteUint16(r.RectTopPercent)
	sw.WriteUint16(r.RectWidthPercent)
	sw.WriteUint16(r.RectHeightPercent)
	return sw.AccError()
}

func (r *ViewportRelativeRegion) decode(sr bits.SliceReader) error {
	r.RectLeftPercent = sr.ReadUint16()
	r.RectTopPercent = sr.ReadUint16()
	r.RectWidthPercent = sr.ReadUint16()
	r.RectHeightPercent = sr.ReadUint16()
	return wrapTruncated(sr.AccError())
}

// SphereRelativePosition names a destination viewport as a sphere region,
// with range fields but no interpolate field (SphereRegionStatic<true, false>).
type SphereRelativePosition struct {
	ShapeType    SphereRegionShapeType
	SphereRegion SphereRegion
}

var sphereRelativeCtx = SphereRegionContext{HasRange: true, HasInterpolate: false}

func (p SphereRelativePosition) size() uint64 { return 1 + p.SphereRegion.Size(sphereRelativeCtx) }

func (p SphereRelativePosition) encode(sw bits.SliceWriter) error {
	sw.WriteUint8(uint8(p.ShapeType))
	return p.SphereRegion.EncodeSW(sw, sphereRelativeCtx)
}

func (p *SphereRelativePosition) decode(sr bits.SliceReader) error {
	p.ShapeType = SphereRegionShapeType(sr.ReadUint8())
	return p.SphereRegion.DecodeSW(sr, sphereRelativeCtx)
}

// ViewpointSwitchRegionStruct is the tagged union identifying which part of
// the destination viewpoint to show after a switch: a viewport-relative
// rectangle, a sphere-relative region, or a reference to an overlay id.
type ViewpointSwitchRegionStruct struct {
	Kind            ViewpointRegionType
	ViewportRegion  ViewportRelativeRegion
	SphereRegion    SphereRelativePosition
	RefOverlayID    uint16
}

func (r ViewpointSwitchRegionStruct) Size() uint64 {
	switch r.Kind {
	case ViewpointRegionViewportRelative:
		return 1 + r.ViewportRegion.size()
	case ViewpointRegionSphereRelative:
		return 1 + r.SphereRegion.size()
	default:
		return 1 + 2
	}
}

func (r ViewpointSwitchRegionStruct) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteUint8(uint8(r.Kind))
	switch r.Kind {
	case ViewpointRegionViewportRelative:
		return r.ViewportRegion.encode(sw)
	case ViewpointRegionSphereRelative:
		return r.SphereRegion.encode(sw)
	default:
		sw.WriteUint16(r.RefOverlayID)
		return sw.AccError()
	}
}

func (r *ViewpointSwitchRegionStruct) DecodeSW(sr bits.SliceReader) error {
	r.Kind = ViewpointRegionType(sr.ReadUint8())
	switch r.Kind {
	case ViewpointRegionViewportRelative:
		return r.ViewportRegion.decode(sr)
	case ViewpointRegionSphereRelative:
		return r.SphereRegion.decode(sr)
	default:
		r.RefOverlayID = sr.ReadUint16()
		return wrapTruncated(sr.AccError())
	}
}

// ViewingOrientationMode tags OneViewpointSwitchingStruct.ViewingOrientation.
type ViewingOrientationMode uint8

const (
	ViewingOrientationDefault     ViewingOrientationMode = 0
	ViewingOrientationViewport    ViewingOrientationMode = 1
	ViewingOrientationNoInfluence ViewingOrientationMode = 2
	viewingOrientationReserved    ViewingOrientationMode = 3
)

func clampViewingOrientationMode(v uint8) ViewingOrientationMode {
	if v > uint8(viewingOrientationReserved) {
		return viewingOrientationReserved
	}
	return ViewingOrientationMode(v)
}

var viewingOrientationSphereCtx = SphereRegionContext{}

// ViewingOrientation is the tagged union of how viewing direction carries
// across a viewpoint switch: unchanged defaults, a specific destination
// sphere region, no influence on the current orientation, or reserved.
type ViewingOrientation struct {
	Kind         ViewingOrientationMode
	SphereRegion SphereRegion
}

func (v ViewingOrientation) size() uint64 {
	if v.Kind == ViewingOrientationViewport {
		return 1 + v.SphereRegion.Size(viewingOrientationSphereCtx)
	}
	return 1
}

func (v ViewingOrientation) encode(sw bits.SliceWriter) error {
	sw.WriteUint8(uint8(v.Kind))
	if v.Kind == ViewingOrientationViewport {
		return v.SphereRegion.EncodeSW(sw, viewingOrientationSphereCtx)
	}
	return sw.AccError()
}

func (v *ViewingOrientation) decode(sr bits.SliceReader) error {
	v.Kind = clampViewingOrientationMode(sr.ReadUint8())
	if v.Kind == ViewingOrientationViewport {
		return v.SphereRegion.DecodeSW(sr, viewingOrientationSphereCtx)
	}
	return wrapTruncated(sr.AccError())
}

// OneViewpointSwitchingStruct describes one candidate destination viewpoint
// a viewer may switch to from the current one.
type OneViewpointSwitchingStruct struct {
	DestinationViewpointID uint32
	ViewingOrientation     ViewingOrientation
	TimelineSwitch         *ViewpointTimelineSwitchStruct
	TransitionEffect       *TransitionEffect
	SwitchRegions          []ViewpointSwitchRegionStruct
}

func (o OneViewpointSwitchingStruct) Size() uint64 {
	size := uint64(4) + 1 /* flag byte */ + o.ViewingOrientation.size() + 1 /* region count */
	if o.TimelineSwitch != nil {
		size += o.TimelineSwitch.Size()
	}
	if o.TransitionEffect != nil {
		size += o.TransitionEffect.size()
	}
	for _, r := range o.SwitchRegions {
		size += r.Size()
	}
	return size
}

func (o OneViewpointSwitchingStruct) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteUint32(o.DestinationViewpointID)
	writeFlag(sw, o.TimelineSwitch != nil)
	writeFlag(sw, o.TransitionEffect != nil)
	writeReservedBits(sw, 6)
	if err := o.ViewingOrientation.encode(sw); err != nil {
		return err
	}
	if o.TimelineSwitch != nil {
		if err := o.TimelineSwitch.EncodeSW(sw); err != nil {
			return err
		}
	}
	if o.TransitionEffect != nil {
		if err := o.TransitionEffect.encode(sw); err != nil {
			return err
		}
	}
	sw.WriteUint8(uint8(len(o.SwitchRegions)))
	for _, r := range o.SwitchRegions {
		if err := r.EncodeSW(sw); err != nil {
			return err
		}
	}
	return sw.AccError()
}

func (o *OneViewpointSwitchingStruct) DecodeSW(sr bits.SliceReader) error {
	o.DestinationViewpointID = sr.ReadUint32()
	hasTimeline := readFlag(sr)
	hasEffect := readFlag(sr)
	skipReservedBits(sr, 6)
	if err := o.ViewingOrientation.decode(sr); err != nil {
		return err
	}
	if hasTimeline {
		o.TimelineSwitch = &ViewpointTimelineSwitchStruct{}
		if err := o.TimelineSwitch.DecodeSW(sr); err != nil {
			return err
		}
	} else {
		o.TimelineSwitch = nil
	}
	if hasEffect {
		o.TransitionEffect = &TransitionEffect{}
		if err := o.TransitionEffect.decode(sr); err != nil {
			return err
		}
	} else {
		o.TransitionEffect = nil
	}
	count := int(sr.ReadUint8())
	o.SwitchRegions = nil
	if count > 0 {
		o.SwitchRegions = make([]ViewpointSwitchRegionStruct, count)
	}
	for i := range o.SwitchRegions {
		if err := o.SwitchRegions[i].DecodeSW(sr); err != nil {
			return err
		}
	}
	return wrapTruncated(sr.AccError())
}

// ViewpointSwitchingListStruct is the full list of candidate destination
// viewpoints reachable from the containing viewpoint.
type ViewpointSwitchingListStruct struct {
	Switching []OneViewpointSwitchingStruct
}

func (v ViewpointSwitchingListStruct) Size() uint64 {
	size := uint64(1)
	for _, s := range v.Switching {
		size += s.Size()
	}
	return size
}

func (v ViewpointSwitchingListStruct) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteUint8(uint8(len(v.Switching)))
	for _, s := range v.Switching {
		if err := s.EncodeSW(sw); err != nil {
			return err
		}
	}
	return sw.AccError()
}

func (v *ViewpointSwitchingListStruct) DecodeSW(sr bits.SliceReader) error {
	count := int(sr.ReadUint8())
	v.Switching = nil
	if count > 0 {
		v.Switching = make([]OneViewpointSwitchingStruct, count)
	}
	for i := range v.Switching {
		if err := v.Switching[i].DecodeSW(sr); err != nil {
			return err
		}
	}
	return wrapTruncated(sr.AccError())
}

// ViewpointLoopingStruct bounds how many times playback may loop back to an
// earlier viewpoint before falling through to loopExitStruct's switching
// list.
type ViewpointLoopingStruct struct {
	MaxLoops           *int8 // -1 means infinite
	LoopActivationTime *int32
	LoopStartTime      *int32
	LoopExit           *ViewpointSwitchingListStruct
}

func (v ViewpointLoopingStruct) Size() uint64 {
	size := uint64(1)
	if v.MaxLoops != nil {
		size++
	}
	if v.LoopActivationTime != nil {
		size += 4
	}
	if v.LoopStartTime != nil {
		size += 4
	}
	if v.LoopExit != nil {
		size += v.LoopExit.Size()
	}
	return size
}

func (v ViewpointLoopingStruct) EncodeSW(sw bits.SliceWriter) error {
	writeFlag(sw, v.MaxLoops != nil)
	writeFlag(sw, v.LoopActivationTime != nil)
	writeFlag(sw, v.LoopStartTime != nil)
	writeFlag(sw, v.LoopExit != nil)
	writeReservedBits(sw, 4)
	if v.MaxLoops != nil {
		sw.WriteInt8(*v.MaxLoops)
	}
	if v.LoopActivationTime != nil {
		sw.WriteInt32(*v.LoopActivationTime)
	}
	if v.LoopStartTime != nil {
		sw.WriteInt32(*v.LoopStartTime)
	}
	if v.LoopExit != nil {
		if err := v.LoopExit.EncodeSW(sw); err != nil {
			return err
		}
	}
	return sw.AccError()
}

func (v *ViewpointLoopingStruct) DecodeSW(sr bits.SliceReader) error {
	hasMax := readFlag(sr)
	hasActivation := readFlag(sr)
	hasStart := readFlag(sr)
	hasExit := readFlag(sr)
	skipReservedBits(sr, 4)
	if hasMax {
		x := sr.ReadInt8()
		v.MaxLoops = &x
	} else {
		v.MaxLoops = nil
	}
	if hasActivation {
		x := sr.ReadInt32()
		v.LoopActivationTime = &x
	} else {
		v.LoopActivationTime = nil
	}
	if hasStart {
		x := sr.ReadInt32()
		v.LoopStartTime = &x
	} else {
		v.LoopStartTime = nil
	}
	if hasExit {
		v.LoopExit = &ViewpointSwitchingListStruct{}
		if err := v.LoopExit.DecodeSW(sr); err != nil {
			return err
		}
	} else {
		v.LoopExit = nil
	}
	return wrapTruncated(sr.AccError())
}

// DynamicViewpointSampleEntry records, per field, whether the engine should
// expect that field to carry static content (fixed here, absent from every
// sample) or dynamic content (absent here, present per-sample). Matches the
// reference's DynamicViewpointSampleEntry optional-static / per-sample
// split: a field set here is the fallback value used for every sample.
type DynamicViewpointSampleEntry struct {
	ViewpointPos                     *ViewpointPosStruct
	ViewpointGlobalCoordinateRotation *ViewpointGlobalCoordinateSysRotationStruct
	ViewpointGpsPosition              *ViewpointGpsPositionStruct
	ViewpointGeomagneticInfo          *ViewpointGeomagneticInfoStruct
	ViewpointSwitchingList            *ViewpointSwitchingListStruct
	GroupDescriptionIncluded          bool
}

// DynamicViewpointSample carries the per-sample viewpoint state. Fields the
// owning DynamicViewpointSampleEntry declares static are not read from or
// written to the sample; DecodeSW fills them in from ctx so callers always
// see a complete value regardless of which fields travel on the wire.
// ViewpointPos is the exception: it is always on the wire, and a static
// position in ctx replaces the decoded one.
type DynamicViewpointSample struct {
	ViewpointPos                     ViewpointPosStruct
	ViewpointGpsPosition              *ViewpointGpsPositionStruct
	ViewpointGeomagneticInfo          *ViewpointGeomagneticInfoStruct
	ViewpointGlobalCoordinateRotation *ViewpointGlobalCoordinateSysRotationStruct
	ViewpointGroup                    *ViewpointGroupStruct
	ViewpointSwitchingList            *ViewpointSwitchingListStruct
}

// Size returns the wire size of the sample under ctx: the always-present
// position plus whichever fields ctx marks dynamic.
func (s DynamicViewpointSample) Size(ctx DynamicViewpointSampleEntry) uint64 {
	size := s.ViewpointPos.Size()
	if ctx.ViewpointGpsPosition == nil && s.ViewpointGpsPosition != nil {
		size += s.ViewpointGpsPosition.Size()
	}
	if ctx.ViewpointGeomagneticInfo == nil && s.ViewpointGeomagneticInfo != nil {
		size += s.ViewpointGeomagneticInfo.Size()
	}
	if ctx.ViewpointGlobalCoordinateRotation == nil && s.ViewpointGlobalCoordinateRotation != nil {
		size += s.ViewpointGlobalCoordinateRotation.Size()
	}
	size++ // vwpt_group_flag + reserved byte
	if s.ViewpointGroup != nil {
		size += s.ViewpointGroup.Size()
	}
	if ctx.ViewpointSwitchingList == nil && s.ViewpointSwitchingList != nil {
		size += s.ViewpointSwitchingList.Size()
	}
	return size
}

// EncodeSW writes only the fields ctx marks dynamic, per the reference
// write(bitstr, sampleContext) contract.
func (s DynamicViewpointSample) EncodeSW(sw bits.SliceWriter, ctx DynamicViewpointSampleEntry) error {
	if err := s.ViewpointPos.EncodeSW(sw); err != nil {
		return err
	}
	if ctx.ViewpointGpsPosition == nil && s.ViewpointGpsPosition != nil {
		if err := s.ViewpointGpsPosition.EncodeSW(sw); err != nil {
			return err
		}
	}
	if ctx.ViewpointGeomagneticInfo == nil && s.ViewpointGeomagneticInfo != nil {
		if err := s.ViewpointGeomagneticInfo.EncodeSW(sw); err != nil {
			return err
		}
	}
	if ctx.ViewpointGlobalCoordinateRotation == nil && s.ViewpointGlobalCoordinateRotation != nil {
		if err := s.ViewpointGlobalCoordinateRotation.EncodeSW(sw); err != nil {
			return err
		}
	}
	writeFlag(sw, s.ViewpointGroup != nil)
	writeReservedBits(sw, 7)
	if s.ViewpointGroup != nil {
		if err := s.ViewpointGroup.EncodeSW(sw); err != nil {
			return err
		}
	}
	if ctx.ViewpointSwitchingList == nil && s.ViewpointSwitchingList != nil {
		if err := s.ViewpointSwitchingList.EncodeSW(sw); err != nil {
			return err
		}
	}
	return sw.AccError()
}

// DecodeSW reads a sample under ctx, falling the static fields back to
// ctx's fixed values so the returned struct is always fully populated.
func (s *DynamicViewpointSample) DecodeSW(sr bits.SliceReader, ctx DynamicViewpointSampleEntry) error {
	if err := s.ViewpointPos.DecodeSW(sr); err != nil {
		return err
	}
	if ctx.ViewpointPos != nil {
		s.ViewpointPos = *ctx.ViewpointPos
	}

	if ctx.ViewpointGpsPosition != nil {
		v := *ctx.ViewpointGpsPosition
		s.ViewpointGpsPosition = &v
	} else {
		var v ViewpointGpsPositionStruct
		if err := v.DecodeSW(sr); err != nil {
			return err
		}
		s.ViewpointGpsPosition = &v
	}

	if ctx.ViewpointGeomagneticInfo != nil {
		v := *ctx.ViewpointGeomagneticInfo
		s.ViewpointGeomagneticInfo = &v
	} else {
		var v ViewpointGeomagneticInfoStruct
		if err := v.DecodeSW(sr); err != nil {
			return err
		}
		s.ViewpointGeomagneticInfo = &v
	}

	if ctx.ViewpointGlobalCoordinateRotation != nil {
		v := *ctx.ViewpointGlobalCoordinateRotation
		s.ViewpointGlobalCoordinateRotation = &v
	} else {
		var v ViewpointGlobalCoordinateSysRotationStruct
		if err := v.DecodeSW(sr); err != nil {
			return err
		}
		s.ViewpointGlobalCoordinateRotation = &v
	}

	hasGroup := readFlag(sr)
	skipReservedBits(sr, 7)
	if hasGroup {
		var g ViewpointGroupStruct
		if err := g.DecodeSW(sr, ctx.GroupDescriptionIncluded); err != nil {
			return err
		}
		s.ViewpointGroup = &g
	} else {
		s.ViewpointGroup = nil
	}

	if ctx.ViewpointSwitchingList != nil {
		v := *ctx.ViewpointSwitchingList
		s.ViewpointSwitchingList = &v
	} else {
		var v ViewpointSwitchingListStruct
		if err := v.DecodeSW(sr); err != nil {
			return err
		}
		s.ViewpointSwitchingList = &v
	}

	return wrapTruncated(sr.AccError())
}

// ViewpointInformationStruct is the complete, self-contained description of
// one viewpoint carried by the OMAF viewpoint information box: position,
// group membership, orientation, optional GPS/geomagnetic info, switching
// list, and looping behaviour.
type ViewpointInformationStruct struct {
	ViewpointPos                ViewpointPosStruct
	ViewpointGroup               ViewpointGroupStruct
	GlobalCoordinateRotation     ViewpointGlobalCoordinateSysRotationStruct
	ViewpointGpsPosition         *ViewpointGpsPositionStruct
	ViewpointGeomagneticInfo     *ViewpointGeomagneticInfoStruct
	ViewpointSwitchingList       *ViewpointSwitchingListStruct
	ViewpointLooping             *ViewpointLoopingStruct
}

func (v ViewpointInformationStruct) Size() uint64 {
	size := v.ViewpointPos.Size() + v.ViewpointGroup.Size() + v.GlobalCoordinateRotation.Size() + 1
	if v.ViewpointGpsPosition != nil {
		size += v.ViewpointGpsPosition.Size()
	}
	if v.ViewpointGeomagneticInfo != nil {
		size += v.ViewpointGeomagneticInfo.Size()
	}
	if v.ViewpointSwitchingList != nil {
		size += v.ViewpointSwitchingList.Size()
	}
	if v.ViewpointLooping != nil {
		size += v.ViewpointLooping.Size()
	}
	return size
}

func (v ViewpointInformationStruct) EncodeSW(sw bits.SliceWriter) error {
	if err := v.ViewpointPos.EncodeSW(sw); err != nil {
		return err
	}
	if err := v.ViewpointGroup.EncodeSW(sw); err != nil {
		return err
	}
	if err := v.GlobalCoordinateRotation.EncodeSW(sw); err != nil {
		return err
	}
	writeFlag(sw, v.ViewpointGpsPosition != nil)
	writeFlag(sw, v.ViewpointGeomagneticInfo != nil)
	writeFlag(sw, v.ViewpointSwitchingList != nil)
	writeFlag(sw, v.ViewpointLooping != nil)
	writeReservedBits(sw, 4)
	if v.ViewpointGpsPosition != nil {
		if err := v.ViewpointGpsPosition.EncodeSW(sw); err != nil {
			return err
		}
	}
	if v.ViewpointGeomagneticInfo != nil {
		if err := v.ViewpointGeomagneticInfo.EncodeSW(sw); err != nil {
			return err
		}
	}
	if v.ViewpointSwitchingList != nil {
		if err := v.ViewpointSwitchingList.EncodeSW(sw); err != nil {
			return err
		}
	}
	if v.ViewpointLooping != nil {
		if err := v.ViewpointLooping.EncodeSW(sw); err != nil {
			return err
		}
	}
	return sw.AccError()
}

func (v *ViewpointInformationStruct) DecodeSW(sr bits.SliceReader, groupDescriptionIncluded bool) error {
	if err := v.ViewpointPos.DecodeSW(sr); err != nil {
		return err
	}
	if err := v.ViewpointGroup.DecodeSW(sr, groupDescriptionIncluded); err != nil {
		return err
	}
	if err := v.GlobalCoordinateRotation.DecodeSW(sr); err != nil {
		return err
	}
	hasGps := readFlag(sr)
	hasGeomagnetic := readFlag(sr)
	hasSwitching := readFlag(sr)
	hasLooping := readFlag(sr)
	skipReservedBits(sr, 4)
	if hasGps {
		v.ViewpointGpsPosition = &ViewpointGpsPositionStruct{}
		if err := v.ViewpointGpsPosition.DecodeSW(sr); err != nil {
			return err
		}
	} else {
		v.ViewpointGpsPosition = nil
	}
	if hasGeomagnetic {
		v.ViewpointGeomagneticInfo = &ViewpointGeomagneticInfoStruct{}
		if err := v.ViewpointGeomagneticInfo.DecodeSW(sr); err != nil {
			return err
		}
	} else {
		v.ViewpointGeomagneticInfo = nil
	}
	if hasSwitching {
		v.ViewpointSwitchingList = &ViewpointSwitchingListStruct{}
		if err := v.ViewpointSwitchingList.DecodeSW(sr); err != nil {
			return err
		}
	} else {
		v.ViewpointSwitchingList = nil
	}
	if hasLooping {
		v.ViewpointLooping = &ViewpointLoopingStruct{}
		if err := v.ViewpointLooping.DecodeSW(sr); err != nil {
			return err
		}
	} else {
		v.ViewpointLooping = nil
	}
	return wrapTruncated(sr.AccError())
}
