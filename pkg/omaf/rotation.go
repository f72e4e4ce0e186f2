package omaf

import "github.com/Eyevinn/mp4ff/bits"

// Rotation is three signed 32-bit angles (yaw, pitch, roll) in 16.16 fixed
// point degrees, as used by ViewpointGlobalCoordinateSysRotationStruct and
// the overlay rotation field of SphereRelative2DOverlay.
type Rotation struct {
	Yaw   int32
	Pitch int32
	Roll  int32
}

// Size returns the fixed 12-byte wire size of Rotation.
func (Rotation) Size() uint64 { return 12 }

// EncodeSW writes the three signed 32-bit fields big-endian.
func (r Rotation) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteInt32(r.Yaw)
	sw.WriteInt32(r.Pitch)
	sw.WriteInt32(r.Roll)
	return sw.AccError()
}

// DecodeSW reads the three signed 32-bit fields.
func (r *Rotation) DecodeSW(sr bits.SliceReader) error {
	r.Yaw = sr.ReadInt32()
	r.Pitch = sr.ReadInt32()
	r.Roll = sr.ReadInt32()
	return wrapTruncated(sr.AccError())
}
