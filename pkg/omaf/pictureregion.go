package omaf

import "github.com/Eyevinn/mp4ff/bits"

// ProjectedPictureRegion is a rectangle expressed in projected-picture pixel
// coordinates, using 32-bit fields since the projected picture can exceed
// 16-bit dimensions for high-resolution tiled content.
type ProjectedPictureRegion struct {
	PictureWidth  uint32
	PictureHeight uint32
	RegionWidth   uint32
	RegionHeight  uint32
	RegionTop     uint32
	RegionLeft    uint32
}

// Size returns the fixed 24-byte wire size.
func (ProjectedPictureRegion) Size() uint64 { return 24 }

// EncodeSW writes the six fields big-endian.
func (p ProjectedPictureRegion) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteUint32(p.PictureWidth)
	sw.WriteUint32(p.PictureHeight)
	sw.WriteUint32(p.RegionWidth)
	sw.WriteUint32(p.RegionHeight)
	sw.WriteUint32(p.RegionTop)
	sw.WriteUint32(p.RegionLeft)
	return sw.AccError()
}

// DecodeSW reads the six fields.
func (p *ProjectedPictureRegion) DecodeSW(sr bits.SliceReader) error {
	p.PictureWidth = sr.ReadUint32()
	p.PictureHeight = sr.ReadUint32()
	p.RegionWidth = sr.ReadUint32()
	p.RegionHeight = sr.ReadUint32()
	p.RegionTop = sr.ReadUint32()
	p.RegionLeft = sr.ReadUint32()
	return wrapTruncated(sr.AccError())
}

// PackedPictureRegion is the same rectangle expressed in packed-picture
// pixel coordinates. It uses 16-bit fields, matching the reference source's
// narrower packed-picture addressing range.
type PackedPictureRegion struct {
	PictureWidth  uint16
	PictureHeight uint16
	RegionWidth   uint16
	RegionHeight  uint16
	RegionTop     uint16
	RegionLeft    uint16
}

// Size returns the fixed 12-byte wire size.
func (PackedPictureRegion) Size() uint64 { return 12 }

// EncodeSW writes the six fields big-endian.
func (p PackedPictureRegion) EncodeSW(sw bits.SliceWriter) error {
	sw.WriteUint16(p.PictureWidth)
	sw.WriteUint16(p.PictureHeight)
	sw.WriteUint16(p.RegionWidth)
	sw.WriteUint16(p.RegionHeight)
	sw.WriteUint16(p.RegionTop)
	sw.WriteUint16(p.RegionLeft)
	return sw.AccError()
}

// DecodeSW reads the six fields.
func (p *PackedPictureRegion) DecodeSW(sr bits.SliceReader) error {
	p.PictureWidth = sr.ReadUint16()
	p.PictureHeight = sr.ReadUint16()
	p.RegionWidth = sr.ReadUint16()
	p.RegionHeight = sr.ReadUint16()
	p.RegionTop = sr.ReadUint16()
	p.RegionLeft = sr.ReadUint16()
	return wrapTruncated(sr.AccError())
}
