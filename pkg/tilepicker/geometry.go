package tilepicker

import "math"

// Rect is an axis-aligned rectangle on the sphere in degrees: azimuth in
// [-180, 180), elevation in [-90, 90]. Azimuth ranges may wrap across the
// -180/180 seam; IntersectionArea and Covers account for that wrap when
// they measure along azimuth.
type Rect struct {
	CenterAzimuth   float64
	CenterElevation float64
	AzimuthWidth    float64 // full width, degrees
	ElevationHeight float64 // full height, degrees
}

// Top and Bottom are the rectangle's elevation bounds.
func (r Rect) Top() float64    { return clampElevation(r.CenterElevation + r.ElevationHeight/2) }
func (r Rect) Bottom() float64 { return clampElevation(r.CenterElevation - r.ElevationHeight/2) }

func clampElevation(e float64) float64 {
	if e > 90 {
		return 90
	}
	if e < -90 {
		return -90
	}
	return e
}

// normalizeAzimuth wraps a to (-180, 180].
func normalizeAzimuth(a float64) float64 {
	for a > 180 {
		a -= 360
	}
	for a <= -180 {
		a += 360
	}
	return a
}

// azimuthDelta returns the shortest signed angular distance from a to b.
func azimuthDelta(a, b float64) float64 {
	return normalizeAzimuth(b - a)
}

// Expand grows r by factor in both axes, the "high-quality region"
// expansion of spec §4.5 step 1 (constant factor 1.20).
func (r Rect) Expand(factor float64) Rect {
	return Rect{
		CenterAzimuth:   r.CenterAzimuth,
		CenterElevation: r.CenterElevation,
		AzimuthWidth:    r.AzimuthWidth * factor,
		ElevationHeight: r.ElevationHeight * factor,
	}
}

// IntersectionArea returns the overlap area, in square degrees, between r
// and other, treating azimuth as wrapping. Spec §4.5 calls this "square
// degrees-ish": a flat-projection approximation, not a true spherical
// integral, which is adequate for ranking tiles relative to one another.
func (r Rect) IntersectionArea(other Rect) float64 {
	azOverlap := azimuthOverlap(r, other)
	elOverlap := math.Max(0, math.Min(r.Top(), other.Top())-math.Max(r.Bottom(), other.Bottom()))
	if azOverlap <= 0 || elOverlap <= 0 {
		return 0
	}
	return azOverlap * elOverlap
}

func azimuthOverlap(a, b Rect) float64 {
	aMin, aMax := a.CenterAzimuth-a.AzimuthWidth/2, a.CenterAzimuth+a.AzimuthWidth/2
	bMin, bMax := b.CenterAzimuth-b.AzimuthWidth/2, b.CenterAzimuth+b.AzimuthWidth/2
	overlap := math.Min(aMax, bMax) - math.Max(aMin, bMin)
	if overlap > 0 {
		return overlap
	}
	// Try with b shifted by a full turn to handle wraparound across the seam.
	shifted := Rect{CenterAzimuth: b.CenterAzimuth + 360, AzimuthWidth: b.AzimuthWidth}
	overlap = math.Min(aMax, shifted.CenterAzimuth+shifted.AzimuthWidth/2) - math.Max(aMin, shifted.CenterAzimuth-shifted.AzimuthWidth/2)
	if overlap > 0 {
		return overlap
	}
	shifted = Rect{CenterAzimuth: b.CenterAzimuth - 360, AzimuthWidth: b.AzimuthWidth}
	overlap = math.Min(aMax, shifted.CenterAzimuth+shifted.AzimuthWidth/2) - math.Max(aMin, shifted.CenterAzimuth-shifted.AzimuthWidth/2)
	return math.Max(0, overlap)
}

// Covers reports whether the union of rects fully covers target, the
// testable property of spec §8 ("union of tile coverage ⊇ viewport").
func Covers(rects []Rect, target Rect) bool {
	// Sample the target rectangle on a grid and require every sample to
	// fall inside at least one rect; adequate for the rectangular tile
	// layouts this engine works with (no curved tile boundaries).
	const steps = 20
	for i := 0; i <= steps; i++ {
		az := target.CenterAzimuth - target.AzimuthWidth/2 + target.AzimuthWidth*float64(i)/steps
		for j := 0; j <= steps; j++ {
			el := target.Bottom() + target.ElevationHeight*float64(j)/steps
			if !anyRectContains(rects, az, el) {
				return false
			}
		}
	}
	return true
}

func anyRectContains(rects []Rect, az, el float64) bool {
	for _, r := range rects {
		if el < r.Bottom()-1e-9 || el > r.Top()+1e-9 {
			continue
		}
		d := math.Abs(azimuthDelta(r.CenterAzimuth, az))
		if d <= r.AzimuthWidth/2+1e-9 {
			return true
		}
	}
	return false
}
