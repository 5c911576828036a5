package yoloprep

import (
	"math"

	"github.com/pkg/errors"
)

// The number of decimal digits normalized coordinates are rounded to.
const normalizedPrecision = 6

// BoundsPolicy selects what happens to normalized coordinates outside of [0, 1].
type BoundsPolicy int

const (
	// BoundsReject fails with ErrOutOfBounds.
	BoundsReject BoundsPolicy = iota
	// BoundsClamp clamps into [0, 1]. Callers count clamped records so the change stays visible.
	BoundsClamp
)

// NormalizedBox is a box in center format, as fractions of the image dimensions.
type NormalizedBox struct {
	CenterX, CenterY float64
	Width, Height    float64
}

// Degenerate reports whether the box has zero width or height.
func (b NormalizedBox) Degenerate() bool {
	return b.Width == 0 || b.Height == 0
}

func roundNormalized(v float64) float64 {
	scale := math.Pow10(normalizedPrecision)
	return math.Round(v*scale) / scale
}

// normalizeValue rounds v and applies the bounds policy. The bool result reports clamping.
func normalizeValue(v float64, policy BoundsPolicy) (float64, bool, error) {
	v = roundNormalized(v)
	if v >= 0 && v <= 1 {
		return v, false, nil
	}
	if policy != BoundsClamp {
		return v, false, errors.Wrapf(ErrOutOfBounds, "%f", v)
	}
	return math.Max(0, math.Min(1, v)), true, nil
}

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return errors.Wrapf(ErrMalformedDocument, "invalid image size %dx%d", width, height)
	}
	return nil
}

// clipBox returns the part of b within [0, width] x [0, height], and whether anything was cut off.
func clipBox(b BoundingBox, width, height float64) (BoundingBox, bool) {
	br := b.Max()
	if b.X >= 0 && b.Y >= 0 && br.X <= width && br.Y <= height {
		return b, false
	}

	x1, y1 := math.Max(b.X, 0), math.Max(b.Y, 0)
	x2, y2 := math.Max(math.Min(br.X, width), x1), math.Max(math.Min(br.Y, height), y1)
	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}, true
}

// Normalize maps the pixel box b to center format relative to an image of width x height pixels.
// All values are rounded to 6 decimal digits.
//
// A box extending past the image fails with ErrOutOfBounds, unless policy is BoundsClamp. Then the
// box is clipped to the image first, and the bool result reports that it was. A box with no area
// left after clipping lies outside the image and fails with ErrOutOfBounds under either policy.
func Normalize(b BoundingBox, width, height int, policy BoundsPolicy) (NormalizedBox, bool, error) {
	if err := checkDimensions(width, height); err != nil {
		return NormalizedBox{}, false, err
	}

	w, h := float64(width), float64(height)
	clipped, cut := clipBox(b, w, h)
	if cut {
		br := b.Max()
		if policy != BoundsClamp {
			return NormalizedBox{}, false, errors.Wrapf(ErrOutOfBounds,
				"box (%g,%g)-(%g,%g) exceeds the %dx%d image", b.X, b.Y, br.X, br.Y, width, height)
		}
		if clipped.Degenerate() && !b.Degenerate() {
			return NormalizedBox{}, false, errors.Wrapf(ErrOutOfBounds,
				"box (%g,%g)-(%g,%g) is outside the %dx%d image", b.X, b.Y, br.X, br.Y, width, height)
		}
		b = clipped
	}
	raw := [4]float64{(b.X + b.Width/2) / w, (b.Y + b.Height/2) / h, b.Width / w, b.Height / h}

	var out [4]float64
	clamped := cut
	for i, v := range raw {
		n, c, err := normalizeValue(v, policy)
		if err != nil {
			return NormalizedBox{}, false, err
		}
		out[i] = n
		clamped = clamped || c
	}

	return NormalizedBox{CenterX: out[0], CenterY: out[1], Width: out[2], Height: out[3]}, clamped, nil
}

// NormalizePoints maps every vertex to fractions of the image dimensions, with the same rounding and
// bounds policy as Normalize.
func NormalizePoints(points []Point, width, height int, policy BoundsPolicy) ([]Point, bool, error) {
	if err := checkDimensions(width, height); err != nil {
		return nil, false, err
	}

	out := make([]Point, len(points))
	clamped := false
	for i, p := range points {
		x, cx, err := normalizeValue(p.X/float64(width), policy)
		if err != nil {
			return nil, false, err
		}
		y, cy, err := normalizeValue(p.Y/float64(height), policy)
		if err != nil {
			return nil, false, err
		}
		out[i] = Point{x, y}
		clamped = clamped || cx || cy
	}

	return out, clamped, nil
}

// Denormalize recovers the pixel corners (x1,y1) (x2,y1) (x2,y2) (x1,y2) of the center-format box b
// in an image of width x height pixels. No rounding is applied.
func Denormalize(b NormalizedBox, width, height int) [4]Point {
	w, h := float64(width), float64(height)
	x1 := (b.CenterX - b.Width/2) * w
	y1 := (b.CenterY - b.Height/2) * h
	x2 := (b.CenterX + b.Width/2) * w
	y2 := (b.CenterY + b.Height/2) * h

	return [4]Point{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}}
}
