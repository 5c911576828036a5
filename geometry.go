package yoloprep

import (
	"math"

	"github.com/pkg/errors"
)

// BoundingBox is an axis-aligned box in pixel coordinates.
type BoundingBox struct {
	X, Y          float64 // The top-left corner.
	Width, Height float64
}

// Degenerate reports whether the box has zero width or height.
func (b BoundingBox) Degenerate() bool {
	return b.Width == 0 || b.Height == 0
}

// Max returns the bottom-right corner.
func (b BoundingBox) Max() Point {
	return Point{b.X + b.Width, b.Y + b.Height}
}

// Reduce returns the axis-aligned bounding box of points.
//
// Exactly two points are taken as opposite corners of a rectangle. Fewer than two points fail with
// ErrInvalidGeometry. A degenerate result is not an error; check BoundingBox.Degenerate.
func Reduce(points []Point) (BoundingBox, error) {
	if len(points) < 2 {
		return BoundingBox{}, errors.Wrapf(ErrInvalidGeometry, "%d points", len(points))
	}
	if len(points) == 2 {
		points = Annotation{Kind: Rectangle, Points: points}.Corners()
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}

	return BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, nil
}
