package yoloprep

// The intermediate annotation metadata representation.

import (
	"log"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Point is a pixel coordinate, offset from the top-left corner of the image.
type Point struct {
	X, Y float64
}

// ShapeKind tells how the points of an Annotation are interpreted.
type ShapeKind int

// The known shape kinds.
const (
	Polygon   ShapeKind = iota // An ordered list of vertices.
	Rectangle                  // Two diagonally opposite corners.
)

func (k ShapeKind) String() string {
	if k == Rectangle {
		return "rectangle"
	}
	return "polygon"
}

// shapeKindFrom resolves the kind of a shape from the tool's shape type and its points. A shape with
// exactly two points is always a rectangle, whatever the tool called it.
func shapeKindFrom(shapeType string, numPoints int) ShapeKind {
	if shapeType == "rectangle" || numPoints == 2 {
		return Rectangle
	}
	return Polygon
}

// Annotation is the intermediate representation of one labeled region.
type Annotation struct {
	Kind   ShapeKind
	Label  string
	Points []Point
}

// Corners returns the outline of the annotation. For rectangles, the four corners are synthesized
// from the two stored ones, in the order (x1,y1) (x2,y1) (x2,y2) (x1,y2).
func (a Annotation) Corners() []Point {
	if a.Kind != Rectangle || len(a.Points) != 2 {
		return a.Points
	}
	p1, p2 := a.Points[0], a.Points[1]
	return []Point{{p1.X, p1.Y}, {p2.X, p1.Y}, {p2.X, p2.Y}, {p1.X, p2.Y}}
}

// ImageAnnotations is all annotations of one image along with the image dimensions.
type ImageAnnotations struct {
	Annotations []Annotation
	Height      int
	ImagePath   string
	Width       int
}

// AnnotatedImages is the annotation metadata for a batch of images.
type AnnotatedImages []ImageAnnotations

// Labels returns the distinct labels across all images, sorted.
func (data AnnotatedImages) Labels() []string {
	seen := make(map[string]struct{})
	for _, f := range data {
		for _, a := range f.Annotations {
			seen[a.Label] = struct{}{}
		}
	}

	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// MapLabels replaces labels with substitution values, as specified in mappings.
//
// The format of mappings is old=new. Unlike a substring replacement, only whole labels match, so
// that mapping "1=ok" leaves "10" alone.
func (data AnnotatedImages) MapLabels(mappings []string) error {
	if len(mappings) == 0 {
		return nil
	}

	replacements := make(map[string]string, len(mappings))
	for _, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return errors.Errorf("invalid mapping: %v", v)
		}
		replacements[a[0]] = a[1]
	}

	count := 0
	for _, f := range data {
		for i := range f.Annotations {
			a := &f.Annotations[i]
			if l, ok := replacements[a.Label]; ok {
				a.Label = l
				count++
			}
		}
	}

	log.Printf("The label mappings changed %d labels", count)
	return nil
}
