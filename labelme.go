package yoloprep

// LabelMe specific functionality.

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LabelMeVersion is the schema version written to new LabelMe documents.
const LabelMeVersion = "5.4.1"

// LabelMeShape is a single shape within a LabelMe document.
type LabelMeShape struct {
	Description string          `json:"description"`
	Flags       map[string]bool `json:"flags"`
	GroupID     *int            `json:"group_id"`
	Label       string          `json:"label"`
	Points      [][2]float64    `json:"points"`
	ShapeType   string          `json:"shape_type"`
}

// LabelMeDocument defines the LabelMe annotation structure for a single image.
type LabelMeDocument struct {
	Version     string          `json:"version"`
	Flags       map[string]bool `json:"flags"`
	Shapes      []LabelMeShape  `json:"shapes"`
	ImagePath   string          `json:"imagePath"`
	ImageData   *string         `json:"imageData"`
	ImageHeight int             `json:"imageHeight"`
	ImageWidth  int             `json:"imageWidth"`
}

// ReadLabelMe reads and parses the LabelMe document at path. The image path in the result is
// resolved relative to the directory of the document.
//
// Unparsable documents fail with ErrMalformedDocument.
func ReadLabelMe(path string) (ImageAnnotations, error) {
	enc, err := os.ReadFile(path)
	if err != nil {
		return ImageAnnotations{}, err
	}

	var doc LabelMeDocument
	if err := json.Unmarshal(enc, &doc); err != nil {
		return ImageAnnotations{}, errors.Wrapf(ErrMalformedDocument, "%q: %v", path, err)
	}

	data := FromLabelMe(doc)
	if doc.ImagePath != "" {
		data.ImagePath = filepath.Join(filepath.Dir(path), filepath.FromSlash(doc.ImagePath))
	}
	return data, nil
}

// FromLabelMe converts a LabelMe document to the intermediate representation.
func FromLabelMe(doc LabelMeDocument) ImageAnnotations {
	data := ImageAnnotations{
		Annotations: make([]Annotation, len(doc.Shapes)),
		Height:      doc.ImageHeight,
		ImagePath:   doc.ImagePath,
		Width:       doc.ImageWidth,
	}
	for i, s := range doc.Shapes {
		a := Annotation{
			Kind:   shapeKindFrom(s.ShapeType, len(s.Points)),
			Label:  s.Label,
			Points: make([]Point, len(s.Points)),
		}
		for j, p := range s.Points {
			a.Points[j] = Point{p[0], p[1]}
		}
		data.Annotations[i] = a
	}

	return data
}

// ToLabelMe converts the intermediate representation to a LabelMe document. Rectangles are stored as
// their two corners, everything else as a polygon.
func ToLabelMe(data ImageAnnotations) LabelMeDocument {
	doc := LabelMeDocument{
		Version:     LabelMeVersion,
		Flags:       map[string]bool{}, // Must not be nil as that becomes JSON null.
		Shapes:      make([]LabelMeShape, 0, len(data.Annotations)),
		ImagePath:   filepath.Base(data.ImagePath),
		ImageHeight: data.Height,
		ImageWidth:  data.Width,
	}
	for _, a := range data.Annotations {
		s := LabelMeShape{
			Flags:     map[string]bool{},
			Label:     a.Label,
			Points:    make([][2]float64, 0, len(a.Points)),
			ShapeType: a.Kind.String(),
		}
		points := a.Points
		if a.Kind == Rectangle && len(points) == 4 {
			points = []Point{points[0], points[2]}
		}
		for _, p := range points {
			s.Points = append(s.Points, [2]float64{p.X, p.Y})
		}
		doc.Shapes = append(doc.Shapes, s)
	}

	return doc
}

// WriteLabelMe writes doc to path. A document that cannot be encoded, e.g. one holding non-finite
// coordinates, fails with ErrMalformedDocument and nothing is written.
func WriteLabelMe(path string, doc LabelMeDocument) error {
	enc, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return errors.Wrapf(ErrMalformedDocument, "%q: %v", path, err)
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return errors.Wrapf(err, "cannot write file %q", path)
	}
	return nil
}
