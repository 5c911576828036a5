package yoloprep

// Pascal VOC specific functionality.

import (
	"encoding/xml"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// VOCObject is a single object within a VOC annotation.
type VOCObject struct {
	Name   string `xml:"name"`
	BndBox struct {
		XMin float64 `xml:"xmin"`
		YMin float64 `xml:"ymin"`
		XMax float64 `xml:"xmax"`
		YMax float64 `xml:"ymax"`
	} `xml:"bndbox"`
}

// VOCAnnotation defines the VOC annotation structure for a single image.
type VOCAnnotation struct {
	XMLName  xml.Name `xml:"annotation"`
	Filename string   `xml:"filename"`
	Size     struct {
		Width  int `xml:"width"`
		Height int `xml:"height"`
	} `xml:"size"`
	Objects []VOCObject `xml:"object"`
}

// ReadVOC reads and parses the VOC annotation at path. Every object becomes a rectangle annotation.
//
// Unparsable documents fail with ErrMalformedDocument.
func ReadVOC(path string) (ImageAnnotations, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageAnnotations{}, err
	}
	defer f.Close()

	var voc VOCAnnotation
	if err := xml.NewDecoder(f).Decode(&voc); err != nil {
		return ImageAnnotations{}, errors.Wrapf(ErrMalformedDocument, "%q: %v", path, err)
	}

	imagePath := voc.Filename
	if imagePath != "" {
		imagePath = filepath.Join(filepath.Dir(path), imagePath)
	}
	data := ImageAnnotations{
		Annotations: make([]Annotation, len(voc.Objects)),
		Height:      voc.Size.Height,
		ImagePath:   imagePath,
		Width:       voc.Size.Width,
	}
	for i, o := range voc.Objects {
		b := o.BndBox
		data.Annotations[i] = Annotation{
			Kind:   Rectangle,
			Label:  o.Name,
			Points: []Point{{b.XMin, b.YMin}, {b.XMax, b.YMax}},
		}
	}

	return data, nil
}
