package yoloprep

// KITTI specific functionality.

import (
	"log"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parseKittiAnnotation parses the line of values for a single KITTI object. Only the type and the
// 2D box (fields 5 to 8) are used.
func parseKittiAnnotation(line string) (Annotation, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 8 {
		return Annotation{}, errors.Wrapf(ErrMalformedDocument, "insufficient tokens in %q", line)
	}

	var coords [4]float64
	for i := 4; i < 8; i++ {
		v, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil {
			return Annotation{}, errors.Wrapf(ErrMalformedDocument, "unexpected values in %q", line)
		}
		coords[i-4] = v
	}

	return Annotation{
		Kind:   Rectangle,
		Label:  tokens[0],
		Points: []Point{{coords[0], coords[1]}, {coords[2], coords[3]}},
	}, nil
}

// ReadKitti reads the KITTI label file at labelPath for the image at imagePath. The image size is
// read from the image file. Objects that fail to parse are logged and left out.
func ReadKitti(labelPath, imagePath string) (ImageAnnotations, error) {
	cfg, _, err := decodeImageConfig(imagePath)
	if err != nil {
		return ImageAnnotations{}, errors.Wrapf(ErrMalformedDocument, "%q: %v", imagePath, err)
	}
	lines, err := readLines(labelPath)
	if err != nil {
		return ImageAnnotations{}, err
	}

	data := ImageAnnotations{
		Annotations: make([]Annotation, 0, len(lines)),
		Height:      cfg.Height,
		ImagePath:   imagePath,
		Width:       cfg.Width,
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		a, err := parseKittiAnnotation(line)
		if err != nil {
			log.Printf("Error while parsing %q: %v", labelPath, err)
			continue
		}
		data.Annotations = append(data.Annotations, a)
	}

	return data, nil
}

// KittiToYOLO converts the KITTI label files (.txt) in kittiDir for all images in imageDir to label
// files in outDir. Images without a KITTI file get an empty label file.
func (t *Transcoder) KittiToYOLO(imageDir, kittiDir, outDir string) (*Summary, error) {
	images, err := t.listImages(imageDir)
	if err != nil {
		return NewSummary(), err
	}
	log.Printf("Parsing KITTI labels for %d images", len(images))

	items := make([]batchItem, len(images))
	for i, img := range images {
		items[i].outPath = withExt(outDir, img, ".txt")

		labelPath := withExt(kittiDir, img, ".txt")
		if !fileExists(labelPath) {
			items[i].missing = true
			continue
		}
		items[i].data, items[i].err = ReadKitti(labelPath, img)
	}

	return t.convertBatch(items, outDir)
}
