package yoloprep

import (
	"log"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// OutputKind selects the geometry written to label files.
type OutputKind int

const (
	// OutputBoxes writes center-format bounding boxes (detection labels).
	OutputBoxes OutputKind = iota
	// OutputSegments writes normalized polygons (segmentation labels).
	OutputSegments
)

// UnknownLabelPolicy selects what happens to labels missing from an explicit catalog.
type UnknownLabelPolicy int

const (
	// SkipUnknownLabels skips the record, logs it and counts it in the summary.
	SkipUnknownLabels UnknownLabelPolicy = iota
	// AbortOnUnknownLabel stops the batch with ErrUnknownLabel or ErrUnknownClassIndex.
	AbortOnUnknownLabel
)

// Options configures a Transcoder.
type Options struct {
	Bounds BoundsPolicy
	// Image file extensions to look for in image directories.
	ImageExts []string
	// old=new label renames applied to parsed documents before the catalog is consulted.
	LabelMappings []string
	// Polygons with fewer vertices are skipped as invalid geometry. Rectangles are not affected.
	MinPolygonPoints int
	Output           OutputKind
	UnknownLabels    UnknownLabelPolicy
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Bounds:           BoundsReject,
		ImageExts:        DefaultImageExts,
		MinPolygonPoints: 4,
		Output:           OutputBoxes,
		UnknownLabels:    SkipUnknownLabels,
	}
}

// Summary is the end-of-batch tally of a conversion.
type Summary struct {
	Catalog     *Catalog // The catalog used for the batch.
	ClassCounts map[string]int
	Clamped     int // Records with coordinates clamped into [0, 1].
	Converted   int // Output files written.
	Empty       int // Empty label files written.
	Images      int // Images looked at.
	Objects     int // Objects written.
	Skipped     map[ErrorKind]int
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{
		ClassCounts: make(map[string]int),
		Skipped:     make(map[ErrorKind]int),
	}
}

func (s *Summary) skip(err error) {
	s.Skipped[KindOf(err)]++
}

// TotalSkipped is the sum of all skip counts.
func (s *Summary) TotalSkipped() int {
	n := 0
	for _, v := range s.Skipped {
		n += v
	}
	return n
}

// Log prints the tally.
func (s *Summary) Log() {
	log.Printf("Processed %d images: wrote %d files with %d objects, %d empty label files",
		s.Images, s.Converted, s.Objects, s.Empty)
	if s.Clamped > 0 {
		log.Printf("Clamped coordinates of %d objects into [0, 1]", s.Clamped)
	}

	kinds := make([]ErrorKind, 0, len(s.Skipped))
	for k := range s.Skipped {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		log.Printf("Skipped %d (%v)", s.Skipped[k], k)
	}

	classes := make([]string, 0, len(s.ClassCounts))
	for c := range s.ClassCounts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		log.Printf("Number of %q objects: %d", c, s.ClassCounts[c])
	}
}

// Transcoder converts between LabelMe documents, VOC annotations and YOLO label files.
type Transcoder struct {
	// The class catalog. If nil, batch conversions to label files discover one from their input,
	// and conversions from label files use the decimal class index as the label name.
	Catalog *Catalog
	Options Options
}

// NewTranscoder returns a Transcoder. A nil catalog is allowed, see Transcoder.Catalog.
func NewTranscoder(catalog *Catalog, opts Options) *Transcoder {
	if opts.MinPolygonPoints < 3 {
		opts.MinPolygonPoints = 3
	}
	if len(opts.ImageExts) == 0 {
		opts.ImageExts = DefaultImageExts
	}
	return &Transcoder{Catalog: catalog, Options: opts}
}

// ToLabelLines converts the annotations of one image to label lines, using t.Catalog.
//
// Records with invalid geometry, unknown labels or out of bounds coordinates are skipped and
// counted in s. An error is returned for invalid image dimensions (ErrMalformedDocument), a missing
// catalog, or an unknown label under AbortOnUnknownLabel.
func (t *Transcoder) ToLabelLines(data ImageAnnotations, s *Summary) ([]LabelLine, error) {
	if t.Catalog == nil {
		return nil, errors.Wrap(ErrConfig, "no class catalog")
	}
	return t.toLabelLines(t.Catalog, data, s)
}

func (t *Transcoder) toLabelLines(cat *Catalog, data ImageAnnotations, s *Summary) (
	[]LabelLine, error) {

	if err := checkDimensions(data.Width, data.Height); err != nil {
		return nil, errors.Wrapf(err, "%q", data.ImagePath)
	}

	lines := make([]LabelLine, 0, len(data.Annotations))
	for _, a := range data.Annotations {
		line, clamped, err := t.toLabelLine(cat, data, a)
		if err != nil {
			if errors.Is(err, ErrUnknownLabel) && t.Options.UnknownLabels == AbortOnUnknownLabel {
				return nil, errors.Wrapf(err, "%q", data.ImagePath)
			}
			log.Printf("Skipping an annotation in %q: %v", data.ImagePath, err)
			s.skip(err)
			continue
		}

		if clamped {
			s.Clamped++
		}
		s.ClassCounts[a.Label]++
		s.Objects++
		lines = append(lines, line)
	}

	return lines, nil
}

func (t *Transcoder) toLabelLine(cat *Catalog, data ImageAnnotations, a Annotation) (
	LabelLine, bool, error) {

	if a.Kind == Polygon && len(a.Points) < t.Options.MinPolygonPoints {
		return LabelLine{}, false, errors.Wrapf(ErrInvalidGeometry, "polygon %q with %d points",
			a.Label, len(a.Points))
	}
	corners := a.Corners()
	box, err := Reduce(corners)
	if err != nil {
		return LabelLine{}, false, errors.Wrapf(err, "shape %q", a.Label)
	}
	if box.Degenerate() {
		return LabelLine{}, false, errors.Wrapf(ErrInvalidGeometry, "zero area shape %q", a.Label)
	}

	cls, err := cat.Resolve(a.Label)
	if err != nil {
		return LabelLine{}, false, err
	}

	line := LabelLine{Class: cls}
	var clamped bool
	if t.Options.Output == OutputSegments {
		line.Segment, clamped, err = NormalizePoints(corners, data.Width, data.Height, t.Options.Bounds)
	} else {
		line.Box, clamped, err = Normalize(box, data.Width, data.Height, t.Options.Bounds)
	}
	if err != nil {
		return LabelLine{}, false, errors.Wrapf(err, "shape %q", a.Label)
	}

	return line, clamped, nil
}

// batchItem is one image of a conversion to label files.
type batchItem struct {
	data    ImageAnnotations
	err     error // The document could not be read.
	missing bool  // There is no annotation document.
	outPath string
}

// convertBatch discovers the catalog if needed, then writes one label file per item.
func (t *Transcoder) convertBatch(items []batchItem, outDir string) (*Summary, error) {
	s := NewSummary()
	if err := ensureDirs(outDir); err != nil {
		return s, err
	}

	var parsed AnnotatedImages
	for _, it := range items {
		if !it.missing && it.err == nil {
			parsed = append(parsed, it.data)
		}
	}
	// The copies in parsed share their annotations with items.
	if err := parsed.MapLabels(t.Options.LabelMappings); err != nil {
		return s, errors.Wrap(ErrConfig, err.Error())
	}

	cat := t.Catalog
	if cat == nil {
		cat = DiscoverCatalog(parsed)
		log.Printf("Discovered %d classes: %v", cat.Len(), cat.Names())
	}
	s.Catalog = cat

	for _, it := range items {
		s.Images++
		if it.err != nil {
			log.Printf("Error while parsing, skipping: %v", it.err)
			s.skip(it.err)
			continue
		}

		var lines []LabelLine
		if !it.missing {
			data := it.data
			if data.Width <= 0 || data.Height <= 0 {
				// Fall back to the image header for the size.
				if cfg, _, err := decodeImageConfig(data.ImagePath); err == nil {
					data.Width, data.Height = cfg.Width, cfg.Height
				}
			}

			var err error
			lines, err = t.toLabelLines(cat, data, s)
			if err != nil {
				if errors.Is(err, ErrUnknownLabel) {
					return s, err
				}
				log.Printf("Error while converting, skipping: %v", err)
				s.skip(err)
				continue
			}
		}

		if err := WriteLabelFile(it.outPath, lines); err != nil {
			return s, errors.Wrapf(err, "cannot write label file %q", it.outPath)
		}
		s.Converted++
		if len(lines) == 0 {
			s.Empty++
		}
	}

	return s, nil
}

// listImages returns the images in imageDir, failing with ErrConfig if the directory is unusable.
func (t *Transcoder) listImages(imageDir string) ([]string, error) {
	images, err := filesByExtInDir(imageDir, t.Options.ImageExts...)
	if err != nil {
		return nil, errors.Wrap(ErrConfig, err.Error())
	}
	return images, nil
}

// LabelMeToYOLO converts the LabelMe documents for all images in imageDir to label files in outDir.
// The document of an image is looked for in labelMeDir (imageDir if empty), with the same base name
// and a .json extension.
//
// Every image gets a label file. Images without a document, or whose document has no shapes, get an
// empty one. Malformed documents are skipped and counted.
func (t *Transcoder) LabelMeToYOLO(imageDir, labelMeDir, outDir string) (*Summary, error) {
	if labelMeDir == "" {
		labelMeDir = imageDir
	}
	images, err := t.listImages(imageDir)
	if err != nil {
		return NewSummary(), err
	}
	log.Printf("Parsing LabelMe documents for %d images", len(images))

	items := make([]batchItem, len(images))
	for i, img := range images {
		items[i].outPath = withExt(outDir, img, ".txt")

		docPath := withExt(labelMeDir, img, ".json")
		if !fileExists(docPath) {
			items[i].missing = true
			continue
		}
		items[i].data, items[i].err = ReadLabelMe(docPath)
		items[i].data.ImagePath = img
	}

	return t.convertBatch(items, outDir)
}

// VOCToYOLO converts all VOC annotations (.xml) in vocDir to label files in outDir.
func (t *Transcoder) VOCToYOLO(vocDir, outDir string) (*Summary, error) {
	files, err := filesByExtInDir(vocDir, ".xml")
	if err != nil {
		return NewSummary(), errors.Wrap(ErrConfig, err.Error())
	}
	log.Printf("Parsing VOC annotations for %d files", len(files))

	items := make([]batchItem, len(files))
	for i, path := range files {
		items[i].outPath = withExt(outDir, path, ".txt")
		items[i].data, items[i].err = ReadVOC(path)
	}

	return t.convertBatch(items, outDir)
}

// FromLabelLines reconstructs the annotations of an image of width x height pixels from its label
// lines. Boxes become rectangles and segments become polygons, without rounding.
//
// Degenerate boxes are skipped as ErrInvalidGeometry, and class indices missing from the catalog as
// ErrUnknownClassIndex. Both are counted in s. Under AbortOnUnknownLabel an unknown class index is
// returned as an error instead.
func (t *Transcoder) FromLabelLines(lines []LabelLine, width, height int, s *Summary) (
	[]Annotation, error) {

	if err := checkDimensions(width, height); err != nil {
		return nil, err
	}

	annotations := make([]Annotation, 0, len(lines))
	for _, l := range lines {
		var name string
		if t.Catalog == nil {
			name = strconv.Itoa(l.Class)
		} else {
			var err error
			if name, err = t.Catalog.Name(l.Class); err != nil {
				if t.Options.UnknownLabels == AbortOnUnknownLabel {
					return nil, err
				}
				s.skip(err)
				continue
			}
		}

		a := Annotation{Label: name}
		if l.Segment != nil {
			if len(l.Segment) < t.Options.MinPolygonPoints {
				s.skip(ErrInvalidGeometry)
				continue
			}
			a.Kind = Polygon
			a.Points = make([]Point, len(l.Segment))
			for i, p := range l.Segment {
				a.Points[i] = Point{p.X * float64(width), p.Y * float64(height)}
			}
		} else {
			if l.Box.Degenerate() {
				s.skip(ErrInvalidGeometry)
				continue
			}
			corners := Denormalize(l.Box, width, height)
			a.Kind = Rectangle
			a.Points = []Point{corners[0], corners[2]}
		}

		annotations = append(annotations, a)
		s.ClassCounts[name]++
		s.Objects++
	}

	return annotations, nil
}

// YOLOToLabelMe converts the label files in labelDir for all images in imageDir back to LabelMe
// documents in outDir (imageDir if empty), e.g. to correct predictions in the labeling tool.
//
// The image size is read from each image file. Images without a label file are skipped and counted
// as ErrMissingPair.
func (t *Transcoder) YOLOToLabelMe(imageDir, labelDir, outDir string) (*Summary, error) {
	s := NewSummary()
	s.Catalog = t.Catalog
	if outDir == "" {
		outDir = imageDir
	}
	images, err := t.listImages(imageDir)
	if err != nil {
		return s, err
	}
	if err := ensureDirs(outDir); err != nil {
		return s, err
	}
	log.Printf("Converting label files for %d images", len(images))

	for _, img := range images {
		s.Images++

		labelPath := withExt(labelDir, img, ".txt")
		if !fileExists(labelPath) {
			log.Printf("No label file for %q, skipping", img)
			s.skip(ErrMissingPair)
			continue
		}

		cfg, _, err := decodeImageConfig(img)
		if err != nil {
			log.Printf("Cannot read the image size of %q, skipping: %v", img, err)
			s.skip(ErrMalformedDocument)
			continue
		}

		lines, lineErrs, err := ReadLabelFile(labelPath)
		if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", labelPath, err)
			s.skip(err)
			continue
		}
		for _, e := range lineErrs {
			log.Print(e)
			s.skip(e)
		}

		annotations, err := t.FromLabelLines(lines, cfg.Width, cfg.Height, s)
		if err != nil {
			return s, errors.Wrapf(err, "%q", labelPath)
		}

		data := ImageAnnotations{
			Annotations: annotations,
			Height:      cfg.Height,
			ImagePath:   img,
			Width:       cfg.Width,
		}
		docPath := withExt(outDir, img, ".json")
		if err := WriteLabelMe(docPath, ToLabelMe(data)); err != nil {
			if !errors.Is(err, ErrMalformedDocument) {
				return s, err
			}
			log.Printf("Skipping %q: %v", img, err)
			s.skip(err)
			continue
		}
		s.Converted++
	}

	return s, nil
}

// ReadLabelMeDir reads all LabelMe documents in dir. Malformed documents are logged and skipped.
func ReadLabelMeDir(dir string) (AnnotatedImages, error) {
	files, err := filesByExtInDir(dir, ".json")
	if err != nil {
		return nil, errors.Wrap(ErrConfig, err.Error())
	}

	data := make(AnnotatedImages, 0, len(files))
	for _, path := range files {
		d, err := ReadLabelMe(path)
		if err != nil {
			log.Printf("Error while parsing, skipping %q: %v", path, err)
			continue
		}
		if d.ImagePath == "" {
			d.ImagePath = filepath.Join(dir, baseNoExt(path))
		}
		data = append(data, d)
	}

	return data, nil
}
