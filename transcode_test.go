package yoloprep

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// labelMeFixture creates images a.png, b.png and c.png of 100x200 pixels. a.json holds two valid
// shapes, a triangle and a zero area box; b has no document; c.json is malformed.
func labelMeFixture(t *testing.T) string {
	dir := t.TempDir()
	for _, n := range []string{"a", "b", "c"} {
		writePNG(t, filepath.Join(dir, n+".png"), 100, 200)
	}
	writeDoc(t, filepath.Join(dir, "a.json"), 100, 200,
		rect("dog", 10, 20, 30, 60),
		polygon("cat", [2]float64{50, 100}, [2]float64{70, 100}, [2]float64{70, 140}, [2]float64{50, 140}),
		polygon("cat", [2]float64{1, 1}, [2]float64{5, 1}, [2]float64{5, 5}),
		rect("dog", 5, 5, 5, 5),
	)
	writeFile(t, filepath.Join(dir, "c.json"), `{"shapes": `)
	return dir
}

func TestLabelMeToYOLO(t *testing.T) {
	dir := labelMeFixture(t)
	out := filepath.Join(t.TempDir(), "labels")

	s, err := NewTranscoder(nil, DefaultOptions()).LabelMeToYOLO(dir, "", out)
	require.NoError(t, err)

	assert.Equal(t, []string{"cat", "dog"}, s.Catalog.Names())
	assert.Equal(t, []string{
		"1 0.200000 0.200000 0.200000 0.200000",
		"0 0.600000 0.600000 0.200000 0.200000",
	}, readFileLines(t, filepath.Join(out, "a.txt")))

	// An image without a document gets an empty label file.
	assert.FileExists(t, filepath.Join(out, "b.txt"))
	assert.Empty(t, readFileLines(t, filepath.Join(out, "b.txt")))
	assert.NoFileExists(t, filepath.Join(out, "c.txt"))

	assert.Equal(t, 3, s.Images)
	assert.Equal(t, 2, s.Converted)
	assert.Equal(t, 1, s.Empty)
	assert.Equal(t, 2, s.Objects)
	assert.Equal(t, 2, s.Skipped[KindInvalidGeometry])
	assert.Equal(t, 1, s.Skipped[KindMalformedDocument])
	assert.Equal(t, 3, s.TotalSkipped())
	assert.Equal(t, map[string]int{"cat": 1, "dog": 1}, s.ClassCounts)
}

func TestLabelMeToYOLOSeparateDocumentDir(t *testing.T) {
	images, docs := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(images, "a.png"), 100, 200)
	writeDoc(t, filepath.Join(docs, "a.json"), 100, 200, rect("dog", 10, 20, 30, 60))
	out := t.TempDir()

	s, err := NewTranscoder(nil, DefaultOptions()).LabelMeToYOLO(images, docs, out)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Objects)
	assert.Equal(t, []string{"0 0.200000 0.200000 0.200000 0.200000"},
		readFileLines(t, filepath.Join(out, "a.txt")))
}

func TestLabelMeToYOLOMinPolygonPoints(t *testing.T) {
	dir := labelMeFixture(t)
	opts := DefaultOptions()
	opts.MinPolygonPoints = 3

	s, err := NewTranscoder(nil, opts).LabelMeToYOLO(dir, "", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 3, s.Objects)
	assert.Equal(t, 1, s.Skipped[KindInvalidGeometry])
}

func TestLabelMeToYOLOUnknownLabel(t *testing.T) {
	dir := labelMeFixture(t)
	cat, err := NewCatalog([]string{"cat"})
	require.NoError(t, err)

	s, err := NewTranscoder(cat, DefaultOptions()).LabelMeToYOLO(dir, "", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Objects)
	assert.Equal(t, 1, s.Skipped[KindUnknownLabel])
	assert.Same(t, cat, s.Catalog)

	opts := DefaultOptions()
	opts.UnknownLabels = AbortOnUnknownLabel
	_, err = NewTranscoder(cat, opts).LabelMeToYOLO(dir, "", t.TempDir())
	assert.True(t, errors.Is(err, ErrUnknownLabel))
}

func TestLabelMeToYOLOLabelMappings(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 100, 200)
	writeDoc(t, filepath.Join(dir, "a.json"), 100, 200,
		rect("puppy", 10, 20, 30, 60), rect("dog", 10, 20, 30, 60))
	opts := DefaultOptions()
	opts.LabelMappings = []string{"puppy=dog"}

	s, err := NewTranscoder(nil, opts).LabelMeToYOLO(dir, "", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"dog"}, s.Catalog.Names())
	assert.Equal(t, map[string]int{"dog": 2}, s.ClassCounts)
}

func TestLabelMeToYOLOBounds(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 100, 100)
	writeDoc(t, filepath.Join(dir, "a.json"), 100, 100, rect("dog", 90, 10, 130, 30))

	s, err := NewTranscoder(nil, DefaultOptions()).LabelMeToYOLO(dir, "", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Skipped[KindOutOfBounds])
	assert.Equal(t, 1, s.Empty)

	opts := DefaultOptions()
	opts.Bounds = BoundsClamp
	out := t.TempDir()
	s, err = NewTranscoder(nil, opts).LabelMeToYOLO(dir, "", out)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Clamped)
	assert.Equal(t, []string{"0 0.950000 0.200000 0.100000 0.200000"},
		readFileLines(t, filepath.Join(out, "a.txt")))
}

func TestLabelMeToYOLOFallsBackToImageSize(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 100, 200)
	writeDoc(t, filepath.Join(dir, "a.json"), 0, 0, rect("dog", 10, 20, 30, 60))
	out := t.TempDir()

	_, err := NewTranscoder(nil, DefaultOptions()).LabelMeToYOLO(dir, "", out)
	require.NoError(t, err)
	assert.Equal(t, []string{"0 0.200000 0.200000 0.200000 0.200000"},
		readFileLines(t, filepath.Join(out, "a.txt")))
}

func TestLabelMeToYOLOSegments(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 100, 200)
	writeDoc(t, filepath.Join(dir, "a.json"), 100, 200,
		polygon("cat", [2]float64{50, 100}, [2]float64{70, 100}, [2]float64{70, 140}, [2]float64{50, 140}),
		rect("dog", 10, 20, 30, 60))
	opts := DefaultOptions()
	opts.Output = OutputSegments
	out := t.TempDir()

	_, err := NewTranscoder(nil, opts).LabelMeToYOLO(dir, "", out)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"0 0.500000 0.500000 0.700000 0.500000 0.700000 0.700000 0.500000 0.700000",
		"1 0.100000 0.100000 0.300000 0.100000 0.300000 0.300000 0.100000 0.300000",
	}, readFileLines(t, filepath.Join(out, "a.txt")))
}

func TestLabelMeToYOLOMissingImageDir(t *testing.T) {
	_, err := NewTranscoder(nil, DefaultOptions()).LabelMeToYOLO(
		filepath.Join(t.TempDir(), "missing"), "", t.TempDir())
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestToLabelLinesNeedsCatalog(t *testing.T) {
	_, err := NewTranscoder(nil, DefaultOptions()).ToLabelLines(ImageAnnotations{}, NewSummary())
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestToLabelLinesInvalidDimensions(t *testing.T) {
	cat, err := NewCatalog([]string{"dog"})
	require.NoError(t, err)
	data := ImageAnnotations{Annotations: []Annotation{
		{Kind: Rectangle, Label: "dog", Points: []Point{{1, 1}, {2, 2}}},
	}}

	_, err = NewTranscoder(cat, DefaultOptions()).ToLabelLines(data, NewSummary())
	assert.True(t, errors.Is(err, ErrMalformedDocument))
}

func TestVOCToYOLO(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.xml"), `<annotation>
	<filename>a.jpg</filename>
	<size><width>100</width><height>200</height><depth>3</depth></size>
	<object>
		<name>dog</name>
		<bndbox><xmin>10</xmin><ymin>20</ymin><xmax>30</xmax><ymax>60</ymax></bndbox>
	</object>
	<object>
		<name>cat</name>
		<bndbox><xmin>50</xmin><ymin>100</ymin><xmax>70</xmax><ymax>140</ymax></bndbox>
	</object>
</annotation>`)
	writeFile(t, filepath.Join(dir, "b.xml"), `<annotation><size>`)
	out := t.TempDir()

	s, err := NewTranscoder(nil, DefaultOptions()).VOCToYOLO(dir, out)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"1 0.200000 0.200000 0.200000 0.200000",
		"0 0.600000 0.600000 0.200000 0.200000",
	}, readFileLines(t, filepath.Join(out, "a.txt")))
	assert.Equal(t, 1, s.Skipped[KindMalformedDocument])
}

func TestFromLabelLines(t *testing.T) {
	cat, err := NewCatalog([]string{"cat", "dog"})
	require.NoError(t, err)
	lines := []LabelLine{
		{Class: 1, Box: NormalizedBox{CenterX: 0.2, CenterY: 0.2, Width: 0.2, Height: 0.2}},
		{Class: 0, Segment: []Point{{0.5, 0.5}, {0.7, 0.5}, {0.7, 0.7}, {0.5, 0.7}}},
		{Class: 5, Box: NormalizedBox{CenterX: 0.5, CenterY: 0.5, Width: 0.1, Height: 0.1}},
		{Class: 0, Box: NormalizedBox{CenterX: 0.5, CenterY: 0.5, Width: 0, Height: 0.1}},
	}

	s := NewSummary()
	annotations, err := NewTranscoder(cat, DefaultOptions()).FromLabelLines(lines, 100, 200, s)
	require.NoError(t, err)
	require.Len(t, annotations, 2)

	dog := annotations[0]
	assert.Equal(t, "dog", dog.Label)
	assert.Equal(t, Rectangle, dog.Kind)
	require.Len(t, dog.Points, 2)
	assert.InDelta(t, 10, dog.Points[0].X, 1e-9)
	assert.InDelta(t, 20, dog.Points[0].Y, 1e-9)
	assert.InDelta(t, 30, dog.Points[1].X, 1e-9)
	assert.InDelta(t, 60, dog.Points[1].Y, 1e-9)

	assert.Equal(t, "cat", annotations[1].Label)
	assert.Equal(t, Polygon, annotations[1].Kind)
	assert.Len(t, annotations[1].Points, 4)

	assert.Equal(t, 1, s.Skipped[KindUnknownClassIndex])
	assert.Equal(t, 1, s.Skipped[KindInvalidGeometry])

	opts := DefaultOptions()
	opts.UnknownLabels = AbortOnUnknownLabel
	_, err = NewTranscoder(cat, opts).FromLabelLines(lines, 100, 200, NewSummary())
	assert.True(t, errors.Is(err, ErrUnknownClassIndex))
}

func TestFromLabelLinesWithoutCatalog(t *testing.T) {
	lines := []LabelLine{{Class: 3, Box: NormalizedBox{CenterX: 0.5, CenterY: 0.5, Width: 0.5, Height: 0.5}}}
	annotations, err := NewTranscoder(nil, DefaultOptions()).FromLabelLines(lines, 10, 10, NewSummary())
	require.NoError(t, err)
	require.Len(t, annotations, 1)
	assert.Equal(t, "3", annotations[0].Label)
}

func TestYOLOToLabelMe(t *testing.T) {
	images, labels := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(images, "a.png"), 100, 200)
	writePNG(t, filepath.Join(images, "b.png"), 100, 200)
	writeFile(t, filepath.Join(labels, "a.txt"), "1 0.2 0.2 0.2 0.2\nbroken\n")
	cat, err := NewCatalog([]string{"cat", "dog"})
	require.NoError(t, err)
	out := t.TempDir()

	s, err := NewTranscoder(cat, DefaultOptions()).YOLOToLabelMe(images, labels, out)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Converted)
	assert.Equal(t, 1, s.Skipped[KindMissingPair])
	assert.Equal(t, 1, s.Skipped[KindMalformedDocument])
	assert.NoFileExists(t, filepath.Join(out, "b.json"))

	data, err := ReadLabelMe(filepath.Join(out, "a.json"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "a.png"), data.ImagePath)
	assert.Equal(t, 100, data.Width)
	assert.Equal(t, 200, data.Height)
	require.Len(t, data.Annotations, 1)
	assert.Equal(t, "dog", data.Annotations[0].Label)
	assert.Equal(t, Rectangle, data.Annotations[0].Kind)
}

func TestYOLOToLabelMeNonFiniteValuesDoNotStopTheBatch(t *testing.T) {
	dir, out := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 100, 200)
	writePNG(t, filepath.Join(dir, "b.png"), 100, 200)
	writeFile(t, filepath.Join(dir, "a.txt"), "0 nan 0.5 0.2 0.2\n")
	writeFile(t, filepath.Join(dir, "b.txt"), "0 0.5 0.5 0.2 0.2\n")

	s, err := NewTranscoder(nil, DefaultOptions()).YOLOToLabelMe(dir, dir, out)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Converted)
	assert.Equal(t, 1, s.Skipped[KindMalformedDocument])

	a, err := ReadLabelMe(filepath.Join(out, "a.json"))
	require.NoError(t, err)
	assert.Empty(t, a.Annotations)
	b, err := ReadLabelMe(filepath.Join(out, "b.json"))
	require.NoError(t, err)
	assert.Len(t, b.Annotations, 1)
}

// LabelMe to YOLO and back restores the boxes up to the precision of the label files.
func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 640, 480)
	writeDoc(t, filepath.Join(dir, "a.json"), 640, 480,
		rect("dog", 13.5, 27.25, 301.75, 199),
		rect("cat", 400, 300, 639, 479))
	labels, docs := t.TempDir(), t.TempDir()

	tc := NewTranscoder(nil, DefaultOptions())
	s, err := tc.LabelMeToYOLO(dir, "", labels)
	require.NoError(t, err)

	tc.Catalog = s.Catalog
	_, err = tc.YOLOToLabelMe(dir, labels, docs)
	require.NoError(t, err)

	orig, err := ReadLabelMe(filepath.Join(dir, "a.json"))
	require.NoError(t, err)
	got, err := ReadLabelMe(filepath.Join(docs, "a.json"))
	require.NoError(t, err)

	require.Len(t, got.Annotations, len(orig.Annotations))
	for i, a := range orig.Annotations {
		b := got.Annotations[i]
		assert.Equal(t, a.Label, b.Label)
		assert.Equal(t, a.Kind, b.Kind)
		for j, p := range a.Points {
			assert.InDelta(t, p.X, b.Points[j].X, 1e-5*640)
			assert.InDelta(t, p.Y, b.Points[j].Y, 1e-5*480)
		}
	}
}
