package yoloprep

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// writePNG writes a gray w x h PNG image to path.
func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Gray{Y: 7})

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// readFileLines returns the non-empty lines of the file at path.
func readFileLines(t *testing.T, path string) []string {
	t.Helper()
	enc, err := os.ReadFile(path)
	require.NoError(t, err)

	var lines []string
	for _, l := range strings.Split(string(enc), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func rect(label string, x1, y1, x2, y2 float64) LabelMeShape {
	return LabelMeShape{
		Label:     label,
		Points:    [][2]float64{{x1, y1}, {x2, y2}},
		ShapeType: "rectangle",
	}
}

func polygon(label string, points ...[2]float64) LabelMeShape {
	return LabelMeShape{Label: label, Points: points, ShapeType: "polygon"}
}

// writeDoc writes a LabelMe document for an image of w x h pixels with the given shapes to path.
func writeDoc(t *testing.T, path string, w, h int, shapes ...LabelMeShape) {
	t.Helper()
	doc := LabelMeDocument{
		Version:     LabelMeVersion,
		Flags:       map[string]bool{},
		Shapes:      shapes,
		ImagePath:   baseNoExt(path) + ".png",
		ImageHeight: h,
		ImageWidth:  w,
	}
	require.NoError(t, WriteLabelMe(path, doc))
}
