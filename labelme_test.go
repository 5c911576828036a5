package yoloprep

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLabelMe(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")
	writeFile(t, path, `{
		"version": "5.2.1",
		"flags": {},
		"shapes": [
			{"label": "dog", "points": [[10, 20], [30, 60]], "shape_type": "rectangle", "group_id": null},
			{"label": "cat", "points": [[1, 1], [5, 1], [5, 5], [1, 5]], "shape_type": "polygon"},
			{"label": "box", "points": [[2, 2], [8, 9]], "shape_type": "polygon"}
		],
		"imagePath": "a.jpg",
		"imageData": null,
		"imageHeight": 200,
		"imageWidth": 100
	}`)

	data, err := ReadLabelMe(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.jpg"), data.ImagePath)
	assert.Equal(t, 100, data.Width)
	assert.Equal(t, 200, data.Height)
	require.Len(t, data.Annotations, 3)

	assert.Equal(t, Annotation{Kind: Rectangle, Label: "dog", Points: []Point{{10, 20}, {30, 60}}},
		data.Annotations[0])
	assert.Equal(t, Polygon, data.Annotations[1].Kind)
	assert.Len(t, data.Annotations[1].Points, 4)
	// Two points make a rectangle whatever the shape type says.
	assert.Equal(t, Rectangle, data.Annotations[2].Kind)
}

func TestReadLabelMeMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	writeFile(t, path, `{"shapes": [`)

	_, err := ReadLabelMe(path)
	assert.True(t, errors.Is(err, ErrMalformedDocument))
}

func TestWriteLabelMe(t *testing.T) {
	data := ImageAnnotations{
		Annotations: []Annotation{
			{Kind: Rectangle, Label: "dog", Points: []Point{{10, 20}, {30, 20}, {30, 60}, {10, 60}}},
			{Kind: Polygon, Label: "cat", Points: []Point{{1, 1}, {5, 1}, {5, 5}}},
		},
		Height:    200,
		ImagePath: filepath.Join("some", "dir", "a.png"),
		Width:     100,
	}
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, WriteLabelMe(path, ToLabelMe(data)))

	enc, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(enc, &raw))
	assert.Equal(t, LabelMeVersion, raw["version"])
	assert.Equal(t, "a.png", raw["imagePath"])
	assert.Nil(t, raw["imageData"])
	assert.Equal(t, map[string]interface{}{}, raw["flags"])

	got, err := ReadLabelMe(path)
	require.NoError(t, err)
	require.Len(t, got.Annotations, 2)
	assert.Equal(t, Annotation{Kind: Rectangle, Label: "dog", Points: []Point{{10, 20}, {30, 60}}},
		got.Annotations[0])
	assert.Equal(t, data.Annotations[1], got.Annotations[1])
}

func TestWriteLabelMeNonFinite(t *testing.T) {
	data := ImageAnnotations{
		Annotations: []Annotation{{Kind: Rectangle, Label: "dog", Points: []Point{{math.NaN(), 1}, {2, 2}}}},
		Height:      10,
		Width:       10,
	}
	path := filepath.Join(t.TempDir(), "a.json")

	err := WriteLabelMe(path, ToLabelMe(data))
	assert.True(t, errors.Is(err, ErrMalformedDocument))
	assert.NoFileExists(t, path)
}
