package yoloprep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTFRecord(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 100, 200)
	writePNG(t, filepath.Join(dir, "b.png"), 100, 200)
	writeDoc(t, filepath.Join(dir, "a.json"), 100, 200,
		rect("dog", 10, 20, 30, 60), rect("bird", 10, 20, 30, 60), rect("dog", 5, 5, 5, 5))
	writeDoc(t, filepath.Join(dir, "b.json"), 100, 200, rect("cat", 1, 1, 50, 50))

	data, err := ReadLabelMeDir(dir)
	require.NoError(t, err)
	require.Len(t, data, 2)
	cat, err := NewCatalog([]string{"cat", "dog"})
	require.NoError(t, err)

	out := t.TempDir()
	record := filepath.Join(out, "train.record")
	labelMap := filepath.Join(out, "label_map.pbtxt")
	s, err := WriteTFRecord(record, labelMap, data, cat, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Converted)
	assert.Equal(t, 2, s.Objects)
	assert.Equal(t, 1, s.Skipped[KindUnknownLabel])
	assert.Equal(t, 1, s.Skipped[KindInvalidGeometry])

	for _, shard := range []string{"-00000-of-00002", "-00001-of-00002"} {
		info, err := os.Stat(record + shard)
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}

	enc, err := os.ReadFile(labelMap)
	require.NoError(t, err)
	assert.Equal(t, "item {\n  name: \"cat\"\n  id: 1\n}\nitem {\n  name: \"dog\"\n  id: 2\n}\n", string(enc))
}

func openFileCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("no /proc/self/fd")
	}
	return len(entries)
}

func TestWriteTFRecordFailureClosesShard(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 100, 200)
	data := AnnotatedImages{{
		Annotations: []Annotation{{Kind: Rectangle, Label: "dog", Points: []Point{{10, 20}, {30, 60}}}},
		Height:      200,
		ImagePath:   filepath.Join(dir, "a.png"),
		Width:       100,
	}}
	out := t.TempDir()
	before := openFileCount(t)

	// Without a catalog the conversion fails part way through the first shard.
	_, err := WriteTFRecord(filepath.Join(out, "train.record"), filepath.Join(out, "label_map.pbtxt"),
		data, nil, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conversion to TensorFlow Example failed")
	assert.FileExists(t, filepath.Join(out, "train.record"))
	assert.Equal(t, before, openFileCount(t))
}
