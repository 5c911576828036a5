package yoloprep

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabelLineBox(t *testing.T) {
	l, err := ParseLabelLine("3 0.5 0.25 0.1 0.2")
	require.NoError(t, err)
	assert.Equal(t, 3, l.Class)
	assert.Nil(t, l.Segment)
	assert.Equal(t, NormalizedBox{CenterX: 0.5, CenterY: 0.25, Width: 0.1, Height: 0.2}, l.Box)
	assert.Equal(t, "3 0.500000 0.250000 0.100000 0.200000", l.String())
}

func TestParseLabelLineSegment(t *testing.T) {
	l, err := ParseLabelLine("1 0.1 0.2 0.3 0.2 0.3 0.4")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Class)
	assert.Equal(t, []Point{{0.1, 0.2}, {0.3, 0.2}, {0.3, 0.4}}, l.Segment)
	assert.Equal(t, "1 0.100000 0.200000 0.300000 0.200000 0.300000 0.400000", l.String())
}

func TestParseLabelLineAcceptsIntegralFloatClass(t *testing.T) {
	l, err := ParseLabelLine("2.0 0.5 0.5 0.1 0.1")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Class)
}

func TestParseLabelLineMalformed(t *testing.T) {
	for _, line := range []string{
		"",
		"0 0.5 0.5 0.1",
		"0 0.5 0.5 0.1 0.1 0.2",
		"0 0.1 0.1 0.2 0.2 0.3 0.3 0.4",
		"x 0.5 0.5 0.1 0.1",
		"1.5 0.5 0.5 0.1 0.1",
		"-1 0.5 0.5 0.1 0.1",
		"0 0.5 abc 0.1 0.1",
	} {
		_, err := ParseLabelLine(line)
		assert.True(t, errors.Is(err, ErrMalformedDocument), "line %q", line)
	}
}

func TestLabelFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	lines := []LabelLine{
		{Class: 0, Box: NormalizedBox{CenterX: 0.2, CenterY: 0.2, Width: 0.2, Height: 0.2}},
		{Class: 4, Segment: []Point{{0, 0}, {1, 0}, {1, 1}}},
	}
	require.NoError(t, WriteLabelFile(path, lines))
	assert.Equal(t, []string{
		"0 0.200000 0.200000 0.200000 0.200000",
		"4 0.000000 0.000000 1.000000 0.000000 1.000000 1.000000",
	}, readFileLines(t, path))

	got, lineErrs, err := ReadLabelFile(path)
	require.NoError(t, err)
	assert.Empty(t, lineErrs)
	assert.Equal(t, lines, got)
}

func TestWriteLabelFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, WriteLabelFile(path, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestReadLabelFileReportsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	writeFile(t, path, "0 0.5 0.5 0.1 0.1\n\nbroken\n1 0.5 0.5 0.2 0.2\n")

	lines, lineErrs, err := ReadLabelFile(path)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	require.Len(t, lineErrs, 1)
	assert.True(t, errors.Is(lineErrs[0], ErrMalformedDocument))
	assert.Contains(t, lineErrs[0].Error(), "a.txt:3")
}

func TestParseLabelLineRejectsNonFinite(t *testing.T) {
	for _, line := range []string{
		"0 nan 0.5 0.2 0.2",
		"0 0.5 +Inf 0.2 0.2",
		"0 0.5 0.5 inf 0.2",
		"1 0.1 0.2 0.3 NaN 0.3 0.4",
		"Inf 0.5 0.5 0.2 0.2",
	} {
		_, err := ParseLabelLine(line)
		assert.True(t, errors.Is(err, ErrMalformedDocument), "line %q", line)
	}
}
