package yoloprep

// YOLO label file specific functionality.

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LabelLine is one object in a YOLO label file: either a center-format box or, for segmentation
// labels, a normalized polygon.
type LabelLine struct {
	Class   int
	Box     NormalizedBox
	Segment []Point // Set for segmentation lines only.
}

// String formats l as a label file line, without the trailing newline.
func (l LabelLine) String() string {
	if l.Segment != nil {
		var sb strings.Builder
		sb.WriteString(strconv.Itoa(l.Class))
		for _, p := range l.Segment {
			fmt.Fprintf(&sb, " %.6f %.6f", p.X, p.Y)
		}
		return sb.String()
	}
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f",
		l.Class, l.Box.CenterX, l.Box.CenterY, l.Box.Width, l.Box.Height)
}

// ParseLabelLine parses a single label file line. Lines with 5 fields are boxes; lines with an odd
// number of at least 7 fields are segmentation polygons.
func ParseLabelLine(line string) (LabelLine, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 || (len(fields) > 5 && (len(fields) < 7 || len(fields)%2 == 0)) {
		return LabelLine{}, errors.Wrapf(ErrMalformedDocument, "unexpected field count in %q", line)
	}

	cls, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || cls != math.Trunc(cls) || cls < 0 {
		return LabelLine{}, errors.Wrapf(ErrMalformedDocument, "invalid class index in %q", line)
	}
	values := make([]float64, len(fields)-1)
	for i, f := range fields[1:] {
		values[i], err = strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			return LabelLine{}, errors.Wrapf(ErrMalformedDocument, "unexpected values in %q", line)
		}
	}

	l := LabelLine{Class: int(cls)}
	if len(values) == 4 {
		l.Box = NormalizedBox{CenterX: values[0], CenterY: values[1], Width: values[2], Height: values[3]}
		return l, nil
	}

	l.Segment = make([]Point, len(values)/2)
	for i := range l.Segment {
		l.Segment[i] = Point{values[2*i], values[2*i+1]}
	}
	return l, nil
}

// ReadLabelFile reads the label file at path. Lines that fail to parse do not stop the file; their
// errors are returned alongside the parsed lines. Blank lines are ignored.
func ReadLabelFile(path string) ([]LabelLine, []error, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, nil, err
	}

	var out []LabelLine
	var lineErrs []error
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		l, err := ParseLabelLine(line)
		if err != nil {
			lineErrs = append(lineErrs, errors.Wrapf(err, "%s:%d", path, i+1))
			continue
		}
		out = append(out, l)
	}

	return out, lineErrs, nil
}

// WriteLabelFile writes lines to path. With no lines an empty file is written, meaning the image
// was checked and contains no objects.
func WriteLabelFile(path string, lines []LabelLine) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l.String()); err != nil {
			return err
		}
	}
	return w.Flush()
}
