package yoloprep

// TFRecord object detection specific functionality.

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"

	"github.com/golang/protobuf/proto"
	"github.com/pkg/errors"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// toTFFeatures converts the annotations of one image to the TFRecord object detection features.
// Class ids are the catalog index plus one, as id 0 is reserved for the background.
func toTFFeatures(data ImageAnnotations, catalog *Catalog, s *Summary) (TFFeatureMap, error) {
	img, format, err := decodeImageConfig(data.ImagePath)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedDocument, "failed to decode the image metadata: %v", err)
	}
	imgData, err := os.ReadFile(data.ImagePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the image")
	}

	f := make(TFFeatureMap, 16)
	f["image/height"] = img.Height
	f["image/width"] = img.Width
	f["image/filename"] = data.ImagePath
	f["image/source_id"] = data.ImagePath
	f["image/encoded"] = imgData
	f["image/format"] = format

	numLabels := len(data.Annotations)
	xmins := make([]float32, 0, numLabels)
	ymins := make([]float32, 0, numLabels)
	xmaxs := make([]float32, 0, numLabels)
	ymaxs := make([]float32, 0, numLabels)
	classes := make([]string, 0, numLabels)
	classIDs := make([]int64, 0, numLabels)
	for _, a := range data.Annotations {
		box, err := Reduce(a.Corners())
		if err == nil && box.Degenerate() {
			err = errors.Wrapf(ErrInvalidGeometry, "zero area shape %q", a.Label)
		}
		var idx int
		if err == nil {
			idx, err = catalog.Resolve(a.Label)
		}
		if err != nil {
			log.Printf("Skipping an annotation in %q: %v", data.ImagePath, err)
			s.skip(err)
			continue
		}

		br := box.Max()
		xmins = append(xmins, float32(box.X)/float32(img.Width))
		ymins = append(ymins, float32(box.Y)/float32(img.Height))
		xmaxs = append(xmaxs, float32(br.X)/float32(img.Width))
		ymaxs = append(ymaxs, float32(br.Y)/float32(img.Height))
		classes = append(classes, a.Label)
		classIDs = append(classIDs, int64(idx+1))
		s.ClassCounts[a.Label]++
		s.Objects++
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
//
// The label map for catalog is written to labelMapPath.
func WriteTFRecord(recordFilePath, labelMapPath string, data AnnotatedImages, catalog *Catalog,
	numShards int) (s *Summary, err error) {

	s = NewSummary()
	s.Catalog = catalog
	var shardFile *os.File
	defer func() {
		if e := recover(); e != nil {
			if shardFile != nil {
				shardFile.Close()
			}
			err = errors.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}
	if len(data) == 0 {
		return s, saveTFRecordLabelMap(labelMapPath, catalog)
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	shardSize := int(math.Ceil(float64(len(data)) / float64(numShards)))
	shardIdx := -1

	for i, fileData := range data {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++
			if shardFile != nil {
				if err := shardFile.Close(); err != nil {
					return s, err
				}
				shardFile = nil
			}

			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return s, errors.Wrapf(err, "failed to create shard at %q", shardPath)
			}
			shardFile = f
		}

		s.Images++
		features, err := toTFFeatures(fileData, catalog, s)
		if err != nil {
			log.Printf("Failed to convert %q: %v", fileData.ImagePath, err)
			s.skip(err)
			continue
		}
		if err := writeTFRecordExample(shardFile, example.New(features)); err != nil {
			shardFile.Close()
			return s, errors.Wrap(err, "failed to write example")
		}
		s.Converted++
	}

	if shardFile != nil {
		err := shardFile.Close()
		shardFile = nil
		if err != nil {
			return s, err
		}
	}

	return s, saveTFRecordLabelMap(labelMapPath, catalog)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap writes the label map of catalog to path in prototxt format.
func saveTFRecordLabelMap(path string, catalog *Catalog) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create the label map file %q", path)
	}
	defer closeWithErrCheck(file, &err)

	w := bufio.NewWriter(file)
	for i, name := range catalog.Names() {
		fmt.Fprintf(w, "item {\n  name: %s\n  id: %d\n}\n", strconv.Quote(name), i+1)
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write the label map %q", path)
	}
	return nil
}
