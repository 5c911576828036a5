// Prepares YOLO training data: converts between LabelMe, VOC and YOLO label formats, splits
// datasets into train/val/test, renders segmentation masks, re-encodes images, exports TFRecords,
// and wraps the external yolo tool for training and inference.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sensorable/yoloprep"
)

type command struct {
	run   func(args []string) error
	usage string
}

var commands = map[string]command{
	"labelme2yolo":   {runLabelMeToYOLO, "LabelMe documents to YOLO label files"},
	"voc2yolo":       {runVOCToYOLO, "Pascal VOC annotations to YOLO label files"},
	"kitti2yolo":     {runKittiToYOLO, "KITTI label files to YOLO label files"},
	"yolo2labelme":   {runYOLOToLabelMe, "YOLO label files to LabelMe documents"},
	"split":          {runSplit, "split images and labels into train/val/test"},
	"cls-split":      {runClsSplit, "split a class-per-directory image tree into train/val/test"},
	"masks":          {runMasks, "render LabelMe polygons as PNG masks"},
	"convert-images": {runConvertImages, "re-encode images, e.g. bmp to jpg"},
	"tfrecord":       {runTFRecord, "export LabelMe documents as a TFRecord dataset"},
	"train":          {runTrain, "train a model with the external yolo tool"},
	"predict":        {runPredict, "run inference with the external yolo tool"},
}

func usage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
	_, _ = fmt.Fprintf(os.Stderr, "  %s <command> [flags]\n\nCommands:\n", filepath.Base(os.Args[0]))
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		_, _ = fmt.Fprintf(os.Stderr, "  %-16s%s\n", n, commands[n].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		log.Printf("Unknown command %q", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err := cmd.run(os.Args[2:]); err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

// catalogFlags are the ways to specify the class catalog.
type catalogFlags struct {
	classesFile string
	classMap    string
	descriptor  string
}

func (c *catalogFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.classesFile, "classes", "",
		"The `path` to a class names file, one name per line in index order")
	fs.StringVar(&c.classMap, "class-map", "",
		"Comma-separated `name=index[,...]` class table; several names may share an index")
	fs.StringVar(&c.descriptor, "descriptor", "",
		"The `path` to a dataset descriptor whose class names are used")
}

// catalog returns the configured catalog, or nil if none was configured.
func (c *catalogFlags) catalog() (*yoloprep.Catalog, error) {
	switch {
	case c.classesFile != "":
		return yoloprep.ReadCatalogFile(c.classesFile)
	case c.classMap != "":
		return yoloprep.ParseCatalogTable(strings.Split(c.classMap, ","))
	case c.descriptor != "":
		d, err := yoloprep.ReadDescriptor(c.descriptor)
		if err != nil {
			return nil, err
		}
		return d.Catalog()
	}
	return nil, nil
}

// transcodeFlags configure the Transcoder.
type transcodeFlags struct {
	catalogFlags
	abortUnknown     bool
	clamp            bool
	labelMappings    string
	minPolygonPoints int
	segments         bool
}

func (t *transcodeFlags) register(fs *flag.FlagSet) {
	t.catalogFlags.register(fs)
	fs.BoolVar(&t.abortUnknown, "abort-unknown", false,
		"Abort on labels or class indices missing from the catalog instead of skipping them")
	fs.BoolVar(&t.clamp, "clamp", false,
		"Clamp normalized coordinates into [0, 1] instead of skipping out of bounds shapes")
	fs.StringVar(&t.labelMappings, "map-labels", "",
		"Comma-separated list of old=new label replacements, applied before the catalog")
	fs.IntVar(&t.minPolygonPoints, "min-polygon-points", 4,
		"Polygons with fewer points are skipped (min. 3)")
	fs.BoolVar(&t.segments, "segments", false, "Write segmentation polygons instead of boxes")
}

func (t *transcodeFlags) transcoder() (*yoloprep.Transcoder, error) {
	cat, err := t.catalog()
	if err != nil {
		return nil, err
	}

	opts := yoloprep.DefaultOptions()
	opts.MinPolygonPoints = t.minPolygonPoints
	if t.abortUnknown {
		opts.UnknownLabels = yoloprep.AbortOnUnknownLabel
	}
	if t.clamp {
		opts.Bounds = yoloprep.BoundsClamp
	}
	if t.segments {
		opts.Output = yoloprep.OutputSegments
	}
	if t.labelMappings != "" {
		opts.LabelMappings = strings.Split(t.labelMappings, ",")
	}
	return yoloprep.NewTranscoder(cat, opts), nil
}

// parseFlags parses args and checks that all named string flags are set.
func parseFlags(fs *flag.FlagSet, args []string, required ...string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, name := range required {
		if f := fs.Lookup(name); f == nil || f.Value.String() == "" {
			fs.Usage()
			return fmt.Errorf("missing flag -%s", name)
		}
	}
	return nil
}

func runLabelMeToYOLO(args []string) error {
	fs := flag.NewFlagSet("labelme2yolo", flag.ExitOnError)
	var tf transcodeFlags
	tf.register(fs)
	imageDir := fs.String("images", "", "The `path` to the image directory")
	labelMeDir := fs.String("labelme", "",
		"The `path` to the LabelMe documents (defaults to -images)")
	outDir := fs.String("labels-out", "",
		"The `path` to the label output directory (defaults to <images>_yolo_txt)")
	if err := parseFlags(fs, args, "images"); err != nil {
		return err
	}
	if *outDir == "" {
		*outDir = filepath.Clean(*imageDir) + "_yolo_txt"
	}

	t, err := tf.transcoder()
	if err != nil {
		return err
	}
	s, err := t.LabelMeToYOLO(*imageDir, *labelMeDir, *outDir)
	s.Log()
	return err
}

func runVOCToYOLO(args []string) error {
	fs := flag.NewFlagSet("voc2yolo", flag.ExitOnError)
	var tf transcodeFlags
	tf.register(fs)
	vocDir := fs.String("voc", "", "The `path` to the VOC annotation directory")
	outDir := fs.String("labels-out", "", "The `path` to the label output directory")
	if err := parseFlags(fs, args, "voc", "labels-out"); err != nil {
		return err
	}

	t, err := tf.transcoder()
	if err != nil {
		return err
	}
	s, err := t.VOCToYOLO(*vocDir, *outDir)
	s.Log()
	return err
}

func runKittiToYOLO(args []string) error {
	fs := flag.NewFlagSet("kitti2yolo", flag.ExitOnError)
	var tf transcodeFlags
	tf.register(fs)
	imageDir := fs.String("images", "", "The `path` to the image directory")
	kittiDir := fs.String("kitti", "", "The `path` to the KITTI label directory")
	outDir := fs.String("labels-out", "", "The `path` to the label output directory")
	if err := parseFlags(fs, args, "images", "kitti", "labels-out"); err != nil {
		return err
	}

	t, err := tf.transcoder()
	if err != nil {
		return err
	}
	s, err := t.KittiToYOLO(*imageDir, *kittiDir, *outDir)
	s.Log()
	return err
}

func runYOLOToLabelMe(args []string) error {
	fs := flag.NewFlagSet("yolo2labelme", flag.ExitOnError)
	var tf transcodeFlags
	tf.register(fs)
	imageDir := fs.String("images", "", "The `path` to the image directory")
	labelDir := fs.String("labels", "", "The `path` to the label directory (defaults to -images)")
	outDir := fs.String("out", "", "The `path` to the LabelMe output directory (defaults to -images)")
	if err := parseFlags(fs, args, "images"); err != nil {
		return err
	}
	if *labelDir == "" {
		*labelDir = *imageDir
	}

	t, err := tf.transcoder()
	if err != nil {
		return err
	}
	s, err := t.YOLOToLabelMe(*imageDir, *labelDir, *outDir)
	s.Log()
	return err
}

// splitFlags configure the Partitioner.
type splitFlags struct {
	noShuffle bool
	ratio     string
	seed      int64
}

func (s *splitFlags) register(fs *flag.FlagSet, defaultRatio string) {
	fs.BoolVar(&s.noShuffle, "no-shuffle", false, "Keep the input order instead of shuffling")
	fs.StringVar(&s.ratio, "ratio", defaultRatio,
		"The comma-separated `train,val[,test]` fractions; must add up to 1")
	fs.Int64Var(&s.seed, "seed", 42, "The shuffle seed; the same seed gives the same split")
}

func (s *splitFlags) partitioner() (*yoloprep.Partitioner, error) {
	ratio, err := yoloprep.ParseRatio(s.ratio)
	if err != nil {
		return nil, err
	}
	return &yoloprep.Partitioner{
		Options: yoloprep.PartitionOptions{Seed: s.seed, Shuffle: !s.noShuffle},
		Ratio:   ratio,
	}, nil
}

func runSplit(args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	var sf splitFlags
	sf.register(fs, "0.6,0.3,0.1")
	var cf catalogFlags
	cf.register(fs)
	imageDir := fs.String("images", "", "The `path` to the image directory")
	labelDir := fs.String("labels", "",
		"The `path` to the label directory (defaults to <images>_yolo_txt)")
	outDir := fs.String("out", "", "The `path` to the dataset output directory")
	grouped := fs.Bool("grouped", false,
		"Split each class (first object of the label file) on its own")
	if err := parseFlags(fs, args, "images", "out"); err != nil {
		return err
	}
	if *labelDir == "" {
		*labelDir = filepath.Clean(*imageDir) + "_yolo_txt"
	}

	p, err := sf.partitioner()
	if err != nil {
		return err
	}
	p.Options.Grouped = *grouped
	if p.Catalog, err = cf.catalog(); err != nil {
		return err
	}

	res, err := p.SplitDetection(*imageDir, *labelDir, *outDir)
	res.Log()
	return err
}

func runClsSplit(args []string) error {
	fs := flag.NewFlagSet("cls-split", flag.ExitOnError)
	var sf splitFlags
	sf.register(fs, "0.8,0.2")
	rawDir := fs.String("raw", "", "The `path` to the image tree, one directory per class")
	outDir := fs.String("out", "", "The `path` to the dataset output directory")
	if err := parseFlags(fs, args, "raw", "out"); err != nil {
		return err
	}

	p, err := sf.partitioner()
	if err != nil {
		return err
	}
	res, err := p.SplitClassification(*rawDir, *outDir)
	res.Log()
	return err
}

func runMasks(args []string) error {
	fs := flag.NewFlagSet("masks", flag.ExitOnError)
	labelMeDir := fs.String("labelme", "", "The `path` to the LabelMe documents")
	imageDir := fs.String("images", "", "The `path` to the images (defaults to -labelme)")
	outDir := fs.String("out", "", "The `path` to the mask output directory")
	fill := fs.Uint("fill", yoloprep.DefaultMaskFill, "The gray `level` polygons are filled with")
	if err := parseFlags(fs, args, "labelme", "out"); err != nil {
		return err
	}
	if *fill > 255 {
		return fmt.Errorf("invalid -fill %d, must be in [0, 255]", *fill)
	}

	s, err := yoloprep.RenderMasks(*labelMeDir, *imageDir, *outDir, uint8(*fill))
	s.Log()
	return err
}

func runConvertImages(args []string) error {
	fs := flag.NewFlagSet("convert-images", flag.ExitOnError)
	inDir := fs.String("in", "", "The `path` to the input image directory")
	outDir := fs.String("out", "", "The `path` to the output directory (defaults to <in>/jpg)")
	from := fs.String("from", ".bmp", "The file `extension` of the images to convert")
	to := fs.String("to", "jpg", "The output `encoding` {jpg, png, bmp}")
	quality := fs.Int("jpeg-quality", 95, "The quality to use when encoding JPEGs [1, 100]")
	if err := parseFlags(fs, args, "in"); err != nil {
		return err
	}
	if *outDir == "" {
		*outDir = filepath.Join(*inDir, "jpg")
	}
	if !strings.HasPrefix(*from, ".") {
		*from = "." + *from
	}

	_, err := yoloprep.ConvertImages(*inDir, *outDir, *from, *to, *quality)
	return err
}

func runTFRecord(args []string) error {
	fs := flag.NewFlagSet("tfrecord", flag.ExitOnError)
	var cf catalogFlags
	cf.register(fs)
	labelMeDir := fs.String("labelme", "", "The `path` to the LabelMe documents")
	outPath := fs.String("out", "", "The TFRecord output file `path`")
	labelMapPath := fs.String("label-map", "", "The label map output file `path`")
	numShards := fs.Int("num-shards", 1, "The number of shard files to create")
	if err := parseFlags(fs, args, "labelme", "out", "label-map"); err != nil {
		return err
	}

	data, err := yoloprep.ReadLabelMeDir(*labelMeDir)
	if err != nil {
		return err
	}
	cat, err := cf.catalog()
	if err != nil {
		return err
	}
	if cat == nil {
		cat = yoloprep.DiscoverCatalog(data)
	}

	s, err := yoloprep.WriteTFRecord(*outPath, *labelMapPath, data, cat, *numShards)
	s.Log()
	return err
}

// interruptContext returns a context that is cancelled on SIGINT, so that the external tool is
// stopped along with this process.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	bin := fs.String("bin", "yolo", "The external tool `executable`")
	task := fs.String("task", "detect", "The `task` {detect, classify, segment, pose}")
	cache := fs.String("cache", "ram", "Dataset caching {ram, disk, none}")
	var o yoloprep.TrainOptions
	fs.StringVar(&o.Model, "model", "", "The pretrained model `path`")
	fs.StringVar(&o.Data, "data", "", "The dataset descriptor `path` (dataset root for classify)")
	fs.IntVar(&o.Epochs, "epochs", 50, "The number of training epochs")
	fs.IntVar(&o.ImgSize, "imgsz", 640, "The input image size, a multiple of 32")
	fs.IntVar(&o.Batch, "batch", 16, "The batch size")
	fs.StringVar(&o.Device, "device", "0", "The training device, e.g. 0, 0,1 or cpu")
	fs.Float64Var(&o.LR0, "lr0", 0.01, "The initial learning rate")
	fs.IntVar(&o.Workers, "workers", 0, "The number of data loader workers")
	fs.StringVar(&o.Project, "project", "", "The results root directory")
	fs.StringVar(&o.Name, "name", "train", "The run name")
	if err := parseFlags(fs, args, "model", "data"); err != nil {
		return err
	}

	var err error
	if o.Task, err = yoloprep.ParseTask(*task); err != nil {
		return err
	}
	if o.Cache, err = yoloprep.ParseCacheMode(*cache); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()
	return yoloprep.RunTool(ctx, *bin, o.Args())
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	bin := fs.String("bin", "yolo", "The external tool `executable`")
	task := fs.String("task", "detect", "The `task` {detect, classify, segment, pose}")
	var o yoloprep.PredictOptions
	fs.StringVar(&o.Model, "model", "", "The trained model `path`")
	fs.StringVar(&o.Source, "source", "", "The image, video or directory `path` to run on")
	fs.Float64Var(&o.Conf, "conf", 0.25, "The minimum confidence")
	fs.IntVar(&o.ImgSize, "imgsz", 0, "The input image size (model default if zero)")
	fs.StringVar(&o.Device, "device", "", "The inference device")
	fs.BoolVar(&o.SaveTxt, "save-txt", true, "Write YOLO label files for the predictions")
	fs.StringVar(&o.Project, "project", "", "The results root directory")
	fs.StringVar(&o.Name, "name", "predict", "The run name")
	if err := parseFlags(fs, args, "model", "source"); err != nil {
		return err
	}

	var err error
	if o.Task, err = yoloprep.ParseTask(*task); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()
	return yoloprep.RunTool(ctx, *bin, o.Args())
}
