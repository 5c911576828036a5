package yoloprep

// Thin wrappers around the external yolo command line tool for training and inference.

import (
	"bufio"
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Task is the kind of model to train or run.
type Task string

// The supported tasks.
const (
	Detect   Task = "detect"
	Classify Task = "classify"
	Segment  Task = "segment"
	Pose     Task = "pose"
)

// ParseTask validates s as a Task.
func ParseTask(s string) (Task, error) {
	switch t := Task(strings.ToLower(s)); t {
	case Detect, Classify, Segment, Pose:
		return t, nil
	}
	return "", errors.Wrapf(ErrConfig, "unknown task %q", s)
}

// CacheMode selects how the training tool caches the decoded dataset.
type CacheMode int

// The cache modes.
const (
	CacheNone CacheMode = iota
	CacheRAM
	CacheDisk
)

// ParseCacheMode accepts "ram" or "true" for CacheRAM, "disk" for CacheDisk, and "", "false" or
// "none" for CacheNone.
func ParseCacheMode(s string) (CacheMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "none":
		return CacheNone, nil
	case "true", "ram":
		return CacheRAM, nil
	case "disk":
		return CacheDisk, nil
	}
	return CacheNone, errors.Wrapf(ErrConfig, "unknown cache mode %q", s)
}

// String returns the value passed to the training tool.
func (c CacheMode) String() string {
	switch c {
	case CacheRAM:
		return "ram"
	case CacheDisk:
		return "disk"
	}
	return "False"
}

// TrainOptions configures a training run.
type TrainOptions struct {
	Batch   int
	Cache   CacheMode
	Data    string // Dataset descriptor, or dataset root for classification.
	Device  string
	Epochs  int
	ImgSize int
	LR0     float64
	Model   string
	Name    string
	Project string
	Task    Task
	Workers int
}

// Validate checks the options before anything is started.
func (o TrainOptions) Validate() error {
	if _, err := ParseTask(string(o.Task)); err != nil {
		return err
	}
	if o.Model == "" {
		return errors.Wrap(ErrConfig, "missing model")
	}
	if _, err := os.Stat(o.Data); err != nil {
		return errors.Wrapf(ErrConfig, "dataset %q: %v", o.Data, err)
	}
	if o.ImgSize <= 0 || o.ImgSize%32 != 0 {
		return errors.Wrapf(ErrConfig, "image size %d must be a positive multiple of 32", o.ImgSize)
	}
	if o.Epochs <= 0 || o.Batch == 0 {
		return errors.Wrap(ErrConfig, "epochs and batch must be set")
	}
	return nil
}

// Args returns the command line arguments for the training tool.
func (o TrainOptions) Args() []string {
	args := []string{
		string(o.Task), "train",
		"model=" + o.Model,
		"data=" + o.Data,
		"epochs=" + strconv.Itoa(o.Epochs),
		"imgsz=" + strconv.Itoa(o.ImgSize),
		"batch=" + strconv.Itoa(o.Batch),
		"workers=" + strconv.Itoa(o.Workers),
		"cache=" + o.Cache.String(),
	}
	if o.Device != "" {
		args = append(args, "device="+o.Device)
	}
	if o.LR0 > 0 {
		args = append(args, "lr0="+strconv.FormatFloat(o.LR0, 'g', -1, 64))
	}
	if o.Project != "" {
		args = append(args, "project="+o.Project)
	}
	if o.Name != "" {
		args = append(args, "name="+o.Name)
	}
	return args
}

// PredictOptions configures an inference run.
type PredictOptions struct {
	Conf    float64
	Device  string
	ImgSize int
	Model   string
	Project string
	Name    string
	SaveTxt bool // Write YOLO label files for the predictions.
	Source  string
	Task    Task
}

// Validate checks the options before anything is started.
func (o PredictOptions) Validate() error {
	if _, err := ParseTask(string(o.Task)); err != nil {
		return err
	}
	if o.Model == "" || o.Source == "" {
		return errors.Wrap(ErrConfig, "missing model or source")
	}
	if o.Conf < 0 || o.Conf > 1 {
		return errors.Wrapf(ErrConfig, "confidence %v must be in [0, 1]", o.Conf)
	}
	return nil
}

// Args returns the command line arguments for the inference tool.
func (o PredictOptions) Args() []string {
	args := []string{
		string(o.Task), "predict",
		"model=" + o.Model,
		"source=" + o.Source,
		"conf=" + strconv.FormatFloat(o.Conf, 'g', -1, 64),
		"save_txt=" + strconv.FormatBool(o.SaveTxt),
	}
	if o.ImgSize > 0 {
		args = append(args, "imgsz="+strconv.Itoa(o.ImgSize))
	}
	if o.Device != "" {
		args = append(args, "device="+o.Device)
	}
	if o.Project != "" {
		args = append(args, "project="+o.Project)
	}
	if o.Name != "" {
		args = append(args, "name="+o.Name)
	}
	return args
}

// RunTool runs the external tool bin with args and forwards its output to the log, line by line.
// The tool is killed when ctx is done.
func RunTool(ctx context.Context, bin string, args []string) error {
	log.Printf("Running %s %s", bin, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, bin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to create stderr pipe")
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", bin)
	}

	var wg sync.WaitGroup
	forward := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			log.Println(scanner.Text())
		}
	}
	wg.Add(2)
	go forward(stdout)
	go forward(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return errors.Wrapf(err, "%s failed", bin)
	}
	return nil
}
