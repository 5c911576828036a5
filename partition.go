package yoloprep

import (
	"io/fs"
	"log"
	"math"
	"math/rand"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Split identifies a dataset partition.
type Split int

// The dataset partitions.
const (
	Train Split = iota
	Val
	Test
)

var splitNames = [...]string{"train", "val", "test"}

func (s Split) String() string {
	return splitNames[s]
}

// ratioTolerance is the allowed deviation of the ratio sum from 1.
const ratioTolerance = 1e-6

// Ratio is the fraction of the data assigned to each partition. The parts must add up to 1.
type Ratio struct {
	Train, Val, Test float64
}

// ParseRatio parses a comma-separated ratio with 2 (train,val) or 3 (train,val,test) parts.
func ParseRatio(s string) (Ratio, error) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return Ratio{}, errors.Wrapf(ErrConfig, "ratio %q must have 2 or 3 parts", s)
	}

	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Ratio{}, errors.Wrapf(ErrConfig, "invalid value in ratio %q", s)
		}
		v[i] = f
	}

	r := Ratio{Train: v[0], Val: v[1], Test: v[2]}
	return r, r.Validate()
}

// Validate checks that no part is negative and that the parts add up to 1.
func (r Ratio) Validate() error {
	if r.Train < 0 || r.Val < 0 || r.Test < 0 {
		return errors.Wrapf(ErrConfig, "negative ratio %v", r)
	}
	if math.Abs(r.Train+r.Val+r.Test-1) > ratioTolerance {
		return errors.Wrapf(ErrConfig, "ratio %v does not add up to 1", r)
	}
	return nil
}

// Splits returns the partitions that receive data. Train and Val are always present.
func (r Ratio) Splits() []Split {
	if r.Test > 0 {
		return []Split{Train, Val, Test}
	}
	return []Split{Train, Val}
}

// boundary returns the truncated index at cumulative fraction cum of n items. The small epsilon
// absorbs float error in sums such as 0.6+0.3.
func boundary(n int, cum float64) int {
	b := int(float64(n)*cum + 1e-9)
	if b > n {
		return n
	}
	return b
}

// Item is one image, with its label file for detection datasets and its class for grouped splits.
type Item struct {
	Class string
	Image string
	Label string
}

// PartitionOptions configures Partition.
type PartitionOptions struct {
	// Split each class on its own, preserving the ratio per class.
	Grouped bool
	// The seed for shuffling. The same seed and input order give the same split.
	Seed    int64
	Shuffle bool
}

// Assignment holds the items of each partition, indexed by Split.
type Assignment [3][]Item

// Counts returns the number of items in each partition.
func (a Assignment) Counts() [3]int {
	return [3]int{len(a[Train]), len(a[Val]), len(a[Test])}
}

// Partition assigns every item to exactly one partition.
//
// Items are optionally shuffled, then [0, n*train) goes to Train, [n*train, n*(train+val)) to Val
// and the rest to Test, with boundaries truncated. If ratio has no test part, Val runs to the end, so
// only the partitions in ratio.Splits receive items. Grouped partitions each class separately,
// classes in sorted order.
func Partition(items []Item, ratio Ratio, opts PartitionOptions) (Assignment, error) {
	var a Assignment
	if err := ratio.Validate(); err != nil {
		return a, err
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	assign := func(group []Item) {
		group = append([]Item(nil), group...)
		if opts.Shuffle {
			rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		}
		trainEnd := boundary(len(group), ratio.Train)
		valEnd := boundary(len(group), ratio.Train+ratio.Val)
		if ratio.Test == 0 {
			// Without a test partition, val takes whatever truncation leaves over.
			valEnd = len(group)
		}
		a[Train] = append(a[Train], group[:trainEnd]...)
		a[Val] = append(a[Val], group[trainEnd:valEnd]...)
		a[Test] = append(a[Test], group[valEnd:]...)
	}

	if !opts.Grouped {
		assign(items)
		return a, nil
	}

	groups := make(map[string][]Item)
	for _, it := range items {
		groups[it.Class] = append(groups[it.Class], it)
	}
	classes := make([]string, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		assign(groups[c])
	}

	return a, nil
}

// SplitResult reports the outcome of a dataset split.
type SplitResult struct {
	Counts         [3]int   // Items copied per partition.
	DescriptorPath string   // The written dataset descriptor, if any.
	Missing        []string // Images excluded for lack of a label file.
	Orphans        []string // Label files without an image, not copied.
	Renamed        int      // Items renamed to avoid overwriting an existing file.
}

// Log prints the result.
func (r SplitResult) Log() {
	log.Printf("train: %d, val: %d, test: %d", r.Counts[Train], r.Counts[Val], r.Counts[Test])
	if len(r.Missing) > 0 {
		log.Printf("Excluded %d images without a label file", len(r.Missing))
	}
	if len(r.Orphans) > 0 {
		log.Printf("Ignored %d label files without an image", len(r.Orphans))
	}
	if r.Renamed > 0 {
		log.Printf("Renamed %d items to avoid overwriting existing files", r.Renamed)
	}
	if r.DescriptorPath != "" {
		log.Printf("Wrote the dataset descriptor to %s", r.DescriptorPath)
	}
}

// Partitioner splits image directories into dataset partitions on disk.
type Partitioner struct {
	// If set, SplitDetection writes a dataset descriptor with these class names.
	Catalog   *Catalog
	ImageExts []string
	Options   PartitionOptions
	Ratio     Ratio
}

func (p *Partitioner) imageExts() []string {
	if len(p.ImageExts) == 0 {
		return DefaultImageExts
	}
	return p.ImageExts
}

// firstClass returns the class index of the first line of the label file at path, or "none" for an
// empty file. It is the grouping key of detection items.
func firstClass(path string) string {
	lines, _, err := ReadLabelFile(path)
	if err != nil || len(lines) == 0 {
		return "none"
	}
	return strconv.Itoa(lines[0].Class)
}

// orphanLabels returns the label files (.txt) in labelDir whose base name matches none of images.
func orphanLabels(images []string, labelDir string) []string {
	labels, err := filesByExtInDir(labelDir, ".txt")
	if err != nil {
		log.Printf("Cannot list the label files: %v", err)
		return nil
	}

	stems := make(map[string]struct{}, len(images))
	for _, img := range images {
		stems[baseNoExt(img)] = struct{}{}
	}
	var orphans []string
	for _, l := range labels {
		if _, ok := stems[baseNoExt(l)]; !ok {
			log.Printf("No image for label file %q, excluded from the split", l)
			orphans = append(orphans, l)
		}
	}
	return orphans
}

// SplitDetection pairs the images in imageDir with their label files (.txt) in labelDir by base
// name and copies them into outDir/images/<split> and outDir/labels/<split>.
//
// Images without a label file are excluded from the split and reported in SplitResult.Missing, and
// label files without an image in SplitResult.Orphans. If a different file of the same name already
// exists at the destination, the image and label are copied under a new name with a _dup suffix.
func (p *Partitioner) SplitDetection(imageDir, labelDir, outDir string) (SplitResult, error) {
	var res SplitResult
	if err := p.Ratio.Validate(); err != nil {
		return res, err
	}
	images, err := filesByExtInDir(imageDir, p.imageExts()...)
	if err != nil {
		return res, errors.Wrap(ErrConfig, err.Error())
	}

	res.Orphans = orphanLabels(images, labelDir)

	items := make([]Item, 0, len(images))
	for _, img := range images {
		label := withExt(labelDir, img, ".txt")
		if !fileExists(label) {
			log.Printf("No label file for %q, excluded from the split", img)
			res.Missing = append(res.Missing, img)
			continue
		}
		it := Item{Image: img, Label: label}
		if p.Options.Grouped {
			it.Class = firstClass(label)
		}
		items = append(items, it)
	}

	a, err := Partition(items, p.Ratio, p.Options)
	if err != nil {
		return res, err
	}

	claimed := make(map[string]bool)
	for _, s := range p.Ratio.Splits() {
		imgDir := filepath.Join(outDir, "images", s.String())
		lblDir := filepath.Join(outDir, "labels", s.String())
		if err := ensureDirs(imgDir, lblDir); err != nil {
			return res, err
		}

		for _, it := range a[s] {
			ext := filepath.Ext(it.Image)
			stem := baseNoExt(it.Image)
			dst := uniqueStem(stem, []string{it.Image, it.Label}, []string{imgDir, lblDir},
				[]string{ext, ".txt"}, claimed)
			if dst != stem {
				res.Renamed++
			}
			if err := copyFile(it.Image, filepath.Join(imgDir, dst+ext)); err != nil {
				return res, err
			}
			if err := copyFile(it.Label, filepath.Join(lblDir, dst+".txt")); err != nil {
				return res, err
			}
			res.Counts[s]++
		}
	}

	if p.Catalog != nil {
		d := NewDescriptor(outDir, p.Ratio.Test > 0, p.Catalog)
		res.DescriptorPath = filepath.Join(outDir, DescriptorFileName)
		if err := WriteDescriptor(res.DescriptorPath, d); err != nil {
			return res, err
		}
	}

	return res, nil
}

// SplitClassification collects all images below rawRoot, taking the name of the directory holding
// each image as its class, and copies them into outRoot/<split>/<class>. Every class is split on its
// own. outRoot is not scanned if it lies within rawRoot.
func (p *Partitioner) SplitClassification(rawRoot, outRoot string) (SplitResult, error) {
	var res SplitResult
	if err := p.Ratio.Validate(); err != nil {
		return res, err
	}

	absOut, _ := filepath.Abs(outRoot)
	var items []Item
	err := filepath.WalkDir(rawRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if abs, _ := filepath.Abs(path); abs == absOut {
				return filepath.SkipDir
			}
			return nil
		}
		if hasExt(d.Name(), p.imageExts()) {
			items = append(items, Item{Class: filepath.Base(filepath.Dir(path)), Image: path})
		}
		return nil
	})
	if err != nil {
		return res, errors.Wrap(ErrConfig, err.Error())
	}
	if len(items) == 0 {
		log.Printf("No images found in %q", rawRoot)
		return res, nil
	}

	opts := p.Options
	opts.Grouped = true
	a, err := Partition(items, p.Ratio, opts)
	if err != nil {
		return res, err
	}

	claimed := make(map[string]bool)
	for _, s := range p.Ratio.Splits() {
		for _, it := range a[s] {
			dir := filepath.Join(outRoot, s.String(), it.Class)
			if err := ensureDirs(dir); err != nil {
				return res, err
			}
			ext := filepath.Ext(it.Image)
			stem := baseNoExt(it.Image)
			dst := uniqueStem(stem, []string{it.Image}, []string{dir}, []string{ext}, claimed)
			if dst != stem {
				res.Renamed++
			}
			if err := copyFile(it.Image, filepath.Join(dir, dst+ext)); err != nil {
				return res, err
			}
			res.Counts[s]++
		}
	}

	return res, nil
}
