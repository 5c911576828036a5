package yoloprep

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DescriptorFileName is the file name of the dataset descriptor written next to images/ and labels/.
const DescriptorFileName = "dataset.yaml"

// Descriptor tells the training tool where the dataset lives and how to read its class indices.
type Descriptor struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train"`
	Val   string   `yaml:"val"`
	Test  string   `yaml:"test,omitempty"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// NewDescriptor returns the descriptor of a dataset at root laid out by Partitioner.SplitDetection.
func NewDescriptor(root string, withTest bool, catalog *Catalog) Descriptor {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	d := Descriptor{
		Path:  filepath.ToSlash(root),
		Train: "images/" + Train.String(),
		Val:   "images/" + Val.String(),
		NC:    catalog.Len(),
		Names: catalog.Names(),
	}
	if withTest {
		d.Test = "images/" + Test.String()
	}
	return d
}

// Catalog returns the explicit catalog defined by the class names of d.
func (d Descriptor) Catalog() (*Catalog, error) {
	if d.NC != len(d.Names) {
		return nil, errors.Wrapf(ErrConfig, "nc is %d but there are %d names", d.NC, len(d.Names))
	}
	return NewCatalog(d.Names)
}

// WriteDescriptor writes d to path as YAML.
func WriteDescriptor(path string, d Descriptor) error {
	enc, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return errors.Wrapf(err, "cannot write file %q", path)
	}
	return nil
}

// ReadDescriptor reads a dataset descriptor from path.
func ReadDescriptor(path string) (Descriptor, error) {
	var d Descriptor
	enc, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := yaml.Unmarshal(enc, &d); err != nil {
		return d, errors.Wrapf(ErrMalformedDocument, "%q: %v", path, err)
	}
	return d, nil
}
