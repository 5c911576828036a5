package yoloprep

import (
	"bufio"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Catalog maps class names to dense class indices 0..N-1. A Catalog is immutable once built, so
// every label file written with it agrees on the class order.
type Catalog struct {
	explicit bool
	indices  map[string]int
	names    []string // Indexed by class index.
}

// DiscoverCatalog builds a catalog from all labels in data, assigning indices in lexicographic order.
// The result does not depend on the order of data.
func DiscoverCatalog(data AnnotatedImages) *Catalog {
	c, _ := NewCatalog(data.Labels())
	c.explicit = false
	return c
}

// NewCatalog builds an explicit catalog where the index of each class is its position in names.
func NewCatalog(names []string) (*Catalog, error) {
	c := &Catalog{
		explicit: true,
		indices:  make(map[string]int, len(names)),
		names:    make([]string, len(names)),
	}
	copy(c.names, names)

	for i, n := range names {
		if _, dup := c.indices[n]; dup {
			return nil, errors.Wrapf(ErrConfig, "duplicate class name %q", n)
		}
		c.indices[n] = i
	}

	return c, nil
}

// LoadCatalog builds an explicit catalog from a name to index table, e.g. to match the class order of
// an existing model. Several names may share an index, but the indices must be dense from 0.
func LoadCatalog(table map[string]int) (*Catalog, error) {
	maxIdx := -1
	for _, idx := range table {
		if idx < 0 {
			return nil, errors.Wrapf(ErrConfig, "negative class index %d", idx)
		}
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	// Use the lexicographically smallest alias as the name of each index.
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := &Catalog{
		explicit: true,
		indices:  make(map[string]int, len(table)),
		names:    make([]string, maxIdx+1),
	}
	assigned := make([]bool, maxIdx+1)
	for _, k := range keys {
		idx := table[k]
		c.indices[k] = idx
		if !assigned[idx] {
			c.names[idx] = k
			assigned[idx] = true
		}
	}
	for idx, ok := range assigned {
		if !ok {
			return nil, errors.Wrapf(ErrConfig, "class indices are not dense, %d is unused", idx)
		}
	}

	return c, nil
}

// ParseCatalogTable parses name=index pairs into an explicit catalog.
func ParseCatalogTable(pairs []string) (*Catalog, error) {
	table := make(map[string]int, len(pairs))
	for _, p := range pairs {
		a := strings.Split(p, "=")
		if len(a) != 2 || a[0] == "" {
			return nil, errors.Wrapf(ErrConfig, "invalid class mapping %q", p)
		}
		idx, err := strconv.Atoi(a[1])
		if err != nil {
			return nil, errors.Wrapf(ErrConfig, "invalid class index in %q", p)
		}
		table[a[0]] = idx
	}
	return LoadCatalog(table)
}

// ReadCatalogFile reads an explicit catalog from a text file with one class name per line. Blank
// lines are ignored.
func ReadCatalogFile(path string) (c *Catalog, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening class names file")
	}
	defer closeWithErrCheck(f, &err)

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			names = append(names, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading %q", path)
	}

	return NewCatalog(names)
}

// Explicit reports whether the catalog was supplied by the caller rather than discovered.
func (c *Catalog) Explicit() bool {
	return c.explicit
}

// Len is the number of classes.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Names returns the class names ordered by index.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)
	return names
}

// Resolve returns the class index of name, or ErrUnknownLabel.
func (c *Catalog) Resolve(name string) (int, error) {
	idx, ok := c.indices[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownLabel, "%q", name)
	}
	return idx, nil
}

// Name returns the class name for index, or ErrUnknownClassIndex.
func (c *Catalog) Name(index int) (string, error) {
	if index < 0 || index >= len(c.names) {
		return "", errors.Wrapf(ErrUnknownClassIndex, "%d", index)
	}
	return c.names[index], nil
}
