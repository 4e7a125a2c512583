package verify

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ErrUnknownCategory is returned for a category with no positive prompts.
// It is a configuration error: the submission is rejected, not scored.
var ErrUnknownCategory = errors.New("unknown category")

//go:embed catalog.toml
var defaultCatalog []byte

// Prompts are the candidate labels for one category.
type Prompts struct {
	Positive []string `toml:"positive"`
	Negative []string `toml:"negative"`
}

type catalogFile struct {
	Categories map[string]Prompts `toml:"categories"`
}

// Catalog maps a lower-cased category key to its prompts. It is never
// mutated after construction, so one value can be shared by every request.
type Catalog struct {
	categories map[string]Prompts
}

// NewCatalog builds a catalog from an in-memory table. Keys are lower-cased
// and the prompt slices are copied.
func NewCatalog(categories map[string]Prompts) *Catalog {
	c := &Catalog{categories: make(map[string]Prompts, len(categories))}
	for key, p := range categories {
		c.categories[strings.ToLower(strings.TrimSpace(key))] = Prompts{
			Positive: append([]string(nil), p.Positive...),
			Negative: append([]string(nil), p.Negative...),
		}
	}
	return c
}

// ParseCatalog decodes a TOML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("parse catalog: no categories defined")
	}
	for key, p := range f.Categories {
		if len(p.Positive) == 0 {
			return nil, fmt.Errorf("parse catalog: category %q has no positive prompts", key)
		}
	}
	return NewCatalog(f.Categories), nil
}

// LoadCatalog reads the catalog at path, or the embedded default when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the embedded catalog. It panics if the embedded
// file is malformed, which the package tests guard against.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Prompts returns the prompts for category (case-insensitive).
func (c *Catalog) Prompts(category string) (Prompts, bool) {
	p, ok := c.categories[strings.ToLower(strings.TrimSpace(category))]
	if !ok || len(p.Positive) == 0 {
		return Prompts{}, false
	}
	return p, true
}

// Has reports whether category can be scored.
func (c *Catalog) Has(category string) bool {
	_, ok := c.Prompts(category)
	return ok
}

// Labels returns the positive then negative prompts for category, the
// candidate set sent to the classifier.
func (c *Catalog) Labels(category string) ([]string, error) {
	p, ok := c.Prompts(category)
	if !ok {
		return nil, fmt.Errorf("%q: %w", category, ErrUnknownCategory)
	}
	labels := make([]string, 0, len(p.Positive)+len(p.Negative))
	labels = append(labels, p.Positive...)
	return append(labels, p.Negative...), nil
}

// Categories lists the catalog keys in sorted order.
func (c *Catalog) Categories() []string {
	keys := make([]string, 0, len(c.categories))
	for k := range c.categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
