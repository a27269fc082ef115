// Package catalog holds the illustration prompt table and resolves
// identifiers into the prompts sent to the image generator.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/basel-ax/illustrator/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Preamble  string            `yaml:"preamble"`
	Fragments map[string]string `yaml:"fragments"`
	Generated []string          `yaml:"generated"`
	Prompts   []struct {
		ID       string `yaml:"id"`
		Fragment string `yaml:"fragment"`
		Text     string `yaml:"text"`
	} `yaml:"prompts"`
}

// Catalog is an immutable, ordered prompt table.
type Catalog struct {
	preamble  string
	fragments map[string]string
	entries   []domain.PromptEntry
	index     map[string]int
	excluded  map[string]struct{}
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	entries := make([]domain.PromptEntry, 0, len(f.Prompts))
	for _, p := range f.Prompts {
		entries = append(entries, domain.PromptEntry{ID: p.ID, Text: p.Text, Fragment: p.Fragment})
	}

	return New(f.Preamble, f.Fragments, entries, f.Generated)
}

// New builds a catalog from its parts. Entries keep their order.
func New(preamble string, fragments map[string]string, entries []domain.PromptEntry, generated []string) (*Catalog, error) {
	c := &Catalog{
		preamble:  preamble,
		fragments: make(map[string]string, len(fragments)),
		entries:   make([]domain.PromptEntry, 0, len(entries)),
		index:     make(map[string]int, len(entries)),
		excluded:  make(map[string]struct{}, len(generated)),
	}
	for name, text := range fragments {
		c.fragments[name] = text
	}

	for _, e := range entries {
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("prompt #%d has an empty id", len(c.entries)+1)
		}
		if _, dup := c.index[e.ID]; dup {
			return nil, fmt.Errorf("duplicate prompt id %q", e.ID)
		}
		if strings.TrimSpace(e.Text) == "" {
			return nil, fmt.Errorf("prompt %q has empty text", e.ID)
		}
		if e.Fragment != "" {
			if _, ok := c.fragments[e.Fragment]; !ok {
				return nil, fmt.Errorf("prompt %q references unknown fragment %q", e.ID, e.Fragment)
			}
		}
		c.index[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}

	for _, id := range generated {
		if id = strings.TrimSpace(id); id != "" {
			c.excluded[id] = struct{}{}
		}
	}

	return c, nil
}

// Preamble returns the shared style text placed before every prompt.
func (c *Catalog) Preamble() string {
	return c.preamble
}

// Len returns the number of defined prompts.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// IDs returns every defined identifier in definition order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.entries))
	for i, e := range c.entries {
		ids[i] = e.ID
	}
	return ids
}

// Entry looks up a prompt entry.
func (c *Catalog) Entry(id string) (domain.PromptEntry, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.PromptEntry{}, false
	}
	return c.entries[i], true
}

// Text returns the item-specific text for id: its fragment, if any,
// followed by its own text.
func (c *Catalog) Text(id string) (string, error) {
	e, ok := c.Entry(id)
	if !ok {
		return "", &domain.UnknownIdentifierError{ID: id}
	}
	return c.fragments[e.Fragment] + e.Text, nil
}

// Resolve returns the full prompt for id: the preamble immediately
// followed by the item-specific text.
func (c *Catalog) Resolve(id string) (string, error) {
	text, err := c.Text(id)
	if err != nil {
		return "", err
	}
	return c.preamble + text, nil
}

// IsExcluded reports whether id is on the already-generated list.
func (c *Catalog) IsExcluded(id string) bool {
	_, ok := c.excluded[id]
	return ok
}

// ExcludedCount returns the size of the already-generated list.
func (c *Catalog) ExcludedCount() int {
	return len(c.excluded)
}

// WorkingSet returns the defined identifiers that are neither on the
// already-generated list nor in skip, in definition order.
func (c *Catalog) WorkingSet(skip map[string]struct{}) []string {
	ids := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		if c.IsExcluded(e.ID) {
			continue
		}
		if _, ok := skip[e.ID]; ok {
			continue
		}
		ids = append(ids, e.ID)
	}
	return ids
}

// Filter keeps the identifiers that match at least one prefix. An empty
// prefix list keeps everything.
func Filter(ids []string, prefixes []string) []string {
	if len(prefixes) == 0 {
		return ids
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(id, p) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}
