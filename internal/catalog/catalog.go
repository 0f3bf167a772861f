// Package catalog holds the static civic topics and the resource directory.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type ResourceType string

const (
	ResourceForm    ResourceType = "form"
	ResourceGuide   ResourceType = "guide"
	ResourceContact ResourceType = "contact"
)

// Topic is a shortcut the user can pick to start a question.
type Topic struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Icon        string   `yaml:"icon" json:"icon"`
	Examples    []string `yaml:"examples" json:"examples"`
}

// Prompt is the question sent when the topic is selected.
func (t Topic) Prompt() string {
	return "Tell me about " + strings.ToLower(t.Title)
}

// Resource is an official form, guide or contact.
type Resource struct {
	ID          string       `yaml:"id" json:"id"`
	Title       string       `yaml:"title" json:"title"`
	Description string       `yaml:"description" json:"description"`
	Type        ResourceType `yaml:"type" json:"type"`
	DownloadURL string       `yaml:"download_url,omitempty" json:"downloadUrl,omitempty"`
	Content     string       `yaml:"content" json:"content"`
	ExternalURL string       `yaml:"external_url,omitempty" json:"externalUrl,omitempty"`
}

// Catalog is an immutable set of topics and resources.
type Catalog struct {
	Topics    []Topic    `yaml:"topics"`
	Resources []Resource `yaml:"resources"`
}

var builtin = mustParse(catalogYAML)

// Default returns the built-in catalog.
func Default() *Catalog {
	return builtin
}

func mustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a catalog and checks that ids are present and unique.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	seen := make(map[string]bool)
	for _, t := range c.Topics {
		if t.ID == "" {
			return nil, fmt.Errorf("topic %q has no id", t.Title)
		}
		if seen["topic:"+t.ID] {
			return nil, fmt.Errorf("duplicate topic id %q", t.ID)
		}
		seen["topic:"+t.ID] = true
	}
	for _, r := range c.Resources {
		if r.ID == "" {
			return nil, fmt.Errorf("resource %q has no id", r.Title)
		}
		if seen["resource:"+r.ID] {
			return nil, fmt.Errorf("duplicate resource id %q", r.ID)
		}
		switch r.Type {
		case ResourceForm, ResourceGuide, ResourceContact:
		default:
			return nil, fmt.Errorf("resource %q: unknown type %q", r.ID, r.Type)
		}
		seen["resource:"+r.ID] = true
	}
	return &c, nil
}

// Topic looks up a topic by id.
func (c *Catalog) Topic(id string) (Topic, bool) {
	for _, t := range c.Topics {
		if t.ID == id {
			return t, true
		}
	}
	return Topic{}, false
}

// Resource looks up a resource by id.
func (c *Catalog) Resource(id string) (Resource, bool) {
	for _, r := range c.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// FindResources returns resources of type typ (any type if empty) whose
// title or description contains query, ignoring case.
func (c *Catalog) FindResources(typ ResourceType, query string) []Resource {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Resource, 0, len(c.Resources))
	for _, r := range c.Resources {
		if typ != "" && r.Type != typ {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(r.Title), q) &&
			!strings.Contains(strings.ToLower(r.Description), q) {
			continue
		}
		out = append(out, r)
	}
	return out
}
