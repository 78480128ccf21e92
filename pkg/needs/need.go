// Package needs contains the need model shared by the docs builder, the metamodel checks and
// the UML drawings.
package needs

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/etas-contrib/score-docs-as-code/pkg/sourcelinks"
)

const (
	backSuffix     = "_back"
	sourceCodeLink = "source_code_link"
)

// Need is a single traceable item (requirement, feature, component, interface, ...)
type Need struct {
	ID      string
	Type    string
	Title   string
	Status  string
	Docname string
	Lineno  int
	Content string

	// Options holds all remaining string options
	Options map[string]string
	// Links maps link names (includes, implements, ...) to target IDs
	Links map[string][]string
	// BackLinks is computed by Set.ComputeBackLinks and keyed by the forward link name
	BackLinks map[string][]string

	SourceCodeLinks []string
}

// New returns an empty need with all maps initialized
func New(id, typ, title string) *Need {
	return &Need{
		ID:        id,
		Type:      typ,
		Title:     title,
		Options:   map[string]string{},
		Links:     map[string][]string{},
		BackLinks: map[string][]string{},
	}
}

// Option returns the value of a named option. The fixed fields (id, type, title, status) are included.
func (n *Need) Option(name string) (string, bool) {
	switch name {
	case "id":
		return n.ID, n.ID != ""
	case "type":
		return n.Type, n.Type != ""
	case "title":
		return n.Title, n.Title != ""
	case "status":
		return n.Status, n.Status != ""
	}

	value, ok := n.Options[name]
	return value, ok
}

// MarshalJSON produces the flat object layout used by sphinx-needs
func (n *Need) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(n.Options)+len(n.Links)*2+8)
	for k, v := range n.Options {
		flat[k] = v
	}

	for k, v := range n.Links {
		flat[k] = nonNil(v)
	}

	for k, v := range n.BackLinks {
		flat[k+backSuffix] = nonNil(v)
	}

	flat["id"] = n.ID
	flat["type"] = n.Type
	flat["title"] = n.Title
	flat["status"] = n.Status
	flat["docname"] = n.Docname
	flat["lineno"] = n.Lineno
	flat["content"] = n.Content
	flat[sourceCodeLink] = nonNil(n.SourceCodeLinks)

	return json.Marshal(flat)
}

// UnmarshalJSON accepts the flat sphinx-needs layout. Lists become links (or back links if their name ends
// with _back), strings become options.
func (n *Need) UnmarshalJSON(data []byte) error {
	var flat map[string]interface{}
	err := json.Unmarshal(data, &flat)
	if err != nil {
		return err
	}

	*n = *New("", "", "")
	for key, raw := range flat {
		switch key {
		case "id":
			n.ID, _ = raw.(string)
			continue
		case "type":
			n.Type, _ = raw.(string)
			continue
		case "title":
			n.Title, _ = raw.(string)
			continue
		case "status":
			n.Status, _ = raw.(string)
			continue
		case "docname":
			n.Docname, _ = raw.(string)
			continue
		case "content":
			n.Content, _ = raw.(string)
			continue
		case "lineno":
			if num, ok := raw.(float64); ok {
				n.Lineno = int(num)
			}
			continue
		}

		switch value := raw.(type) {
		case string:
			n.Options[key] = value
		case []interface{}:
			items := make([]string, 0, len(value))
			for _, item := range value {
				if str, ok := item.(string); ok {
					items = append(items, str)
				}
			}

			switch {
			case key == sourceCodeLink:
				n.SourceCodeLinks = items
			case strings.HasSuffix(key, backSuffix):
				n.BackLinks[strings.TrimSuffix(key, backSuffix)] = items
			default:
				n.Links[key] = items
			}
		}
	}

	return nil
}

// Set maps need IDs to needs
type Set map[string]*Need

// Add inserts a need, duplicate IDs are rejected
func (s Set) Add(need *Need) error {
	if need == nil {
		return eris.New("need must not be nil")
	}
	if need.ID == "" {
		return eris.New("need id must not be empty")
	}

	if existing, ok := s[need.ID]; ok {
		return eris.Errorf("duplicate need %s (already defined in %s)", need.ID, existing.Docname)
	}

	s[need.ID] = need
	return nil
}

// Get returns the need with the given ID or nil
func (s Set) Get(id string) *Need {
	return s[id]
}

// IDs returns all IDs in sorted order
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ComputeBackLinks rebuilds the back links of all needs from their forward links
func (s Set) ComputeBackLinks() {
	for _, need := range s {
		need.BackLinks = map[string][]string{}
	}

	for _, id := range s.IDs() {
		need := s[id]

		linkNames := make([]string, 0, len(need.Links))
		for name := range need.Links {
			linkNames = append(linkNames, name)
		}
		sort.Strings(linkNames)

		for _, name := range linkNames {
			for _, target := range need.Links[name] {
				targetNeed, ok := s[target]
				if !ok {
					continue
				}

				if !contains(targetNeed.BackLinks[name], id) {
					targetNeed.BackLinks[name] = append(targetNeed.BackLinks[name], id)
				}
			}
		}
	}
}

// AttachSourceLinks records the location of each link on its need. Links pointing to unknown needs are
// returned.
func (s Set) AttachSourceLinks(links []sourcelinks.NeedLink) []sourcelinks.NeedLink {
	unknown := []sourcelinks.NeedLink{}
	for _, link := range links {
		need, ok := s[link.Need]
		if !ok {
			unknown = append(unknown, link)
			continue
		}

		location := link.Location()
		if !contains(need.SourceCodeLinks, location) {
			need.SourceCodeLinks = append(need.SourceCodeLinks, location)
		}
	}

	return unknown
}

func contains(list []string, item string) bool {
	for _, entry := range list {
		if entry == item {
			return true
		}
	}
	return false
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
