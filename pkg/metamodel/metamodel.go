// Package metamodel describes the allowed need types, checks need sets against them and draws the
// metamodel as a PlantUML class diagram.
package metamodel

import (
	_ "embed"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed default_metamodel.yaml
var defaultMetamodel []byte

// Option is a need option together with the regular expression its value has to match
type Option struct {
	Name    string
	Pattern string

	re *regexp.Regexp
}

// Matches reports whether value is acceptable for this option
func (o Option) Matches(value string) bool {
	if o.re == nil {
		return true
	}
	return o.re.MatchString(value)
}

// Options keeps the order in which options were declared
type Options []Option

// UnmarshalYAML reads a mapping of option name to pattern
func (o *Options) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return eris.Errorf("line %d: expected a mapping of option names to patterns", value.Line)
	}

	result := make(Options, 0, len(value.Content)/2)
	for idx := 0; idx+1 < len(value.Content); idx += 2 {
		result = append(result, Option{
			Name:    value.Content[idx].Value,
			Pattern: value.Content[idx+1].Value,
		})
	}

	*o = result
	return nil
}

// Get returns the named option
func (o Options) Get(name string) (Option, bool) {
	for _, opt := range o {
		if opt.Name == name {
			return opt, true
		}
	}
	return Option{}, false
}

// Link is an outgoing link with its allowed target directives
type Link struct {
	Name    string
	Targets []string
}

// Links keeps the order in which links were declared
type Links []Link

// UnmarshalYAML reads a mapping of link names to targets. Targets may be a comma separated string,
// a list of strings or a list of {directive: name} mappings.
func (l *Links) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return eris.Errorf("line %d: expected a mapping of link names to targets", value.Line)
	}

	result := make(Links, 0, len(value.Content)/2)
	for idx := 0; idx+1 < len(value.Content); idx += 2 {
		targets, err := linkTargets(value.Content[idx+1])
		if err != nil {
			return eris.Wrapf(err, "link %s", value.Content[idx].Value)
		}

		result = append(result, Link{Name: value.Content[idx].Value, Targets: targets})
	}

	*l = result
	return nil
}

// Get returns the named link
func (l Links) Get(name string) (Link, bool) {
	for _, link := range l {
		if link.Name == name {
			return link, true
		}
	}
	return Link{}, false
}

func linkTargets(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		result := []string{}
		for _, part := range strings.Split(node.Value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				result = append(result, part)
			}
		}
		return result, nil
	case yaml.SequenceNode:
		result := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				result = append(result, item.Value)
			case yaml.MappingNode:
				var target struct {
					Directive string `yaml:"directive"`
				}
				err := item.Decode(&target)
				if err != nil {
					return nil, err
				}
				if target.Directive == "" {
					return nil, eris.Errorf("line %d: link target without directive", item.Line)
				}
				result = append(result, target.Directive)
			default:
				return nil, eris.Errorf("line %d: unexpected link target", item.Line)
			}
		}
		return result, nil
	}

	return nil, eris.Errorf("line %d: unexpected link targets", node.Line)
}

// NeedType describes one need directive
type NeedType struct {
	Directive        string  `yaml:"directive"`
	Title            string  `yaml:"title"`
	Prefix           string  `yaml:"prefix"`
	Color            string  `yaml:"color"`
	Style            string  `yaml:"style"`
	MandatoryOptions Options `yaml:"mandatory_options"`
	OptionalOptions  Options `yaml:"optional_options"`
	MandatoryLinks   Links   `yaml:"mandatory_links"`
	OptionalLinks    Links   `yaml:"optional_links"`
}

// AllLinks returns the mandatory links followed by the optional ones. An optional link with the same name
// replaces the mandatory definition's targets.
func (t *NeedType) AllLinks() Links {
	result := make(Links, 0, len(t.MandatoryLinks)+len(t.OptionalLinks))
	result = append(result, t.MandatoryLinks...)

	for _, link := range t.OptionalLinks {
		replaced := false
		for idx := range result {
			if result[idx].Name == link.Name {
				result[idx] = link
				replaced = true
				break
			}
		}

		if !replaced {
			result = append(result, link)
		}
	}

	return result
}

type typeList []NeedType

// UnmarshalYAML accepts either a mapping of directive → type or a list of types with a directive field
func (l *typeList) UnmarshalYAML(value *yaml.Node) error {
	result := typeList{}

	switch value.Kind {
	case yaml.MappingNode:
		for idx := 0; idx+1 < len(value.Content); idx += 2 {
			var nt NeedType
			err := value.Content[idx+1].Decode(&nt)
			if err != nil {
				return eris.Wrapf(err, "failed to decode need type %s", value.Content[idx].Value)
			}

			nt.Directive = value.Content[idx].Value
			result = append(result, nt)
		}
	case yaml.SequenceNode:
		for _, item := range value.Content {
			var nt NeedType
			err := item.Decode(&nt)
			if err != nil {
				return eris.Wrapf(err, "failed to decode need type at line %d", item.Line)
			}

			if nt.Directive == "" {
				return eris.Errorf("line %d: need type without directive", item.Line)
			}
			result = append(result, nt)
		}
	default:
		return eris.Errorf("line %d: needs_types must be a mapping or a list", value.Line)
	}

	*l = result
	return nil
}

type extraLinks []string

func (l *extraLinks) UnmarshalYAML(value *yaml.Node) error {
	result := extraLinks{}

	switch value.Kind {
	case yaml.MappingNode:
		for idx := 0; idx+1 < len(value.Content); idx += 2 {
			result = append(result, value.Content[idx].Value)
		}
	case yaml.SequenceNode:
		for _, item := range value.Content {
			var link struct {
				Option string `yaml:"option"`
			}

			if item.Kind == yaml.ScalarNode {
				link.Option = item.Value
			} else if err := item.Decode(&link); err != nil {
				return err
			}

			if link.Option != "" {
				result = append(result, link.Option)
			}
		}
	}

	*l = result
	return nil
}

// Metamodel is the complete set of need types
type Metamodel struct {
	Types      []NeedType
	ExtraLinks []string
}

type rawMetamodel struct {
	NeedsTypes      typeList   `yaml:"needs_types"`
	NeedsExtraLinks extraLinks `yaml:"needs_extra_links"`
}

// Parse decodes a metamodel YAML document and compiles all option patterns
func Parse(data []byte) (*Metamodel, error) {
	var raw rawMetamodel
	err := yaml.Unmarshal(data, &raw)
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse metamodel")
	}

	mm := &Metamodel{
		Types:      raw.NeedsTypes,
		ExtraLinks: raw.NeedsExtraLinks,
	}

	seen := make(map[string]bool, len(mm.Types))
	for idx := range mm.Types {
		nt := &mm.Types[idx]
		if seen[nt.Directive] {
			return nil, eris.Errorf("need type %s is declared twice", nt.Directive)
		}
		seen[nt.Directive] = true

		for _, opts := range []Options{nt.MandatoryOptions, nt.OptionalOptions} {
			for o := range opts {
				if opts[o].Pattern == "" {
					continue
				}

				opts[o].re, err = regexp.Compile(opts[o].Pattern)
				if err != nil {
					return nil, eris.Wrapf(err, "invalid pattern for %s.%s", nt.Directive, opts[o].Name)
				}
			}
		}
	}

	return mm, nil
}

// Load reads a metamodel from a YAML file
func Load(path string) (*Metamodel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}

	mm, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "in %s", path)
	}
	return mm, nil
}

// Default returns the built-in metamodel
func Default() *Metamodel {
	mm, err := Parse(defaultMetamodel)
	if err != nil {
		panic(err)
	}
	return mm
}

// Type returns the need type for the given directive
func (m *Metamodel) Type(directive string) (*NeedType, bool) {
	for idx := range m.Types {
		if m.Types[idx].Directive == directive {
			return &m.Types[idx], true
		}
	}
	return nil, false
}

// Directives returns the set of all known directive names
func (m *Metamodel) Directives() map[string]bool {
	result := make(map[string]bool, len(m.Types))
	for _, nt := range m.Types {
		result[nt.Directive] = true
	}
	return result
}

// LinkNames returns every link name used by any type plus the extra links
func (m *Metamodel) LinkNames() map[string]bool {
	result := map[string]bool{}
	for _, nt := range m.Types {
		for _, link := range nt.AllLinks() {
			result[link.Name] = true
		}
	}

	for _, name := range m.ExtraLinks {
		result[name] = true
	}
	return result
}

// SortedDirectives returns the directive names in alphabetical order
func (m *Metamodel) SortedDirectives() []string {
	result := make([]string, 0, len(m.Types))
	for _, nt := range m.Types {
		result = append(result, nt.Directive)
	}
	sort.Strings(result)
	return result
}
