package metamodel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

var arrows = map[RelationKind]string{
	Association: "-->",
	Undirected:  "--",
	Inheritance: "<|--",
	Implements:  "<|..",
	Dependency:  "..>",
	Composition: "*--",
	Aggregation: "o--",
}

// PlantUMLRenderer turns a ClassDiagram into PlantUML text. The @startuml / @enduml frame is left to the
// caller.
type PlantUMLRenderer struct{}

// Render produces deterministic output: classes are sorted by name and relations by source, destination,
// kind and label.
func (PlantUMLRenderer) Render(d *ClassDiagram) (string, error) {
	classes := make([]*ClassNode, 0, len(d.Classes))
	for _, node := range d.Classes {
		classes = append(classes, node)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })

	relations := make([]Relation, len(d.Relations))
	copy(relations, d.Relations)
	sort.SliceStable(relations, func(i, j int) bool {
		a, b := relations[i], relations[j]
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		if a.Dst != b.Dst {
			return a.Dst < b.Dst
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Label < b.Label
	})

	aliases := newAliasMap()
	buf := strings.Builder{}

	for _, c := range classes {
		id, err := aliases.get(c.Name)
		if err != nil {
			return "", err
		}

		if c.Stereotype != "" {
			fmt.Fprintf(&buf, "class %s as %s <<%s>> {\n", id, quote(c.Name), escapeStereotype(c.Stereotype))
		} else {
			fmt.Fprintf(&buf, "class %s as %s {\n", id, quote(c.Name))
		}

		for _, m := range c.Members {
			if m.TypeHint != "" {
				fmt.Fprintf(&buf, "  %s %s : %s\n", m.Visibility, m.Name, m.TypeHint)
			} else {
				fmt.Fprintf(&buf, "  %s %s\n", m.Visibility, m.Name)
			}
		}
		buf.WriteString("}\n")
	}

	for _, r := range relations {
		src, err := aliases.get(r.Src)
		if err != nil {
			return "", err
		}

		dst, err := aliases.get(r.Dst)
		if err != nil {
			return "", err
		}

		arrow, ok := arrows[r.Kind]
		if !ok {
			return "", eris.Errorf("unknown relation kind %q", r.Kind)
		}

		if r.Label != "" {
			fmt.Fprintf(&buf, "%s %s %s : %s\n", src, arrow, dst, escapeLabel(r.Label))
		} else {
			fmt.Fprintf(&buf, "%s %s %s\n", src, arrow, dst)
		}
	}

	return buf.String(), nil
}

func quote(text string) string {
	return `"` + strings.ReplaceAll(text, `"`, `\"`) + `"`
}

func escapeLabel(text string) string {
	text = strings.NewReplacer("\n", " ", "\r", " ").Replace(text)
	return strings.ReplaceAll(text, ":", `\:`)
}

func escapeStereotype(text string) string {
	return strings.NewReplacer("\n", " ", "\r", " ", "<<", "< <", ">>", "> >").Replace(text)
}

// aliasMap hands out readable, collision free PlantUML identifiers
type aliasMap struct {
	byName map[string]string
	used   map[string]bool
}

func newAliasMap() *aliasMap {
	return &aliasMap{
		byName: map[string]string{},
		used:   map[string]bool{},
	}
}

func (a *aliasMap) get(name string) (string, error) {
	if alias, ok := a.byName[name]; ok {
		return alias, nil
	}

	base := Sanitize(name)
	if base == "" {
		return "", eris.Errorf("cannot create alias for name %q", name)
	}

	alias := base
	for counter := 2; a.used[alias]; counter++ {
		alias = fmt.Sprintf("%s_%d", base, counter)
	}

	a.used[alias] = true
	a.byName[name] = alias
	return alias, nil
}

// Sanitize replaces every character outside [A-Za-z0-9_] with an underscore and trims leading and
// trailing underscores.
func Sanitize(name string) string {
	buf := make([]byte, 0, len(name))
	for _, r := range name {
		if r < 128 && (r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			buf = append(buf, byte(r))
		} else {
			buf = append(buf, '_')
		}
	}

	return strings.Trim(string(buf), "_")
}
