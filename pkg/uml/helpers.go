// Package uml draws PlantUML architecture views (features, modules, components and interfaces) from a
// set of needs.
package uml

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/etas-contrib/score-docs-as-code/pkg/metamodel"
	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
)

const (
	actorID        = "Feature_User"
	baselibsPrefix = "comp__baselibs_"
	osPrefix       = "comp__os_"
)

var componentTypes = map[string]bool{
	"comp":         true,
	"comp_arc_sta": true,
}

// Drawer renders diagrams for needs looked up in Needs. Missing references are reported to Logger and
// skipped.
type Drawer struct {
	Needs  needs.Set
	Logger zerolog.Logger
}

// NewDrawer returns a Drawer for the given set
func NewDrawer(set needs.Set, logger zerolog.Logger) *Drawer {
	return &Drawer{Needs: set, Logger: logger}
}

// Header returns the preamble every drawing starts with
func Header() string {
	return "allowmixing\nskinparam linetype ortho\n\n"
}

// Alias turns a need ID into a PlantUML identifier
func Alias(id string) string {
	alias := metamodel.Sanitize(id)
	if alias == "" {
		return "unnamed"
	}
	return alias
}

// StructElement declares need as a PlantUML element of the given kind (component, package, ...)
func StructElement(kind string, need *needs.Need) string {
	return fmt.Sprintf("%s %q as %s <<%s>>", kind, need.Title, Alias(need.ID), need.Type)
}

// LinkText connects two needs
func LinkText(from, arrow, to, text string) string {
	return fmt.Sprintf("%s %s %s : %s", Alias(from), arrow, Alias(to), text)
}

func closeElement(need *needs.Need) string {
	return fmt.Sprintf("} /' %s '/\n\n", need.Title)
}

func isExternal(id string) bool {
	return strings.HasPrefix(id, baselibsPrefix) || strings.HasPrefix(id, osPrefix)
}

// InterfaceElement declares the interface id. With withOps the titles of its operations are listed as
// members.
func (d *Drawer) InterfaceElement(id string, withOps bool) string {
	need, ok := d.Needs[id]
	if !ok {
		d.Logger.Info().Msgf("interface %s could not be found", id)
		return ""
	}

	buf := strings.Builder{}
	buf.WriteString(StructElement("interface", need))
	buf.WriteString(" {\n")
	if withOps {
		for _, op := range d.operationsOf(id) {
			fmt.Fprintf(&buf, "  %s\n", op.Title)
		}
	}
	buf.WriteString("}\n\n")

	return buf.String()
}

func (d *Drawer) operationsOf(iface string) []*needs.Need {
	result := []*needs.Need{}
	for _, id := range d.Needs.IDs() {
		need := d.Needs[id]
		if strings.Contains(need.Type, "_int_op") && containsString(need.Links["included_by"], iface) {
			result = append(result, need)
		}
	}
	return result
}

// InterfaceOf maps an interface operation to the interface including it. Any other ID is returned as is.
func (d *Drawer) InterfaceOf(id string) string {
	need, ok := d.Needs[id]
	if !ok || !strings.Contains(need.Type, "_int_op") {
		return id
	}

	if parents := need.Links["included_by"]; len(parents) > 0 {
		return parents[0]
	}
	return id
}

// InterfacesOfComponent lists the interfaces comp refers to through relation (implements or uses).
// Operations are replaced by their interface. Unknown IDs are kept so callers can report them.
func (d *Drawer) InterfacesOfComponent(comp *needs.Need, relation string) []string {
	result := []string{}
	for _, target := range comp.Links[relation] {
		iface := d.InterfaceOf(target)
		if !containsString(result, iface) {
			result = append(result, iface)
		}
	}
	return result
}

// ImplementingComponents returns all components that implement iface or one of its operations
func (d *Drawer) ImplementingComponents(iface string) []string {
	result := []string{}
	for _, id := range d.Needs.IDs() {
		need := d.Needs[id]
		if componentTypes[need.Type] && containsString(d.InterfacesOfComponent(need, "implements"), iface) {
			result = append(result, id)
		}
	}
	return result
}

// ModuleOf finds the module containing comp, directly or through parent components. It returns an empty
// string if there is none.
func (d *Drawer) ModuleOf(comp string) string {
	return d.moduleOf(comp, map[string]bool{})
}

func (d *Drawer) moduleOf(id string, visited map[string]bool) string {
	if visited[id] {
		return ""
	}
	visited[id] = true

	parents := d.parentsOf(id)
	for _, parent := range parents {
		if d.Needs[parent].Type == "mod" {
			return parent
		}
	}

	for _, parent := range parents {
		if module := d.moduleOf(parent, visited); module != "" {
			return module
		}
	}
	return ""
}

func (d *Drawer) parentsOf(id string) []string {
	result := []string{}
	for _, candidate := range d.Needs.IDs() {
		need := d.Needs[candidate]
		if containsString(need.Links["includes"], id) || containsString(need.Links["consists_of"], id) {
			result = append(result, candidate)
		}
	}
	return result
}

// Hierarchy holds the nested element declarations around a component
type Hierarchy struct {
	Open        string
	Close       string
	ModuleOpen  string
	ModuleClose string
}

func (h Hierarchy) String() string {
	return h.ModuleOpen + h.Open + h.Close + h.ModuleClose
}

// HierarchyText declares comp nested inside its parent components and module
func (d *Drawer) HierarchyText(comp string) Hierarchy {
	result := Hierarchy{}
	need, ok := d.Needs[comp]
	if !ok {
		d.Logger.Info().Msgf("component %s could not be found", comp)
		return result
	}

	chain := []*needs.Need{need}
	visited := map[string]bool{comp: true}
	current := comp
	for {
		next := ""
		for _, parent := range d.parentsOf(current) {
			if componentTypes[d.Needs[parent].Type] && !visited[parent] {
				next = parent
				break
			}
		}

		if next == "" {
			break
		}

		visited[next] = true
		chain = append(chain, d.Needs[next])
		current = next
	}

	open := strings.Builder{}
	for idx := len(chain) - 1; idx >= 0; idx-- {
		open.WriteString(StructElement("component", chain[idx]))
		open.WriteString(" {\n")
	}

	closing := strings.Builder{}
	for _, item := range chain {
		closing.WriteString(closeElement(item))
	}

	result.Open = open.String()
	result.Close = closing.String()

	if module := d.ModuleOf(comp); module != "" {
		modNeed := d.Needs[module]
		result.ModuleOpen = StructElement("package", modNeed) + " {\n"
		result.ModuleClose = closeElement(modNeed)
	}

	return result
}

func containsString(list []string, item string) bool {
	for _, entry := range list {
		if entry == item {
			return true
		}
	}
	return false
}
