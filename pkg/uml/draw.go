package uml

import (
	"strings"

	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
)

// DrawFunc renders the diagram body for a single need
type DrawFunc func(need *needs.Need) string

// Functions returns the draw functions by the name they are called with in documents
func (d *Drawer) Functions() map[string]DrawFunc {
	return map[string]DrawFunc{
		"draw_interface": d.DrawInterface,
		"draw_module":    d.DrawModule,
		"draw_component": d.DrawComponent,
		"draw_feature":   d.DrawFeature,
	}
}

// orderedLists is a map of string lists that remembers key insertion order
type orderedLists struct {
	keys   []string
	values map[string][]string
}

func newOrderedLists() *orderedLists {
	return &orderedLists{values: map[string][]string{}}
}

func (o *orderedLists) get(key string) []string {
	return o.values[key]
}

func (o *orderedLists) set(key string, values []string) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = values
}

func (o *orderedLists) add(key, value string) {
	o.set(key, append(o.values[key], value))
}

// orderedSet keeps the first occurrence of each item
type orderedSet struct {
	items []string
	index map[string]bool
}

func newOrderedSet(items ...string) *orderedSet {
	s := &orderedSet{index: map[string]bool{}}
	for _, item := range items {
		s.add(item)
	}
	return s
}

func (s *orderedSet) add(item string) {
	if !s.index[item] {
		s.index[item] = true
		s.items = append(s.items, item)
	}
}

func (s *orderedSet) has(item string) bool {
	return s.index[item]
}

// drawState tracks what was already emitted while drawing one diagram
type drawState struct {
	// interface -> components with an implements link
	implemented *orderedLists
	// interface -> components with a uses link
	used *orderedLists
	// interfaces whose element was declared
	drawnInterfaces map[string]bool
	// components whose element was declared
	drawnComponents map[string]bool
	// components currently being drawn, guards against include cycles
	active map[string]bool
}

func newDrawState() *drawState {
	return &drawState{
		implemented:     newOrderedLists(),
		used:            newOrderedLists(),
		drawnInterfaces: map[string]bool{},
		drawnComponents: map[string]bool{},
		active:          map[string]bool{},
	}
}

func joinLinks(lines []string) string {
	seen := map[string]bool{}
	buf := strings.Builder{}
	for _, line := range lines {
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	return buf.String()
}

func subComponentIDs(need *needs.Need) []string {
	result := make([]string, 0, len(need.Links["includes"])+len(need.Links["consists_of"]))
	result = append(result, need.Links["includes"]...)
	return append(result, need.Links["consists_of"]...)
}

// drawComponentBox declares need as a component. With whiteBox its sub-components are drawn inside,
// recursively opening those that consist of further components. Implemented interfaces are linked once
// per component and used interfaces are collected in st for later.
func (d *Drawer) drawComponentBox(need *needs.Need, st *drawState, whiteBox bool) (string, []string) {
	buf := strings.Builder{}
	links := []string{}

	st.active[need.ID] = true
	defer delete(st.active, need.ID)
	st.drawnComponents[need.ID] = true

	buf.WriteString(StructElement("component", need))
	buf.WriteString(" {\n")

	if whiteBox {
		for _, subID := range subComponentIDs(need) {
			sub, ok := d.Needs[subID]
			if !ok {
				d.Logger.Info().Msgf("%s: include %s could not be found", need.ID, subID)
				continue
			}

			if !componentTypes[sub.Type] || st.active[subID] {
				continue
			}

			structure, subLinks := d.drawComponentBox(sub, st, len(sub.Links["consists_of"]) > 0)
			buf.WriteString(structure)
			links = append(links, subLinks...)
		}
	}

	buf.WriteString(closeElement(need))

	for _, iface := range d.InterfacesOfComponent(need, "implements") {
		if _, ok := d.Needs[iface]; !ok {
			d.Logger.Info().Msgf("%s: implements %s could not be found", need.ID, iface)
			continue
		}

		if !containsString(st.implemented.get(iface), need.ID) {
			links = append(links, LinkText(need.ID, "-u->", iface, "implements"))
			st.implemented.add(iface, need.ID)
		}
	}

	for _, iface := range d.InterfacesOfComponent(need, "uses") {
		if _, ok := d.Needs[iface]; !ok {
			d.Logger.Info().Msgf("%s: uses %s could not be found", need.ID, iface)
			continue
		}

		st.used.add(iface, need.ID)
	}

	return buf.String(), links
}

// implementedInterfaces collects the interfaces implemented by need and everything it includes
func (d *Drawer) implementedInterfaces(need *needs.Need) []string {
	result := newOrderedSet()
	d.collectImplemented(need, result, map[string]bool{})
	return result.items
}

func (d *Drawer) collectImplemented(need *needs.Need, result *orderedSet, visited map[string]bool) {
	if visited[need.ID] {
		return
	}
	visited[need.ID] = true

	for _, subID := range subComponentIDs(need) {
		sub, ok := d.Needs[subID]
		if !ok {
			d.Logger.Info().Msgf("%s: include with id %s could not be found", need.ID, subID)
			continue
		}
		d.collectImplemented(sub, result, visited)
	}

	for _, iface := range d.InterfacesOfComponent(need, "implements") {
		result.add(iface)
	}
}

// declareImplementedInterfaces declares every interface implemented inside need that isn't drawn yet
func (d *Drawer) declareImplementedInterfaces(need *needs.Need, st *drawState) string {
	buf := strings.Builder{}
	for _, iface := range d.implementedInterfaces(need) {
		if _, ok := d.Needs[iface]; !ok {
			d.Logger.Info().Msgf("%s: implements %s could not be found", need.ID, iface)
			continue
		}

		if !st.drawnInterfaces[iface] {
			buf.WriteString(d.InterfaceElement(iface, true))
			st.drawnInterfaces[iface] = true
			if len(st.implemented.get(iface)) == 0 {
				st.implemented.set(iface, []string{need.ID})
			}
		}
	}
	return buf.String()
}

// declareUsedInterfaces draws every used interface that isn't declared yet together with its
// implementing component, then links all users to it.
func (d *Drawer) declareUsedInterfaces(st *drawState) (string, []string) {
	buf := strings.Builder{}
	links := []string{}

	for _, iface := range st.used.keys {
		if !st.drawnInterfaces[iface] {
			implementers := d.ImplementingComponents(iface)
			if len(implementers) > 0 {
				implID := implementers[0]
				if !st.drawnComponents[implID] {
					buf.WriteString(d.HierarchyText(implID).String())
					st.drawnComponents[implID] = true
				}

				buf.WriteString(d.InterfaceElement(iface, true))
				st.implemented.set(iface, []string{implID})
				links = append(links, LinkText(implID, "-u->", iface, "implements"))
			} else {
				d.Logger.Info().Msgf("%s: no implementing component defined", iface)
				buf.WriteString(d.InterfaceElement(iface, true))
			}
			st.drawnInterfaces[iface] = true
		}

		for _, comp := range st.used.get(iface) {
			links = append(links, LinkText(comp, "-d[#green]->", iface, "uses"))
		}
	}

	return buf.String(), links
}

func (d *Drawer) drawModule(need *needs.Need, st *drawState) (string, []string) {
	buf := strings.Builder{}
	links := []string{}

	buf.WriteString(d.declareImplementedInterfaces(need, st))

	buf.WriteString(StructElement("package", need))
	buf.WriteString(" {\n")

	for _, incID := range need.Links["includes"] {
		inc, ok := d.Needs[incID]
		if !ok {
			d.Logger.Info().Msgf("%s: include with id %s could not be found", need.ID, incID)
			continue
		}

		if !componentTypes[inc.Type] && inc.Type != "mod" {
			continue
		}

		structure, incLinks := d.drawComponentBox(inc, st, len(inc.Links["consists_of"]) > 0)
		buf.WriteString(structure)
		links = append(links, incLinks...)
	}

	buf.WriteString(closeElement(need))

	structure, usedLinks := d.declareUsedInterfaces(st)
	buf.WriteString(structure)
	links = append(links, usedLinks...)

	return buf.String(), links
}

// DrawInterface declares an interface with its operations
func (d *Drawer) DrawInterface(need *needs.Need) string {
	return d.InterfaceElement(need.ID, true) + "\n"
}

// DrawComponent draws a component as a white box with its implemented interfaces
func (d *Drawer) DrawComponent(need *needs.Need) string {
	st := newDrawState()
	structure, links := d.drawComponentBox(need, st, true)

	buf := strings.Builder{}
	buf.WriteString(Header())
	buf.WriteString(structure)

	for _, iface := range d.implementedInterfaces(need) {
		if _, ok := d.Needs[iface]; !ok {
			d.Logger.Info().Msgf("%s: implements %s could not be found", need.ID, iface)
			continue
		}
		buf.WriteString(d.InterfaceElement(iface, true))
	}

	buf.WriteString(joinLinks(links))
	return buf.String()
}

// DrawModule draws a module with its components, the interfaces they implement and the interfaces they
// use including the components implementing those.
func (d *Drawer) DrawModule(need *needs.Need) string {
	structure, links := d.drawModule(need, newDrawState())
	return Header() + structure + joinLinks(links)
}

// DrawFeature draws the modules taking part in a feature. The feature's interfaces are connected to an
// actor and to the components implementing them. Chains of used interfaces are followed until they reach
// a base library or OS component.
func (d *Drawer) DrawFeature(need *needs.Need) string {
	st := newDrawState()
	buf := strings.Builder{}
	links := []string{}

	buf.WriteString(Header())
	buf.WriteString("actor \"Feature User\" as " + Alias(actorID) + "\n")

	featureIfaces := newOrderedSet()
	for _, incID := range need.Links["includes"] {
		featureIfaces.add(d.InterfaceOf(incID))
	}

	primaryComps := newOrderedSet(need.Links["consists_of"]...)
	relatedIfaces := newOrderedSet(featureIfaces.items...)

	// components implementing feature interfaces are shown but not followed
	implementers := newOrderedSet()
	for _, iface := range featureIfaces.items {
		if _, ok := d.Needs[iface]; !ok {
			continue
		}
		for _, comp := range d.ImplementingComponents(iface) {
			if !primaryComps.has(comp) && !isExternal(comp) {
				implementers.add(comp)
			}
		}
	}

	queue := []string{}
	for _, comp := range primaryComps.items {
		compNeed, ok := d.Needs[comp]
		if !ok {
			continue
		}
		for _, iface := range d.InterfacesOfComponent(compNeed, "uses") {
			queue = append(queue, iface)
			relatedIfaces.add(iface)
		}
	}

	secondaryComps := newOrderedSet()
	visited := map[string]bool{}
	for len(queue) > 0 {
		iface := queue[0]
		queue = queue[1:]
		if _, ok := d.Needs[iface]; visited[iface] || !ok {
			continue
		}
		visited[iface] = true

		for _, comp := range d.ImplementingComponents(iface) {
			if primaryComps.has(comp) {
				continue
			}

			secondaryComps.add(comp)
			if isExternal(comp) {
				continue
			}

			for _, used := range d.InterfacesOfComponent(d.Needs[comp], "uses") {
				if !visited[used] && !featureIfaces.has(used) {
					queue = append(queue, used)
					relatedIfaces.add(used)
				}
			}
		}
	}

	allComps := newOrderedSet(primaryComps.items...)
	for _, comp := range secondaryComps.items {
		allComps.add(comp)
	}
	for _, comp := range implementers.items {
		allComps.add(comp)
	}

	modules := newOrderedSet()
	for _, comp := range allComps.items {
		if isExternal(comp) {
			continue
		}
		if module := d.ModuleOf(comp); module != "" {
			modules.add(module)
		}
	}

	// non-primary components already shown inside a module box
	moduleOnly := map[string]bool{}
	for _, module := range modules.items {
		for _, comp := range d.Needs[module].Links["includes"] {
			if !primaryComps.has(comp) {
				moduleOnly[comp] = true
			}
		}
	}

	for _, module := range modules.items {
		structure, moduleLinks := d.drawModule(d.Needs[module], st)
		buf.WriteString(structure)
		links = append(links, moduleLinks...)
	}

	implComps := newOrderedLists()
	for _, iface := range relatedIfaces.items {
		if _, ok := d.Needs[iface]; !ok {
			d.Logger.Info().Msgf("%s: interface %s could not be found", need.ID, iface)
			continue
		}

		filtered := []string{}
		for _, comp := range d.ImplementingComponents(iface) {
			if allComps.has(comp) && !moduleOnly[comp] {
				filtered = append(filtered, comp)
			}
		}

		if len(filtered) > 0 {
			implComps.set(iface, filtered)
		}
	}

	for _, iface := range implComps.keys {
		if featureIfaces.has(iface) {
			links = append(links, LinkText(actorID, "-d->", iface, "use"))
		}

		for _, comp := range implComps.get(iface) {
			links = append(links, LinkText(comp, "-u->", iface, "implements"))
		}
	}

	buf.WriteString(joinLinks(links))
	return buf.String()
}
