package metamodel

import "github.com/rotisserie/eris"

// AllLinks can be passed as the only link name to DrawMetamodel to include every link
const AllLinks = "all"

// DrawMetamodel renders the selected need types as a class diagram. Mandatory options in attributes become
// public members, optional ones private members. Links named in links (or all links if links is ["all"])
// become labelled associations.
func (m *Metamodel) DrawMetamodel(types, attributes, links []string) (string, error) {
	selected, err := m.needTypes(types)
	if err != nil {
		return "", err
	}

	attrSet := toSet(attributes)
	linkSet := toSet(links)
	allLinks := len(links) == 1 && links[0] == AllLinks

	diagram := NewClassDiagram()
	for _, nt := range selected {
		className := nt.Directive
		if _, err := diagram.AddClass(className, nt.Title); err != nil {
			return "", err
		}

		for _, opt := range nt.MandatoryOptions {
			if attrSet[opt.Name] {
				if err := diagram.AddMember(className, opt.Name, Public, opt.Pattern); err != nil {
					return "", err
				}
			}
		}

		for _, opt := range nt.OptionalOptions {
			if attrSet[opt.Name] {
				if err := diagram.AddMember(className, opt.Name, Private, opt.Pattern); err != nil {
					return "", err
				}
			}
		}

		if len(links) == 0 {
			continue
		}

		for _, link := range nt.AllLinks() {
			if !allLinks && !linkSet[link.Name] {
				continue
			}

			for _, target := range link.Targets {
				if err := diagram.Relate(className, target, Association, link.Name); err != nil {
					return "", err
				}
			}
		}
	}

	return PlantUMLRenderer{}.Render(diagram)
}

func (m *Metamodel) needTypes(directives []string) ([]*NeedType, error) {
	if len(directives) == 0 {
		return nil, eris.New("no need types given")
	}

	wanted := toSet(directives)
	result := []*NeedType{}
	for idx := range m.Types {
		if wanted[m.Types[idx].Directive] {
			result = append(result, &m.Types[idx])
		}
	}

	return result, nil
}

func toSet(items []string) map[string]bool {
	result := make(map[string]bool, len(items))
	for _, item := range items {
		result[item] = true
	}
	return result
}
