package metamodel

import "github.com/rotisserie/eris"

// Visibility of a class member
type Visibility string

const (
	Public    Visibility = "+"
	Private   Visibility = "-"
	Protected Visibility = "#"
	Package   Visibility = "~"
)

// RelationKind selects the arrow used for a relation
type RelationKind string

const (
	Association RelationKind = "association"
	Undirected  RelationKind = "undirected"
	Inheritance RelationKind = "inheritance"
	Implements  RelationKind = "implements"
	Dependency  RelationKind = "dependency"
	Composition RelationKind = "composition"
	Aggregation RelationKind = "aggregation"
)

// Member is an attribute of a class. Methods aren't supported.
type Member struct {
	Name       string
	Visibility Visibility
	TypeHint   string
}

// ClassNode is a single class in the diagram
type ClassNode struct {
	Name       string
	Stereotype string
	Members    []Member
}

// Relation connects two classes
type Relation struct {
	Src   string
	Dst   string
	Kind  RelationKind
	Label string
}

// ClassDiagram is a renderer-independent class diagram. It has no packages, notes or multiplicities.
type ClassDiagram struct {
	Classes   map[string]*ClassNode
	Relations []Relation
}

// NewClassDiagram returns an empty diagram
func NewClassDiagram() *ClassDiagram {
	return &ClassDiagram{
		Classes: map[string]*ClassNode{},
	}
}

// AddClass adds a class or returns the existing one. An existing class only takes over the stereotype if
// it didn't have one yet.
func (d *ClassDiagram) AddClass(name, stereotype string) (*ClassNode, error) {
	if name == "" {
		return nil, eris.New("class name must not be empty")
	}

	node, ok := d.Classes[name]
	if !ok {
		node = &ClassNode{Name: name, Stereotype: stereotype}
		d.Classes[name] = node
		return node, nil
	}

	if stereotype != "" && node.Stereotype == "" {
		node.Stereotype = stereotype
	}
	return node, nil
}

// AddMember appends a member to the named class, creating the class if necessary
func (d *ClassDiagram) AddMember(class, member string, visibility Visibility, typeHint string) error {
	if member == "" {
		return eris.New("member name must not be empty")
	}

	node, err := d.AddClass(class, "")
	if err != nil {
		return err
	}

	if visibility == "" {
		visibility = Public
	}

	node.Members = append(node.Members, Member{Name: member, Visibility: visibility, TypeHint: typeHint})
	return nil
}

// Relate adds a relation. Both endpoints are created as classes if they don't exist.
func (d *ClassDiagram) Relate(src, dst string, kind RelationKind, label string) error {
	if src == "" || dst == "" {
		return eris.New("relation endpoints must not be empty")
	}

	if kind == "" {
		kind = Association
	}

	if _, err := d.AddClass(src, ""); err != nil {
		return err
	}
	if _, err := d.AddClass(dst, ""); err != nil {
		return err
	}

	d.Relations = append(d.Relations, Relation{Src: src, Dst: dst, Kind: kind, Label: label})
	return nil
}
