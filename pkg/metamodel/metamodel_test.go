package metamodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
)

func render(t *testing.T, d *ClassDiagram) string {
	t.Helper()
	result, err := PlantUMLRenderer{}.Render(d)
	require.NoError(t, err)
	return result
}

func TestSimpleClassDiagram(t *testing.T) {
	d := NewClassDiagram()
	_, err := d.AddClass("A", "")
	require.NoError(t, err)
	require.NoError(t, d.AddMember("A", "id", Public, ""))
	require.NoError(t, d.Relate("A", "B", Association, "uses"))

	assert.Equal(t, `class A as "A" {
  + id
}
class B as "B" {
}
A --> B : uses
`, render(t, d))
}

func TestStereotypeAndPrivateMember(t *testing.T) {
	d := NewClassDiagram()
	_, err := d.AddClass("User", "Entity")
	require.NoError(t, err)
	require.NoError(t, d.AddMember("User", "password", Private, ""))

	assert.Equal(t, `class User as "User" <<Entity>> {
  - password
}
`, render(t, d))
}

func TestInheritanceRelation(t *testing.T) {
	d := NewClassDiagram()
	require.NoError(t, d.Relate("Base", "Derived", Inheritance, ""))

	assert.Equal(t, `class Base as "Base" {
}
class Derived as "Derived" {
}
Base <|-- Derived
`, render(t, d))
}

func TestStereotypeIsOnlySetOnce(t *testing.T) {
	d := NewClassDiagram()
	_, err := d.AddClass("A", "")
	require.NoError(t, err)
	_, err = d.AddClass("A", "First")
	require.NoError(t, err)
	_, err = d.AddClass("A", "Second")
	require.NoError(t, err)

	assert.Equal(t, "First", d.Classes["A"].Stereotype)
}

func TestEmptyNamesAreRejected(t *testing.T) {
	d := NewClassDiagram()
	_, err := d.AddClass("", "")
	assert.Error(t, err)
	assert.Error(t, d.AddMember("A", "", Public, ""))
	assert.Error(t, d.Relate("", "B", Association, ""))
}

func TestAliasCollisionsAndEscaping(t *testing.T) {
	d := NewClassDiagram()
	_, err := d.AddClass("My Class", "a<<b>>c")
	require.NoError(t, err)
	_, err = d.AddClass("My-Class", "")
	require.NoError(t, err)
	_, err = d.AddClass(`Say "hi"`, "")
	require.NoError(t, err)
	require.NoError(t, d.Relate("My Class", "My-Class", Dependency, "a:b\nc"))

	assert.Equal(t, `class My_Class as "My Class" <<a< <b> >c>> {
}
class My_Class_2 as "My-Class" {
}
class Say__hi as "Say \"hi\"" {
}
My_Class ..> My_Class_2 : a\:b c
`, render(t, d))
}

func TestUnaliasableName(t *testing.T) {
	d := NewClassDiagram()
	_, err := d.AddClass("???", "")
	require.NoError(t, err)

	_, err = PlantUMLRenderer{}.Render(d)
	assert.Error(t, err)
}

func TestRelationsAreSorted(t *testing.T) {
	d := NewClassDiagram()
	require.NoError(t, d.Relate("B", "A", Composition, ""))
	require.NoError(t, d.Relate("A", "B", Aggregation, "z"))
	require.NoError(t, d.Relate("A", "B", Aggregation, "a"))
	require.NoError(t, d.Relate("A", "B", Undirected, ""))

	assert.Equal(t, `class A as "A" {
}
class B as "B" {
}
A o-- B : a
A o-- B : z
A -- B
B *-- A
`, render(t, d))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "My_Class", Sanitize("My Class"))
	assert.Equal(t, "a_b", Sanitize("__a-b__"))
	assert.Equal(t, "", Sanitize("äö"))
}

func TestParseMetamodel(t *testing.T) {
	mm, err := Parse([]byte(`
needs_types:
  - directive: req
    title: Requirement
    prefix: req__
    mandatory_options:
      status: ^(valid|invalid)$
      priority: ^[0-9]$
    mandatory_links:
      satisfies:
        - directive: stkh
    optional_links:
      satisfies: [stkh, other]
      relates: "a, b"
needs_extra_links:
  - option: satisfies
  - relates
`))
	require.NoError(t, err)

	nt, ok := mm.Type("req")
	require.True(t, ok)
	assert.Equal(t, []string{"status", "priority"}, []string{nt.MandatoryOptions[0].Name, nt.MandatoryOptions[1].Name})

	all := nt.AllLinks()
	require.Len(t, all, 2)
	assert.Equal(t, Link{Name: "satisfies", Targets: []string{"stkh", "other"}}, all[0])
	assert.Equal(t, Link{Name: "relates", Targets: []string{"a", "b"}}, all[1])

	assert.Equal(t, map[string]bool{"satisfies": true, "relates": true}, mm.LinkNames())
	assert.Equal(t, []string{"satisfies", "relates"}, mm.ExtraLinks)
}

func TestParseRejectsBadPatterns(t *testing.T) {
	_, err := Parse([]byte("needs_types:\n  x:\n    mandatory_options:\n      status: '('\n"))
	assert.Error(t, err)

	_, err = Parse([]byte("needs_types:\n  - title: missing directive\n"))
	assert.Error(t, err)
}

func TestDefaultMetamodel(t *testing.T) {
	mm := Default()
	for _, directive := range []string{"feat", "mod", "comp", "logic_arc_int", "real_arc_int_op", "feat_req"} {
		assert.True(t, mm.Directives()[directive], directive)
	}
}

func TestDrawMetamodel(t *testing.T) {
	mm := Default()

	result, err := mm.DrawMetamodel([]string{"feat", "comp"}, []string{"status"}, []string{"consists_of"})
	require.NoError(t, err)
	assert.Equal(t, `class comp as "comp" <<Component>> {
  + status : ^(valid|invalid)$
}
class feat as "feat" <<Feature>> {
  + status : ^(valid|invalid)$
}
comp --> comp : consists_of
feat --> comp : consists_of
`, result)
}

func TestDrawMetamodelOptionalAttributesAndAllLinks(t *testing.T) {
	mm := Default()

	result, err := mm.DrawMetamodel([]string{"feat_req"}, []string{"safety"}, []string{AllLinks})
	require.NoError(t, err)
	assert.Equal(t, `class feat_req as "feat_req" <<Feature Requirement>> {
  - safety : ^(QM|ASIL_B|ASIL_D)$
}
class stkh_req as "stkh_req" {
}
feat_req --> stkh_req : satisfies
`, result)
}

func TestDrawMetamodelRequiresTypes(t *testing.T) {
	_, err := Default().DrawMetamodel(nil, nil, nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	set := needs.Set{}

	feat := needs.New("feat__logging", "feat", "Logging")
	feat.Status = "valid"
	feat.Links["consists_of"] = []string{"comp__logger", "logic_arc_int__log", "comp__missing"}

	comp := needs.New("comp__logger", "comp", "Logger")
	comp.Status = "approved"

	iface := needs.New("logic_arc_int__log", "logic_arc_int", "Log")

	op := needs.New("wrong_prefix", "logic_arc_int_op", "Write")

	unknown := needs.New("x__1", "mystery", "?")

	for _, n := range []*needs.Need{feat, comp, iface, op, unknown} {
		require.NoError(t, set.Add(n))
	}

	issues := Default().Validate(set)
	got := make([]string, len(issues))
	for idx, issue := range issues {
		got[idx] = issue.String()
	}

	assert.Equal(t, []string{
		`comp__logger: option "status" value "approved" does not match ^(valid|invalid)$`,
		`feat__logging: link "consists_of" references unknown need "comp__missing"`,
		`feat__logging: link "consists_of" target "logic_arc_int__log" has type "logic_arc_int", expected one of comp`,
		`wrong_prefix: id does not start with "logic_arc_int_op__"`,
		`wrong_prefix: missing mandatory link "included_by"`,
		`x__1: unknown need type "mystery"`,
	}, got)
}
