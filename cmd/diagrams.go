package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	buildcmd "github.com/etas-contrib/score-docs-as-code/pkg/buildsys/cmd"
	"github.com/etas-contrib/score-docs-as-code/pkg/metamodel"
	"github.com/etas-contrib/score-docs-as-code/pkg/needs"
	"github.com/etas-contrib/score-docs-as-code/pkg/uml"
)

func printDiagram(cmd *cobra.Command, body string) {
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	fmt.Fprint(cmd.OutOrStdout(), "@startuml\n"+body+"@enduml\n")
}

var metamodelCmd = &cobra.Command{
	Use:   "metamodel",
	Short: "Inspects the need type metamodel",
}

var drawMetamodelCmd = &cobra.Command{
	Use:   "draw --types <directives> [--attributes <options>] [--links <links>]",
	Short: "Prints the selected need types as a PlantUML class diagram",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("metamodel")
		if err != nil {
			return err
		}

		types, err := cmd.Flags().GetStringSlice("types")
		if err != nil {
			return err
		}

		attributes, err := cmd.Flags().GetStringSlice("attributes")
		if err != nil {
			return err
		}

		links, err := cmd.Flags().GetStringSlice("links")
		if err != nil {
			return err
		}

		mm := metamodel.Default()
		if path != "" {
			mm, err = metamodel.Load(path)
			if err != nil {
				return err
			}
		}

		body, err := mm.DrawMetamodel(types, attributes, links)
		if err != nil {
			return err
		}

		printDiagram(cmd, body)
		return nil
	},
}

var umlCmd = &cobra.Command{
	Use:   "uml --needs <needs.json> --function <draw function> --need <id>",
	Short: "Prints the architecture diagram of a single need",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := buildcmd.NewSession(cmd)
		if err != nil {
			return err
		}

		path, err := cmd.Flags().GetString("needs")
		if err != nil {
			return err
		}

		function, err := cmd.Flags().GetString("function")
		if err != nil {
			return err
		}

		id, err := cmd.Flags().GetString("need")
		if err != nil {
			return err
		}

		set, err := needs.Load(path)
		if err != nil {
			return err
		}
		set.ComputeBackLinks()

		drawer := uml.NewDrawer(set, session.Logger)
		funcs := drawer.Functions()
		draw, ok := funcs[function]
		if !ok {
			names := make([]string, 0, len(funcs))
			for name := range funcs {
				names = append(names, name)
			}
			sort.Strings(names)
			return eris.Errorf("unknown function %s, expected one of %s", function, strings.Join(names, ", "))
		}

		need := set.Get(id)
		if need == nil {
			return eris.Errorf("need %s not found in %s", id, path)
		}

		printDiagram(cmd, draw(need))
		return nil
	},
}

func init() {
	drawMetamodelCmd.Flags().String("metamodel", "", "metamodel YAML file (defaults to the built-in SCORE metamodel)")
	drawMetamodelCmd.Flags().StringSlice("types", nil, "need types (directives) to draw")
	drawMetamodelCmd.Flags().StringSlice("attributes", nil, "options to show as class members")
	drawMetamodelCmd.Flags().StringSlice("links", nil, "links to draw as relations, \"all\" selects every link")
	_ = drawMetamodelCmd.MarkFlagRequired("types")
	metamodelCmd.AddCommand(drawMetamodelCmd)

	umlCmd.Flags().String("needs", "", "needs.json file")
	umlCmd.Flags().String("function", "draw_feature", "draw function (draw_interface, draw_module, draw_component, draw_feature)")
	umlCmd.Flags().String("need", "", "id of the need to draw")
	_ = umlCmd.MarkFlagRequired("needs")
	_ = umlCmd.MarkFlagRequired("need")

	rootCmd.AddCommand(metamodelCmd)
	rootCmd.AddCommand(umlCmd)
}
