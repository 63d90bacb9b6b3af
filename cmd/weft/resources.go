package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/weft-api/weft/internal/resource"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Inspect the registered resource model",
}

var resourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered resources and their fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := buildRegistry()
		if err != nil {
			return err
		}
		printResourceList(cmd.OutOrStdout(), registry)
		return nil
	},
}

var resourcesGraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the relationship graph, cycles and load order",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := buildRegistry()
		if err != nil {
			return err
		}
		printResourceGraph(cmd.OutOrStdout(), registry)
		return nil
	},
}

func init() {
	resourcesCmd.AddCommand(resourcesListCmd)
	resourcesCmd.AddCommand(resourcesGraphCmd)
}

func printResourceList(w io.Writer, registry *resource.Registry) {
	heading := color.New(color.FgCyan, color.Bold)
	fieldColor := color.New(color.FgGreen)
	relColor := color.New(color.FgYellow)

	names := registry.List()
	sort.Strings(names)

	for _, name := range names {
		schema, _ := registry.Get(name)
		heading.Fprintf(w, "%s", name)
		fmt.Fprintf(w, " (table %s)\n", schema.TableName)

		fields := make([]string, 0, len(schema.Fields))
		for fieldName := range schema.Fields {
			fields = append(fields, fieldName)
		}
		sort.Strings(fields)
		for _, fieldName := range fields {
			field := schema.Fields[fieldName]
			suffix := ""
			if field.Nullable {
				suffix = " (nullable)"
			}
			fieldColor.Fprintf(w, "  %-14s", fieldName)
			fmt.Fprintf(w, " %s%s\n", field.Type, suffix)
		}

		rels := make([]string, 0, len(schema.Relationships))
		for relName := range schema.Relationships {
			rels = append(rels, relName)
		}
		sort.Strings(rels)
		for _, relName := range rels {
			rel := schema.Relationships[relName]
			relColor.Fprintf(w, "  %-14s", relName)
			fmt.Fprintf(w, " %s -> %s", rel.Type, rel.RightType)
			if rel.Inverse != "" {
				fmt.Fprintf(w, " (inverse %s)", rel.Inverse)
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}
}

func printResourceGraph(w io.Writer, registry *resource.Registry) {
	heading := color.New(color.FgCyan, color.Bold)
	warn := color.New(color.FgRed, color.Bold)

	graph := resource.NewGraph(registry)

	heading.Fprintln(w, "Edges")
	names := registry.List()
	sort.Strings(names)
	for _, name := range names {
		schema, _ := registry.Get(name)
		rels := make([]string, 0, len(schema.Relationships))
		for relName := range schema.Relationships {
			rels = append(rels, relName)
		}
		sort.Strings(rels)
		for _, relName := range rels {
			rel := schema.Relationships[relName]
			fmt.Fprintf(w, "  %s --%s--> %s\n", name, relName, rel.RightType)
		}
	}

	if cycles := graph.Cycles(); len(cycles) > 0 {
		warn.Fprintln(w, "\nCycles")
		for _, cycle := range cycles {
			fmt.Fprintf(w, "  %v\n", cycle)
		}
		fmt.Fprintln(w, "\nNo topological load order exists; the hook engine still terminates via visited tracking.")
		return
	}

	order, err := graph.TopologicalOrder()
	if err != nil {
		warn.Fprintf(w, "\n%v\n", err)
		return
	}
	heading.Fprintln(w, "\nLoad order")
	for i, name := range order {
		fmt.Fprintf(w, "  %d. %s\n", i+1, name)
	}
}
