// ABOUTME: The tree command: prints a saved design as a styled agent hierarchy using lipgloss/tree.
// ABOUTME: Roots are agents without a parent; parent cycles and missing children are marked instead of followed.
package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"github.com/2389-research/clusterdesigner/catalog"
	"github.com/2389-research/clusterdesigner/topology"
)

func newTreeCmd() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "tree [design.json]",
		Short: "Print the agent hierarchy of a saved design",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}
			d, err := readDesign(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTree(d.graph, cat, d.settings.FileName))
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "icon catalog file (icons.xml or YAML)")

	return cmd
}

// renderTree draws every parentless agent as a subtree under the cluster name.
// Agents that only appear on a parent cycle are listed at the top level.
func renderTree(g *topology.Graph, cat *catalog.Catalog, clusterName string) string {
	if clusterName == "" {
		clusterName = "(unnamed cluster)"
	}
	root := tree.Root(styleTitle.Render(clusterName)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(styleDim)

	if g.Len() == 0 {
		return root.Child(styleDim.Render("no agents")).String() + "\n"
	}

	seen := make(map[int]bool, g.Len())
	var roots []*topology.Node
	for _, n := range g.Nodes() {
		if _, hasParent := g.Parent(n.ID); !hasParent {
			roots = append(roots, n)
		}
	}
	for _, n := range roots {
		root.Child(subtree(g, cat, n, seen))
	}
	for _, n := range g.Nodes() {
		if !seen[n.ID] {
			root.Child(subtree(g, cat, n, seen))
		}
	}
	return root.String() + "\n"
}

func subtree(g *topology.Graph, cat *catalog.Catalog, n *topology.Node, seen map[int]bool) any {
	if seen[n.ID] {
		return agentLabel(n, cat) + styleWarning.Render(" (cycle)")
	}
	seen[n.ID] = true
	if !n.HasChildren() {
		return agentLabel(n, cat)
	}

	t := tree.Root(agentLabel(n, cat)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(styleDim)
	for _, id := range n.Children {
		child, ok := g.Get(id)
		if !ok {
			t.Child(styleError.Render(fmt.Sprintf("missing agent %d", id)))
			continue
		}
		t.Child(subtree(g, cat, child, seen))
	}
	return t
}

// agentLabel renders "Kind name [Class] #id".
func agentLabel(n *topology.Node, cat *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString(kindStyles[n.Kind].Render(n.Kind.String()))
	name := n.Name
	if name == "" {
		name = styleDim.Render("(unnamed)")
	}
	b.WriteString(" " + name)
	if v, ok := cat.Lookup(n.Kind, n.Variant); ok && v.ClassName != "" && v.ClassName != n.Kind.String() {
		b.WriteString(" " + styleDim.Render("["+v.ClassName+"]"))
	}
	b.WriteString(" " + styleDim.Render(fmt.Sprintf("#%d", n.ID)))
	return b.String()
}
