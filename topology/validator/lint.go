// ABOUTME: Whole-topology lint rules run before export: names, settings, auctioneer, and structure.
// ABOUTME: Preflight turns the first error diagnostic into a single operator-facing rejection.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/2389-research/clusterdesigner/topology"
)

// Severity levels for diagnostics.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Diagnostic is one lint finding.
type Diagnostic struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	NodeIDs  []int  `json:"nodeIds,omitempty"`
	Rule     string `json:"rule"`
}

// PreflightError refuses an export. Error returns the first error message.
type PreflightError struct {
	Diagnostics []Diagnostic
}

func (e *PreflightError) Error() string {
	for _, d := range e.Diagnostics {
		if d.Severity == SeverityError {
			return d.Message
		}
	}
	return "export preflight failed"
}

// Rule returns the rule of the first error diagnostic.
func (e *PreflightError) Rule() string {
	for _, d := range e.Diagnostics {
		if d.Severity == SeverityError {
			return d.Rule
		}
	}
	return "preflight"
}

// Lint runs every rule and returns the diagnostics in rule order.
func Lint(g *topology.Graph, s topology.Settings) []Diagnostic {
	var diags []Diagnostic

	diags = append(diags, checkNames(g)...)
	diags = append(diags, checkSettings(s)...)
	diags = append(diags, checkAuctioneer(g)...)
	diags = append(diags, checkDanglingChildren(g)...)
	diags = append(diags, checkLeafChildren(g)...)
	diags = append(diags, checkSingleParent(g)...)
	diags = append(diags, checkCycles(g)...)
	diags = append(diags, checkOrphans(g)...)
	diags = append(diags, checkPriceRange(s)...)

	return diags
}

// Preflight returns a *PreflightError when Lint reports any error.
func Preflight(g *topology.Graph, s topology.Settings) error {
	diags := Lint(g, s)
	if HasErrors(diags) {
		return &PreflightError{Diagnostics: diags}
	}
	return nil
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	return slices.ContainsFunc(diags, func(d Diagnostic) bool { return d.Severity == SeverityError })
}

// checkNames requires every agent to have a unique, non-empty name.
func checkNames(g *topology.Graph) []Diagnostic {
	var diags []Diagnostic
	var unnamed []int
	byName := make(map[string][]int)
	var names []string
	for _, n := range g.Nodes() {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			unnamed = append(unnamed, n.ID)
			continue
		}
		if _, seen := byName[name]; !seen {
			names = append(names, name)
		}
		byName[name] = append(byName[name], n.ID)
	}
	if len(unnamed) > 0 {
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			Message:  "Not all nodes have names. Please make sure every node has a name.",
			NodeIDs:  unnamed,
			Rule:     "names_present",
		})
	}
	for _, name := range names {
		if ids := byName[name]; len(ids) > 1 {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Message:  "Nodes cannot have the same name.",
				NodeIDs:  ids,
				Rule:     "names_unique",
			})
		}
	}
	return diags
}

// checkSettings requires the cluster name and every market basis parameter.
func checkSettings(s topology.Settings) []Diagnostic {
	missing := func(setting string) Diagnostic {
		return Diagnostic{
			Severity: SeverityError,
			Message:  fmt.Sprintf("Please enter a value for the %s setting.", setting),
			Rule:     "settings",
		}
	}
	var diags []Diagnostic
	if strings.TrimSpace(s.FileName) == "" {
		diags = append(diags, missing("file/clustername"))
	}
	if s.Reference == nil {
		diags = append(diags, missing("market reference"))
	}
	if s.Min == nil {
		diags = append(diags, missing("minimum price"))
	}
	if s.Max == nil {
		diags = append(diags, missing("maximum price"))
	}
	if s.Step == nil {
		diags = append(diags, missing("price steps"))
	}
	if s.Significance == nil {
		diags = append(diags, missing("significance"))
	}
	return diags
}

func checkPriceRange(s topology.Settings) []Diagnostic {
	if s.Min == nil || s.Max == nil || *s.Min <= *s.Max {
		return nil
	}
	return []Diagnostic{{
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("minimum price %g exceeds maximum price %g", *s.Min, *s.Max),
		Rule:     "price_range",
	}}
}

// checkAuctioneer requires exactly one auctioneer, never bound as a child.
func checkAuctioneer(g *topology.Graph) []Diagnostic {
	var ids []int
	for _, n := range g.Nodes() {
		if n.Kind == topology.KindAuctioneer {
			ids = append(ids, n.ID)
		}
	}
	switch len(ids) {
	case 0:
		return []Diagnostic{{
			Severity: SeverityError,
			Message:  "Please add an auctioneer before exporting.",
			Rule:     "auctioneer",
		}}
	case 1:
		if len(g.ParentEdges(ids[0])) > 0 {
			return []Diagnostic{{
				Severity: SeverityError,
				Message:  ReasonAuctioneerBound,
				NodeIDs:  ids,
				Rule:     "auctioneer",
			}}
		}
		return nil
	default:
		return []Diagnostic{{
			Severity: SeverityError,
			Message:  ReasonSecondAuctioneer,
			NodeIDs:  ids,
			Rule:     "auctioneer",
		}}
	}
}

// checkDanglingChildren flags child ids that name no agent.
func checkDanglingChildren(g *topology.Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		for _, cid := range n.Children {
			if _, ok := g.Get(cid); !ok {
				diags = append(diags, Diagnostic{
					Severity: SeverityError,
					Message:  fmt.Sprintf("agent %q lists unknown child %d", n.Name, cid),
					NodeIDs:  []int{n.ID},
					Rule:     "dangling_child",
				})
			}
		}
	}
	return diags
}

// checkLeafChildren flags objectives and devices that have children.
func checkLeafChildren(g *topology.Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if n.Kind.CanParent() || !n.HasChildren() {
			continue
		}
		reason := ReasonUnderDevice
		if n.Kind == topology.KindObjective {
			reason = ReasonUnderObjective
		}
		diags = append(diags, Diagnostic{
			Severity: SeverityError,
			Message:  reason,
			NodeIDs:  []int{n.ID},
			Rule:     "leaf_children",
		})
	}
	return diags
}

// checkSingleParent flags agents listed under more than one parent.
func checkSingleParent(g *topology.Graph) []Diagnostic {
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if edges := g.ParentEdges(n.ID); len(edges) > 1 {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s: %q", ReasonMultipleParents, n.Name),
				NodeIDs:  []int{n.ID},
				Rule:     "single_parent",
			})
		}
	}
	return diags
}

// checkCycles flags agents whose ancestry loops back on itself.
func checkCycles(g *topology.Graph) []Diagnostic {
	var ids []int
	for _, n := range g.Nodes() {
		if onCycle(g, n.ID) {
			ids = append(ids, n.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return []Diagnostic{{
		Severity: SeverityError,
		Message:  fmt.Sprintf("agents %v are bound under their own descendants", ids),
		NodeIDs:  ids,
		Rule:     "cycle",
	}}
}

func onCycle(g *topology.Graph, id int) bool {
	n, ok := g.Get(id)
	if !ok {
		return false
	}
	if n.HasChild(id) {
		return true
	}
	return IsDescendant(g, id, id)
}

// checkOrphans warns about agents that cannot reach the auctioneer; they are
// left out of the exported configuration.
func checkOrphans(g *topology.Graph) []Diagnostic {
	root, ok := g.Auctioneer()
	if !ok {
		return nil
	}
	reached := map[int]bool{root.ID: true}
	queue := []int{root.ID}
	for len(queue) > 0 {
		current, _ := g.Get(queue[0])
		queue = queue[1:]
		for _, cid := range current.Children {
			if _, exists := g.Get(cid); exists && !reached[cid] {
				reached[cid] = true
				queue = append(queue, cid)
			}
		}
	}
	var diags []Diagnostic
	for _, n := range g.Nodes() {
		if !reached[n.ID] {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("agent %q is not connected to the auctioneer and will not be exported", n.Name),
				NodeIDs:  []int{n.ID},
				Rule:     "orphan",
			})
		}
	}
	return diags
}
