// ABOUTME: Table-driven tests for the export lint rules and the Preflight gate.
// ABOUTME: Starts from a valid cluster and breaks one thing per case.
package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389-research/clusterdesigner/topology"
)

// validCluster returns A -> C -> {D1, O} with complete settings.
func validCluster(t *testing.T) (*topology.Graph, topology.Settings) {
	t.Helper()
	g := topology.New()
	a := add(t, g, topology.KindAuctioneer, "A")
	c := add(t, g, topology.KindConcentrator, "C")
	d := add(t, g, topology.KindDevice, "D1")
	o := add(t, g, topology.KindObjective, "O")
	require.NoError(t, Connect(g, c.ID, a.ID))
	require.NoError(t, Connect(g, d.ID, c.ID))
	require.NoError(t, Connect(g, o.ID, c.ID))

	s := topology.DefaultSettings()
	s.FileName = "cluster"
	return g, s
}

func hasRule(diags []Diagnostic, rule, severity string) bool {
	for _, d := range diags {
		if d.Rule == rule && d.Severity == severity {
			return true
		}
	}
	return false
}

func TestLintValidClusterIsClean(t *testing.T) {
	g, s := validCluster(t)
	assert.Empty(t, Lint(g, s))
	assert.NoError(t, Preflight(g, s))
}

func TestLintRules(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(t *testing.T, g *topology.Graph, s *topology.Settings)
		rule     string
		severity string
		message  string
	}{
		{
			name:     "empty name",
			mutate:   func(t *testing.T, g *topology.Graph, _ *topology.Settings) { require.NoError(t, g.Rename(2, "  ")) },
			rule:     "names_present",
			severity: SeverityError,
			message:  "Not all nodes have names. Please make sure every node has a name.",
		},
		{
			name:     "duplicate name",
			mutate:   func(t *testing.T, g *topology.Graph, _ *topology.Settings) { require.NoError(t, g.Rename(3, "D1")) },
			rule:     "names_unique",
			severity: SeverityError,
			message:  "Nodes cannot have the same name.",
		},
		{
			name:     "missing cluster name",
			mutate:   func(_ *testing.T, _ *topology.Graph, s *topology.Settings) { s.FileName = "" },
			rule:     "settings",
			severity: SeverityError,
			message:  "Please enter a value for the file/clustername setting.",
		},
		{
			name:     "missing significance",
			mutate:   func(_ *testing.T, _ *topology.Graph, s *topology.Settings) { s.Significance = nil },
			rule:     "settings",
			severity: SeverityError,
			message:  "Please enter a value for the significance setting.",
		},
		{
			name: "no auctioneer",
			mutate: func(t *testing.T, g *topology.Graph, _ *topology.Settings) {
				require.NoError(t, g.Remove(0))
			},
			rule:     "auctioneer",
			severity: SeverityError,
			message:  "Please add an auctioneer before exporting.",
		},
		{
			name: "dangling child",
			mutate: func(t *testing.T, g *topology.Graph, _ *topology.Settings) {
				n, _ := g.Get(1)
				n.Children = append(n.Children, 77)
			},
			rule:     "dangling_child",
			severity: SeverityError,
		},
		{
			name: "device with children",
			mutate: func(t *testing.T, g *topology.Graph, _ *topology.Settings) {
				x := add(t, g, topology.KindDevice, "X")
				require.NoError(t, g.AttachChild(2, x.ID))
			},
			rule:     "leaf_children",
			severity: SeverityError,
			message:  ReasonUnderDevice,
		},
		{
			name: "two parents",
			mutate: func(t *testing.T, g *topology.Graph, _ *topology.Settings) {
				require.NoError(t, g.AttachChild(0, 2))
			},
			rule:     "single_parent",
			severity: SeverityError,
		},
		{
			name: "cycle",
			mutate: func(t *testing.T, g *topology.Graph, _ *topology.Settings) {
				x := add(t, g, topology.KindConcentrator, "X")
				y := add(t, g, topology.KindConcentrator, "Y")
				require.NoError(t, g.AttachChild(x.ID, y.ID))
				require.NoError(t, g.AttachChild(y.ID, x.ID))
			},
			rule:     "cycle",
			severity: SeverityError,
		},
		{
			name: "orphan",
			mutate: func(t *testing.T, g *topology.Graph, _ *topology.Settings) {
				add(t, g, topology.KindDevice, "loose")
			},
			rule:     "orphan",
			severity: SeverityWarning,
		},
		{
			name: "inverted price range",
			mutate: func(_ *testing.T, _ *topology.Graph, s *topology.Settings) {
				low := 0.1
				s.Max = &low
				high := 0.5
				s.Min = &high
			},
			rule:     "price_range",
			severity: SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, s := validCluster(t)
			tt.mutate(t, g, &s)

			diags := Lint(g, s)
			assert.True(t, hasRule(diags, tt.rule, tt.severity), "missing %s/%s in %+v", tt.rule, tt.severity, diags)

			err := Preflight(g, s)
			if tt.severity == SeverityWarning {
				assert.NoError(t, err)
				return
			}
			var pe *PreflightError
			require.ErrorAs(t, err, &pe)
			if tt.message != "" {
				assert.Equal(t, tt.message, err.Error())
			}
		})
	}
}

func TestPreflightReportsFirstErrorOnly(t *testing.T) {
	g, s := validCluster(t)
	require.NoError(t, g.Rename(3, ""))
	s.FileName = ""

	err := Preflight(g, s)
	var pe *PreflightError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "Not all nodes have names. Please make sure every node has a name.", err.Error())
	assert.Equal(t, "names_present", pe.Rule())
}
