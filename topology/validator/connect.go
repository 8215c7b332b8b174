// ABOUTME: Structural rules deciding whether one agent may be bound under another or placed at all.
// ABOUTME: Rules are checked in a fixed priority order and the first failing rule names the rejection.
package validator

import (
	"fmt"

	"github.com/2389-research/clusterdesigner/topology"
)

// Rejection reasons reported to the operator.
const (
	ReasonMultipleParents  = "an agent cannot have more than one parent"
	ReasonAuctioneerBound  = "an auctioneer cannot be bound as a child of anything"
	ReasonUnderDevice      = "nothing can be bound under a device"
	ReasonUnderObjective   = "nothing can be bound under an objective"
	ReasonCycle            = "an agent cannot be bound under itself or its own descendant"
	ReasonSecondAuctioneer = "you cannot have more than one auctioneer"
)

// reasonRules maps each rejection reason to the lint rule that checks the
// same constraint on a whole topology.
var reasonRules = map[string]string{
	ReasonMultipleParents:  "single_parent",
	ReasonAuctioneerBound:  "auctioneer",
	ReasonUnderDevice:      "leaf_children",
	ReasonUnderObjective:   "leaf_children",
	ReasonCycle:            "cycle",
	ReasonSecondAuctioneer: "auctioneer",
}

func ruleFor(reason string) string {
	if rule, ok := reasonRules[reason]; ok {
		return rule
	}
	return "other"
}

// ConnectionError rejects a proposed edge. The graph is unchanged.
type ConnectionError struct {
	SourceID int
	TargetID int
	Reason   string
}

func (e *ConnectionError) Error() string {
	return e.Reason
}

// Rule names the violated constraint with a fixed code.
func (e *ConnectionError) Rule() string {
	return ruleFor(e.Reason)
}

// PlacementError rejects the placement of a new agent.
type PlacementError struct {
	Kind   topology.Kind
	Reason string
}

func (e *PlacementError) Error() string {
	return e.Reason
}

// Rule names the violated constraint with a fixed code.
func (e *PlacementError) Rule() string {
	return ruleFor(e.Reason)
}

// CanConnect decides whether source may become a child of target, given the
// edges where source already appears as a child.
func CanConnect(source, target *topology.Node, existing []topology.EdgeRef) error {
	reject := func(reason string) error {
		return &ConnectionError{SourceID: source.ID, TargetID: target.ID, Reason: reason}
	}
	if len(existing) > 0 {
		return reject(ReasonMultipleParents)
	}
	if source.Kind == topology.KindAuctioneer {
		return reject(ReasonAuctioneerBound)
	}
	switch target.Kind {
	case topology.KindDevice:
		return reject(ReasonUnderDevice)
	case topology.KindObjective:
		return reject(ReasonUnderObjective)
	case topology.KindAuctioneer, topology.KindConcentrator:
	}
	if source.ID == target.ID {
		return reject(ReasonCycle)
	}
	return nil
}

// Connect binds sourceID as the last child of targetID if every rule allows it.
func Connect(g *topology.Graph, sourceID, targetID int) error {
	source, ok := g.Get(sourceID)
	if !ok {
		return fmt.Errorf("connect agent %d: %w", sourceID, topology.ErrNodeNotFound)
	}
	target, ok := g.Get(targetID)
	if !ok {
		return fmt.Errorf("connect to agent %d: %w", targetID, topology.ErrNodeNotFound)
	}
	if err := CanConnect(source, target, g.ParentEdges(sourceID)); err != nil {
		return err
	}
	if IsDescendant(g, sourceID, targetID) {
		return &ConnectionError{SourceID: sourceID, TargetID: targetID, Reason: ReasonCycle}
	}
	return g.AttachChild(targetID, sourceID)
}

// IsDescendant reports whether id lies below ancestorID, walking parent links
// upward from id. A visited set stops the walk on corrupted cyclic input.
func IsDescendant(g *topology.Graph, ancestorID, id int) bool {
	seen := make(map[int]bool)
	current := id
	for {
		if seen[current] {
			return false
		}
		seen[current] = true
		parent, ok := g.Parent(current)
		if !ok {
			return false
		}
		if parent.ID == ancestorID {
			return true
		}
		current = parent.ID
	}
}

// CanPlace rejects a second auctioneer.
func CanPlace(g *topology.Graph, kind topology.Kind) error {
	if kind != topology.KindAuctioneer {
		return nil
	}
	if _, exists := g.Auctioneer(); exists {
		return &PlacementError{Kind: kind, Reason: ReasonSecondAuctioneer}
	}
	return nil
}
