// ABOUTME: Closed set of agent kinds that make up a PowerMatcher cluster topology.
// ABOUTME: Provides parsing, text marshalling, and the parent capability of each kind.
package topology

import (
	"fmt"
	"strings"
)

// Kind identifies the role an agent plays in the cluster hierarchy.
type Kind int

const (
	// KindAuctioneer is the single root of the cluster.
	KindAuctioneer Kind = iota + 1
	// KindConcentrator aggregates bids from the agents bound under it.
	KindConcentrator
	// KindObjective is a leaf agent that expresses a cluster objective.
	KindObjective
	// KindDevice is a leaf agent representing a physical device.
	KindDevice
)

// Kinds lists every valid kind in canonical order.
func Kinds() []Kind {
	return []Kind{KindAuctioneer, KindConcentrator, KindObjective, KindDevice}
}

func (k Kind) String() string {
	switch k {
	case KindAuctioneer:
		return "Auctioneer"
	case KindConcentrator:
		return "Concentrator"
	case KindObjective:
		return "Objective"
	case KindDevice:
		return "Device"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool {
	return k >= KindAuctioneer && k <= KindDevice
}

// CanParent reports whether agents may be bound under a node of this kind.
func (k Kind) CanParent() bool {
	switch k {
	case KindAuctioneer, KindConcentrator:
		return true
	default:
		return false
	}
}

// ParseKind converts a case-insensitive kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auctioneer":
		return KindAuctioneer, nil
	case "concentrator":
		return KindConcentrator, nil
	case "objective":
		return KindObjective, nil
	case "device":
		return KindDevice, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
