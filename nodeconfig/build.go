// ABOUTME: Builds the PowerMatcher node configuration for a validated cluster topology.
// ABOUTME: Runtime defaults, connectivity, scheduling, market basis, and one children group per matcher.
package nodeconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/2389-research/clusterdesigner/catalog"
	"github.com/2389-research/clusterdesigner/topology"
	"github.com/2389-research/clusterdesigner/topology/validator"
)

// Runtime component pids.
const (
	pidMqttv3          = "net.powermatcher.core.messaging.mqttv3.Mqttv3ConnectionFactory"
	pidMatcherProtocol = "net.powermatcher.core.messaging.protocol.adapter.MatcherProtocolAdapterFactory"
	pidAgentProtocol   = "net.powermatcher.core.messaging.protocol.adapter.AgentProtocolAdapterFactory"
	pidTimeAdapter     = "net.powermatcher.core.scheduler.TimeAdapterFactory"
	pidScheduler       = "net.powermatcher.core.scheduler.SchedulerAdapterFactory"
	pidMarketBasis     = "net.powermatcher.core.agent.marketbasis.adapter.MarketBasisAdapterFactory"
	pidAuctioneer      = "net.powermatcher.core.agent.auctioneer.Auctioneer"
	pidConcentrator    = "net.powermatcher.core.agent.concentrator.Concentrator"
	pidObjective       = "net.powermatcher.core.agent.objective.ObjectiveAgent"
	pidDevice          = "net.powermatcher.core.agent.test.TestAgent"

	messagingProtocol = "INTERNAL_v1"
	bidTopicSuffix    = "UpdateBid"
	priceTopicSuffix  = "UpdatePriceInfo"
	updateInterval    = "5"
)

// Options carries the parts of a document that do not come from the topology.
type Options struct {
	Catalog     *catalog.Catalog
	NodeID      string
	NodeName    string
	Description string
	// ObjectiveBid is written verbatim as the objective.bid property.
	ObjectiveBid string
	Now          func() time.Time
	Location     *time.Location
}

// DefaultOptions returns the header values of the runtime's sample node.
func DefaultOptions() Options {
	return Options{
		Catalog:      catalog.Default(),
		NodeID:       "sample_node",
		NodeName:     "Sample Core node",
		Description:  "PowerMatcher VPP cluster Head End v002",
		ObjectiveBid: "5",
		Now:          time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Catalog == nil {
		o.Catalog = d.Catalog
	}
	if o.NodeID == "" {
		o.NodeID = d.NodeID
	}
	if o.NodeName == "" {
		o.NodeName = d.NodeName
	}
	if o.Description == "" {
		o.Description = d.Description
	}
	if o.ObjectiveBid == "" {
		o.ObjectiveBid = d.ObjectiveBid
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// Build runs the export preflight and returns the configuration document.
// The graph is not modified.
func Build(g *topology.Graph, s topology.Settings, opts Options) (*Document, error) {
	if err := validator.Preflight(g, s); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	root, _ := g.Auctioneer()

	b := &builder{g: g, cluster: s.FileName, opts: opts}
	agents := Block{Type: TypeGroup, ID: "agents"}
	agents.Blocks = append(agents.Blocks, b.marketBasis(s), b.auctioneer(root))
	if root.HasChildren() {
		agents.Blocks = append(agents.Blocks, b.childrenGroup(root))
	}
	for _, c := range b.concentrators(root) {
		agents.Blocks = append(agents.Blocks, b.childrenGroup(c))
	}

	now := opts.Now()
	if opts.Location != nil {
		now = now.In(opts.Location)
	}
	rootBlock := Block{
		Type: TypeGroup,
		ID:   "root",
		Properties: []Property{
			{Name: "update.interval", Value: updateInterval, Type: PropInteger},
			str("time.adapter.factory", "timeAdapterFactory"),
			str("scheduler.adapter.factory", "schedulerAdapterFactory"),
			str("messaging.adapter.factory", "mqttv3ConnectionFactory"),
			str("agent.adapter.factory", "agentProtocolAdapterFactory"),
			str("matcher.adapter.factory", "matcherProtocolAdapterFactory"),
			str("logging.adapter.factory", "directLoggingAdapterFactory"),
		},
		Blocks: []Block{
			b.factory(pidMqttv3, "mqttv3Connection", str("id", "mqttv3ConnectionFactory")),
			b.factory(pidMatcherProtocol, "matcherProtocolAdapter",
				str("id", "matcherProtocolAdapterFactory"),
				str("messaging.protocol", messagingProtocol),
				str("bid.topic.suffix", bidTopicSuffix),
				str("price.info.topic.suffix", priceTopicSuffix),
			),
			b.factory(pidAgentProtocol, "agentProtocolAdapter",
				str("id", "agentProtocolAdapterFactory"),
				str("messaging.protocol", messagingProtocol),
				str("price.info.topic.suffix", priceTopicSuffix),
				str("bid.topic.suffix", bidTopicSuffix),
			),
			b.factory(pidTimeAdapter, "timeAdapter", str("id", "timeAdapterFactory")),
			b.factory(pidScheduler, "schedulerAdapter", str("id", "schedulerAdapterFactory")),
			agents,
		},
	}

	return &Document{
		ID:          opts.NodeID,
		Name:        opts.NodeName,
		Description: opts.Description,
		Date:        now.Format(time.DateOnly),
		Root:        rootBlock,
	}, nil
}

type builder struct {
	g       *topology.Graph
	cluster string
	opts    Options
}

func (b *builder) factory(pid, id string, props ...Property) Block {
	return Block{Type: TypeFactory, Cluster: b.cluster, PID: pid, ID: id, Properties: props}
}

func (b *builder) className(n *topology.Node) string {
	return b.opts.Catalog.ClassName(n.Kind, n.Variant)
}

func (b *builder) marketBasis(s topology.Settings) Block {
	return b.factory(pidMarketBasis, "marketBasisAdapter",
		str("id", "marketBasisAdapterFactory"),
		Property{Name: "market.ref", Value: strconv.FormatInt(*s.Reference, 10), Type: PropInteger},
		Property{Name: "minimum.price", Value: formatDouble(*s.Min), Type: PropDouble},
		Property{Name: "maximum.price", Value: formatDouble(*s.Max), Type: PropDouble},
		Property{Name: "price.steps", Value: strconv.FormatInt(*s.Step, 10), Type: PropInteger},
		Property{Name: "significance", Value: strconv.FormatInt(*s.Significance, 10), Type: PropInteger},
	)
}

func (b *builder) auctioneer(n *topology.Node) Block {
	return b.factory(pidAuctioneer, n.Name,
		str("id", b.className(n)),
		str("agent.adapter.factory", "marketBasisAdapterFactory"),
	)
}

// childrenGroup lists the agents bound directly under a matcher.
func (b *builder) childrenGroup(matcher *topology.Node) Block {
	group := Block{
		Type:       TypeGroup,
		ID:         matcher.Name + "-children",
		Properties: []Property{str("matcher.id", b.className(matcher))},
	}
	for _, cid := range matcher.Children {
		child, ok := b.g.Get(cid)
		if !ok {
			continue
		}
		group.Blocks = append(group.Blocks, b.agent(child))
	}
	return group
}

func (b *builder) agent(n *topology.Node) Block {
	switch n.Kind {
	case topology.KindObjective:
		return b.factory(pidObjective, n.Name,
			str("id", b.className(n)),
			str("objective.bid", b.opts.ObjectiveBid),
		)
	case topology.KindDevice:
		return b.factory(pidDevice, n.Name, str("id", b.className(n)))
	case topology.KindConcentrator:
		return b.factory(pidConcentrator, n.Name, str("id", b.className(n)))
	case topology.KindAuctioneer:
		return b.auctioneer(n)
	default:
		panic(fmt.Sprintf("nodeconfig: unhandled agent kind %v", n.Kind))
	}
}

// concentrators returns every concentrator below root in depth-first
// discovery order.
func (b *builder) concentrators(root *topology.Node) []*topology.Node {
	var out []*topology.Node
	seen := map[int]bool{root.ID: true}
	var walk func(n *topology.Node)
	walk = func(n *topology.Node) {
		for _, cid := range n.Children {
			child, ok := b.g.Get(cid)
			if !ok || seen[cid] {
				continue
			}
			seen[cid] = true
			if child.Kind == topology.KindConcentrator {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

func formatDouble(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
