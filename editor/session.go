// ABOUTME: Editing session that owns one topology and serializes every mutation behind a mutex.
// ABOUTME: Save, load, and export each admit one request at a time and run collaborator I/O outside the lock.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/2389-research/clusterdesigner/catalog"
	"github.com/2389-research/clusterdesigner/layout"
	"github.com/2389-research/clusterdesigner/nodeconfig"
	"github.com/2389-research/clusterdesigner/persist"
	"github.com/2389-research/clusterdesigner/render"
	"github.com/2389-research/clusterdesigner/topology"
	"github.com/2389-research/clusterdesigner/topology/validator"
)

var (
	// ErrRequestInFlight rejects a save, load, or export while one of the same kind is pending.
	ErrRequestInFlight = errors.New("a request of this kind is already in progress")
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoBackend is returned when saving or loading without a persistence backend.
	ErrNoBackend = errors.New("no persistence backend configured")
	// ErrNoExporter is returned when exporting without a document sink.
	ErrNoExporter = errors.New("no export destination configured")
)

// StatusNothingToLoad is reported when a load finds no saved design.
const StatusNothingToLoad = "Nothing to load or no database connection established."

type requestKind int

const (
	requestSave requestKind = iota
	requestLoad
	requestExport
	numRequestKinds
)

func (k requestKind) String() string {
	switch k {
	case requestSave:
		return "save"
	case requestLoad:
		return "load"
	default:
		return "export"
	}
}

// Services are the collaborators shared by every session of a server.
type Services struct {
	Catalog     *catalog.Catalog
	Backend     persist.Backend
	Exporter    nodeconfig.Exporter
	Document    nodeconfig.Options
	CanvasWidth float64
	Logger      *log.Logger
	Metrics     *Metrics
}

func (svc *Services) logger() *log.Logger {
	if svc == nil || svc.Logger == nil {
		return log.Default()
	}
	return svc.Logger
}

func (svc *Services) metrics() *Metrics {
	if svc == nil {
		return nil
	}
	return svc.Metrics
}

// Session is one operator's design.
type Session struct {
	mu       sync.Mutex
	ID       string
	Name     string
	graph    *topology.Graph
	settings topology.Settings
	status   string
	layout   *layout.Result

	CreatedAt  time.Time
	LastAccess time.Time

	svc      *Services
	inflight [numRequestKinds]atomic.Bool
}

func newSession(id, name string, svc *Services) *Session {
	if svc == nil {
		svc = &Services{}
	}
	if svc.Catalog == nil {
		withCatalog := *svc
		withCatalog.Catalog = catalog.Default()
		svc = &withCatalog
	}
	now := time.Now()
	return &Session{
		ID:         id,
		Name:       name,
		graph:      topology.New(),
		settings:   topology.DefaultSettings(),
		CreatedAt:  now,
		LastAccess: now,
		svc:        svc,
	}
}

// NodeView is a node as shown to clients.
type NodeView struct {
	topology.NodeRecord
	Depth     int    `json:"depth"`
	ClassName string `json:"className"`
	Asset     string `json:"asset,omitempty"`
}

// View is a consistent read of the whole session.
type View struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Nodes     []NodeView        `json:"nodes"`
	Settings  topology.Settings `json:"settings"`
	BlockSize float64           `json:"blockSize"`
	Status    string            `json:"status,omitempty"`
	Layout    *layout.Result    `json:"layout,omitempty"`
}

// View returns a snapshot of the session.
func (sess *Session) View() View {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.viewLocked()
}

func (sess *Session) viewLocked() View {
	depths, _ := layout.Depths(sess.graph)
	nodes := make([]NodeView, 0, sess.graph.Len())
	for _, r := range sess.graph.Records() {
		nodes = append(nodes, NodeView{
			NodeRecord: r,
			Depth:      depths[r.ID],
			ClassName:  sess.svc.Catalog.ClassName(r.Kind, r.ClassVariant),
			Asset:      sess.svc.Catalog.Asset(r.Kind, r.ClassVariant),
		})
	}
	return View{
		ID:        sess.ID,
		Name:      sess.Name,
		Nodes:     nodes,
		Settings:  sess.settings.Clone(),
		BlockSize: sess.blockSize(),
		Status:    sess.status,
		Layout:    sess.layout,
	}
}

func (sess *Session) agentCount() int {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.graph.Len()
}

// Graph returns a deep copy of the current topology.
func (sess *Session) Graph() *topology.Graph {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.graph.Clone()
}

// Settings returns a copy of the cluster settings.
func (sess *Session) Settings() topology.Settings {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.settings.Clone()
}

func (sess *Session) blockSize() float64 {
	return layout.BlockSizeForZoom(sess.settings.Zoom)
}

// reject records a validation failure as the session status.
func (sess *Session) reject(err error) error {
	var ruled interface{ Rule() string }
	if errors.As(err, &ruled) {
		sess.status = err.Error()
		sess.svc.metrics().rejection(ruled.Rule())
		sess.svc.logger().Debug("rejected", "session", sess.ID, "rule", ruled.Rule(), "reason", err)
	}
	return err
}

func (sess *Session) accepted(op string) {
	sess.status = ""
	sess.svc.metrics().mutation(op)
}

// PlaceAgent adds a new agent at pos.
func (sess *Session) PlaceAgent(kind topology.Kind, pos topology.Point) (NodeView, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := validator.CanPlace(sess.graph, kind); err != nil {
		return NodeView{}, sess.reject(err)
	}
	n, err := sess.graph.Create(kind, pos)
	if err != nil {
		return NodeView{}, err
	}
	sess.accepted("place")
	return NodeView{
		NodeRecord: topology.NodeRecord{ID: n.ID, Kind: n.Kind, ChildIDs: []int{}, X: n.Pos.X, Y: n.Pos.Y},
		ClassName:  sess.svc.Catalog.ClassName(n.Kind, 0),
		Asset:      sess.svc.Catalog.Asset(n.Kind, 0),
	}, nil
}

// Connect binds source under target.
func (sess *Session) Connect(sourceID, targetID int) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := validator.Connect(sess.graph, sourceID, targetID); err != nil {
		return sess.reject(err)
	}
	sess.accepted("connect")
	return nil
}

// Disconnect removes an agent's parent edge and all of its child edges.
func (sess *Session) Disconnect(id int) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.graph.Detach(id); err != nil {
		return err
	}
	sess.accepted("disconnect")
	return nil
}

// Remove deletes an agent.
func (sess *Session) Remove(id int) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.graph.Remove(id); err != nil {
		return err
	}
	sess.accepted("remove")
	return nil
}

// Rename sets an agent's name.
func (sess *Session) Rename(id int, name string) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := sess.graph.Rename(id, name); err != nil {
		return err
	}
	sess.accepted("rename")
	return nil
}

// CycleVariant moves an agent to its next class variant.
func (sess *Session) CycleVariant(id int) (int, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	n, ok := sess.graph.Get(id)
	if !ok {
		return 0, fmt.Errorf("cycle variant of agent %d: %w", id, topology.ErrNodeNotFound)
	}
	v, err := sess.graph.CycleVariant(id, sess.svc.Catalog.Len(n.Kind))
	if err != nil {
		return 0, err
	}
	sess.accepted("variant")
	return v, nil
}

// Move drops an agent at pos and snaps every agent to the grid. If the drop
// leaves agents overlapping, the agent goes back to where it was.
func (sess *Session) Move(id int, pos topology.Point) (reverted bool, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	n, ok := sess.graph.Get(id)
	if !ok {
		return false, fmt.Errorf("move agent %d: %w", id, topology.ErrNodeNotFound)
	}
	bs := sess.blockSize()
	start := n.Pos
	n.Pos = pos
	nodes := sess.graph.Nodes()
	layout.Snap(nodes, bs)
	if layout.Overlaps(nodes, bs) {
		n.Pos = start
		layout.Snap(nodes, bs)
		reverted = true
	}
	sess.accepted("move")
	return reverted, nil
}

// Pan shifts the view by whole half-block steps.
func (sess *Session) Pan(stepsX, stepsY int) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	half := 0.5 * sess.blockSize()
	sess.graph.Translate(float64(stepsX)*half, float64(stepsY)*half)
	sess.accepted("pan")
}

// Zoom scales the canvas one step in or out and returns the new zoom level.
func (sess *Session) Zoom(in bool) float64 {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	factor := layout.ZoomStep
	if !in {
		factor = 1 / layout.ZoomStep
	}
	sess.settings.Zoom *= factor
	sess.graph.Scale(factor)
	sess.accepted("zoom")
	return sess.settings.Zoom
}

// Organize runs the auto-layout.
func (sess *Session) Organize() layout.Result {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.organizeLocked()
}

func (sess *Session) organizeLocked() layout.Result {
	res := layout.Organize(sess.graph, layout.Options{
		BlockSize:   sess.blockSize(),
		CanvasWidth: sess.svc.CanvasWidth,
	})
	sess.layout = &res

	outcome := "converged"
	switch {
	case !res.Converged:
		outcome = "failed"
		sess.status = res.Warning
		sess.svc.logger().Warn(res.Warning, "session", sess.ID, "agents", sess.graph.Len())
	case res.Messy:
		outcome = "fallback"
	}
	if len(res.Cyclic) > 0 {
		sess.svc.logger().Warn("cyclic ancestry placed at depth 0", "session", sess.ID, "agents", res.Cyclic)
	}
	sess.svc.metrics().layoutRun(outcome)
	sess.svc.metrics().mutation("organize")
	return res
}

// UpdateSettings merges loosely typed settings values. Zoom changes go
// through Zoom so positions stay in scale.
func (sess *Session) UpdateSettings(raw map[string]any) (topology.Settings, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	delete(raw, "zoom")
	next := sess.settings
	if err := persist.MergeSettings(&next, raw); err != nil {
		return topology.Settings{}, err
	}
	sess.settings = next
	sess.accepted("settings")
	return next.Clone(), nil
}

// PreviewDOT returns the topology as DOT text pinned at its canvas positions.
func (sess *Session) PreviewDOT() string {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return render.ToDOT(sess.graph, sess.svc.Catalog, sess.blockSize())
}

// Lint returns the export diagnostics for the current design.
func (sess *Session) Lint() []validator.Diagnostic {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return validator.Lint(sess.graph, sess.settings)
}

// begin claims the in-flight slot for a request kind.
func (sess *Session) begin(kind requestKind) (func(), error) {
	if !sess.inflight[kind].CompareAndSwap(false, true) {
		sess.svc.metrics().collaboratorCall(kind.String(), "busy", time.Now())
		return nil, fmt.Errorf("%s: %w", kind, ErrRequestInFlight)
	}
	return func() { sess.inflight[kind].Store(false) }, nil
}

func (sess *Session) setStatus(status string) {
	sess.mu.Lock()
	sess.status = status
	sess.mu.Unlock()
}

func (sess *Session) snapshotLocked() *persist.Snapshot {
	return &persist.Snapshot{Settings: sess.settings.Clone(), Agents: sess.graph.Records()}
}

// Save stores the design with the persistence backend.
func (sess *Session) Save(ctx context.Context) (string, error) {
	done, err := sess.begin(requestSave)
	if err != nil {
		return "", err
	}
	defer done()

	sess.mu.Lock()
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	return sess.save(ctx, snap)
}

func (sess *Session) save(ctx context.Context, snap *persist.Snapshot) (string, error) {
	if sess.svc.Backend == nil {
		return "", ErrNoBackend
	}
	started := time.Now()
	status, err := sess.svc.Backend.Save(ctx, sess.Name, snap)
	if err != nil {
		sess.svc.metrics().collaboratorCall("save", "error", started)
		sess.svc.logger().Error("save failed", "session", sess.ID, "err", err)
		err = fmt.Errorf("save design %s: %w", sess.Name, err)
		sess.setStatus(err.Error())
		return "", err
	}
	sess.svc.metrics().collaboratorCall("save", "ok", started)
	sess.svc.logger().Info("saved design", "session", sess.ID, "name", sess.Name, "agents", len(snap.Agents))
	sess.setStatus(status)
	return status, nil
}

// Load replaces the design with the latest saved one and lays it out again.
// A missing design is reported as a status, not an error.
func (sess *Session) Load(ctx context.Context) (string, error) {
	done, err := sess.begin(requestLoad)
	if err != nil {
		return "", err
	}
	defer done()

	if sess.svc.Backend == nil {
		return "", ErrNoBackend
	}
	started := time.Now()
	snap, err := sess.svc.Backend.Load(ctx, sess.Name)
	if errors.Is(err, persist.ErrNothingToLoad) {
		sess.svc.metrics().collaboratorCall("load", "empty", started)
		sess.setStatus(StatusNothingToLoad)
		return StatusNothingToLoad, nil
	}
	if err != nil {
		sess.svc.metrics().collaboratorCall("load", "error", started)
		sess.svc.logger().Error("load failed", "session", sess.ID, "err", err)
		err = fmt.Errorf("load design %s: %w", sess.Name, err)
		sess.setStatus(err.Error())
		return "", err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.graph.ReplaceAll(snap.Agents); err != nil {
		sess.svc.metrics().collaboratorCall("load", "error", started)
		err = fmt.Errorf("load design %s: %w", sess.Name, err)
		sess.status = err.Error()
		return "", err
	}
	sess.settings = snap.Settings
	sess.svc.metrics().collaboratorCall("load", "ok", started)
	res := sess.organizeLocked()
	sess.status = fmt.Sprintf("loaded %d agents", len(snap.Agents))
	if res.Warning != "" {
		sess.status += ": " + res.Warning
	}
	return sess.status, nil
}

// Export checks the design, saves it, and hands the configuration document
// to the exporter. The save holds the save slot, so it is refused while an
// explicit save is pending.
func (sess *Session) Export(ctx context.Context) (string, error) {
	done, err := sess.begin(requestExport)
	if err != nil {
		return "", err
	}
	defer done()

	if sess.svc.Exporter == nil {
		return "", ErrNoExporter
	}

	sess.mu.Lock()
	doc, err := nodeconfig.Build(sess.graph, sess.settings, sess.documentOptions())
	if err != nil {
		err = sess.reject(err)
		sess.mu.Unlock()
		return "", err
	}
	snap := sess.snapshotLocked()
	sess.mu.Unlock()

	if sess.svc.Backend != nil {
		doneSave, err := sess.begin(requestSave)
		if err != nil {
			return "", err
		}
		_, err = sess.save(ctx, snap)
		doneSave()
		if err != nil {
			return "", err
		}
	}

	started := time.Now()
	status, err := sess.svc.Exporter.Export(ctx, doc, snap.Settings)
	if err != nil {
		sess.svc.metrics().collaboratorCall("export", "error", started)
		sess.svc.logger().Error("export failed", "session", sess.ID, "err", err)
		err = fmt.Errorf("export design %s: %w", sess.Name, err)
		sess.setStatus(err.Error())
		return "", err
	}
	sess.svc.metrics().collaboratorCall("export", "ok", started)
	sess.svc.logger().Info("exported design", "session", sess.ID, "name", sess.Name)
	sess.setStatus(status)
	return status, nil
}

func (sess *Session) documentOptions() nodeconfig.Options {
	opts := sess.svc.Document
	if opts.Catalog == nil {
		opts.Catalog = sess.svc.Catalog
	}
	return opts
}
