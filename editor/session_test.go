// ABOUTME: Test suite for editing sessions and the session store
// ABOUTME: Covers placement, connection rules, drag and snap, zoom, settings, and the save/load/export flow

package editor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/2389-research/clusterdesigner/layout"
	"github.com/2389-research/clusterdesigner/nodeconfig"
	"github.com/2389-research/clusterdesigner/persist"
	"github.com/2389-research/clusterdesigner/topology"
	"github.com/2389-research/clusterdesigner/topology/validator"
)

// blockingBackend holds every Save until release is closed.
type blockingBackend struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingBackend) Save(ctx context.Context, name string, snap *persist.Snapshot) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return "saved " + name, nil
}

func (b *blockingBackend) Load(ctx context.Context, name string) (*persist.Snapshot, error) {
	return nil, persist.ErrNothingToLoad
}

// failingBackend fails every call like an unreachable database.
type failingBackend struct{}

var errUnreachable = errors.New("connection refused")

func (failingBackend) Save(ctx context.Context, name string, snap *persist.Snapshot) (string, error) {
	return "", errUnreachable
}

func (failingBackend) Load(ctx context.Context, name string) (*persist.Snapshot, error) {
	return nil, errUnreachable
}

func newTestSession(t *testing.T, svc *Services) *Session {
	t.Helper()
	return NewStore(10, time.Hour).Create("demo", svc)
}

func mustPlace(t *testing.T, sess *Session, kind topology.Kind, x, y float64) int {
	t.Helper()
	v, err := sess.PlaceAgent(kind, topology.Point{X: x, Y: y})
	if err != nil {
		t.Fatalf("place %s: %v", kind, err)
	}
	return v.ID
}

func mustConnect(t *testing.T, sess *Session, source, target int) {
	t.Helper()
	if err := sess.Connect(source, target); err != nil {
		t.Fatalf("connect %d under %d: %v", source, target, err)
	}
}

// buildExportable creates A -> B -> D1 with names and a cluster name.
func buildExportable(t *testing.T, sess *Session) {
	t.Helper()
	a := mustPlace(t, sess, topology.KindAuctioneer, 5, 5)
	b := mustPlace(t, sess, topology.KindConcentrator, 145, 145)
	d := mustPlace(t, sess, topology.KindDevice, 285, 285)
	mustConnect(t, sess, b, a)
	mustConnect(t, sess, d, b)
	for id, name := range map[int]string{a: "A", b: "B", d: "D1"} {
		if err := sess.Rename(id, name); err != nil {
			t.Fatalf("rename: %v", err)
		}
	}
	if _, err := sess.UpdateSettings(map[string]any{"fileName": "demo"}); err != nil {
		t.Fatalf("settings: %v", err)
	}
}

func TestStoreCreateDefaultsNameToID(t *testing.T) {
	store := NewStore(10, time.Hour)
	sess := store.Create("  ", nil)
	if sess.ID == "" {
		t.Fatal("expected session ID to be set")
	}
	if sess.Name != sess.ID {
		t.Errorf("expected name to default to id %q, got %q", sess.ID, sess.Name)
	}
	if sess.CreatedAt.IsZero() || sess.LastAccess.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestStoreGetUpdatesLastAccess(t *testing.T) {
	store := NewStore(10, time.Hour)
	sess := store.Create("demo", nil)
	original := sess.LastAccess
	time.Sleep(10 * time.Millisecond)

	got, ok := store.Get(sess.ID)
	if !ok {
		t.Fatal("expected session to be found")
	}
	if !got.LastAccess.After(original) {
		t.Error("expected LastAccess to advance")
	}
	if _, ok := store.Get("missing"); ok {
		t.Error("expected unknown id to miss")
	}
}

func TestStoreTTLExpiry(t *testing.T) {
	store := NewStore(10, 50*time.Millisecond)
	sess := store.Create("demo", nil)
	time.Sleep(100 * time.Millisecond)

	if dropped := store.Cleanup(); dropped != 1 {
		t.Fatalf("expected 1 dropped session, got %d", dropped)
	}
	if _, ok := store.Get(sess.ID); ok {
		t.Error("expected expired session to be gone")
	}
}

func TestStoreStartCleanupExpiresInBackground(t *testing.T) {
	store := NewStore(10, 20*time.Millisecond)
	store.Create("idle", nil)
	stop := store.StartCleanup(10*time.Millisecond, nil)
	defer stop()

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle session was never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop()
}

func TestStoreMaxSessionsEvictsOldest(t *testing.T) {
	store := NewStore(2, time.Hour)
	first := store.Create("one", nil)
	time.Sleep(2 * time.Millisecond)
	store.Create("two", nil)
	time.Sleep(2 * time.Millisecond)
	store.Create("three", nil)

	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}
	if _, ok := store.Get(first.ID); ok {
		t.Error("expected oldest session to be evicted")
	}
}

func TestStoreListOrdersByLastAccess(t *testing.T) {
	store := NewStore(10, time.Hour)
	older := store.Create("older", nil)
	time.Sleep(2 * time.Millisecond)
	newer := store.Create("newer", nil)
	if _, err := newer.PlaceAgent(topology.KindAuctioneer, topology.Point{}); err != nil {
		t.Fatalf("PlaceAgent: %v", err)
	}

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(list))
	}
	if list[0].ID != newer.ID || list[0].Agents != 1 {
		t.Errorf("expected newer session with 1 agent first, got %+v", list[0])
	}

	time.Sleep(2 * time.Millisecond)
	store.Get(older.ID)
	if list = store.List(); list[0].ID != older.ID || list[0].Agents != 0 {
		t.Errorf("expected touched session first, got %+v", list[0])
	}
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(10, time.Hour)
	sess := store.Create("demo", nil)
	if !store.Delete(sess.ID) {
		t.Fatal("expected delete to report the session")
	}
	if store.Delete(sess.ID) {
		t.Error("expected second delete to miss")
	}
}

func TestSessionBuildsSmallTree(t *testing.T) {
	sess := newTestSession(t, nil)
	a := mustPlace(t, sess, topology.KindAuctioneer, 0, 0)
	b := mustPlace(t, sess, topology.KindConcentrator, 0, 0)
	d1 := mustPlace(t, sess, topology.KindDevice, 0, 0)
	d2 := mustPlace(t, sess, topology.KindDevice, 0, 0)
	mustConnect(t, sess, b, a)
	mustConnect(t, sess, d1, b)
	mustConnect(t, sess, d2, b)

	res := sess.Organize()
	if !res.Converged {
		t.Fatalf("expected layout to converge: %+v", res)
	}

	view := sess.View()
	want := map[int]topology.Point{
		a:  {X: 635, Y: 5},
		b:  {X: 635, Y: 145},
		d1: {X: 565, Y: 285},
		d2: {X: 705, Y: 285},
	}
	for _, n := range view.Nodes {
		if got := (topology.Point{X: n.X, Y: n.Y}); got != want[n.ID] {
			t.Errorf("agent %d at %+v, want %+v", n.ID, got, want[n.ID])
		}
	}
	if view.Nodes[3].Depth != 2 {
		t.Errorf("expected device depth 2, got %d", view.Nodes[3].Depth)
	}
}

func TestSessionRejectsSecondAuctioneer(t *testing.T) {
	sess := newTestSession(t, nil)
	mustPlace(t, sess, topology.KindAuctioneer, 0, 0)

	_, err := sess.PlaceAgent(topology.KindAuctioneer, topology.Point{})
	var pe *validator.PlacementError
	if !errors.As(err, &pe) {
		t.Fatalf("expected placement error, got %v", err)
	}
	view := sess.View()
	if len(view.Nodes) != 1 {
		t.Errorf("expected 1 agent, got %d", len(view.Nodes))
	}
	if view.Status != validator.ReasonSecondAuctioneer {
		t.Errorf("expected status %q, got %q", validator.ReasonSecondAuctioneer, view.Status)
	}
}

func TestSessionRejectsBindingUnderObjective(t *testing.T) {
	sess := newTestSession(t, nil)
	mustPlace(t, sess, topology.KindAuctioneer, 0, 0)
	o := mustPlace(t, sess, topology.KindObjective, 0, 0)
	d := mustPlace(t, sess, topology.KindDevice, 0, 0)
	before := sess.Graph().Records()

	err := sess.Connect(d, o)
	var ce *validator.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if ce.Reason != validator.ReasonUnderObjective {
		t.Errorf("expected reason %q, got %q", validator.ReasonUnderObjective, ce.Reason)
	}
	after := sess.Graph().Records()
	for i := range before {
		if len(before[i].ChildIDs) != len(after[i].ChildIDs) {
			t.Errorf("agent %d children changed after rejection", before[i].ID)
		}
	}
}

func TestSessionUnknownAgent(t *testing.T) {
	sess := newTestSession(t, nil)
	if err := sess.Rename(99, "x"); !errors.Is(err, topology.ErrNodeNotFound) {
		t.Errorf("rename: expected ErrNodeNotFound, got %v", err)
	}
	if _, err := sess.Move(99, topology.Point{}); !errors.Is(err, topology.ErrNodeNotFound) {
		t.Errorf("move: expected ErrNodeNotFound, got %v", err)
	}
	if _, err := sess.CycleVariant(99); !errors.Is(err, topology.ErrNodeNotFound) {
		t.Errorf("variant: expected ErrNodeNotFound, got %v", err)
	}
}

func TestSessionCycleVariantUsesCatalog(t *testing.T) {
	sess := newTestSession(t, nil)
	d := mustPlace(t, sess, topology.KindDevice, 0, 0)

	// The default catalog has four device variants.
	for step, want := range []int{1, 2, 3, 0} {
		got, err := sess.CycleVariant(d)
		if err != nil {
			t.Fatalf("cycle variant: %v", err)
		}
		if got != want {
			t.Errorf("step %d: expected variant %d, got %d", step, want, got)
		}
	}
}

func TestSessionMoveSnapsToGrid(t *testing.T) {
	sess := newTestSession(t, nil)
	mustPlace(t, sess, topology.KindAuctioneer, 5, 5)
	b := mustPlace(t, sess, topology.KindConcentrator, 285, 5)

	reverted, err := sess.Move(b, topology.Point{X: 150, Y: 150})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if reverted {
		t.Fatal("expected move to stick")
	}
	n := sess.View().Nodes[1]
	if n.X != 145 || n.Y != 145 {
		t.Errorf("expected snapped position (145,145), got (%v,%v)", n.X, n.Y)
	}
}

func TestSessionMoveRevertsOnOverlap(t *testing.T) {
	sess := newTestSession(t, nil)
	mustPlace(t, sess, topology.KindAuctioneer, 5, 5)
	b := mustPlace(t, sess, topology.KindConcentrator, 285, 5)

	reverted, err := sess.Move(b, topology.Point{X: 10, Y: 10})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !reverted {
		t.Fatal("expected overlapping drop to be reverted")
	}
	n := sess.View().Nodes[1]
	if n.X != 285 || n.Y != 5 {
		t.Errorf("expected agent back at (285,5), got (%v,%v)", n.X, n.Y)
	}
}

func TestSessionPanAndZoom(t *testing.T) {
	sess := newTestSession(t, nil)
	a := mustPlace(t, sess, topology.KindAuctioneer, 100, 100)

	sess.Pan(1, -2)
	n := sess.View().Nodes[0]
	if n.ID != a || n.X != 170 || n.Y != -40 {
		t.Errorf("expected pan to (170,-40), got (%v,%v)", n.X, n.Y)
	}

	zoom := sess.Zoom(true)
	if zoom < 1.19 || zoom > 1.21 {
		t.Errorf("expected zoom 1.2, got %v", zoom)
	}
	view := sess.View()
	if view.BlockSize < 167.9 || view.BlockSize > 168.1 {
		t.Errorf("expected block size 168, got %v", view.BlockSize)
	}
	if x := view.Nodes[0].X; x < 203.9 || x > 204.1 {
		t.Errorf("expected x scaled to 204, got %v", x)
	}

	if zoom := sess.Zoom(false); zoom < 0.99 || zoom > 1.01 {
		t.Errorf("expected zoom back to 1, got %v", zoom)
	}
}

func TestSessionUpdateSettingsIgnoresZoom(t *testing.T) {
	sess := newTestSession(t, nil)
	s, err := sess.UpdateSettings(map[string]any{"reference": "7", "zoom": 3.0, "step": ""})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if s.Reference == nil || *s.Reference != 7 {
		t.Errorf("expected reference 7, got %v", s.Reference)
	}
	if s.Step != nil {
		t.Errorf("expected empty step to clear, got %v", *s.Step)
	}
	if s.Zoom != 1 {
		t.Errorf("expected zoom to stay 1, got %v", s.Zoom)
	}

	if _, err := sess.UpdateSettings(map[string]any{"significance": "lots"}); err == nil {
		t.Fatal("expected error for non-numeric significance")
	}
	if got := sess.Settings(); got.Significance == nil {
		t.Error("expected failed update to leave settings unchanged")
	}
}

func TestSessionSaveAndLoadRoundTrip(t *testing.T) {
	svc := &Services{Backend: persist.NewFileStore(t.TempDir())}
	sess := newTestSession(t, svc)
	buildExportable(t, sess)
	before := sess.Graph().Records()

	status, err := sess.Save(context.Background())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(status, "saved demo") {
		t.Errorf("unexpected status %q", status)
	}

	if err := sess.Remove(before[2].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	status, err = sess.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if status != "loaded 3 agents" {
		t.Errorf("unexpected status %q", status)
	}
	after := sess.Graph().Records()
	if len(after) != len(before) {
		t.Fatalf("expected %d agents after load, got %d", len(before), len(after))
	}
	if sess.Settings().FileName != "demo" {
		t.Error("expected settings to be restored")
	}
}

func TestSessionLoadLaysOutTheDesign(t *testing.T) {
	backend := persist.NewFileStore(t.TempDir())
	stacked := &persist.Snapshot{
		Settings: topology.DefaultSettings(),
		Agents: []topology.NodeRecord{
			{ID: 0, Kind: topology.KindAuctioneer, Name: "A", ChildIDs: []int{1}, X: 5, Y: 5},
			{ID: 1, Kind: topology.KindConcentrator, Name: "B", ChildIDs: []int{2}, X: 5, Y: 5},
			{ID: 2, Kind: topology.KindDevice, Name: "D", ChildIDs: []int{}, X: 5, Y: 5},
		},
	}
	if _, err := backend.Save(context.Background(), "demo", stacked); err != nil {
		t.Fatalf("seed backend: %v", err)
	}

	sess := newTestSession(t, &Services{Backend: backend})
	status, err := sess.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if status != "loaded 3 agents" {
		t.Errorf("unexpected status %q", status)
	}

	view := sess.View()
	if view.Layout == nil || !view.Layout.Converged {
		t.Fatalf("expected a converged layout after load, got %+v", view.Layout)
	}
	want := map[int]struct {
		depth int
		pos   topology.Point
	}{
		0: {0, topology.Point{X: 635, Y: 5}},
		1: {1, topology.Point{X: 635, Y: 145}},
		2: {2, topology.Point{X: 635, Y: 285}},
	}
	for _, n := range view.Nodes {
		w := want[n.ID]
		if n.Depth != w.depth {
			t.Errorf("agent %d depth %d, want %d", n.ID, n.Depth, w.depth)
		}
		if got := (topology.Point{X: n.X, Y: n.Y}); got != w.pos {
			t.Errorf("agent %d at %+v, want %+v", n.ID, got, w.pos)
		}
	}
	g := sess.Graph()
	if layout.Overlaps(g.Nodes(), view.BlockSize) {
		t.Error("loaded agents still overlap")
	}
}

func TestViewDepthFollowsEdits(t *testing.T) {
	sess := newTestSession(t, nil)
	a := mustPlace(t, sess, topology.KindAuctioneer, 0, 0)
	c := mustPlace(t, sess, topology.KindConcentrator, 140, 0)
	d := mustPlace(t, sess, topology.KindDevice, 280, 0)
	mustConnect(t, sess, c, a)
	mustConnect(t, sess, d, c)

	depthOf := func(id int) int {
		t.Helper()
		for _, n := range sess.View().Nodes {
			if n.ID == id {
				return n.Depth
			}
		}
		t.Fatalf("agent %d missing from view", id)
		return 0
	}
	if got := depthOf(d); got != 2 {
		t.Errorf("device depth after connect = %d, want 2", got)
	}
	if err := sess.Disconnect(c); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if got := depthOf(c); got != 0 {
		t.Errorf("concentrator depth after disconnect = %d, want 0", got)
	}
	mustConnect(t, sess, d, a)
	if err := sess.Remove(a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := depthOf(d); got != 0 {
		t.Errorf("device depth after removing its parent = %d, want 0", got)
	}
}

func TestSessionLoadNothingIsAStatus(t *testing.T) {
	sess := newTestSession(t, &Services{Backend: persist.NewFileStore(t.TempDir())})
	status, err := sess.Load(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status != StatusNothingToLoad {
		t.Errorf("expected %q, got %q", StatusNothingToLoad, status)
	}
}

func TestSessionWithoutBackend(t *testing.T) {
	sess := newTestSession(t, nil)
	if _, err := sess.Save(context.Background()); !errors.Is(err, ErrNoBackend) {
		t.Errorf("save: expected ErrNoBackend, got %v", err)
	}
	if _, err := sess.Load(context.Background()); !errors.Is(err, ErrNoBackend) {
		t.Errorf("load: expected ErrNoBackend, got %v", err)
	}
	if _, err := sess.Export(context.Background()); !errors.Is(err, ErrNoExporter) {
		t.Errorf("export: expected ErrNoExporter, got %v", err)
	}
}

func TestSessionCollaboratorFailureLeavesDesign(t *testing.T) {
	sess := newTestSession(t, &Services{Backend: failingBackend{}})
	mustPlace(t, sess, topology.KindAuctioneer, 0, 0)

	if _, err := sess.Save(context.Background()); !errors.Is(err, errUnreachable) {
		t.Errorf("save: expected wrapped backend error, got %v", err)
	}
	if _, err := sess.Load(context.Background()); !errors.Is(err, errUnreachable) {
		t.Errorf("load: expected wrapped backend error, got %v", err)
	}
	if len(sess.View().Nodes) != 1 {
		t.Error("expected design to survive failed collaborator calls")
	}
}

func TestSessionSecondSaveWhileInFlight(t *testing.T) {
	backend := newBlockingBackend()
	sess := newTestSession(t, &Services{Backend: backend})

	errc := make(chan error, 1)
	go func() {
		_, err := sess.Save(context.Background())
		errc <- err
	}()
	<-backend.started

	if _, err := sess.Save(context.Background()); !errors.Is(err, ErrRequestInFlight) {
		t.Errorf("expected ErrRequestInFlight, got %v", err)
	}
	// Loads are a different kind of request and may proceed.
	if _, err := sess.Load(context.Background()); err != nil {
		t.Errorf("expected concurrent load to proceed, got %v", err)
	}
	// Mutations are not blocked by the pending save.
	mustPlace(t, sess, topology.KindAuctioneer, 0, 0)

	close(backend.release)
	if err := <-errc; err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := sess.Save(context.Background()); err != nil {
		t.Errorf("expected save after completion to succeed, got %v", err)
	}
}

func TestSessionExportWaitsForPendingSave(t *testing.T) {
	backend := newBlockingBackend()
	exportDir := t.TempDir()
	sess := newTestSession(t, &Services{
		Backend:  backend,
		Exporter: &nodeconfig.FileSink{Dir: exportDir, Format: nodeconfig.FormatXML},
	})
	buildExportable(t, sess)

	errc := make(chan error, 1)
	go func() {
		_, err := sess.Save(context.Background())
		errc <- err
	}()
	<-backend.started

	if _, err := sess.Export(context.Background()); !errors.Is(err, ErrRequestInFlight) {
		t.Errorf("expected export to be refused while a save is pending, got %v", err)
	}
	if entries, _ := os.ReadDir(exportDir); len(entries) != 0 {
		t.Errorf("refused export wrote %d files", len(entries))
	}

	close(backend.release)
	if err := <-errc; err != nil {
		t.Fatalf("pending save: %v", err)
	}
	if _, err := sess.Export(context.Background()); err != nil {
		t.Errorf("expected export after the save to succeed, got %v", err)
	}
}

func TestSessionExportSavesAndWrites(t *testing.T) {
	exportDir := t.TempDir()
	backend := persist.NewFileStore(t.TempDir())
	sess := newTestSession(t, &Services{
		Backend:  backend,
		Exporter: &nodeconfig.FileSink{Dir: exportDir, Format: nodeconfig.FormatXML},
	})
	buildExportable(t, sess)

	status, err := sess.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	path := filepath.Join(exportDir, "demo.xml")
	if status != "exported successfully to "+path {
		t.Errorf("unexpected status %q", status)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "<nodeconfig") {
		t.Errorf("expected a nodeconfig document, got:\n%s", data)
	}

	snap, err := backend.Load(context.Background(), "demo")
	if err != nil {
		t.Fatalf("expected export to save the design first: %v", err)
	}
	if len(snap.Agents) != 3 {
		t.Errorf("expected 3 saved agents, got %d", len(snap.Agents))
	}
}

func TestSessionExportRefusesIncompleteDesign(t *testing.T) {
	backend := persist.NewFileStore(t.TempDir())
	sess := newTestSession(t, &Services{
		Backend:  backend,
		Exporter: &nodeconfig.FileSink{Dir: t.TempDir()},
	})
	mustPlace(t, sess, topology.KindAuctioneer, 0, 0)

	_, err := sess.Export(context.Background())
	var fe *validator.PreflightError
	if !errors.As(err, &fe) {
		t.Fatalf("expected preflight error, got %v", err)
	}
	if got := sess.View().Status; got != fe.Error() {
		t.Errorf("expected status %q, got %q", fe.Error(), got)
	}
	if _, err := backend.Load(context.Background(), "demo"); !errors.Is(err, persist.ErrNothingToLoad) {
		t.Errorf("expected nothing saved after refused export, got %v", err)
	}
}

func TestSessionPreviewDOT(t *testing.T) {
	sess := newTestSession(t, nil)
	a := mustPlace(t, sess, topology.KindAuctioneer, 0, 0)
	b := mustPlace(t, sess, topology.KindConcentrator, 0, 140)
	mustConnect(t, sess, b, a)

	dot := sess.PreviewDOT()
	if !strings.Contains(dot, "n0 -> n1") {
		t.Errorf("expected parent edge in preview, got:\n%s", dot)
	}
}
