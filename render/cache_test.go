// ABOUTME: Tests for the preview cache: repeated previews of an unchanged cluster, edits, TTL, and capacity.
// ABOUTME: A counting renderer stands in for graphviz so hits and misses are observable.
package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2389-research/clusterdesigner/catalog"
	"github.com/2389-research/clusterdesigner/topology"
)

// countingRenderer records how often the cache falls through to rendering.
type countingRenderer struct {
	calls atomic.Int64
	fail  atomic.Bool
}

var errRenderFailed = errors.New("graphviz unavailable")

func (r *countingRenderer) render(ctx context.Context, dotText, format string) ([]byte, error) {
	n := r.calls.Add(1)
	if r.fail.Load() {
		return nil, errRenderFailed
	}
	return []byte(format + ":" + string(rune('0'+n))), nil
}

func previewDOT(g *topology.Graph) string {
	return ToDOT(g, catalog.Default(), 70)
}

func TestPreviewCacheServesUnchangedClusterOnce(t *testing.T) {
	r := &countingRenderer{}
	cache := NewRenderCache(r.render, time.Minute, 0)
	ctx := context.Background()
	dot := previewDOT(buildTestTopology(t))

	first, err := cache.RenderDOTSource(ctx, dot, "svg")
	if err != nil {
		t.Fatalf("first preview: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := cache.RenderDOTSource(ctx, dot, "svg")
		if err != nil {
			t.Fatalf("repeat preview: %v", err)
		}
		if string(again) != string(first) {
			t.Errorf("repeat %d = %q, want cached %q", i, again, first)
		}
	}
	if got := r.calls.Load(); got != 1 {
		t.Errorf("renderer called %d times, want 1", got)
	}
}

func TestPreviewCacheMissesAfterEdits(t *testing.T) {
	r := &countingRenderer{}
	cache := NewRenderCache(r.render, time.Minute, 0)
	ctx := context.Background()
	g := buildTestTopology(t)

	edits := []struct {
		name string
		edit func(*topology.Graph) error
	}{
		{"rename", func(g *topology.Graph) error { return g.Rename(1, "hub") }},
		{"pan", func(g *topology.Graph) error { g.Translate(70, 0); return nil }},
		{"zoom", func(g *topology.Graph) error { g.Scale(1.5); return nil }},
		{"disconnect", func(g *topology.Graph) error { return g.Detach(3) }},
	}

	if _, err := cache.RenderDOTSource(ctx, previewDOT(g), "svg"); err != nil {
		t.Fatalf("initial preview: %v", err)
	}
	for i, tc := range edits {
		if err := tc.edit(g); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if _, err := cache.RenderDOTSource(ctx, previewDOT(g), "svg"); err != nil {
			t.Fatalf("%s preview: %v", tc.name, err)
		}
		if got, want := r.calls.Load(), int64(i+2); got != want {
			t.Errorf("after %s: renderer called %d times, want %d", tc.name, got, want)
		}
	}
	if cache.Len() != len(edits)+1 {
		t.Errorf("cache holds %d previews, want %d", cache.Len(), len(edits)+1)
	}
}

func TestPreviewCacheKeepsFormatsApart(t *testing.T) {
	r := &countingRenderer{}
	cache := NewRenderCache(r.render, time.Minute, 0)
	dot := previewDOT(buildTestTopology(t))

	svg, _ := cache.RenderDOTSource(context.Background(), dot, "svg")
	png, _ := cache.RenderDOTSource(context.Background(), dot, "png")
	if string(svg) == string(png) {
		t.Errorf("svg and png previews share an entry: %q", svg)
	}
	if cacheKey(dot, "svg") == cacheKey(dot, "png") {
		t.Error("cache key ignores the format")
	}
}

func TestPreviewCacheExpires(t *testing.T) {
	r := &countingRenderer{}
	cache := NewRenderCache(r.render, 30*time.Millisecond, 0)
	dot := previewDOT(buildTestTopology(t))

	cache.RenderDOTSource(context.Background(), dot, "svg")
	time.Sleep(50 * time.Millisecond)
	cache.RenderDOTSource(context.Background(), dot, "svg")

	if got := r.calls.Load(); got != 2 {
		t.Errorf("renderer called %d times after expiry, want 2", got)
	}
}

func TestPreviewCacheDoesNotKeepFailures(t *testing.T) {
	r := &countingRenderer{}
	r.fail.Store(true)
	cache := NewRenderCache(r.render, time.Minute, 0)
	dot := previewDOT(buildTestTopology(t))

	if _, err := cache.RenderDOTSource(context.Background(), dot, "svg"); !errors.Is(err, errRenderFailed) {
		t.Fatalf("err = %v, want errRenderFailed", err)
	}
	if cache.Len() != 0 {
		t.Errorf("failed render was cached")
	}

	r.fail.Store(false)
	if _, err := cache.RenderDOTSource(context.Background(), dot, "svg"); err != nil {
		t.Fatalf("retry after recovery: %v", err)
	}
	if cache.Len() != 1 {
		t.Errorf("cache len = %d, want 1", cache.Len())
	}
}

func TestPreviewCacheEvictsOldestWhenFull(t *testing.T) {
	r := &countingRenderer{}
	cache := NewRenderCache(r.render, time.Hour, 2)
	ctx := context.Background()
	g := buildTestTopology(t)

	oldest := previewDOT(g)
	cache.RenderDOTSource(ctx, oldest, "svg")
	time.Sleep(2 * time.Millisecond)
	g.Translate(10, 0)
	cache.RenderDOTSource(ctx, previewDOT(g), "svg")
	time.Sleep(2 * time.Millisecond)
	g.Translate(10, 0)
	cache.RenderDOTSource(ctx, previewDOT(g), "svg")

	if cache.Len() != 2 {
		t.Fatalf("cache len = %d, want 2", cache.Len())
	}
	before := r.calls.Load()
	cache.RenderDOTSource(ctx, oldest, "svg")
	if r.calls.Load() != before+1 {
		t.Error("oldest preview should have been evicted")
	}
}

func TestPreviewCachePurgeAndClear(t *testing.T) {
	r := &countingRenderer{}
	cache := NewRenderCache(r.render, 20*time.Millisecond, 0)
	ctx := context.Background()
	dot := previewDOT(buildTestTopology(t))

	cache.RenderDOTSource(ctx, dot, "svg")
	cache.RenderDOTSource(ctx, dot, "png")
	time.Sleep(40 * time.Millisecond)
	cache.RenderDOTSource(ctx, dot, "dot")

	if removed := cache.PurgeExpired(); removed != 2 {
		t.Errorf("purged %d previews, want 2", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("cache len = %d after purge, want 1", cache.Len())
	}
	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("cache len = %d after clear, want 0", cache.Len())
	}
}

func TestPreviewCacheConcurrentSessions(t *testing.T) {
	r := &countingRenderer{}
	cache := NewRenderCache(r.render, time.Minute, 0)
	base := buildTestTopology(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		g := base.Clone()
		g.Translate(float64(i%2)*70, 0)
		dot := previewDOT(g)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := cache.RenderDOTSource(context.Background(), dot, "svg"); err != nil {
					t.Errorf("preview: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if cache.Len() != 2 {
		t.Errorf("cache len = %d, want 2 distinct previews", cache.Len())
	}
}

func TestPreviewCacheDefaultsToGraphviz(t *testing.T) {
	cache := NewRenderCache(nil, time.Minute, 0)
	dot := previewDOT(buildTestTopology(t))

	data, err := cache.RenderDOTSource(context.Background(), dot, "dot")
	if err != nil {
		t.Fatalf("dot preview: %v", err)
	}
	if string(data) != dot {
		t.Errorf("dot format should pass the source through")
	}
}
