package segment

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
)

func buildGraph(t testing.TB, n int) *flowgraph.Graph {
	t.Helper()
	g := flowgraph.NewGraph()
	for i := 0; i < n; i++ {
		proto := "tcp"
		if i%2 == 1 {
			proto = "icmp"
		}
		_, err := g.AddEdge(flow.Edge{
			SourceID:  "147.32.84.165",
			TargetID:  "147.32.80.9",
			StartTime: int64(i) * 1_000_000,
			Duration:  float64(i%10) + 0.5,
			Protocol:  proto,
			Fields:    map[string]string{"Dport": "80"},
		})
		if err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}
	return g
}

func TestWriteAndLoadGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.seg")

	g := buildGraph(t, 100)
	stats, err := WriteGraph(path, g)
	if err != nil {
		t.Fatalf("WriteGraph failed: %v", err)
	}
	if stats.Edges != 100 {
		t.Errorf("Edges = %d, want 100", stats.Edges)
	}
	if stats.Blocks == 0 {
		t.Error("expected at least one block")
	}
	if stats.CompressionRatio <= 0 {
		t.Errorf("repetitive edges should compress, ratio = %v", stats.CompressionRatio)
	}

	loaded, err := LoadGraph(path, flowgraph.SkipMalformed)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if got := loaded.Stats().EdgeCount; got != 100 {
		t.Errorf("loaded EdgeCount = %d, want 100", got)
	}

	// Edge content must round-trip.
	orig := g.Edges()
	back := loaded.Edges()
	if len(orig) != len(back) {
		t.Fatalf("edge count mismatch: %d vs %d", len(orig), len(back))
	}
	for i := range orig {
		o, b := orig[i], back[i]
		if o.SourceID != b.SourceID || o.TargetID != b.TargetID ||
			o.StartTime != b.StartTime || o.Duration != b.Duration ||
			o.Protocol != b.Protocol {
			t.Errorf("edge %d mismatch: %+v vs %+v", i, o, b)
		}
		if b.Fields["Dport"] != "80" {
			t.Errorf("edge %d lost passthrough fields: %v", i, b.Fields)
		}
	}
}

func TestWriterMultipleBlocks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.seg")

	// Enough edges to cross the block flush threshold at least once.
	g := buildGraph(t, 5000)
	stats, err := WriteGraph(path, g)
	if err != nil {
		t.Fatalf("WriteGraph failed: %v", err)
	}
	if stats.Blocks < 2 {
		t.Errorf("expected multiple blocks, got %d", stats.Blocks)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	var total int
	var blocks int
	for {
		edges, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		total += len(edges)
		blocks++
	}
	if total != 5000 {
		t.Errorf("read %d edges, want 5000", total)
	}
	if blocks != int(stats.Blocks) {
		t.Errorf("read %d blocks, writer reported %d", blocks, stats.Blocks)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.seg")
	if err := os.WriteFile(path, []byte("not a segment at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("bad magic should be rejected")
	}
}

func TestOpenRejectsBadVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.seg")
	buf := encodeHeader()
	buf[4] = 0xFF // bump version bytes
	buf[5] = 0xFF
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Fatal("unsupported version should be rejected")
	}
}

func TestReaderDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.seg")
	if _, err := WriteGraph(path, buildGraph(t, 50)); err != nil {
		t.Fatalf("WriteGraph failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Flip a byte inside the first block payload.
	data[headerSize+10] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err == nil {
		t.Fatal("corrupted block should fail the checksum")
	}
}

func TestEmptySegment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.seg")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	g, err := LoadGraph(path, flowgraph.SkipMalformed)
	if err != nil {
		t.Fatalf("LoadGraph failed: %v", err)
	}
	if got := g.Stats().EdgeCount; got != 0 {
		t.Errorf("EdgeCount = %d, want 0", got)
	}
}

func BenchmarkWriteGraph(b *testing.B) {
	g := buildGraph(b, 1000)
	dir := b.TempDir()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		path := filepath.Join(dir, "bench.seg")
		if _, err := WriteGraph(path, g); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLoadGraph(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.seg")
	if _, err := WriteGraph(path, buildGraph(b, 1000)); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := LoadGraph(path, flowgraph.SkipMalformed); err != nil {
			b.Fatal(err)
		}
	}
}
