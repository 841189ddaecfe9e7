package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/flowgraph"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
)

func beaconGraph(t *testing.T) *flowgraph.Graph {
	t.Helper()
	g := flowgraph.NewGraph()
	edges := []flow.Edge{
		{SourceID: "10.0.0.1", TargetID: "10.0.0.2", StartTime: 0, Duration: 1, Protocol: "tcp"},
		{SourceID: "10.0.0.2", TargetID: "10.0.0.1", StartTime: 5000000, Duration: 15, Protocol: "icmp"},
		{SourceID: "10.0.0.1", TargetID: "10.0.0.3", StartTime: 0, Duration: 2, Protocol: "tcp"},
		{SourceID: "10.0.0.3", TargetID: "10.0.0.1", StartTime: 1000000, Duration: 50, Protocol: "icmp"},
	}
	for _, e := range edges {
		if _, err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge failed: %v", err)
		}
	}
	return g
}

func execute(t *testing.T, schema graphql.Schema, query string) map[string]any {
	t.Helper()
	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: query,
		Context:       context.Background(),
	})
	if result.HasErrors() {
		t.Fatalf("query failed: %v", result.Errors)
	}
	data, ok := result.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected result shape: %T", result.Data)
	}
	return data
}

func TestTwoCyclesQuery(t *testing.T) {
	engine := matcher.NewEngine(beaconGraph(t), matcher.EngineConfig{})
	schema, err := NewSchema(engine)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}

	data := execute(t, schema, `{
		twoCycles(durationRatioMin: 10, protoFirst: "tcp", protoSecond: "icmp") {
			matchCount
			visitedEdges
			matches { a b timestamp1 dur2 }
		}
	}`)

	result := data["twoCycles"].(map[string]any)
	if result["matchCount"] != 2 {
		t.Errorf("expected 2 matches, got %v", result["matchCount"])
	}
	if visited, ok := result["visitedEdges"].(int); !ok || visited < 4 {
		t.Errorf("expected visitedEdges >= 4, got %v", result["visitedEdges"])
	}
	rows := result["matches"].([]any)
	if len(rows) != 2 {
		t.Fatalf("expected 2 match rows, got %d", len(rows))
	}
	first := rows[0].(map[string]any)
	if first["a"] != "10.0.0.1" {
		t.Errorf("expected source 10.0.0.1, got %v", first["a"])
	}
}

func TestTwoCyclesDefaultsApply(t *testing.T) {
	engine := matcher.NewEngine(beaconGraph(t), matcher.EngineConfig{})
	schema, err := NewSchema(engine)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}

	data := execute(t, schema, `{ twoCycles { matchCount } }`)
	result := data["twoCycles"].(map[string]any)
	if result["matchCount"] != 2 {
		t.Errorf("expected defaults to find 2 matches, got %v", result["matchCount"])
	}
}

func TestTwoCyclesInvalidConstraint(t *testing.T) {
	engine := matcher.NewEngine(beaconGraph(t), matcher.EngineConfig{})
	schema, err := NewSchema(engine)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}

	result := graphql.Do(graphql.Params{
		Schema:        schema,
		RequestString: `{ twoCycles(durationRatioMin: -1) { matchCount } }`,
		Context:       context.Background(),
	})
	if !result.HasErrors() {
		t.Error("expected error for negative ratio")
	}
}

func TestGraphStatsQuery(t *testing.T) {
	engine := matcher.NewEngine(beaconGraph(t), matcher.EngineConfig{})
	schema, err := NewSchema(engine)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}

	data := execute(t, schema, `{ graphStats { nodeCount edgeCount uniquePairs } }`)
	stats := data["graphStats"].(map[string]any)
	if stats["nodeCount"] != 3 {
		t.Errorf("expected 3 nodes, got %v", stats["nodeCount"])
	}
	if stats["edgeCount"] != 4 {
		t.Errorf("expected 4 edges, got %v", stats["edgeCount"])
	}
	if stats["uniquePairs"] != 4 {
		t.Errorf("expected 4 unique pairs, got %v", stats["uniquePairs"])
	}
}

func TestHTTPHandler(t *testing.T) {
	engine := matcher.NewEngine(beaconGraph(t), matcher.EngineConfig{})
	schema, err := NewSchema(engine)
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	handler := NewHandler(schema)

	body, _ := json.Marshal(Request{Query: `{ health }`})
	req := httptest.NewRequest("POST", "/graphql", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(resp.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", resp.Errors)
	}

	// GET is rejected.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/graphql", nil))
	if rec.Code != 405 {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}
}
