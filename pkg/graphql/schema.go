// Package graphql exposes the scan engine over a GraphQL query surface.
package graphql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/dd0wney/cluso-flowscan/pkg/flow"
	"github.com/dd0wney/cluso-flowscan/pkg/matcher"
)

// matchRowType mirrors the exported match table: source, first-leg time
// and duration, target, return-leg time and duration.
var matchRowType = graphql.NewObject(graphql.ObjectConfig{
	Name: "MatchRow",
	Fields: graphql.Fields{
		"a": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if row, ok := p.Source.(flow.MatchRow); ok {
					return row.A, nil
				}
				return nil, nil
			},
		},
		"timestamp1": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if row, ok := p.Source.(flow.MatchRow); ok {
					return row.Timestamp1, nil
				}
				return nil, nil
			},
		},
		"dur1": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if row, ok := p.Source.(flow.MatchRow); ok {
					return row.Dur1, nil
				}
				return nil, nil
			},
		},
		"b": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if row, ok := p.Source.(flow.MatchRow); ok {
					return row.B, nil
				}
				return nil, nil
			},
		},
		"timestamp2": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if row, ok := p.Source.(flow.MatchRow); ok {
					return row.Timestamp2, nil
				}
				return nil, nil
			},
		},
		"dur2": &graphql.Field{
			Type: graphql.NewNonNull(graphql.Float),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if row, ok := p.Source.(flow.MatchRow); ok {
					return row.Dur2, nil
				}
				return nil, nil
			},
		},
	},
})

// scanResultType wraps one scan outcome.
var scanResultType = graphql.NewObject(graphql.ObjectConfig{
	Name: "ScanResult",
	Fields: graphql.Fields{
		"runId": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if r, ok := p.Source.(*matcher.Result); ok {
					return r.RunID.String(), nil
				}
				return nil, nil
			},
		},
		"matches": &graphql.Field{
			Type: graphql.NewList(matchRowType),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if r, ok := p.Source.(*matcher.Result); ok {
					return r.Rows(), nil
				}
				return nil, nil
			},
		},
		"matchCount": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if r, ok := p.Source.(*matcher.Result); ok {
					return len(r.Matches), nil
				}
				return nil, nil
			},
		},
		"visitedEdges": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if r, ok := p.Source.(*matcher.Result); ok {
					return int(r.VisitedEdges), nil
				}
				return nil, nil
			},
		},
		"skippedEdges": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if r, ok := p.Source.(*matcher.Result); ok {
					return int(r.SkippedEdges), nil
				}
				return nil, nil
			},
		},
		"elapsedMs": &graphql.Field{
			Type: graphql.Float,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if r, ok := p.Source.(*matcher.Result); ok {
					return float64(r.Elapsed.Microseconds()) / 1000.0, nil
				}
				return nil, nil
			},
		},
	},
})

type graphStats struct {
	NodeCount        int `json:"nodeCount"`
	EdgeCount        int `json:"edgeCount"`
	UniquePairs      int `json:"uniquePairs"`
	MalformedSkipped int `json:"malformedSkipped"`
}

// NewSchema builds the query schema over a scan engine.
func NewSchema(engine *matcher.Engine) (graphql.Schema, error) {
	queryFields := graphql.Fields{
		"health": &graphql.Field{
			Type: graphql.String,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "ok", nil
			},
		},
		"graphStats": &graphql.Field{
			Type: graphStatsType,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				stats := engine.Graph().Stats()
				return graphStats{
					NodeCount:        int(stats.NodeCount),
					EdgeCount:        int(stats.EdgeCount),
					UniquePairs:      stats.UniquePairs,
					MalformedSkipped: int(stats.MalformedSkipped),
				}, nil
			},
		},
		"twoCycles": &graphql.Field{
			Type: scanResultType,
			Args: graphql.FieldConfigArgument{
				"durationRatioMin": &graphql.ArgumentConfig{
					Type:         graphql.Float,
					DefaultValue: matcher.DefaultDurationRatio,
				},
				"protoFirst": &graphql.ArgumentConfig{
					Type:         graphql.String,
					DefaultValue: "tcp",
				},
				"protoSecond": &graphql.ArgumentConfig{
					Type:         graphql.String,
					DefaultValue: "icmp",
				},
				"timeOrder": &graphql.ArgumentConfig{
					Type:         graphql.Boolean,
					DefaultValue: true,
				},
				"workers": &graphql.ArgumentConfig{
					Type:         graphql.Int,
					DefaultValue: 0,
				},
			},
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				constraints := matcher.Constraints{
					DurationRatioMin: argFloat(p, "durationRatioMin"),
					ProtoFirst:       argString(p, "protoFirst"),
					ProtoSecond:      argString(p, "protoSecond"),
					TimeOrder:        argBool(p, "timeOrder"),
				}
				workers := argInt(p, "workers")
				return engine.ScanWithWorkers(p.Context, constraints, workers)
			},
		},
	}

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to create schema: %w", err)
	}
	return schema, nil
}

// graphStatsType resolves stats fields off the graphStats struct.
var graphStatsType = graphql.NewObject(graphql.ObjectConfig{
	Name: "GraphStats",
	Fields: graphql.Fields{
		"nodeCount": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if s, ok := p.Source.(graphStats); ok {
					return s.NodeCount, nil
				}
				return nil, nil
			},
		},
		"edgeCount": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if s, ok := p.Source.(graphStats); ok {
					return s.EdgeCount, nil
				}
				return nil, nil
			},
		},
		"uniquePairs": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if s, ok := p.Source.(graphStats); ok {
					return s.UniquePairs, nil
				}
				return nil, nil
			},
		},
		"malformedSkipped": &graphql.Field{
			Type: graphql.Int,
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				if s, ok := p.Source.(graphStats); ok {
					return s.MalformedSkipped, nil
				}
				return nil, nil
			},
		},
	},
})

// Argument helpers. graphql-go hands back untyped interfaces; defaults
// are declared on the schema so a missing key never reaches these.

func argFloat(p graphql.ResolveParams, name string) float64 {
	switch v := p.Args[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func argString(p graphql.ResolveParams, name string) string {
	if v, ok := p.Args[name].(string); ok {
		return v
	}
	return ""
}

func argBool(p graphql.ResolveParams, name string) bool {
	if v, ok := p.Args[name].(bool); ok {
		return v
	}
	return false
}

func argInt(p graphql.ResolveParams, name string) int {
	if v, ok := p.Args[name].(int); ok {
		return v
	}
	return 0
}
