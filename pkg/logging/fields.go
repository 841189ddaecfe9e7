package logging

import (
	"time"
)

// Common field constructors.

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Domain field helpers.

func Component(name string) Field {
	return String("component", name)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Dataset(name string) Field {
	return String("dataset", name)
}

func Node(key string) Field {
	return String("node", key)
}

func EdgeID(id uint64) Field {
	return Uint64("edge_id", id)
}

func Proto(p string) Field {
	return String("proto", p)
}

func Rows(n int) Field {
	return Int("rows", n)
}

func Matches(n int) Field {
	return Int("matches", n)
}

func VisitedEdges(n uint64) Field {
	return Uint64("visited_edges", n)
}

func Skipped(n uint64) Field {
	return Uint64("skipped", n)
}

func RunID(id string) Field {
	return String("run_id", id)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
