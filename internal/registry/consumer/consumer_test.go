package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/Distributed-Quote-Matching-Platform/internal/registry/shard"
)

func newRouter(t *testing.T, numShards int) *shard.Router {
	t.Helper()
	r, err := shard.NewRouter(numShards, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func encode(t *testing.T, ev ingest.PatternEvent) []byte {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}
	return data
}

func TestHandleMessageCompilesPattern(t *testing.T) {
	router := newRouter(t, 2)
	handle := HandleMessage(router, nil, nil, nil)

	ev := ingest.PatternEvent{
		PatternID:    "p1",
		Name:         "greeting",
		Text:         "Hello, World!",
		Threshold:    1.0,
		ShardID:      1,
		RegisteredAt: time.Now().UTC(),
	}
	if err := handle(context.Background(), []byte("1"), encode(t, ev)); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	reg, _ := router.Route(1)
	p, ok := reg.Get("p1")
	if !ok {
		t.Fatal("pattern not installed in shard 1")
	}
	if len(p.Tokens) != 2 || p.Tokens[0] != "hello" || p.Tokens[1] != "world" {
		t.Errorf("tokens = %v, want [hello world]", p.Tokens)
	}
	if p.CompiledAt.IsZero() {
		t.Error("CompiledAt not stamped")
	}
}

func TestHandleMessageSkipsBadJSON(t *testing.T) {
	router := newRouter(t, 2)
	handle := HandleMessage(router, nil, nil, nil)

	if err := handle(context.Background(), []byte("k"), []byte("{not json")); err != nil {
		t.Fatalf("handler returned error for undecodable message: %v", err)
	}
	if router.TotalPatterns() != 0 {
		t.Error("undecodable message produced a pattern")
	}
}

func TestHandleMessageUnknownShard(t *testing.T) {
	router := newRouter(t, 2)
	handle := HandleMessage(router, nil, nil, nil)

	ev := ingest.PatternEvent{PatternID: "p1", Text: "hello world", Threshold: 1.0, ShardID: 9}
	if err := handle(context.Background(), nil, encode(t, ev)); err == nil {
		t.Fatal("handler accepted an out-of-range shard")
	}
}

func TestHandleMessageCompileFailureIsTerminal(t *testing.T) {
	router := newRouter(t, 2)
	handle := HandleMessage(router, nil, nil, nil)

	// One token cannot absorb one allowed difference; compilation fails
	// and retrying the message would fail the same way.
	ev := ingest.PatternEvent{
		PatternID:          "poison",
		Text:               "solo",
		AllowedDifferences: 1,
		Threshold:          1.0,
		ShardID:            0,
	}
	if err := handle(context.Background(), nil, encode(t, ev)); err != nil {
		t.Fatalf("handler returned error for a terminal failure: %v", err)
	}
	if router.TotalPatterns() != 0 {
		t.Error("uncompilable pattern was installed")
	}
}
