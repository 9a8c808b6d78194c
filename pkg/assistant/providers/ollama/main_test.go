package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/xpanvictor/voxcap/pkg/Logger"
	"github.com/xpanvictor/voxcap/pkg/assistant"
)

func TestOllamaStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req api.ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "llama3.2" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected request %+v", req)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		for i, piece := range []string{"Hello", " there"} {
			fmt.Fprintf(w, `{"model":"llama3.2","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":%q},"done":%v}`+"\n", piece, i == 1)
		}
	}))
	defer srv.Close()

	base, _ := url.Parse(srv.URL)
	p := NewWithClient(api.NewClient(base, srv.Client()), "llama3.2")

	var seen []string
	got, err := p.Stream(context.Background(),
		[]assistant.AssistantMessage{assistant.System("persona"), assistant.User("hi")},
		func(reply string) error {
			seen = append(seen, reply)
			return nil
		})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got != "Hello there" {
		t.Errorf("got %q", got)
	}
	if len(seen) != 2 || seen[0] != "Hello" {
		t.Errorf("partials = %v", seen)
	}
}

func TestOllamaWithoutServers(t *testing.T) {
	p := New(nil, "llama3.2", Logger.NewNop())
	_, err := p.Complete(context.Background(), []assistant.AssistantMessage{assistant.User("hi")})
	if !errors.Is(err, ErrNoServer) {
		t.Errorf("expected ErrNoServer, got %v", err)
	}
	if _, err := p.Complete(context.Background(), nil); err != assistant.ErrEmptyConversation {
		t.Errorf("expected ErrEmptyConversation, got %v", err)
	}
}
