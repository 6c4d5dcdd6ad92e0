package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"runxchat/internal/config"
)

func TestMain(m *testing.M) {
	// http.Client keepalive goroutines are owned by the transport, not us.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		// go.opencensus.io starts this worker in package init; it is owned
		// by the dependency, not us, and cannot be shut down from here.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-4o",
		Timeout: timeout,
	}, zap.NewNop())
}

func completionResponse(content string) []byte {
	resp := map[string]any{
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return data
}

func TestOpenAIChatCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("returns reply and forwards the full turn sequence", func(t *testing.T) {
		var got openAIRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			_, _ = w.Write(completionResponse("  hello there  "))
		}, time.Second)

		turns := []Turn{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "hi"},
		}
		reply, err := client.ChatCompletion(ctx, turns)
		require.NoError(t, err)
		assert.Equal(t, "hello there", reply)
		assert.Equal(t, "gpt-4o", got.Model)
		if diff := cmp.Diff(turns, got.Messages); diff != "" {
			t.Errorf("forwarded turns mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing api key fails without a request", func(t *testing.T) {
		client := NewOpenAIClient(config.LLMConfig{}, zap.NewNop())
		_, err := client.ChatCompletion(ctx, []Turn{{Role: RoleUser, Content: "hi"}})
		assert.ErrorContains(t, err, "API key not configured")
	})

	t.Run("non-200 status surfaces the body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
		}, time.Second)
		_, err := client.ChatCompletion(ctx, []Turn{{Role: RoleUser, Content: "hi"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 429")
	})

	t.Run("error payload on 200 is surfaced", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
		}, time.Second)
		_, err := client.ChatCompletion(ctx, []Turn{{Role: RoleUser, Content: "hi"}})
		assert.ErrorContains(t, err, "bad model")
	})

	t.Run("empty choices is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}, time.Second)
		_, err := client.ChatCompletion(ctx, []Turn{{Role: RoleUser, Content: "hi"}})
		assert.ErrorContains(t, err, "no completion returned")
	})

	t.Run("slow upstream times out", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			_, _ = w.Write(completionResponse("too late"))
		}, 50*time.Millisecond)
		_, err := client.ChatCompletion(ctx, []Turn{{Role: RoleUser, Content: "hi"}})
		assert.Error(t, err)
	})
}

func TestFactory(t *testing.T) {
	t.Run("defaults to openai", func(t *testing.T) {
		client, err := New(config.LLMConfig{APIKey: "k"}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &OpenAIClient{}, client)
		assert.Equal(t, "gpt-4o", client.Model())
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		_, err := New(config.LLMConfig{Provider: "llama-on-a-floppy"}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("gemini without key is rejected", func(t *testing.T) {
		_, err := New(config.LLMConfig{Provider: "gemini"}, zap.NewNop())
		assert.Error(t, err)
	})
}
