package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mailcal/pkg/gemini"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	out    string
	err    error
	calls  int
	onCall func()
}

func (f *fakeGenerator) Generate(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall()
	}
	return f.out, f.err
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral", req["model"])
		assert.Equal(t, false, req["stream"])
		w.Write([]byte(`{"response":"{\"name\":\"Y\"}","done":true}`))
	}))
	defer srv.Close()

	out, err := NewOllamaService(srv.URL, "mistral").Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Y"}`, out)
}

func TestOllamaGenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaService(srv.URL, "missing").Generate(context.Background(), "p")
	assert.Error(t, err)
}

func TestFallbackUsesGeminiFirst(t *testing.T) {
	g := &fakeGenerator{out: "from gemini"}
	o := &fakeGenerator{out: "from ollama"}

	out, err := NewFallbackService(g, o).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "from gemini", out)
	assert.Equal(t, 0, o.calls)
}

func TestFallbackOnQuotaError(t *testing.T) {
	g := &fakeGenerator{err: errors.New("Gemini API error (429): RESOURCE_EXHAUSTED")}
	o := &fakeGenerator{out: "from ollama"}

	out, err := NewFallbackService(g, o).Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "from ollama", out)
	assert.Equal(t, 1, g.calls)
}

func TestFallbackBothFail(t *testing.T) {
	g := &fakeGenerator{err: errors.New("quota exceeded")}
	o := &fakeGenerator{err: errors.New("dial tcp: connection refused")}

	_, err := NewFallbackService(g, o).Generate(context.Background(), "p")
	assert.Error(t, err)
	// quota errors are not retried against gemini
	assert.Equal(t, 1, g.calls)
}

func TestFallbackStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := &fakeGenerator{err: errors.New("Post \"https://gemini\": context canceled")}
	o := &fakeGenerator{out: "from ollama"}

	_, err := NewFallbackService(g, o).Generate(ctx, "p")
	assert.Error(t, err)
	assert.Equal(t, 1, g.calls)
	assert.Equal(t, 0, o.calls)
}

func TestFallbackDoesNotRetryGeminiAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g := &fakeGenerator{err: errors.New("Gemini API error (500): internal")}
	// cancellation during the ollama call surfaces as an EOF
	o := &fakeGenerator{err: errors.New("unexpected EOF"), onCall: cancel}

	_, err := NewFallbackService(g, o).Generate(ctx, "p")
	assert.Error(t, err)
	assert.Equal(t, 1, g.calls)
	assert.Equal(t, 1, o.calls)
}

func TestFallbackRetriesGeminiWhenOllamaUnreachable(t *testing.T) {
	g := &fakeGenerator{err: errors.New("Gemini API error (500): internal")}
	o := &fakeGenerator{err: errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")}

	_, err := NewFallbackService(g, o).Generate(context.Background(), "p")
	assert.Error(t, err)
	assert.Equal(t, 2, g.calls)
}

func TestErrorClassifiers(t *testing.T) {
	assert.True(t, isQuotaError(errors.New("Too Many Requests")))
	assert.False(t, isQuotaError(errors.New("bad request")))
	assert.True(t, isConnectionError(errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")))
	assert.False(t, isConnectionError(nil))
}

func TestNewGenerator(t *testing.T) {
	_, err := NewGenerator(Config{Provider: ProviderGemini})
	assert.Error(t, err)

	gen, err := NewGenerator(Config{Provider: ProviderGemini, GeminiAPIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &gemini.GeminiService{}, gen)

	gen, err = NewGenerator(Config{Provider: ProviderOllama})
	require.NoError(t, err)
	assert.IsType(t, &OllamaService{}, gen)

	gen, err = NewGenerator(Config{Provider: ProviderAuto, GeminiAPIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &FallbackService{}, gen)

	_, err = NewGenerator(Config{Provider: "gpt"})
	assert.Error(t, err)
}
