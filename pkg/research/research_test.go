package research_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/research"
)

type stubBackend struct {
	content string
	err     error
	delay   time.Duration
	calls   int
}

func (s *stubBackend) Research(ctx context.Context, _ research.Request) (string, error) {
	s.calls++

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return s.content, s.err
}

func testRequest() research.Request {
	return research.Request{
		Topics: []string{"Acme Corp"},
		Window: "2024-06-01",
	}
}

func TestOrchestrator_Success(t *testing.T) {
	backend := &stubBackend{content: "report body"}
	orchestrator := research.NewOrchestrator(backend, time.Second, slog.Default())

	content, err := orchestrator.Research(t.Context(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "report body", content)
	assert.Equal(t, 1, backend.calls)
}

func TestOrchestrator_SingleAttemptOnly(t *testing.T) {
	backend := &stubBackend{err: research.NewTransientError(errors.New("rate limited"))}
	orchestrator := research.NewOrchestrator(backend, time.Second, slog.Default())

	_, err := orchestrator.Research(t.Context(), testRequest())
	require.Error(t, err)
	assert.Equal(t, 1, backend.calls, "orchestrator must not retry internally")
}

func TestOrchestrator_TimeoutIsTransient(t *testing.T) {
	backend := &stubBackend{content: "late", delay: 200 * time.Millisecond}
	orchestrator := research.NewOrchestrator(backend, 20*time.Millisecond, slog.Default())

	_, err := orchestrator.Research(t.Context(), testRequest())
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindTransient, research.Classify(err))
}

func TestOrchestrator_PreservesPermanentClassification(t *testing.T) {
	backend := &stubBackend{err: research.NewPermanentError(errors.New("policy rejection"))}
	orchestrator := research.NewOrchestrator(backend, time.Second, slog.Default())

	_, err := orchestrator.Research(t.Context(), testRequest())
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindPermanent, research.Classify(err))
}

func TestOrchestrator_EmptyTopicsIsPermanent(t *testing.T) {
	backend := &stubBackend{content: "whatever"}
	orchestrator := research.NewOrchestrator(backend, time.Second, slog.Default())

	_, err := orchestrator.Research(t.Context(), research.Request{})
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindPermanent, research.Classify(err))
	assert.Zero(t, backend.calls)
}

func TestOrchestrator_WrapsUnclassifiedErrorsAsTransient(t *testing.T) {
	backend := &stubBackend{err: errors.New("connection reset")}
	orchestrator := research.NewOrchestrator(backend, time.Second, slog.Default())

	_, err := orchestrator.Research(t.Context(), testRequest())
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindTransient, research.Classify(err))
}

func TestLLMBackend_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Acme Corp had a quiet week."}}]}`))
	}))
	defer server.Close()

	backend, err := research.NewLLMBackend(research.LLMConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
	require.NoError(t, err)

	content, err := backend.Research(t.Context(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp had a quiet week.", content)
}

func TestLLMBackend_RateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	backend, err := research.NewLLMBackend(research.LLMConfig{BaseURL: server.URL, Model: "test-model"})
	require.NoError(t, err)

	_, err = backend.Research(t.Context(), testRequest())
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindTransient, research.Classify(err))
}

func TestLLMBackend_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	backend, err := research.NewLLMBackend(research.LLMConfig{BaseURL: server.URL, Model: "test-model"})
	require.NoError(t, err)

	_, err = backend.Research(t.Context(), testRequest())
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindTransient, research.Classify(err))
}

func TestLLMBackend_BadRequestIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid model"}}`))
	}))
	defer server.Close()

	backend, err := research.NewLLMBackend(research.LLMConfig{BaseURL: server.URL, Model: "test-model"})
	require.NoError(t, err)

	_, err = backend.Research(t.Context(), testRequest())
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindPermanent, research.Classify(err))
}

func TestLLMBackend_RequiresConfiguration(t *testing.T) {
	_, err := research.NewLLMBackend(research.LLMConfig{})
	assert.Error(t, err)

	_, err = research.NewLLMBackend(research.LLMConfig{BaseURL: "http://localhost:8080"})
	assert.Error(t, err)
}

func TestNewResearcher_SelectsBackend(t *testing.T) {
	researcher, err := research.NewResearcher(research.Config{Backend: "local"}, slog.Default())
	require.NoError(t, err)

	content, err := researcher.Research(t.Context(), testRequest())
	require.NoError(t, err)
	assert.Contains(t, content, "Acme Corp")

	_, err = research.NewResearcher(research.Config{Backend: "quantum"}, slog.Default())
	assert.Error(t, err)
}

func TestLocalBackend_Deterministic(t *testing.T) {
	backend := research.NewLocalBackend()

	first, err := backend.Research(t.Context(), testRequest())
	require.NoError(t, err)

	second, err := backend.Research(t.Context(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
