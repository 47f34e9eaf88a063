package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscar/generation"
	"oscar/provider/testutil"
	"oscar/state"
)

type stubGenerator struct {
	docs []string
	err  error

	lastGenerate generation.GenerateRequest
}

func (g *stubGenerator) Generate(ctx context.Context, req generation.GenerateRequest) ([]string, error) {
	g.lastGenerate = req
	if g.err != nil {
		return nil, g.err
	}
	return g.docs[:req.Variants], nil
}

func (g *stubGenerator) Edit(ctx context.Context, req generation.EditRequest) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "<html><body>" + req.Instruction + "</body></html>", nil
}

func (g *stubGenerator) VibeCode(ctx context.Context, req generation.VibeCodeRequest) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.docs[:req.VariantsCount], nil
}

func newStub() *stubGenerator {
	return &stubGenerator{docs: []string{"<p>1</p>", "<p>2</p>", "<p>3</p>", "<p>4</p>"}}
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGenerateEndpoint(t *testing.T) {
	gen := newStub()
	h := New(Options{Generator: gen}).Handler()

	rec := post(t, h, "/generate", `{"prompt":"landing page","baseHtml":"<p>base</p>","variants":4}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp generation.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.HTML, 4)
	assert.Equal(t, 4, resp.Variants)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Equal(t, "<p>base</p>", gen.lastGenerate.BaseHTML)
}

func TestGenerateDefaultsToOneVariant(t *testing.T) {
	h := New(Options{Generator: newStub()}).Handler()

	rec := post(t, h, "/generate", `{"prompt":"landing page"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp generation.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Variants)
}

func TestGenerateValidation(t *testing.T) {
	h := New(Options{Generator: newStub()}).Handler()

	tests := []struct {
		name string
		body string
	}{
		{"missing prompt", `{"variants":1}`},
		{"blank prompt", `{"prompt":"   "}`},
		{"bad variants", `{"prompt":"x","variants":3}`},
		{"not json", `prompt=x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, h, "/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.True(t, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestGenerationFailureEnvelope(t *testing.T) {
	gen := newStub()
	gen.err = errors.New("model overloaded")
	h := New(Options{Generator: gen}).Handler()

	for _, tc := range []struct{ path, body string }{
		{"/generate", `{"prompt":"x"}`},
		{"/edit", `{"currentHtml":"<p>x</p>","instruction":"bigger"}`},
		{"/vibe-code", `{"prompt":"x","variants_count":4}`},
	} {
		rec := post(t, h, tc.path, tc.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.Equal(t, ErrorResponse{Error: true, Message: "model overloaded"}, decodeError(t, rec), tc.path)
	}
}

func TestEditEndpoint(t *testing.T) {
	h := New(Options{Generator: newStub()}).Handler()

	rec := post(t, h, "/edit", `{"currentHtml":"<p>x</p>","instruction":"dark mode"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp generation.EditResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "<html><body>dark mode</body></html>", resp.HTML)

	rec = post(t, h, "/edit", `{"instruction":"dark mode"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVibeCodeEndpoint(t *testing.T) {
	h := New(Options{Generator: newStub()}).Handler()

	rec := post(t, h, "/vibe-code", `{"prompt":"todo app","variants_count":4}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp generation.GenerateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Variants)
}

func TestRemoteClientAgainstServer(t *testing.T) {
	svc := generation.NewService(testutil.NewHTMLProvider(testutil.BaseHTML), generation.Options{})
	srv := httptest.NewServer(New(Options{Generator: svc, BaseHTML: testutil.BaseHTML}).Handler())
	t.Cleanup(srv.Close)

	remote := generation.NewRemote(srv.URL, 5*time.Second)
	ctx := context.Background()

	docs, err := remote.Generate(ctx, generation.GenerateRequest{Prompt: "landing", Variants: 4})
	require.NoError(t, err)
	assert.Len(t, docs, 4)

	base, err := remote.BaseHTML(ctx)
	require.NoError(t, err)
	assert.Equal(t, testutil.BaseHTML, base)
	assert.NoError(t, remote.Ping(ctx))
}

func TestHealthAndBaseHTML(t *testing.T) {
	h := New(Options{}).Handler()

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = get(t, h, "/base.html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultBaseHTML(), rec.Body.String())
	assert.Contains(t, rec.Body.String(), "<title>Oscar</title>")

	// generation routes are absent without a generator
	rec = post(t, h, "/generate", `{"prompt":"x"}`)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	h := New(Options{}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/generate", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, h, "/health")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func newPreview(t *testing.T) (http.Handler, *state.Store) {
	t.Helper()
	store := state.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	return New(Options{Store: store}).Handler(), store
}

func TestCanvasSlots(t *testing.T) {
	h, store := newPreview(t)
	require.NoError(t, store.SeedCanvas([]string{"<html><head><title>One</title></head></html>", "<p>two</p>"}))

	rec := get(t, h, "/canvas/0")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sandbox allow-scripts", rec.Header().Get("Content-Security-Policy"))
	assert.Contains(t, rec.Body.String(), "<title>One</title>")

	assert.Equal(t, http.StatusOK, get(t, h, "/canvas/1").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/canvas/2").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/canvas/4").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/canvas/x").Code)
}

func TestCanvasJSON(t *testing.T) {
	h, store := newPreview(t)
	require.NoError(t, store.SeedCanvas([]string{"<html><head><title>One</title></head></html>"}))

	rec := get(t, h, "/canvas")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CanvasResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Canvas, 1)
	assert.Len(t, resp.Slots, 4)
	assert.Equal(t, []string{"One", "", "", ""}, resp.Titles)
	assert.Equal(t, state.ViewSingle, resp.ViewMode)
}

func TestIndexPage(t *testing.T) {
	h, store := newPreview(t)
	require.NoError(t, store.SeedCanvas([]string{"<p>a</p>", "<p>b</p>"}))

	body := get(t, h, "/").Body.String()
	assert.Equal(t, 1, strings.Count(body, "<iframe"))
	assert.Contains(t, body, `sandbox="allow-scripts"`)

	require.NoError(t, store.SetViewMode(state.ViewQuadrant))
	body = get(t, h, "/").Body.String()
	assert.Equal(t, 2, strings.Count(body, "<iframe"))
	assert.Equal(t, 2, strings.Count(body, "Empty"))
}

func TestSelectVariantEndpoint(t *testing.T) {
	h, store := newPreview(t)
	require.NoError(t, store.SeedCanvas([]string{"a", "b"}))
	require.NoError(t, store.SetViewMode(state.ViewQuadrant))

	rec := post(t, h, "/canvas/1/select", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	snap := store.Snapshot()
	assert.Equal(t, state.Canvas{"b", "a"}, snap.Canvas)
	assert.Equal(t, state.ViewSingle, snap.ViewMode)

	rec = post(t, h, "/canvas/3/select", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventStream(t *testing.T) {
	h, store := newPreview(t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	_, err = store.AppendTranscript(state.RoleUser, "hello")
	require.NoError(t, err)

	var event, data string
	for event == "" || data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, string(state.EventTranscriptAppended), event)

	var ev state.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	require.NotNil(t, ev.Message)
	assert.Equal(t, "hello", ev.Message.Content)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(Options{}).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
