package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oscar/generation"
	"oscar/state"
)

type fakeGenerator struct {
	mu       sync.Mutex
	generate func(ctx context.Context, req generation.GenerateRequest) ([]string, error)
	edit     func(ctx context.Context, req generation.EditRequest) (string, error)
	vibe     func(ctx context.Context, req generation.VibeCodeRequest) ([]string, error)
	calls    int
}

func (f *fakeGenerator) count() {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGenerator) Generate(ctx context.Context, req generation.GenerateRequest) ([]string, error) {
	f.count()
	return f.generate(ctx, req)
}

func (f *fakeGenerator) Edit(ctx context.Context, req generation.EditRequest) (string, error) {
	f.count()
	return f.edit(ctx, req)
}

func (f *fakeGenerator) VibeCode(ctx context.Context, req generation.VibeCodeRequest) ([]string, error) {
	f.count()
	return f.vibe(ctx, req)
}

func docs(n int, tag string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("<html><body>%s %d</body></html>", tag, i+1)
	}
	return out
}

func echoGenerator() *fakeGenerator {
	return &fakeGenerator{
		generate: func(_ context.Context, req generation.GenerateRequest) ([]string, error) {
			return docs(req.Variants, "gen"), nil
		},
		edit: func(_ context.Context, req generation.EditRequest) (string, error) {
			return "<html><body>edited: " + req.Instruction + "</body></html>", nil
		},
		vibe: func(_ context.Context, req generation.VibeCodeRequest) ([]string, error) {
			return docs(req.VariantsCount, "vibe"), nil
		},
	}
}

func setup(t *testing.T, gen generation.Generator) (*Dispatcher, *state.Store) {
	t.Helper()
	store := state.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	d, err := New(gen, store)
	require.NoError(t, err)
	return d, store
}

func TestNormalizeVariants(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{4, 4},
		{4.0, 4},
		{"4", 4},
		{" 4 ", 4},
		{json.Number("4"), 4},
		{int64(4), 4},
		{nil, 1},
		{2, 1},
		{3.0, 1},
		{4.5, 1},
		{"two", 1},
		{-1, 1},
		{true, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeVariants(tt.in))
		})
	}
}

func TestGenerateFourVariants(t *testing.T) {
	gen := echoGenerator()
	d, store := setup(t, gen)

	text := d.Generate(context.Background(), map[string]any{"prompt": "a login page", "variants": "4"})
	assert.Equal(t, "Successfully generated 4 HTML mockup(s)", text)

	snap := store.Snapshot()
	assert.Len(t, snap.Canvas, 4)
	assert.Equal(t, state.ViewQuadrant, snap.ViewMode)
	require.Len(t, snap.ToolCalls, 1)
	call := snap.ToolCalls[0]
	assert.Equal(t, ToolGenerate, call.Name)
	assert.Equal(t, state.StatusSuccess, call.Status)
	assert.Equal(t, "Generated 4 mockup(s)", call.Result)
	assert.EqualValues(t, 4, call.Params["variants"])
}

func TestGenerateNormalizesOddVariants(t *testing.T) {
	var got generation.GenerateRequest
	gen := echoGenerator()
	gen.generate = func(_ context.Context, req generation.GenerateRequest) ([]string, error) {
		got = req
		return docs(1, "gen"), nil
	}
	d, store := setup(t, gen)
	require.NoError(t, store.SetViewMode(state.ViewQuadrant))

	text := d.Generate(context.Background(), map[string]any{"prompt": "x", "variants": 2})
	assert.Equal(t, "Successfully generated 1 HTML mockup(s)", text)
	assert.Equal(t, 1, got.Variants)
	assert.Equal(t, state.ViewSingle, store.Snapshot().ViewMode)
}

func TestGenerateUsesCurrentFirstDocument(t *testing.T) {
	var base string
	gen := echoGenerator()
	gen.generate = func(_ context.Context, req generation.GenerateRequest) ([]string, error) {
		base = req.BaseHTML
		return docs(1, "gen"), nil
	}
	d, store := setup(t, gen)
	require.NoError(t, store.SeedCanvas([]string{"<html>seed</html>", "<html>other</html>"}))

	d.Generate(context.Background(), map[string]any{"prompt": "x"})
	assert.Equal(t, "<html>seed</html>", base)
}

func TestGenerateFailureLeavesCanvas(t *testing.T) {
	gen := echoGenerator()
	gen.generate = func(context.Context, generation.GenerateRequest) ([]string, error) {
		return nil, errors.New("quota exceeded")
	}
	d, store := setup(t, gen)
	require.NoError(t, store.SeedCanvas([]string{"seed"}))

	text := d.Generate(context.Background(), map[string]any{"prompt": "x"})
	assert.Equal(t, "Error generating mockup: quota exceeded", text)

	snap := store.Snapshot()
	assert.Equal(t, state.Canvas{"seed"}, snap.Canvas)
	require.Len(t, snap.ToolCalls, 1)
	assert.Equal(t, state.StatusError, snap.ToolCalls[0].Status)
	assert.Equal(t, "quota exceeded", snap.ToolCalls[0].Result)
}

func TestGeneratePanicIsRecorded(t *testing.T) {
	gen := echoGenerator()
	gen.generate = func(context.Context, generation.GenerateRequest) ([]string, error) {
		panic("boom")
	}
	d, store := setup(t, gen)

	r := d.Call(context.Background(), ToolGenerate, map[string]any{"prompt": "x"})
	assert.True(t, r.IsError)
	assert.Contains(t, r.Text, "Error generating mockup: internal error: boom")
	assert.Equal(t, state.StatusError, store.Snapshot().ToolCalls[0].Status)
}

func TestEditWithEmptyCanvas(t *testing.T) {
	gen := echoGenerator()
	d, store := setup(t, gen)

	text := d.Edit(context.Background(), map[string]any{"instruction": "make it blue"})
	assert.Equal(t, "No existing mockup to edit. Please generate one first.", text)
	assert.Empty(t, store.Snapshot().ToolCalls)
	assert.Zero(t, gen.Calls())
}

func TestEditReplacesCanvasWithSingleDocument(t *testing.T) {
	var current string
	gen := echoGenerator()
	gen.edit = func(_ context.Context, req generation.EditRequest) (string, error) {
		current = req.CurrentHTML
		return "<html>edited</html>", nil
	}
	d, store := setup(t, gen)
	require.NoError(t, store.SeedCanvas([]string{"a", "b", "c", "d"}))
	require.NoError(t, store.SetViewMode(state.ViewQuadrant))

	text := d.Edit(context.Background(), map[string]any{"instruction": "darker header"})
	assert.Equal(t, "Successfully updated the HTML mockup", text)
	assert.Equal(t, "a", current)

	snap := store.Snapshot()
	assert.Equal(t, state.Canvas{"<html>edited</html>"}, snap.Canvas)
	assert.Equal(t, state.ViewSingle, snap.ViewMode)
	assert.Equal(t, "Mockup updated successfully", snap.ToolCalls[0].Result)
}

func TestEditFailure(t *testing.T) {
	gen := echoGenerator()
	gen.edit = func(context.Context, generation.EditRequest) (string, error) {
		return "", errors.New("timeout")
	}
	d, store := setup(t, gen)
	require.NoError(t, store.SeedCanvas([]string{"seed"}))

	assert.Equal(t, "Error editing mockup: timeout", d.Edit(context.Background(), map[string]any{"instruction": "x"}))
	assert.Equal(t, state.Canvas{"seed"}, store.Snapshot().Canvas)
}

func TestVibeCode(t *testing.T) {
	d, store := setup(t, echoGenerator())

	text := d.VibeCode(context.Background(), map[string]any{"prompt": "todo app", "variants_count": 4.0})
	assert.Equal(t, "Successfully generated 4 HTML variant(s) and displayed them in the canvas", text)

	snap := store.Snapshot()
	assert.Equal(t, state.ViewQuadrant, snap.ViewMode)
	assert.Equal(t, "Generated 4 variant(s) successfully", snap.ToolCalls[0].Result)
}

func TestVibeCodeFailure(t *testing.T) {
	gen := echoGenerator()
	gen.vibe = func(context.Context, generation.VibeCodeRequest) ([]string, error) {
		return nil, errors.New("bad gateway")
	}
	d, _ := setup(t, gen)

	assert.Equal(t, "Error generating vibe code: bad gateway",
		d.VibeCode(context.Background(), map[string]any{"prompt": "x"}))
}

func TestMalformedArgumentsCreateNoToolCall(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing prompt", ToolGenerate, map[string]any{"variants": 4}},
		{"blank prompt", ToolGenerate, map[string]any{"prompt": "   "}},
		{"numeric prompt", ToolVibeCode, map[string]any{"prompt": 12}},
		{"nil args", ToolGenerate, nil},
		{"missing instruction", ToolEdit, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := echoGenerator()
			d, store := setup(t, gen)
			require.NoError(t, store.SeedCanvas([]string{"seed"}))

			r := d.Call(context.Background(), tt.tool, tt.args)
			assert.True(t, r.IsError)
			assert.Contains(t, r.Text, "Invalid arguments for "+tt.tool)
			assert.Empty(t, store.Snapshot().ToolCalls)
			assert.Zero(t, gen.Calls())
		})
	}
}

func TestUnknownTool(t *testing.T) {
	d, _ := setup(t, echoGenerator())
	r := d.Call(context.Background(), "delete_everything", nil)
	assert.Equal(t, Result{Text: "Unknown tool: delete_everything", IsError: true}, r)
}

func TestLastIssuedWins(t *testing.T) {
	release := make(chan struct{})
	gen := echoGenerator()
	gen.generate = func(_ context.Context, req generation.GenerateRequest) ([]string, error) {
		if req.Prompt == "slow" {
			<-release
			return []string{"<html>slow</html>"}, nil
		}
		return []string{"<html>fast</html>"}, nil
	}
	d, store := setup(t, gen)

	slowDone := make(chan string)
	go func() {
		slowDone <- d.Generate(context.Background(), map[string]any{"prompt": "slow"})
	}()

	require.Eventually(t, func() bool { return len(store.Snapshot().ToolCalls) == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, "Successfully generated 1 HTML mockup(s)",
		d.Generate(context.Background(), map[string]any{"prompt": "fast"}))

	close(release)
	slowText := <-slowDone
	assert.Equal(t, "Successfully generated 1 HTML mockup(s) (superseded by a newer request)", slowText)

	snap := store.Snapshot()
	assert.Equal(t, state.Canvas{"<html>fast</html>"}, snap.Canvas)
	for _, c := range snap.ToolCalls {
		assert.Equal(t, state.StatusSuccess, c.Status)
	}
}

func TestResultAfterSessionEnds(t *testing.T) {
	release := make(chan struct{})
	gen := echoGenerator()
	gen.generate = func(context.Context, generation.GenerateRequest) ([]string, error) {
		<-release
		return []string{"<html>late</html>"}, nil
	}
	d, store := setup(t, gen)
	require.NoError(t, store.SeedCanvas([]string{"seed"}))
	_, err := store.BeginEpoch()
	require.NoError(t, err)

	done := make(chan string)
	go func() {
		done <- d.Generate(context.Background(), map[string]any{"prompt": "x"})
	}()
	require.Eventually(t, func() bool { return len(store.Snapshot().ToolCalls) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, store.EndEpoch())
	close(release)

	assert.Equal(t, "Error generating mockup: session ended before the mockup could be applied", <-done)
	snap := store.Snapshot()
	assert.Equal(t, state.Canvas{"seed"}, snap.Canvas)
	assert.Equal(t, state.StatusError, snap.ToolCalls[0].Status)
}

func TestToolsCatalogue(t *testing.T) {
	d, _ := setup(t, echoGenerator())

	tools := d.Tools()
	require.Len(t, tools, 3)
	assert.Equal(t, ToolEdit, tools[0].Name)
	assert.Equal(t, ToolGenerate, tools[1].Name)
	assert.Equal(t, ToolVibeCode, tools[2].Name)

	gen := tools[1].InputSchema
	assert.Equal(t, "object", gen.Type)
	assert.Equal(t, []string{"prompt"}, gen.Required)
	assert.Contains(t, gen.Properties, "variants")

	raw, ok := d.Schema(ToolVibeCode)
	require.True(t, ok)
	assert.Contains(t, string(raw), "variants_count")
	assert.NotContains(t, string(raw), "$schema")

	assert.Len(t, d.ClientTools(), 3)
}

func TestClientToolReportsErrors(t *testing.T) {
	d, _ := setup(t, echoGenerator())
	tool := d.ClientTools()[ToolEdit]

	text, isError := tool(context.Background(), map[string]any{"instruction": "x"})
	assert.True(t, isError)
	assert.Equal(t, "No existing mockup to edit. Please generate one first.", text)
}

func TestEditWithBlankFirstDocument(t *testing.T) {
	gen := echoGenerator()
	d, store := setup(t, gen)
	require.NoError(t, store.SeedCanvas([]string{"", "<p>b</p>"}))

	text := d.Edit(context.Background(), map[string]any{"instruction": "make it blue"})
	assert.Equal(t, "No existing mockup to edit. Please generate one first.", text)
	assert.Empty(t, store.Snapshot().ToolCalls)
	assert.Zero(t, gen.Calls())
}
