// Package dispatcher executes the agent's mockup tools against a generation
// backend and records each invocation and its result in the view state.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"oscar/generation"
	"oscar/state"
	"oscar/voice"
)

const (
	ToolGenerate = "generate_mockup"
	ToolEdit     = "edit_mockup"
	ToolVibeCode = "vibe_code"
)

const (
	msgNoMockup      = "No existing mockup to edit. Please generate one first."
	msgSessionEnded  = "session ended before the mockup could be applied"
	suffixSuperseded = " (superseded by a newer request)"
)

var errSessionEnded = errors.New(msgSessionEnded)

// Result is the text handed back to the caller of a tool
type Result struct {
	Text    string
	IsError bool
}

type handler func(d *Dispatcher, ctx context.Context, args map[string]any) Result

type toolDef struct {
	name         string
	description  string
	variantField string
	schema       *schema
	run          handler
}

// Dispatcher runs tool invocations. Its methods are safe for concurrent use
// and never return Go errors; failures become text.
type Dispatcher struct {
	gen   generation.Generator
	store *state.Store
	tools map[string]*toolDef
}

// New builds a dispatcher over gen that writes into store
func New(gen generation.Generator, store *state.Store) (*Dispatcher, error) {
	defs := []struct {
		name, description, variantField string
		args                            any
		run                             handler
	}{
		{
			name:         ToolGenerate,
			description:  "Generate HTML mockups of a user interface from a description and show them on the canvas. Use variants=4 to show four alternatives in a grid.",
			variantField: "variants",
			args:         &GenerateArgs{},
			run:          (*Dispatcher).generate,
		},
		{
			name:        ToolEdit,
			description: "Modify the mockup currently shown on the canvas according to an instruction.",
			args:        &EditArgs{},
			run:         (*Dispatcher).edit,
		},
		{
			name:         ToolVibeCode,
			description:  "Build a complete interactive web page or small app from a prompt and show it on the canvas. Use variants_count=4 for four alternatives.",
			variantField: "variants_count",
			args:         &VibeCodeArgs{},
			run:          (*Dispatcher).vibeCode,
		},
	}

	d := &Dispatcher{
		gen:   gen,
		store: store,
		tools: make(map[string]*toolDef, len(defs)),
	}
	for _, def := range defs {
		s, err := reflectSchema(def.args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.name, err)
		}
		d.tools[def.name] = &toolDef{
			name:         def.name,
			description:  def.description,
			variantField: def.variantField,
			schema:       s,
			run:          def.run,
		}
	}
	return d, nil
}

// Tools returns the tool definitions, sorted by name
func (d *Dispatcher) Tools() []mcptypes.Tool {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	tools := make([]mcptypes.Tool, 0, len(names))
	for _, name := range names {
		def := d.tools[name]
		tools = append(tools, mcptypes.Tool{
			Name:        def.name,
			Description: def.description,
			InputSchema: def.schema.input,
		})
	}
	return tools
}

// Schema returns the raw JSON schema of a tool's arguments
func (d *Dispatcher) Schema(name string) ([]byte, bool) {
	def, ok := d.tools[name]
	if !ok {
		return nil, false
	}
	return def.schema.raw, true
}

// ClientTools returns handlers for a voice session keyed by tool name
func (d *Dispatcher) ClientTools() map[string]voice.ClientTool {
	out := make(map[string]voice.ClientTool, len(d.tools))
	for name := range d.tools {
		out[name] = func(ctx context.Context, params map[string]any) (string, bool) {
			r := d.Call(ctx, name, params)
			return r.Text, r.IsError
		}
	}
	return out
}

// Call runs the named tool. Unknown names and malformed arguments are
// reported as error results without recording a tool call.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) Result {
	def, ok := d.tools[name]
	if !ok {
		return Result{Text: "Unknown tool: " + name, IsError: true}
	}

	args = normalize(args, def.variantField)
	if err := def.schema.validate(args); err != nil {
		log.Warn().Err(err).Str("tool", name).Msg("Rejected tool arguments")
		return Result{Text: fmt.Sprintf("Invalid arguments for %s: %v", name, err), IsError: true}
	}

	return def.run(d, ctx, args)
}

// Generate runs generate_mockup and returns the text for the agent
func (d *Dispatcher) Generate(ctx context.Context, args map[string]any) string {
	return d.Call(ctx, ToolGenerate, args).Text
}

// Edit runs edit_mockup and returns the text for the agent
func (d *Dispatcher) Edit(ctx context.Context, args map[string]any) string {
	return d.Call(ctx, ToolEdit, args).Text
}

// VibeCode runs vibe_code and returns the text for the agent
func (d *Dispatcher) VibeCode(ctx context.Context, args map[string]any) string {
	return d.Call(ctx, ToolVibeCode, args).Text
}

func (d *Dispatcher) generate(ctx context.Context, args map[string]any) Result {
	var a GenerateArgs
	if err := decode(args, &a); err != nil {
		return Result{Text: fmt.Sprintf("Invalid arguments for %s: %v", ToolGenerate, err), IsError: true}
	}

	params := map[string]any{"prompt": a.Prompt, "variants": a.Variants}
	return d.run(ctx, ToolGenerate, params, "Error generating mockup: ", func(base string) ([]string, error) {
		return d.gen.Generate(ctx, generation.GenerateRequest{
			Prompt:   a.Prompt,
			BaseHTML: base,
			Variants: a.Variants,
		})
	}, func(n int) (string, string) {
		return fmt.Sprintf("Generated %d mockup(s)", n),
			fmt.Sprintf("Successfully generated %d HTML mockup(s)", n)
	})
}

func (d *Dispatcher) vibeCode(ctx context.Context, args map[string]any) Result {
	var a VibeCodeArgs
	if err := decode(args, &a); err != nil {
		return Result{Text: fmt.Sprintf("Invalid arguments for %s: %v", ToolVibeCode, err), IsError: true}
	}

	params := map[string]any{"prompt": a.Prompt, "variants_count": a.VariantsCount}
	return d.run(ctx, ToolVibeCode, params, "Error generating vibe code: ", func(base string) ([]string, error) {
		return d.gen.VibeCode(ctx, generation.VibeCodeRequest{
			Prompt:        a.Prompt,
			BaseHTML:      base,
			VariantsCount: a.VariantsCount,
		})
	}, func(n int) (string, string) {
		return fmt.Sprintf("Generated %d variant(s) successfully", n),
			fmt.Sprintf("Successfully generated %d HTML variant(s) and displayed them in the canvas", n)
	})
}

func (d *Dispatcher) edit(ctx context.Context, args map[string]any) Result {
	var a EditArgs
	if err := decode(args, &a); err != nil {
		return Result{Text: fmt.Sprintf("Invalid arguments for %s: %v", ToolEdit, err), IsError: true}
	}

	if _, ok := d.store.FirstHTML(); !ok {
		return Result{Text: msgNoMockup, IsError: true}
	}

	params := map[string]any{"instruction": a.Instruction}
	return d.run(ctx, ToolEdit, params, "Error editing mockup: ", func(current string) ([]string, error) {
		html, err := d.gen.Edit(ctx, generation.EditRequest{
			CurrentHTML: current,
			Instruction: a.Instruction,
		})
		if err != nil {
			return nil, err
		}
		return []string{html}, nil
	}, func(int) (string, string) {
		return "Mockup updated successfully", "Successfully updated the HTML mockup"
	})
}

// run is the shared lifecycle of a canvas-writing tool: take a ticket,
// record the call as pending, generate against the first canvas document
// as of now, then try to apply the result.
func (d *Dispatcher) run(
	ctx context.Context,
	name string,
	params map[string]any,
	errPrefix string,
	produce func(firstHTML string) ([]string, error),
	texts func(n int) (summary, reply string),
) Result {
	ticket, err := d.store.NextIssue()
	if err != nil {
		return Result{Text: errPrefix + err.Error(), IsError: true}
	}
	call, err := d.store.BeginToolCall(name, params)
	if err != nil {
		return Result{Text: errPrefix + err.Error(), IsError: true}
	}

	logger := log.With().Str("tool", name).Str("call_id", call.ID).Uint64("issue", ticket.Issue).Logger()
	logger.Info().Msg("Tool call started")

	first, _ := d.store.FirstHTML()
	docs, err := recoverProduce(func() ([]string, error) { return produce(first) })
	if err == nil && len(docs) == 0 {
		err = generation.ErrEmptyDocument
	}
	if err == nil {
		var outcome state.ApplyOutcome
		outcome, err = d.store.ApplyCanvas(ticket, docs, state.ModeForCount(len(docs)))
		if err == nil {
			summary, reply := texts(len(docs))
			switch outcome {
			case state.Applied:
				d.finish(call.ID, summary, nil)
				logger.Info().Int("documents", len(docs)).Msg("Tool call applied")
				return Result{Text: reply}
			case state.Superseded:
				d.finish(call.ID, summary+suffixSuperseded, nil)
				logger.Info().Msg("Tool call superseded by a newer request")
				return Result{Text: reply + suffixSuperseded}
			case state.SessionEnded:
				err = errSessionEnded
			}
		}
	}

	logger.Error().Err(err).Msg("Tool call failed")
	d.finish(call.ID, err.Error(), err)
	return Result{Text: errPrefix + err.Error(), IsError: true}
}

func (d *Dispatcher) finish(id, text string, failure error) {
	var err error
	if failure != nil {
		err = d.store.FailToolCall(id, text)
	} else {
		err = d.store.CompleteToolCall(id, text)
	}
	if err != nil && !errors.Is(err, state.ErrUnknownToolCall) {
		log.Warn().Err(err).Str("call_id", id).Msg("Failed to record tool call result")
	}
}

func recoverProduce(fn func() ([]string, error)) (docs []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered panic in generation")
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return fn()
}
