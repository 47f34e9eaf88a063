package dispatcher

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/xeipuuv/gojsonschema"
)

// GenerateArgs are the arguments of generate_mockup
type GenerateArgs struct {
	Prompt   string `json:"prompt" jsonschema:"minLength=1,pattern=\\S" jsonschema_description:"What the mockup should show, in the user's words"`
	Variants int    `json:"variants,omitempty" jsonschema:"enum=1,enum=4" jsonschema_description:"Number of design variants. 4 shows a grid, anything else produces 1"`
}

// EditArgs are the arguments of edit_mockup
type EditArgs struct {
	Instruction string `json:"instruction" jsonschema:"minLength=1,pattern=\\S" jsonschema_description:"The change to apply to the current mockup"`
}

// VibeCodeArgs are the arguments of vibe_code
type VibeCodeArgs struct {
	Prompt        string `json:"prompt" jsonschema:"minLength=1,pattern=\\S" jsonschema_description:"The app or page to build, with any interactivity it needs"`
	VariantsCount int    `json:"variants_count,omitempty" jsonschema:"enum=1,enum=4" jsonschema_description:"Number of variants. 4 shows a grid, anything else produces 1"`
}

// schema holds the reflected JSON schema of one tool's arguments
type schema struct {
	raw       json.RawMessage
	input     mcptypes.ToolInputSchema
	validator *gojsonschema.Schema
}

func reflectSchema(v any) (*schema, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(v)
	// gojsonschema does not know draft 2020-12; validate by keyword
	s.Version = ""

	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	var input mcptypes.ToolInputSchema
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	validator, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &schema{raw: raw, input: input, validator: validator}, nil
}

// validate reports every schema violation in one message
func (s *schema) validate(args map[string]any) error {
	result, err := s.validator.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// decode converts validated arguments into the typed struct
func decode(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// NormalizeVariants maps any variant count other than exactly 4 to 1.
// Numeric strings are read as numbers.
func NormalizeVariants(v any) int {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 1
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 1
		}
		f = parsed
	default:
		return 1
	}
	if f == 4 {
		return 4
	}
	return 1
}

// normalize copies args and replaces the variant field with 1 or 4
func normalize(args map[string]any, variantField string) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	if variantField != "" {
		out[variantField] = NormalizeVariants(args[variantField])
	}
	return out
}
