package generation

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"
)

const htmlSystemPrompt = `You are an expert UI/UX designer and frontend developer. Your task is to generate beautiful, modern HTML mockups based on user descriptions.

RULES:
1. Generate ONLY valid HTML code - no markdown, no code fences, no explanations
2. Use Tailwind CSS via CDN for styling (include the script tag)
3. Create visually appealing, modern designs with proper spacing, colors, and typography
4. Make the UI responsive and professional-looking
5. Include realistic placeholder content (not lorem ipsum)
6. Use a cohesive color scheme with subtle gradients and shadows
7. The HTML should be complete and self-contained (can be rendered in an iframe)
8. Start with <!DOCTYPE html> and include all necessary tags

STYLE GUIDELINES:
- Use modern, clean design principles
- Prefer subtle shadows and rounded corners
- Use a professional color palette (blues, grays, with accent colors)
- Include appropriate icons using Lucide or Heroicons CDN if needed
- Make text readable with proper contrast
- Add hover states and visual feedback where appropriate`

const vibeCodeSystemPrompt = `You are an expert full-stack developer who creates beautiful, functional web applications. Your task is to generate complete, self-contained HTML pages based on user prompts.

RULES:
1. Generate ONLY valid HTML code - no markdown, no code fences, no explanations
2. Use Tailwind CSS via CDN for styling (include the script tag)
3. Create visually stunning, modern, and functional designs
4. Include interactive JavaScript where appropriate (inline <script> tags)
5. Make the UI fully responsive and professional-looking
6. Use realistic placeholder content and data
7. The HTML must be complete and self-contained (can be rendered in an iframe)
8. Start with <!DOCTYPE html> and include all necessary tags

STYLE GUIDELINES:
- Use modern, clean design with attention to detail
- Include smooth animations and transitions
- Use a cohesive, professional color palette
- Add proper hover states, focus states, and visual feedback
- Include Lucide icons via CDN when icons are needed
- Create pixel-perfect layouts with proper spacing
- Make text readable with excellent typography

FUNCTIONALITY:
- Add realistic interactivity with vanilla JavaScript
- Include form validation where appropriate
- Add loading states and feedback for user actions
- Make buttons and links functional within the page

Remember: You are "vibe coding" - creating something that looks and feels amazing, capturing the essence of what the user wants.`

const variantPromptTemplate = `{{- if .BaseHTML -}}
Based on this existing HTML:

{{ .BaseHTML }}

User request: {{ .Prompt }}
{{- else -}}
{{ .Prompt }}
{{- end -}}
{{- if gt .Total 1 }}

This is variant {{ .Number }} of {{ .Total }}. Create a unique design variation while maintaining the core functionality.
{{- end -}}`

const editPromptTemplate = `Here is the current HTML:

{{ .CurrentHTML }}

Please modify this HTML according to the following instruction: {{ .Instruction | trim }}

Return ONLY the modified HTML code, nothing else.`

var (
	variantPrompt = template.Must(template.New("variant").Funcs(sprig.TxtFuncMap()).Parse(variantPromptTemplate))
	editPrompt    = template.Must(template.New("edit").Funcs(sprig.TxtFuncMap()).Parse(editPromptTemplate))
)

type variantData struct {
	Prompt   string
	BaseHTML string
	Number   int
	Total    int
}

// VariantPrompt renders the user prompt for variant number of total
func VariantPrompt(prompt, baseHTML string, number, total int) (string, error) {
	var buf bytes.Buffer
	err := variantPrompt.Execute(&buf, variantData{
		Prompt:   prompt,
		BaseHTML: baseHTML,
		Number:   number,
		Total:    total,
	})
	if err != nil {
		return "", fmt.Errorf("render variant prompt: %w", err)
	}
	return buf.String(), nil
}

// EditPrompt renders the user prompt for an edit request
func EditPrompt(currentHTML, instruction string) (string, error) {
	var buf bytes.Buffer
	if err := editPrompt.Execute(&buf, EditRequest{CurrentHTML: currentHTML, Instruction: instruction}); err != nil {
		return "", fmt.Errorf("render edit prompt: %w", err)
	}
	return buf.String(), nil
}
