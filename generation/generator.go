// Package generation turns natural-language requests into HTML documents.
//
// Service talks to an LLM through a model.Provider. Remote talks to another
// oscar process running "oscar serve". Both satisfy Generator.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxVariants is the largest number of documents one request can produce
const MaxVariants = 4

var (
	ErrEmptyPrompt      = errors.New("prompt is required")
	ErrEmptyInstruction = errors.New("instruction is required")
	ErrEmptyCurrentHTML = errors.New("currentHtml is required")
	ErrInvalidVariants  = errors.New("variants must be 1 or 4")
	ErrEmptyDocument    = errors.New("model returned an empty document")
)

// Generator produces and edits HTML documents
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]string, error)
	Edit(ctx context.Context, req EditRequest) (string, error)
	VibeCode(ctx context.Context, req VibeCodeRequest) ([]string, error)
}

// GenerateRequest asks for one or four mockups
type GenerateRequest struct {
	Prompt   string `json:"prompt"`
	BaseHTML string `json:"baseHtml,omitempty"`
	Variants int    `json:"variants,omitempty"`
}

// EditRequest asks for a modification of an existing document
type EditRequest struct {
	CurrentHTML string `json:"currentHtml"`
	Instruction string `json:"instruction"`
}

// VibeCodeRequest asks for one or four interactive pages
type VibeCodeRequest struct {
	Prompt        string `json:"prompt"`
	BaseHTML      string `json:"baseHtml,omitempty"`
	VariantsCount int    `json:"variants_count,omitempty"`
}

// ValidationError marks a request rejected before any model call
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err was caused by a malformed request
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func checkVariants(n int) (int, error) {
	switch n {
	case 0:
		return 1, nil
	case 1, MaxVariants:
		return n, nil
	default:
		return 0, &ValidationError{Err: fmt.Errorf("%w: got %d", ErrInvalidVariants, n)}
	}
}

// Validate checks required fields and fills the default variant count
func (r *GenerateRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Err: ErrEmptyPrompt}
	}
	n, err := checkVariants(r.Variants)
	if err != nil {
		return err
	}
	r.Variants = n
	return nil
}

func (r *EditRequest) Validate() error {
	if strings.TrimSpace(r.CurrentHTML) == "" {
		return &ValidationError{Err: ErrEmptyCurrentHTML}
	}
	if strings.TrimSpace(r.Instruction) == "" {
		return &ValidationError{Err: ErrEmptyInstruction}
	}
	return nil
}

func (r *VibeCodeRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Err: ErrEmptyPrompt}
	}
	n, err := checkVariants(r.VariantsCount)
	if err != nil {
		return err
	}
	r.VariantsCount = n
	return nil
}
