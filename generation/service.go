package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"oscar/model"
)

// Options tune a Service
type Options struct {
	// MaxParallel bounds concurrent variant requests. Zero means MaxVariants.
	MaxParallel int
	// Timeout applies to each Generate, Edit or VibeCode call. Zero disables it.
	Timeout time.Duration
}

// Service generates documents with an LLM provider
type Service struct {
	provider model.Provider
	opts     Options
}

// NewService creates a generation service backed by p
func NewService(p model.Provider, opts Options) *Service {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = MaxVariants
	}
	return &Service{provider: p, opts: opts}
}

// Provider returns the backing provider
func (s *Service) Provider() model.Provider {
	return s.provider
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// Generate produces req.Variants mockups with the designer persona
func (s *Service) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.variants(ctx, htmlSystemPrompt, req.Prompt, req.BaseHTML, req.Variants)
}

// VibeCode produces req.VariantsCount interactive pages with the vibe coder persona
func (s *Service) VibeCode(ctx context.Context, req VibeCodeRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.variants(ctx, vibeCodeSystemPrompt, req.Prompt, req.BaseHTML, req.VariantsCount)
}

// Edit rewrites req.CurrentHTML following req.Instruction
func (s *Service) Edit(ctx context.Context, req EditRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	prompt, err := EditPrompt(req.CurrentHTML, req.Instruction)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.complete(ctx, htmlSystemPrompt, prompt)
}

// variants runs one completion per variant. Results keep variant order and
// the first failure cancels the rest.
func (s *Service) variants(ctx context.Context, system, prompt, baseHTML string, n int) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	results := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxParallel)

	for i := 0; i < n; i++ {
		g.Go(func() error {
			userPrompt, err := VariantPrompt(prompt, baseHTML, i+1, n)
			if err != nil {
				return err
			}
			html, err := s.complete(gctx, system, userPrompt)
			if err != nil {
				if n > 1 {
					return fmt.Errorf("variant %d of %d: %w", i+1, n, err)
				}
				return err
			}
			results[i] = html
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) complete(ctx context.Context, system, prompt string) (string, error) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: system, Timestamp: time.Now()},
		{Role: model.RoleUser, Content: prompt, Timestamp: time.Now()},
	}

	start := time.Now()
	var b strings.Builder
	if err := s.provider.Chat(ctx, messages, model.Collect(&b)); err != nil {
		return "", err
	}

	html, err := CleanDocument(b.String())
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("model", s.provider.GetModel()).
		Int("bytes", len(html)).
		Dur("elapsed", time.Since(start)).
		Msg("Document generated")
	return html, nil
}

var _ Generator = (*Service)(nil)
