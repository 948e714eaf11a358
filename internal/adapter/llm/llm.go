// Package llm implements the text generation capability on top of
// langchaingo models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/niksmo/smart-catalog/internal/core/domain"
	"github.com/niksmo/smart-catalog/internal/core/port"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

var _ port.TextGenerator = (*Generator)(nil)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"

	defaultGoogleAIModel = "gemini-1.5-flash"
	defaultOpenAIModel   = "gpt-4o-mini"

	googleAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

var (
	ErrNoAPIKey        = errors.New("api key is empty")
	ErrUnknownProvider = errors.New("unknown provider")
)

type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

type Generator struct {
	model llms.Model
}

// NewGenerator creates a generator for the configured provider. An empty
// provider means [ProviderGoogleAI].
func NewGenerator(cfg Config) (*Generator, error) {
	const op = "llm.NewGenerator"

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoAPIKey)
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case ProviderGoogleAI, "":
		model, err = newGoogleAI(cfg)
	case ProviderOpenAI:
		model, err = newOpenAI(cfg)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newGenerator(model), nil
}

func newGenerator(model llms.Model) *Generator {
	return &Generator{model}
}

// newGoogleAI talks to Gemini through its OpenAI compatible endpoint.
func newGoogleAI(cfg Config) (llms.Model, error) {
	if cfg.Model == "" {
		cfg.Model = defaultGoogleAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = googleAIBaseURL
	}
	return newOpenAI(cfg)
}

func newOpenAI(cfg Config) (llms.Model, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(modelName),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return openai.New(opts...)
}

// Generate sends prompt as a single human message. Every failure wraps
// [domain.ErrProvider].
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	const op = "Generator.Generate"

	text, err := llms.GenerateFromSinglePrompt(
		ctx, g.model, prompt, llms.WithTemperature(0),
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, domain.ErrProvider, err)
	}
	return text, nil
}

func (g *Generator) Close() {
	const op = "Generator.Close"
	log := slog.With("op", op)

	c, ok := g.model.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Error("failed to close provider client", "err", err)
		return
	}
	log.Info("provider client is closed")
}
