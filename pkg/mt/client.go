package mt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"google.golang.org/genai"
)

// TranslateFunc turns a prompt into model output. The first "\n\n" block of
// the prompt is treated as the system message, the remainder as the user
// message.
type TranslateFunc func(prompt string) (string, error)

// ClientConfig selects and parameterizes a translation engine.
type ClientConfig struct {
	// Engine is "openai" or "gemini". Empty means infer from Model.
	Engine      string
	Model       string
	Temperature float64
	// APIKey overrides the environment credential.
	APIKey string
	// Fallback, when set, is tried after the primary engine fails. Off by
	// default: mixing engines across attempts breaks cross-utterance
	// consistency.
	Fallback *ClientConfig
}

const clientRetries = 3

// ResolveEngine resolves the engine name from the explicit setting, then
// the model name prefix, then the default.
func ResolveEngine(engine, model string) string {
	if engine != "" {
		return engine
	}
	if strings.HasPrefix(model, "gemini") {
		return "gemini"
	}
	return "openai"
}

// NewTranslateFunc builds the translation function for a config,
// including the optional fallback chain.
func NewTranslateFunc(ctx context.Context, cfg ClientConfig) (TranslateFunc, error) {
	primary, err := newEngineFunc(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == nil {
		return primary, nil
	}
	fallback, err := newEngineFunc(ctx, *cfg.Fallback)
	if err != nil {
		return nil, fmt.Errorf("init fallback engine: %w", err)
	}
	return func(prompt string) (string, error) {
		text, perr := primary(prompt)
		if perr == nil {
			return text, nil
		}
		text, ferr := fallback(prompt)
		if ferr != nil {
			return "", fmt.Errorf("all translation engines failed: primary: %v, fallback: %w", perr, ferr)
		}
		return text, nil
	}, nil
}

func newEngineFunc(ctx context.Context, cfg ClientConfig) (TranslateFunc, error) {
	switch ResolveEngine(cfg.Engine, cfg.Model) {
	case "gemini":
		return newGeminiFunc(ctx, cfg)
	case "openai":
		return newOpenAIFunc(cfg)
	default:
		return nil, fmt.Errorf("unknown translation engine %q", cfg.Engine)
	}
}

func newOpenAIFunc(cfg ClientConfig) (TranslateFunc, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY is not set")
	}
	client := openai.NewClient(option.WithAPIKey(key))
	return func(prompt string) (string, error) {
		system, user := splitPrompt(prompt)
		var text string
		err := withRetry(func() error {
			resp, err := client.Chat.Completions.New(context.Background(), openai.ChatCompletionNewParams{
				Model: openai.ChatModel(cfg.Model),
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.SystemMessage(system),
					openai.UserMessage(user),
				},
				Temperature: param.NewOpt(cfg.Temperature),
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return errors.New("no choices")
			}
			text = strings.TrimSpace(resp.Choices[0].Message.Content)
			if text == "" {
				return errors.New("empty completion")
			}
			return nil
		})
		return text, err
	}, nil
}

func newGeminiFunc(ctx context.Context, cfg ClientConfig) (TranslateFunc, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return func(prompt string) (string, error) {
		system, user := splitPrompt(prompt)
		gcfg := &genai.GenerateContentConfig{
			Temperature: genai.Ptr(float32(cfg.Temperature)),
		}
		if system != "" {
			gcfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
		}
		var text string
		err := withRetry(func() error {
			resp, err := client.Models.GenerateContent(ctx, cfg.Model, genai.Text(user), gcfg)
			if err != nil {
				if e, ok := err.(*apierror.APIError); ok {
					err = e.Unwrap()
				}
				return err
			}
			text = strings.TrimSpace(resp.Text())
			if text == "" {
				return errors.New("empty completion")
			}
			return nil
		})
		return text, err
	}, nil
}

// withRetry runs fn with exponential backoff. A model not-found or
// unsupported error short-circuits without retry since no amount of
// waiting fixes a wrong model name.
func withRetry(fn func() error) error {
	bo := gax.Backoff{
		Initial:    500 * time.Millisecond,
		Max:        8 * time.Second,
		Multiplier: 2,
	}
	var err error
	for attempt := 0; attempt < clientRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if isModelError(err) {
			return err
		}
		if attempt < clientRetries-1 {
			time.Sleep(bo.Pause())
		}
	}
	return err
}

func isModelError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "not_found") ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "unsupported")
}

func splitPrompt(prompt string) (system, user string) {
	if idx := strings.Index(prompt, "\n\n"); idx >= 0 {
		return prompt[:idx], prompt[idx+2:]
	}
	return "", prompt
}
