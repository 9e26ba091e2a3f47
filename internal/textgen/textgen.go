// Package textgen turns project and task context into generated task content
// via the Gemini API. Responses must be strict JSON; anything else is a hard
// failure surfaced as TaskGenerationError.
package textgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"taskcanvas/internal/retry"
)

// Operation tags which generation flow produced an error.
type Operation string

const (
	OpDecompose  Operation = "decompose"
	OpSplit      Operation = "split"
	OpRegenerate Operation = "regenerate"
)

// TaskGenerationError preserves the underlying cause's message so the UI can
// show it once, without a generic wrapper string stacked on top.
type TaskGenerationError struct {
	Op  Operation
	Err error
}

func (e TaskGenerationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e TaskGenerationError) Unwrap() error { return e.Err }

// TaskContent is one generated (or contextual) task.
type TaskContent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Input is the structured context handed to a generation call. Task is nil
// for decompose; Siblings is only populated for regenerate.
type Input struct {
	ProjectName        string
	ProjectDescription string
	Task               *TaskContent
	Ancestors          []TaskContent
	Siblings           []TaskContent
}

// Generator is the text-generation service the orchestrators depend on.
type Generator interface {
	Decompose(ctx context.Context, in Input) ([]TaskContent, error)
	Split(ctx context.Context, in Input) ([]TaskContent, error)
	Regenerate(ctx context.Context, in Input) (TaskContent, error)
}

const defaultModel = "gemini-2.5-flash"

// APIKeyFromEnv returns the configured Gemini key, preferring the
// app-specific variable over the SDK-conventional one. Empty means
// generation features are unavailable.
func APIKeyFromEnv() string {
	if k := strings.TrimSpace(os.Getenv("TASKCANVAS_GENAI_API_KEY")); k != "" {
		return k
	}
	return strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
}

type Config struct {
	APIKey string
	Model  string
	Logger *zap.Logger
	Retry  retry.Policy
}

// Client calls Gemini through the official SDK.
type Client struct {
	client *genai.Client
	model  string
	log    *zap.Logger
	retry  retry.Policy
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing Gemini API key (set TASKCANVAS_GENAI_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Default()
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{client: gc, model: cfg.Model, log: cfg.Logger, retry: cfg.Retry}, nil
}

func (c *Client) Decompose(ctx context.Context, in Input) ([]TaskContent, error) {
	return c.generateList(ctx, OpDecompose, decomposePrompt, in)
}

func (c *Client) Split(ctx context.Context, in Input) ([]TaskContent, error) {
	if in.Task == nil {
		return nil, TaskGenerationError{Op: OpSplit, Err: fmt.Errorf("no task provided")}
	}
	return c.generateList(ctx, OpSplit, splitPrompt, in)
}

func (c *Client) Regenerate(ctx context.Context, in Input) (TaskContent, error) {
	if in.Task == nil {
		return TaskContent{}, TaskGenerationError{Op: OpRegenerate, Err: fmt.Errorf("no task provided")}
	}
	raw, err := c.generate(ctx, OpRegenerate, regeneratePrompt, in)
	if err != nil {
		return TaskContent{}, err
	}
	out, err := parseSingle(raw)
	if err != nil {
		return TaskContent{}, TaskGenerationError{Op: OpRegenerate, Err: err}
	}
	return out, nil
}

func (c *Client) generateList(ctx context.Context, op Operation, tmpl *template.Template, in Input) ([]TaskContent, error) {
	raw, err := c.generate(ctx, op, tmpl, in)
	if err != nil {
		return nil, err
	}
	out, err := parseList(raw)
	if err != nil {
		return nil, TaskGenerationError{Op: op, Err: err}
	}
	return out, nil
}

func (c *Client) generate(ctx context.Context, op Operation, tmpl *template.Template, in Input) (string, error) {
	prompt, err := renderPrompt(tmpl, in)
	if err != nil {
		return "", TaskGenerationError{Op: op, Err: err}
	}

	var text string
	err = c.retry.Do(ctx, func() error {
		resp, err := c.client.Models.GenerateContent(ctx, c.model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{ResponseMIMEType: "application/json"})
		if err != nil {
			return err
		}
		text = resp.Text()
		return nil
	})
	if err != nil {
		c.log.Warn("generation failed", zap.String("op", string(op)), zap.Error(err))
		return "", TaskGenerationError{Op: op, Err: err}
	}
	c.log.Debug("generation succeeded",
		zap.String("op", string(op)), zap.Int("chars", len(text)))
	return text, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseList(raw string) ([]TaskContent, error) {
	var out []TaskContent
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return nil, fmt.Errorf("response is not a JSON task array: %w", err)
	}
	cleaned := out[:0]
	for _, t := range out {
		t.Name = strings.TrimSpace(t.Name)
		t.Description = strings.TrimSpace(t.Description)
		if t.Name == "" {
			continue
		}
		cleaned = append(cleaned, t)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("response contained no usable tasks")
	}
	return cleaned, nil
}

func parseSingle(raw string) (TaskContent, error) {
	var out TaskContent
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return TaskContent{}, fmt.Errorf("response is not a JSON task object: %w", err)
	}
	out.Name = strings.TrimSpace(out.Name)
	out.Description = strings.TrimSpace(out.Description)
	if out.Name == "" {
		return TaskContent{}, fmt.Errorf("response task has no name")
	}
	return out, nil
}
