// Package aieval asks an OpenAI-compatible chat completions endpoint to rate
// a translation on accuracy, fluency, terminology and format.
package aieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"localeforge/api/internal/quality"
)

const systemPrompt = `You are a professional translation reviewer. Rate the translation on four dimensions, each an integer from 0 to 100:
accuracy (meaning preserved), fluency (natural in the target language), terminology (domain terms used correctly), format (placeholders, markup and punctuation preserved).
Respond with a single JSON object: {"accuracy":N,"fluency":N,"terminology":N,"format":N}.`

var ErrNoScores = errors.New("ai evaluator returned no scores")

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Client struct {
	http    *resty.Client
	baseURL string
	apiKey  string
	model   string
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		http:    resty.New().SetTimeout(timeout),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

var scoreSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "translation_quality",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"accuracy":    map[string]any{"type": "integer"},
				"fluency":     map[string]any{"type": "integer"},
				"terminology": map[string]any{"type": "integer"},
				"format":      map[string]any{"type": "integer"},
			},
			"required":             []string{"accuracy", "fluency", "terminology", "format"},
			"additionalProperties": false,
		},
	},
}

// Score implements evaluation.AIScorer.
func (c *Client) Score(ctx context.Context, input quality.CheckInput) (quality.AIScores, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt(input)},
		},
		"temperature":     0,
		"response_format": scoreSchema,
	}

	var resp chatResponse
	rr, err := c.post(ctx, body, &resp)
	if err != nil {
		return quality.AIScores{}, err
	}
	// Providers without json_schema support reject it with 400.
	if rr.StatusCode() == http.StatusBadRequest {
		body["response_format"] = map[string]string{"type": "json_object"}
		resp = chatResponse{}
		if rr, err = c.post(ctx, body, &resp); err != nil {
			return quality.AIScores{}, err
		}
	}
	if rr.IsError() {
		return quality.AIScores{}, fmt.Errorf("ai evaluate: %s; body: %s", rr.Status(), abbreviate(rr.String(), 500))
	}
	if len(resp.Choices) == 0 {
		return quality.AIScores{}, ErrNoScores
	}
	return parseScores(resp.Choices[0].Message.Content)
}

func (c *Client) post(ctx context.Context, body any, result *chatResponse) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(result)
	if c.apiKey != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiKey)
	}
	rr, err := req.Post(c.baseURL + "/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("ai evaluate: %w", err)
	}
	return rr, nil
}

func userPrompt(input quality.CheckInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source language: %s\n", input.SourceLanguage)
	fmt.Fprintf(&b, "Target language: %s\n", input.TargetLanguage)
	fmt.Fprintf(&b, "Source text:\n%s\n", input.Source)
	fmt.Fprintf(&b, "Translation:\n%s\n", input.Target)
	return b.String()
}

type rawScores struct {
	Accuracy    *float64 `json:"accuracy"`
	Fluency     *float64 `json:"fluency"`
	Terminology *float64 `json:"terminology"`
	Format      *float64 `json:"format"`
}

func parseScores(content string) (quality.AIScores, error) {
	s := strings.TrimSpace(content)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := strings.TrimPrefix(s[idx+3:], "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			s = strings.TrimSpace(rest[:j])
		}
	}
	if i := strings.Index(s, "{"); i >= 0 {
		if j := strings.LastIndex(s, "}"); j > i {
			s = s[i : j+1]
		}
	}

	var raw rawScores
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return quality.AIScores{}, fmt.Errorf("decode ai scores: %w; content: %s", err, abbreviate(content, 500))
	}
	scores := quality.AIScores{
		Accuracy:    toScore(raw.Accuracy),
		Fluency:     toScore(raw.Fluency),
		Terminology: toScore(raw.Terminology),
		Format:      toScore(raw.Format),
	}
	if scores.Accuracy == nil && scores.Fluency == nil && scores.Terminology == nil && scores.Format == nil {
		return quality.AIScores{}, ErrNoScores
	}
	return scores, nil
}

func toScore(value *float64) *int {
	if value == nil {
		return nil
	}
	v := int(*value + 0.5)
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return &v
}

func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
