package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/masteryloop-backend/internal/logger"
	"github.com/yungbote/masteryloop-backend/internal/utils"
)

// OpenAIClient implements Generator and Evaluator over the structured-output
// chat endpoint. Network and 5xx/429 failures surface as transient; payloads
// that decode but break the contract surface as malformed so the caller can
// swap profiles instead of retrying blindly.
type OpenAIClient struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewOpenAIClient(log *logger.Logger) (*OpenAIClient, error) {
	apiKey := strings.TrimSpace(utils.GetEnv("OPENAI_API_KEY", "", log))
	if apiKey == "" {
		return nil, fmt.Errorf("content: OPENAI_API_KEY is required")
	}
	timeout := time.Duration(utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 60, log)) * time.Second
	return &OpenAIClient{
		log:        log.With("client", "OpenAI"),
		baseURL:    strings.TrimRight(utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1", log), "/"),
		apiKey:     apiKey,
		model:      utils.GetEnv("OPENAI_MODEL", "gpt-4o-mini", log),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 3, log),
	}, nil
}

var _ Generator = (*OpenAIClient)(nil)
var _ Evaluator = (*OpenAIClient)(nil)

func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (Generated, error) {
	system := strings.Join([]string{
		"ROLE: Content generator for a tutoring system.",
		"The caller has already decided strategy, difficulty and tone; do not second-guess them.",
		"Set context to a short snake_case label for the real-world domain you ground the material in.",
		"Never reuse any context listed in avoid_contexts.",
		"OUTPUT: Return ONLY JSON matching the schema.",
	}, "\n")

	userPayload, err := json.Marshal(req)
	if err != nil {
		return Generated{}, Malformed("generate", err)
	}

	var out Generated
	if err := c.generateJSON(ctx, "generate", system, string(userPayload), generatedSchema, &out); err != nil {
		return Generated{}, err
	}
	out.Kind = req.Kind
	if err := ValidateGenerated(req, out); err != nil {
		return Generated{}, Malformed("generate", err)
	}
	return out, nil
}

func (c *OpenAIClient) Evaluate(ctx context.Context, req EvaluateRequest) (Evaluation, error) {
	system := strings.Join([]string{
		"ROLE: Response evaluator for a tutoring system.",
		"Score the learner response against the task on a 0..1 scale.",
		"Flag only misconceptions from known_misconceptions, each with a 0..1 confidence and a short evidence quote.",
		"OUTPUT: Return ONLY JSON matching the schema.",
	}, "\n")

	userPayload, err := json.Marshal(req)
	if err != nil {
		return Evaluation{}, Malformed("evaluate", err)
	}

	var out Evaluation
	if err := c.generateJSON(ctx, "evaluate", system, string(userPayload), evaluationSchema, &out); err != nil {
		return Evaluation{}, err
	}
	if err := ValidateEvaluation(req, out); err != nil {
		return Evaluation{}, Malformed("evaluate", err)
	}
	return out, nil
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *OpenAIClient) generateJSON(ctx context.Context, op, system, user string, schema map[string]any, out any) error {
	body := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   op,
				"strict": true,
				"schema": schema,
			},
		},
	}

	raw, err := c.doWithRetry(ctx, op, body)
	if err != nil {
		return err
	}

	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Malformed(op, fmt.Errorf("decode envelope: %w", err))
	}
	if len(resp.Choices) == 0 {
		return Malformed(op, fmt.Errorf("no choices in response"))
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), out); err != nil {
		return Malformed(op, fmt.Errorf("decode payload: %w", err))
	}
	return nil
}

func (c *OpenAIClient) doWithRetry(ctx context.Context, op string, body any) ([]byte, error) {
	backoff := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, Transient(op, ctx.Err())
		}

		raw, status, err := c.doOnce(ctx, body)
		if err == nil && status >= 200 && status < 300 {
			return raw, nil
		}
		if err == nil {
			err = fmt.Errorf("status %d: %s", status, truncate(string(raw), 300))
		}
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return nil, Malformed(op, err)
		}
		lastErr = err
		if attempt == c.maxRetries {
			break
		}
		c.log.Warn("collaborator request retrying",
			"op", op,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", backoff.String(),
			"error", err.Error(),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, Transient(op, ctx.Err())
		}
		backoff *= 2
	}
	return nil, Transient(op, lastErr)
}

func (c *OpenAIClient) doOnce(ctx context.Context, body any) ([]byte, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, resp.StatusCode, readErr
	}
	return raw, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var generatedSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"context", "content"},
	"properties": map[string]any{
		"context": map[string]any{"type": "string"},
		"content": map[string]any{"type": "string"},
		"prompt":  map[string]any{"type": "string"},
		"hints":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var evaluationSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"score"},
	"properties": map[string]any{
		"score":           map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"feedback":        map[string]any{"type": "string"},
		"explain_quality": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"misconceptions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"id", "confidence"},
				"properties": map[string]any{
					"id":         map[string]any{"type": "string"},
					"confidence": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"evidence":   map[string]any{"type": "string"},
				},
			},
		},
	},
}
