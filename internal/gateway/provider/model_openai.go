package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"btcagent/internal/logger"
	"btcagent/internal/pkg/circuit"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// 中文说明：
// OpenAIChatClient：兼容 OpenAI / DeepSeek / Qwen / Gemini(OpenAI 兼容端点) 的 /chat/completions。

const defaultBaseURL = "https://api.openai.com/v1"

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type OpenAIChatClient struct {
	id          string
	model       string
	apiKey      string
	temperature float64
	http        *resty.Client
	limiter     *rate.Limiter
	breaker     *circuit.Breaker
}

type ClientOptions struct {
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerMinute int
	Breaker           *circuit.Breaker
}

func NewOpenAIChatClient(cfg ModelCfg, opts ClientOptions) *OpenAIChatClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	// 用户可能把完整路径写进配置
	base = strings.TrimSuffix(base, "/chat/completions")
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.MaxRetries).
		SetRetryWaitTime(800*time.Millisecond).
		SetRetryMaxWaitTime(8*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			switch r.StatusCode() {
			case http.StatusTooManyRequests, http.StatusInternalServerError,
				http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return true
			}
			return false
		}).
		SetHeader("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		client.SetHeader(k, v)
	}
	c := &OpenAIChatClient{
		id:          cfg.ID,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		http:        client,
		breaker:     opts.Breaker,
	}
	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}
	return c
}

func (c *OpenAIChatClient) ID() string { return c.id }

func (c *OpenAIChatClient) Call(ctx context.Context, payload ChatPayload) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%s rate limit: %w", c.id, err)
		}
	}
	var out string
	call := func() error {
		var err error
		out, err = c.do(ctx, payload)
		return err
	}
	if c.breaker == nil {
		return out, call()
	}
	if err := c.breaker.Do(call); err != nil {
		return "", fmt.Errorf("%s: %w", c.id, err)
	}
	return out, nil
}

func (c *OpenAIChatClient) do(ctx context.Context, payload ChatPayload) (string, error) {
	body := chatRequest{Model: c.model, Temperature: c.temperature, MaxTokens: payload.MaxTokens}
	if payload.Temperature > 0 {
		body.Temperature = payload.Temperature
	}
	if strings.TrimSpace(payload.System) != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: payload.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: payload.User})
	if payload.ExpectJSON {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var result chatResponse
	var apiErr chatError
	req := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr)
	if c.apiKey != "" {
		req.SetAuthToken(c.apiKey)
	}
	logger.Debugf("[AI] 请求: provider=%s model=%s key=%s", c.id, c.model, maskKey(c.apiKey))
	resp, err := req.Post("/chat/completions")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		msg := strings.TrimSpace(apiErr.Error.Message)
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("status=%d: %s", resp.StatusCode(), msg)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("empty choices")
	}
	return result.Choices[0].Message.Content, nil
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
