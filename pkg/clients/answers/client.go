package answers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ClientInterface is the remote answer-producing call consumed by the
// ask/answer protocol.
type ClientInterface interface {
	ProduceAnswer(ctx context.Context, req *AnswerRequest) (*AnswerResponse, error)
}

type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	HTTPClient    *http.Client
}

func DefaultConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Second,
	}
}

type ClientOption func(*Config)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Config) { c.BaseURL = baseURL }
}

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Config) { c.APIKey = apiKey }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Config) { c.HTTPClient = httpClient }
}

type Client struct {
	config     *Config
	httpClient *http.Client
}

func NewClient(options ...ClientOption) *Client {
	config := DefaultConfig()

	for _, option := range options {
		option(config)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}
}

// ProduceAnswer sends the query to the answer service and waits for the
// response.
func (c *Client) ProduceAnswer(ctx context.Context, req *AnswerRequest) (*AnswerResponse, error) {
	path := fmt.Sprintf("/v1/canvases/%s/answers", req.CanvasID)

	resp, err := c.doRequest(ctx, http.MethodPost, path, req)
	if err != nil {
		return nil, fmt.Errorf("failed to produce answer: %w", err)
	}

	var result AnswerResponse
	if err := c.handleResponse(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to process answer response: %w", err)
	}

	return &result, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyBytes []byte
	var requestBody io.Reader

	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		requestBody = bytes.NewBuffer(bodyBytes)
	}

	url := c.config.BaseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
			if bodyBytes != nil {
				requestBody = bytes.NewBuffer(bodyBytes)
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, requestBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			log.Error().
				Int("status_code", resp.StatusCode).
				Str("request_id", resp.Header.Get("X-Request-ID")).
				Msg("Answer service server error")

			resp.Body.Close()
			lastErr = &Error{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("server error: %d", resp.StatusCode),
			}
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.config.RetryAttempts, lastErr)
}

func (c *Client) handleResponse(resp *http.Response, result any) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errorResponse struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}

		message := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if json.Unmarshal(body, &errorResponse) == nil {
			if errorResponse.Error != "" {
				message = errorResponse.Error
			} else if errorResponse.Message != "" {
				message = errorResponse.Message
			}
		}

		return &Error{
			StatusCode: resp.StatusCode,
			Message:    message,
			Body:       string(body),
			RequestID:  resp.Header.Get("X-Request-ID"),
		}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
