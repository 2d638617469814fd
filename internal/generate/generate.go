// Package generate is the thin client in front of the generative model:
// it applies a timeout, retries transient transport failures with
// exponential backoff, and reports everything else as a typed failure.
// Answer quality is out of scope here; an empty but successful response
// is returned as-is.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/ragline/ragline/internal/compose"
	"github.com/ragline/ragline/internal/log"
)

// ErrGenerationFailed indicates the model could not produce an answer
// within the timeout and retry budget. Callers surface this as a terminal
// failure; no partial answer is fabricated.
var ErrGenerationFailed = errors.New("generation failed")

// ModelConfig carries the sampling parameters sent with every call.
type ModelConfig struct {
	Temperature float64
	MaxTokens   int
}

func (mc ModelConfig) common() *ai.GenerationCommonConfig {
	return &ai.GenerationCommonConfig{
		Temperature:     mc.Temperature,
		MaxOutputTokens: mc.MaxTokens,
	}
}

// RetryConfig bounds the retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups transient error substrings by category.
// Matched case-insensitively against err.Error().
//
// String matching is used because Genkit and the provider SDKs do not
// expose typed errors for transient failures.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},
	{"500", "502", "503", "504", "unavailable"},
	{"connection reset", "timeout", "temporary"},
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}

// caller performs one model invocation. The production caller goes through
// genkit; tests substitute a scripted one.
type caller func(ctx context.Context, prompt string) (string, error)

// Client sends composed prompts to the configured model.
type Client struct {
	call    caller
	timeout time.Duration
	retry   RetryConfig
	logger  log.Logger
}

// New creates a Client bound to the given genkit instance and model.
func New(g *genkit.Genkit, modelName string, model ModelConfig, timeout time.Duration, retry RetryConfig, logger log.Logger) *Client {
	call := func(ctx context.Context, prompt string) (string, error) {
		resp, err := genkit.Generate(ctx, g,
			ai.WithModelName(modelName),
			ai.WithConfig(model.common()),
			ai.WithPrompt(prompt),
		)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return newWithCaller(call, timeout, retry, logger)
}

func newWithCaller(call caller, timeout time.Duration, retry RetryConfig, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Client{call: call, timeout: timeout, retry: retry, logger: logger}
}

// Generate sends the prompt and returns the raw answer text. Transient
// transport failures are retried with exponential backoff up to the
// configured budget; validation-class failures are not retried. Every
// failure path returns an error wrapping ErrGenerationFailed.
func (c *Client) Generate(ctx context.Context, prompt compose.Prompt) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		text, err := c.call(ctx, prompt.Text)
		if err == nil {
			c.logger.Debug("generation complete",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
				"grounded", prompt.Grounded,
			)
			return text, nil
		}

		lastErr = err

		if !retryableError(err) {
			return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		if attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Debug("retrying generation",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: canceled during retry: %v", ErrGenerationFailed, ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retry.MaxInterval)
		}
	}

	return "", fmt.Errorf("%w: after %d retries (elapsed %v): %v",
		ErrGenerationFailed, c.retry.MaxRetries, time.Since(start), lastErr)
}
