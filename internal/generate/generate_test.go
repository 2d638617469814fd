package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ragline/ragline/internal/compose"
)

func fastRetry(max int) RetryConfig {
	return RetryConfig{
		MaxRetries:      max,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestGenerate_Success(t *testing.T) {
	c := newWithCaller(func(_ context.Context, prompt string) (string, error) {
		if prompt != "p" {
			t.Errorf("prompt = %q", prompt)
		}
		return "answer [e0]", nil
	}, time.Second, fastRetry(3), nil)

	got, err := c.Generate(context.Background(), compose.Prompt{Text: "p", Grounded: true})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got != "answer [e0]" {
		t.Errorf("answer = %q", got)
	}
}

func TestGenerate_EmptyAnswerIsNotError(t *testing.T) {
	c := newWithCaller(func(context.Context, string) (string, error) {
		return "", nil
	}, time.Second, fastRetry(3), nil)

	got, err := c.Generate(context.Background(), compose.Prompt{Text: "p"})
	if err != nil {
		t.Fatalf("Generate() error: %v, empty answer is not a transport failure", err)
	}
	if got != "" {
		t.Errorf("answer = %q, want empty", got)
	}
}

func TestGenerate_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	c := newWithCaller(func(context.Context, string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("status 503 service unavailable")
		}
		return "ok", nil
	}, time.Second, fastRetry(3), nil)

	got, err := c.Generate(context.Background(), compose.Prompt{Text: "p"})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestGenerate_DoesNotRetryValidationFailures(t *testing.T) {
	calls := 0
	c := newWithCaller(func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("invalid model name")
	}, time.Second, fastRetry(3), nil)

	_, err := c.Generate(context.Background(), compose.Prompt{Text: "p"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("error = %v, want ErrGenerationFailed", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on non-transient errors)", calls)
	}
}

func TestGenerate_ExhaustedRetriesIsTypedFailure(t *testing.T) {
	calls := 0
	c := newWithCaller(func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("rate limit exceeded")
	}, time.Second, fastRetry(2), nil)

	_, err := c.Generate(context.Background(), compose.Prompt{Text: "p"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("error = %v, want ErrGenerationFailed", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", calls)
	}
}

func TestGenerate_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newWithCaller(func(context.Context, string) (string, error) {
		cancel()
		return "", errors.New("connection reset by peer")
	}, 0, RetryConfig{MaxRetries: 5, InitialInterval: time.Minute, MaxInterval: time.Minute}, nil)

	start := time.Now()
	_, err := c.Generate(ctx, compose.Prompt{Text: "p"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("error = %v, want ErrGenerationFailed", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("cancellation did not interrupt the backoff wait")
	}
}

func TestModelConfig_ReachesModelCall(t *testing.T) {
	mc := ModelConfig{Temperature: 0.4, MaxTokens: 2048}

	got := mc.common()
	if got.Temperature != 0.4 {
		t.Errorf("Temperature = %v, want 0.4", got.Temperature)
	}
	if got.MaxOutputTokens != 2048 {
		t.Errorf("MaxOutputTokens = %d, want 2048", got.MaxOutputTokens)
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("Rate Limit hit"), true},
		{errors.New("upstream 502 bad gateway"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("model not found"), false},
		{errors.New("prompt blocked by safety filter"), false},
	}
	for _, tt := range tests {
		if got := retryableError(tt.err); got != tt.want {
			t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
