package config

import "fmt"

// Validate checks all configuration values and fails fast on the first
// violation. Returned errors wrap the package sentinel errors so callers
// can match with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %.2f (must be 0.0-2.0)", ErrInvalidTemperature, c.Temperature)
	}

	if c.TopK < 1 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidTopK, c.TopK, MaxTopK)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: %.2f (must be 0.0-1.0)", ErrInvalidThreshold, c.ConfidenceThreshold)
	}
	if c.RetrievalTimeoutMs <= 0 {
		return fmt.Errorf("%w: retrieval_timeout_ms must be positive", ErrInvalidTimeout)
	}
	if c.GenerationTimeoutMs <= 0 {
		return fmt.Errorf("%w: generation_timeout_ms must be positive", ErrInvalidTimeout)
	}
	if c.MaxRetries < 0 || c.MaxRetries > 5 {
		return fmt.Errorf("%w: %d (must be 0-5)", ErrInvalidRetries, c.MaxRetries)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.SessionsEnabled() && c.SessionTTLMin <= 0 {
		return fmt.Errorf("%w: session_ttl_min must be positive", ErrInvalidSessionTTL)
	}

	if c.PresignTTLMin < 1 || c.PresignTTLMin > 60 {
		return fmt.Errorf("%w: %d (must be 1-60 minutes)", ErrInvalidPresignTTL, c.PresignTTLMin)
	}

	return nil
}

// ValidateResolver checks the document-store settings needed for citation
// resolution. Separate from Validate because the bucket is only required
// once a caller actually resolves a citation (serve mode), not for ask mode
// against unstructured-only corpora.
func (c *Config) ValidateResolver() error {
	if c.DocumentBucket == "" {
		return fmt.Errorf("%w: set document_bucket or RAGLINE_DOCUMENT_BUCKET", ErrMissingBucket)
	}
	return nil
}
