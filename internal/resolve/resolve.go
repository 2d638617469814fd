// Package resolve maps citation provenance to a time-limited document
// URL. Resolution happens on demand when a citation is activated, never
// eagerly, and results must not be reused past their expiry.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/ragline/ragline/internal/evidence"
	"github.com/ragline/ragline/internal/log"
)

// Resolution failure sentinels. Check with errors.Is().
var (
	// ErrMalformedProvenance indicates the provenance record lacks the
	// fields needed to locate a document. Never retried.
	ErrMalformedProvenance = errors.New("malformed provenance")

	// ErrStoreUnavailable indicates the document store could not be
	// reached or denied access.
	ErrStoreUnavailable = errors.New("document store unavailable")

	// ErrNotFound indicates the referenced document no longer exists.
	ErrNotFound = errors.New("document not found")
)

// Resolution is a time-limited reference to the cited document. Callers
// must re-resolve after ExpiresAt rather than reuse the URL.
type Resolution struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// objectStore is the existence check the resolver needs. *s3.Client
// satisfies it.
type objectStore interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// presigner signs time-limited GET requests. *s3.PresignClient satisfies it.
type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config describes the backing document store.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3-compatible stores
	AccessKey string
	SecretKey string
	TTL       time.Duration
}

// Resolver issues presigned GET URLs for cited documents.
type Resolver struct {
	store   objectStore
	presign presigner
	bucket  string
	ttl     time.Duration
	logger  log.Logger
	now     func() time.Time
}

// New creates a Resolver over an S3 or S3-compatible bucket.
func New(cfg Config, logger log.Logger) *Resolver {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)
	return newWithClients(client, s3.NewPresignClient(client), cfg.Bucket, cfg.TTL, logger)
}

func newWithClients(store objectStore, presign presigner, bucket string, ttl time.Duration, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Resolver{
		store:   store,
		presign: presign,
		bucket:  bucket,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve returns a presigned URL for the document behind the given
// provenance. Only chunk provenance is resolvable: a row-set citation
// points at a generated query, not a stored document.
func (r *Resolver) Resolve(ctx context.Context, p evidence.Provenance) (Resolution, error) {
	if !p.IsChunk() {
		return Resolution{}, fmt.Errorf("%w: row-set evidence has no resolvable document", ErrMalformedProvenance)
	}
	if p.Location == "" {
		return Resolution{}, fmt.Errorf("%w: missing document location", ErrMalformedProvenance)
	}

	if _, err := r.store.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(p.Location),
	}); err != nil {
		if isNotFound(err) {
			return Resolution{}, fmt.Errorf("%w: %s", ErrNotFound, p.Location)
		}
		return Resolution{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// The validity window starts at signing time; stamping the expiry
	// afterwards would overshoot the URL's real lifetime.
	issued := r.now()

	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(p.Location),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: presigning: %v", ErrStoreUnavailable, err)
	}

	expires := issued.Add(r.ttl)
	r.logger.Debug("resolved citation",
		"document", p.DocumentID,
		"location", p.Location,
		"expires_at", expires,
	)
	return Resolution{URL: req.URL, ExpiresAt: expires}, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
