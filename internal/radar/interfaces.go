package radar

import (
	"context"
	"io"
	"time"
)

// JobStore leases jobs to workers and records their outcome.
type JobStore interface {
	CreateRun(ctx context.Context, run Run, job Job) error
	// ClaimNext atomically moves the oldest claimable queued job to running.
	ClaimNext(ctx context.Context, now time.Time) (Job, bool, error)
	MarkJobSuccess(ctx context.Context, jobID string) error
	RequeueJob(ctx context.Context, jobID string, errText string) error
	// FailJob marks the job failed and propagates the failure onto its run.
	FailJob(ctx context.Context, job Job, errText string, now time.Time) error
	// ReclaimStale returns running jobs locked before cutoff to the queue.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int, error)
}

// RunStore reads and finalizes runs.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (Run, error)
	UpdateRun(ctx context.Context, runID string, update RunUpdate) error
}

// SourceStore resolves and disables sources.
type SourceStore interface {
	ListSources(ctx context.Context, query SourceQuery) ([]Source, error)
	DisableSources(ctx context.Context, ids []string) error
}

// RuleStore exposes the enabled rule snapshot.
type RuleStore interface {
	ListEnabledRules(ctx context.Context) ([]Rule, error)
}

// DomainStatStore reads rolling domain health.
type DomainStatStore interface {
	GetDomainStats(ctx context.Context, hostnames []string) (map[string]DomainStat, error)
}

// HealthWriter applies DomainStat and Source mutations as one atomic batch.
type HealthWriter interface {
	ApplyHealth(ctx context.Context, batch HealthBatch) error
}

// ItemStore persists fetched items with URL uniqueness.
type ItemStore interface {
	FindExistingItems(ctx context.Context, urls []string) (map[string]string, error)
	BulkInsertItems(ctx context.Context, items []FetchedItem) (int, error)
}

// Store is the full persistence contract required by the pipeline.
type Store interface {
	JobStore
	RunStore
	SourceStore
	RuleStore
	DomainStatStore
	HealthWriter
	ItemStore
	Ping(ctx context.Context) error
	Close()
}

// ClassifyInput carries the item attributes the classifier looks at.
type ClassifyInput struct {
	Title      string
	URL        string
	Snippet    string
	SourceName string
	SourceTags []string
}

// Classifier infers content type and topical signals. Implementations must be pure.
type Classifier interface {
	Classify(input ClassifyInput) ContentType
	DetectSignals(text string) []Signal
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Cache is a small TTL key-value cache owned by its caller.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique ids (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
