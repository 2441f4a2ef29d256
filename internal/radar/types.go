// Package radar defines core types shared across subsystems.
package radar

import (
	"time"
)

// JobStatus represents the lifecycle state of a leasable job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// RunStatus represents the lifecycle state of a fetch run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// Job is the leasable unit of work that executes one Run.
type Job struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Run is one complete crawl-and-rank execution.
type Run struct {
	ID          string     `json:"id"`
	Params      RunParams  `json:"params"`
	Status      RunStatus  `json:"status"`
	Result      *RunResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	DurationMs  int64      `json:"duration_ms"`
	RequestedAt time.Time  `json:"requested_at"`
}

// RunUpdate carries the write-once completion fields of a Run.
type RunUpdate struct {
	Status     RunStatus
	Result     *RunResult
	Error      string
	DurationMs int64
}

// RunResult is persisted on the Run once the orchestrator finishes.
type RunResult struct {
	Sources     []SourceReport `json:"sources"`
	SeenItemIDs []string       `json:"seenItemIds"`
	Counts      RunCounts      `json:"counts"`
}

// RunCounts aggregates per-run totals.
type RunCounts struct {
	TotalFetched      int `json:"totalFetched"`
	TotalStored       int `json:"totalStored"`
	SourceSuccess     int `json:"sourceSuccess"`
	SourceNotModified int `json:"sourceNotModified"`
	SourceFailures    int `json:"sourceFailures"`
}

// SourceReport records the outcome of fetching one source during a run.
type SourceReport struct {
	SourceID                 string    `json:"sourceId"`
	Name                     string    `json:"name"`
	Hostname                 string    `json:"hostname"`
	Status                   int       `json:"status"`
	FetchedCount             int       `json:"fetchedCount"`
	LatencyMs                int64     `json:"latencyMs"`
	DomainConcurrencyApplied int       `json:"domainConcurrencyApplied"`
	Error                    string    `json:"error,omitempty"`
	ErrorKind                ErrorKind `json:"errorKind,omitempty"`
	ETag                     string    `json:"-"`
	LastModified             string    `json:"-"`
	FinalURL                 string    `json:"finalUrl,omitempty"`
	UsedHTMLFallback         bool      `json:"usedHtmlFallback,omitempty"`
}

// OK reports whether the source answered with fresh or unchanged content.
func (r SourceReport) OK() bool {
	return r.ErrorKind == "" && (r.Status == 200 || r.Status == 304)
}

// Source is one external content origin with health and config state.
type Source struct {
	ID                  string     `json:"id"`
	Key                 string     `json:"key"`
	Name                string     `json:"name"`
	CategoryDefault     Category   `json:"categoryDefault"`
	Locale              string     `json:"locale"`
	Tags                []string   `json:"tags"`
	Weight              float64    `json:"weight"`
	Enabled             bool       `json:"enabled"`
	ETag                string     `json:"etag,omitempty"`
	LastModified        string     `json:"lastModified,omitempty"`
	LastFetchedAt       *time.Time `json:"lastFetchedAt,omitempty"`
	LastStatus          *int       `json:"lastStatus,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
}

// SourceQuery selects candidate sources; the first populated selector wins.
type SourceQuery struct {
	IDs           []string
	PresetID      string
	DefaultPreset bool
	AllEnabled    bool
}

// SourceUpdate is the post-fetch mutation applied to a Source row.
type SourceUpdate struct {
	SourceID  string
	FetchedAt time.Time
	// Status is nil when the fetch never produced an HTTP status.
	Status       *int
	Error        string
	Success      bool
	ETag         string
	LastModified string
	// DisableAt disables the source once its failure count reaches this value; zero disables never.
	DisableAt int
}

// RuleType selects which item attribute a rule matches against.
type RuleType string

// Rule types.
const (
	RuleTypeKeyword RuleType = "keyword"
	RuleTypeDomain  RuleType = "domain"
	RuleTypeSource  RuleType = "source"
)

// RuleAction is applied when a rule matches.
type RuleAction string

// Rule actions.
const (
	RuleActionMute  RuleAction = "mute"
	RuleActionBoost RuleAction = "boost"
)

// Rule is a user-defined mute or boost filter.
type Rule struct {
	ID      string     `json:"id"`
	Type    RuleType   `json:"type"`
	Pattern string     `json:"pattern"`
	Action  RuleAction `json:"action"`
	Weight  float64    `json:"weight"`
	Enabled bool       `json:"enabled"`
}

// DomainSample is one fetch outcome recorded against a hostname.
type DomainSample struct {
	OK        bool      `json:"ok"`
	LatencyMs int64     `json:"latencyMs"`
	Status    int       `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

// DomainStat holds rolling health statistics keyed by hostname.
type DomainStat struct {
	Hostname            string         `json:"hostname"`
	WindowSize          int            `json:"windowSize"`
	Samples             []DomainSample `json:"samples"`
	AvgLatencyMs        int64          `json:"avgLatencyMs"`
	FailRate            float64        `json:"failRate"`
	ConsecutiveFailures int            `json:"consecutiveFailures"`
	LastUpdatedAt       time.Time      `json:"lastUpdatedAt"`
}

// HealthBatch groups the DomainStat and Source mutations produced by one run.
type HealthBatch struct {
	Stats   []DomainStat
	Sources []SourceUpdate
}

// FetchedItem is a ranked, classified item stored after deduplication.
type FetchedItem struct {
	ID              string         `json:"id"`
	RunID           string         `json:"runId"`
	Category        Category       `json:"category"`
	SourceID        string         `json:"sourceId,omitempty"`
	Title           string         `json:"title"`
	URL             string         `json:"url"`
	PublishedAt     time.Time      `json:"publishedAt"`
	Snippet         string         `json:"snippet,omitempty"`
	ContentTypeHint ContentType    `json:"contentTypeHint,omitempty"`
	Signals         []Signal       `json:"signals"`
	Score           float64        `json:"score"`
	Raw             map[string]any `json:"raw,omitempty"`
}

// Preset groups sources under a name; at most one preset is the default.
type Preset struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	IsDefault bool     `json:"isDefault"`
	SourceIDs []string `json:"sourceIds"`
}
