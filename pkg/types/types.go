// Package types defines the persistent domain model shared by every CEE
// component: endpoint descriptors, extraction tasks, content blobs, and
// request log entries.
package types

import "time"

// Granularity is the time-bucket width an endpoint is extracted at.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

// Endpoint is an immutable descriptor for one PNCP API surface, loaded
// from the endpoint catalog.
type Endpoint struct {
	Name           string      `yaml:"name" json:"name"`
	PathTemplate   string      `yaml:"path" json:"path_template"`
	Active         bool        `yaml:"active" json:"active"`
	Granularity    Granularity `yaml:"granularity" json:"granularity"`
	PageSize       int         `yaml:"page_size" json:"page_size"`
	PageSizeMin    int         `yaml:"page_size_min" json:"page_size_min"`
	PageSizeMax    int         `yaml:"page_size_max" json:"page_size_max"`
	DateParamNames [2]string   `yaml:"date_params" json:"date_param_names"`
	Modalities     []int       `yaml:"modalities,omitempty" json:"modalities,omitempty"`
	Category       string      `yaml:"category,omitempty" json:"category,omitempty"`
}

// TaskStatus is a Task's position in the extraction state machine.
type TaskStatus string

const (
	TaskPending     TaskStatus = "PENDING"
	TaskDiscovering TaskStatus = "DISCOVERING"
	TaskFetching    TaskStatus = "FETCHING"
	TaskPartial     TaskStatus = "PARTIAL"
	TaskComplete    TaskStatus = "COMPLETE"
	TaskFailed      TaskStatus = "FAILED"
)

// Task is one unit of extraction work: an endpoint, a time bucket, and an
// optional modality. TaskID is a pure function of those three fields.
type Task struct {
	TaskID          string     `json:"task_id"`
	EndpointName    string     `json:"endpoint_name"`
	DataDate        time.Time  `json:"data_date"`
	Modality        *int       `json:"modality,omitempty"`
	Status          TaskStatus `json:"status"`
	TotalPages      *int       `json:"total_pages,omitempty"`
	TotalRecords    *int       `json:"total_records,omitempty"`
	MissingPages    []int      `json:"missing_pages"`
	PlanFingerprint string     `json:"plan_fingerprint"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ContentBlob is a content-addressed payload row. ContentID is a
// deterministic name-hash over a namespace and ContentSHA256; byte-identical
// payloads always resolve to the same ContentID.
type ContentBlob struct {
	ContentID      string    `json:"content_id"`
	Payload        []byte    `json:"payload"`
	ContentSHA256  string    `json:"content_sha256"`
	ByteSize       int64     `json:"byte_size"`
	ReferenceCount int       `json:"reference_count"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// RequestLogEntry is a metadata row for one HTTP request, linked to a
// ContentBlob when the request succeeded.
type RequestLogEntry struct {
	RequestID          string            `json:"request_id"`
	EndpointName       string            `json:"endpoint_name"`
	EndpointURL        string            `json:"endpoint_url"`
	Modality           *int              `json:"modality,omitempty"`
	RequestParameters  map[string]string `json:"request_parameters"`
	ResponseCode       int               `json:"response_code"`
	ResponseHeaders    map[string]string `json:"response_headers"`
	DataDate           time.Time         `json:"data_date"`
	RunID              string            `json:"run_id"`
	TotalRecords       *int              `json:"total_records,omitempty"`
	TotalPages         *int              `json:"total_pages,omitempty"`
	CurrentPage        int               `json:"current_page"`
	PageSize           int               `json:"page_size"`
	ContentID          string            `json:"content_id,omitempty"`
	ExtractedAt        time.Time         `json:"extracted_at"`
}

// CircuitState is one of a per-endpoint circuit breaker's three states.
type CircuitState string

const (
	CircuitClosed   CircuitState = "CLOSED"
	CircuitOpen     CircuitState = "OPEN"
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// RunPhase is the Coordinator's top-level state machine position.
type RunPhase string

const (
	PhaseInit        RunPhase = "INIT"
	PhasePlanned     RunPhase = "PLANNED"
	PhaseDiscovered  RunPhase = "DISCOVERED"
	PhaseExecuted    RunPhase = "EXECUTED"
	PhaseReconciled  RunPhase = "RECONCILED"
	PhaseDone        RunPhase = "DONE"
	PhaseCancelled   RunPhase = "CANCELLED"
)

// FetchResult is what the HTTP Client returns for one request, regardless
// of outcome; the Writer persists it unconditionally.
type FetchResult struct {
	TaskID       string
	EndpointName string
	DataDate     time.Time
	Modality     *int
	Page         int
	PageSize     int
	RunID        string
	URL          string
	StatusCode   int
	Headers      map[string]string
	Body         []byte
	Elapsed      time.Duration
	Err          error
	TotalRecords *int
	TotalPages   *int
}
