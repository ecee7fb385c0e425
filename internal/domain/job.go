package domain

import "time"

// JobStatus enumerates creation job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Mode enumerates creation modes.
type Mode string

const (
	// ModeAuto derives analysis and script from the product listing.
	ModeAuto Mode = "auto"
	// ModeManual uses the caller-supplied script and style verbatim.
	ModeManual Mode = "manual"
)

// DecorationFlags gates the optional post-synthesis steps.
type DecorationFlags struct {
	Voice     bool `json:"voice"`
	Subtitles bool `json:"subtitles"`
	Watermark bool `json:"watermark"`
	Music     bool `json:"music"`
}

// Any reports whether at least one decoration is requested.
func (d DecorationFlags) Any() bool {
	return d.Voice || d.Subtitles || d.Watermark || d.Music
}

// CreationRequest is the immutable parameter snapshot captured when a job is
// accepted. Jobs never observe later edits to the originating listing.
type CreationRequest struct {
	Mode               Mode            `json:"mode"`
	ProductName        string          `json:"product_name"`
	ProductDescription string          `json:"product_description,omitempty"`
	Script             string          `json:"script,omitempty"`
	Style              string          `json:"style,omitempty"`
	AspectRatio        string          `json:"aspect_ratio,omitempty"`
	DurationSeconds    int             `json:"duration_seconds,omitempty"`
	Locale             string          `json:"locale,omitempty"`
	Voice              string          `json:"voice,omitempty"`
	VideoProvider      string          `json:"video_provider,omitempty"`
	VoiceProvider      string          `json:"voice_provider,omitempty"`
	ScriptProvider     string          `json:"script_provider,omitempty"`
	ReferenceURLs      []string        `json:"reference_urls,omitempty"`
	ReferenceKeys      []string        `json:"reference_keys,omitempty"`
	Decorations        DecorationFlags `json:"decorations"`
}

// Job tracks one creation request end to end. A single pipeline task owns all
// mutations for a given id; terminal states are immutable.
type Job struct {
	ID          string
	Owner       string
	Request     CreationRequest
	Status      JobStatus
	CurrentStep string
	Progress    int
	Message     string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReferenceAsset is one resolved reference image available to generators.
type ReferenceAsset struct {
	Name      string
	MIME      string
	Data      []byte
	SourceURL string
}

// GenerationRequest is the value object handed to provider gateways.
// Immutable once constructed.
type GenerationRequest struct {
	JobID           string
	Script          string
	References      []ReferenceAsset
	DurationSeconds int
	AspectRatio     string
	Style           string
	Locale          string
	Voice           string
}

// Artifact is a terminal provider result: produced bytes plus metadata.
// Providers never return partial artifacts.
type Artifact struct {
	Data            []byte
	MIME            string
	DurationSeconds int
	Width           int
	Height          int
	Provider        string
	CostEstimate    float64
}
