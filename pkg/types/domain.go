package types

import "time"

// Model is immutable reference data for an LLM artifact, loaded once from the catalog.
type Model struct {
	// Globally unique identifier.
	// example: google/gemma-3n-e2b
	Name string `json:"name" yaml:"name" toml:"name" example:"google/gemma-3n-e2b"`
	// Inference backend tag.
	// example: llama
	Backend string `json:"backend" yaml:"backend" toml:"backend" example:"llama"`
	// Remote location for downloadable models.
	URL string `json:"url,omitempty" yaml:"url" toml:"url"`
	// Local path for preinstalled models. Exactly one of URL or Path is set.
	Path string `json:"path,omitempty" yaml:"path" toml:"path"`
	// Size estimate in bytes, used when the server omits Content-Length.
	// example: 1200000000
	SizeBytes int64 `json:"size_bytes,omitempty" yaml:"size_bytes" toml:"size_bytes" example:"1200000000"`
	// File extension of the artifact, including the dot.
	// example: .gguf
	Extension string `json:"extension" yaml:"extension" toml:"extension" example:".gguf"`
	// Descriptive tags.
	Tags []string `json:"tags,omitempty" yaml:"tags" toml:"tags"`
}

// Preinstalled reports whether the model ships as a local file rather than a download.
func (m Model) Preinstalled() bool { return m.URL == "" && m.Path != "" }

// ModelStatus is the durable download status of a model.
type ModelStatus string

const (
	StatusNotDownloaded ModelStatus = "not_downloaded"
	StatusDownloading   ModelStatus = "downloading"
	StatusDownloaded    ModelStatus = "downloaded"
	StatusError         ModelStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s ModelStatus) Valid() bool {
	switch s {
	case StatusNotDownloaded, StatusDownloading, StatusDownloaded, StatusError:
		return true
	}
	return false
}

// ModelState pairs a catalog model with its current status.
type ModelState struct {
	Model     Model       `json:"model"`
	Status    ModelStatus `json:"status"`
	LocalPath string      `json:"local_path,omitempty"`
	Progress  *Progress   `json:"progress,omitempty"`
}

// Progress is an ephemeral download sample. It is never persisted.
type Progress struct {
	Model string `json:"model"`
	// Fraction in [0,1]; exactly 1 on success.
	Fraction float64 `json:"fraction"`
	// Speed since the previous sample in megabits per second; nil on the first sample.
	SpeedMbps     *float64 `json:"speed_mbps"`
	BytesWritten  int64    `json:"bytes_written"`
	BytesExpected int64    `json:"bytes_expected"`
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Valid reports whether r is user or model.
func (r Role) Valid() bool { return r == RoleUser || r == RoleModel }

// Session is a named, ordered conversation thread.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is an immutable entry of a session's history.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	// Set on model replies only.
	ModelName        string `json:"model_name,omitempty"`
	GenerationTimeMs int64  `json:"generation_time_ms,omitempty"`
}
