package models

import "time"

// Detection is one person bounding box reported by the backend for a frame.
// Box is [x1, y1, x2, y2] in frame pixel coordinates.
type Detection struct {
	Box   [4]float64 `json:"box"`
	Score float64    `json:"score"`
}

type FrameDetections struct {
	FrameIdx   int         `json:"frame_idx"`
	Timestamp  float64     `json:"timestamp"`
	Filename   string      `json:"filename"`
	Detections []Detection `json:"detections"`
}

// ProcessingResult is the backend response to a process-video call.
type ProcessingResult struct {
	VideoID              string            `json:"video_id"`
	TotalFrames          int               `json:"total_frames"`
	FPS                  float64           `json:"fps"`
	FramesWithDetections []FrameDetections `json:"frames_with_detections"`
}

// Frame returns the processed frame with the given index.
func (p *ProcessingResult) Frame(frameIdx int) (FrameDetections, bool) {
	for _, f := range p.FramesWithDetections {
		if f.FrameIdx == frameIdx {
			return f, true
		}
	}
	return FrameDetections{}, false
}

type Video struct {
	LocalID          string            `json:"local_id"`
	Filename         string            `json:"filename"`
	SourceURL        string            `json:"source_url"`
	Size             int64             `json:"size"`
	ProcessingResult *ProcessingResult `json:"processing_result,omitempty"`
}

// Searchable reports whether the backend has processed the video.
func (v Video) Searchable() bool {
	return v.ProcessingResult != nil && v.ProcessingResult.VideoID != ""
}

// ServerID is the backend video id, empty until processed.
func (v Video) ServerID() string {
	if v.ProcessingResult == nil {
		return ""
	}
	return v.ProcessingResult.VideoID
}

type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
)

type Target struct {
	LocalID     string `json:"local_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url,omitempty"`
	BackendID   string `json:"backend_id,omitempty"`
}

// Kind derives the target type from its fields. A target with a non-empty
// image URL is an image target, anything else is a text target.
func (t Target) Kind() Kind {
	if t.ImageURL != "" {
		return KindImage
	}
	return KindText
}

// Payload is the data sent with the register call for the derived kind.
func (t Target) Payload() string {
	if t.Kind() == KindImage {
		return t.ImageURL
	}
	return t.Description
}

func (t Target) Registered() bool {
	return t.BackendID != ""
}

// TargetDraft carries the user supplied fields of a target before it gets a
// local id.
type TargetDraft struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// Match is one ranked frame returned by the backend for a (video, target) pair.
type Match struct {
	FrameIdx   int     `json:"frame_idx"`
	Similarity float64 `json:"similarity"`
	FramePath  string  `json:"frame_path"`
}

// SearchResponse is keyed by server video id, then server target id.
type SearchResponse map[string]map[string][]Match

type AddTargetRequest struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Name string `json:"name"`
}

type AddTargetResponse struct {
	TargetID string `json:"target_id"`
}

type SearchRequest struct {
	VideoIDs  []string `json:"video_ids"`
	TargetIDs []string `json:"target_ids"`
}

// RegistrationState tracks the asynchronous half of a video or target
// registration.
type RegistrationState string

const (
	StatePending   RegistrationState = "pending"
	StateReady     RegistrationState = "ready"
	StateFailed    RegistrationState = "failed"
	StateDiscarded RegistrationState = "discarded"
)

type Registration struct {
	LocalID    string            `json:"local_id"`
	State      RegistrationState `json:"state"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}
