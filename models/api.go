package models

// VideoView is the API representation of a video with its registration
// status.
type VideoView struct {
	Video
	Searchable   bool          `json:"searchable"`
	Registration *Registration `json:"registration,omitempty"`
}

type TargetView struct {
	Target
	Kind         Kind          `json:"kind"`
	Registration *Registration `json:"registration,omitempty"`
}

type UpdateTargetRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type SearchByLocalIDRequest struct {
	VideoIDs  []string `json:"video_ids"`
	TargetIDs []string `json:"target_ids"`
}

type MatchView struct {
	FrameIdx   int     `json:"frame_idx"`
	Similarity float64 `json:"similarity"`
	FramePath  string  `json:"frame_path"`
	FrameURL   string  `json:"frame_url"`
}

// PairResult is one (video, target) cell of the results view. Local ids and
// the target name are empty when the owning entity was deleted.
type PairResult struct {
	VideoID       string      `json:"video_id"`
	TargetID      string      `json:"target_id"`
	VideoLocalID  string      `json:"video_local_id,omitempty"`
	TargetLocalID string      `json:"target_local_id,omitempty"`
	TargetName    string      `json:"target_name,omitempty"`
	Orphaned      bool        `json:"orphaned"`
	Matches       []MatchView `json:"matches"`
}

type ResultsResponse struct {
	Results []PairResult `json:"results"`
	Total   int          `json:"total"`
}

type CropRequest struct {
	VideoID   string `json:"video_id"`
	FrameIdx  int    `json:"frame_idx"`
	Detection int    `json:"detection"`
	Name      string `json:"name"`
}
