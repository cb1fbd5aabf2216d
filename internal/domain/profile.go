package domain

// ProfileID names one of the fixed recording presets.
type ProfileID string

const (
	ProfileLow    ProfileID = "low"
	ProfileMedium ProfileID = "medium"
	ProfileHigh   ProfileID = "high"
	ProfileServer ProfileID = "server"
)

// CaptureSettings describes what the display capture and recorder aim for.
type CaptureSettings struct {
	Width              int `json:"width"`
	Height             int `json:"height"`
	FrameRate          int `json:"frameRate"`
	VideoBitsPerSecond int `json:"videoBitsPerSecond"`
}

// ExportSettings describes the MP4 conversion parameters.
type ExportSettings struct {
	ScaleWidth   int    `json:"scaleWidth"` // height follows aspect
	FPS          int    `json:"fps"`
	CRF          int    `json:"crf"` // x264 quality, lower is better
	Preset       string `json:"preset"`
	AudioBitrate string `json:"audioBitrate"`
	MaxDuration  int    `json:"maxDuration"` // seconds
}

// Profile is a named bundle of capture and export parameters.
type Profile struct {
	ID          ProfileID       `json:"id"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Capture     CaptureSettings `json:"capture"`
	Export      ExportSettings  `json:"export"`
	// ExternalOnly marks presets too heavy for conversion on the recording host.
	ExternalOnly bool `json:"externalOnly"`
}
