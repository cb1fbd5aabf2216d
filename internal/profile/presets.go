package profile

import "screencap/internal/domain"

// DefaultID is the preset selected on first launch.
const DefaultID = domain.ProfileMedium

// Builtin returns the four shipped presets in display order.
func Builtin() []domain.Profile {
	return []domain.Profile{
		{
			ID:          domain.ProfileLow,
			Label:       "Fast",
			Description: "Smallest files and the quickest MP4 conversion.",
			Capture: domain.CaptureSettings{
				Width:              1280,
				Height:             720,
				FrameRate:          30,
				VideoBitsPerSecond: 2_000_000,
			},
			Export: domain.ExportSettings{
				ScaleWidth:   1280,
				FPS:          30,
				CRF:          30,
				Preset:       "ultrafast",
				AudioBitrate: "96k",
				MaxDuration:  30,
			},
		},
		{
			ID:          domain.ProfileMedium,
			Label:       "Balanced",
			Description: "Balanced defaults for local MP4 export.",
			Capture: domain.CaptureSettings{
				Width:              1600,
				Height:             900,
				FrameRate:          30,
				VideoBitsPerSecond: 3_000_000,
			},
			Export: domain.ExportSettings{
				ScaleWidth:   1600,
				FPS:          30,
				CRF:          28,
				Preset:       "ultrafast",
				AudioBitrate: "128k",
				MaxDuration:  45,
			},
		},
		{
			ID:          domain.ProfileHigh,
			Label:       "High quality",
			Description: "Full HD; local conversion is slow, keep clips short.",
			Capture: domain.CaptureSettings{
				Width:              1920,
				Height:             1080,
				FrameRate:          30,
				VideoBitsPerSecond: 5_000_000,
			},
			Export: domain.ExportSettings{
				ScaleWidth:   1920,
				FPS:          30,
				CRF:          23,
				Preset:       "fast",
				AudioBitrate: "160k",
				MaxDuration:  60,
			},
		},
		{
			ID:          domain.ProfileServer,
			Label:       "Server",
			Description: "60 fps Full HD meant for a dedicated encoding host, not in-process conversion.",
			Capture: domain.CaptureSettings{
				Width:              1920,
				Height:             1080,
				FrameRate:          60,
				VideoBitsPerSecond: 8_000_000,
			},
			Export: domain.ExportSettings{
				ScaleWidth:   1920,
				FPS:          60,
				CRF:          20,
				Preset:       "medium",
				AudioBitrate: "192k",
				MaxDuration:  300,
			},
			ExternalOnly: true,
		},
	}
}
