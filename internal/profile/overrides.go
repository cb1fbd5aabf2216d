package profile

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"screencap/internal/domain"
)

// override lists the tunable fields of one preset. Pointers distinguish
// "not set" from zero.
type override struct {
	Capture struct {
		Width              *int `toml:"width"`
		Height             *int `toml:"height"`
		FrameRate          *int `toml:"frame_rate"`
		VideoBitsPerSecond *int `toml:"video_bits_per_second"`
	} `toml:"capture"`
	Export struct {
		ScaleWidth   *int    `toml:"scale_width"`
		FPS          *int    `toml:"fps"`
		CRF          *int    `toml:"crf"`
		Preset       *string `toml:"preset"`
		AudioBitrate *string `toml:"audio_bitrate"`
		MaxDuration  *int    `toml:"max_duration"`
	} `toml:"export"`
}

// LoadOverrides applies the TOML file at path on top of presets. A missing
// file returns the presets unchanged.
//
//	[low.export]
//	crf = 26
//	preset = "veryfast"
func LoadOverrides(path string, presets []domain.Profile) ([]domain.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return presets, nil
		}
		return nil, fmt.Errorf("read profile overrides: %w", err)
	}
	return ApplyOverrides(data, presets)
}

// ApplyOverrides decodes TOML overrides and returns adjusted copies of presets.
func ApplyOverrides(data []byte, presets []domain.Profile) ([]domain.Profile, error) {
	var file map[string]override
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profile overrides: %w", err)
	}

	out := make([]domain.Profile, len(presets))
	copy(out, presets)
	index := make(map[domain.ProfileID]int, len(out))
	for i, p := range out {
		index[p.ID] = i
	}

	keys := make([]string, 0, len(file))
	for k := range file {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		id := domain.ProfileID(strings.ToLower(strings.TrimSpace(key)))
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("profile overrides: %w: %q", ErrUnknownProfile, key)
		}
		applyOverride(&out[i], file[key])
		if err := Validate(out[i]); err != nil {
			return nil, fmt.Errorf("profile overrides: %w", err)
		}
	}
	return out, nil
}

func applyOverride(p *domain.Profile, o override) {
	setInt(&p.Capture.Width, o.Capture.Width)
	setInt(&p.Capture.Height, o.Capture.Height)
	setInt(&p.Capture.FrameRate, o.Capture.FrameRate)
	setInt(&p.Capture.VideoBitsPerSecond, o.Capture.VideoBitsPerSecond)

	setInt(&p.Export.ScaleWidth, o.Export.ScaleWidth)
	setInt(&p.Export.FPS, o.Export.FPS)
	setInt(&p.Export.CRF, o.Export.CRF)
	setInt(&p.Export.MaxDuration, o.Export.MaxDuration)
	if o.Export.Preset != nil {
		p.Export.Preset = strings.TrimSpace(*o.Export.Preset)
	}
	if o.Export.AudioBitrate != nil {
		p.Export.AudioBitrate = strings.TrimSpace(*o.Export.AudioBitrate)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
