package profile

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"screencap/internal/domain"
)

// ErrUnknownProfile is returned when selecting an id outside the preset set.
var ErrUnknownProfile = errors.New("unknown profile")

var x264Presets = map[string]bool{
	"ultrafast": true,
	"superfast": true,
	"veryfast":  true,
	"faster":    true,
	"fast":      true,
	"medium":    true,
	"slow":      true,
	"slower":    true,
	"veryslow":  true,
}

var presetIDs = map[domain.ProfileID]bool{
	domain.ProfileLow:    true,
	domain.ProfileMedium: true,
	domain.ProfileHigh:   true,
	domain.ProfileServer: true,
}

// Registry holds the immutable presets and the single active selector.
type Registry struct {
	mu       sync.RWMutex
	profiles []domain.Profile
	index    map[domain.ProfileID]int
	active   domain.ProfileID
}

// NewRegistry validates presets and selects the given active id.
func NewRegistry(profiles []domain.Profile, active domain.ProfileID) (*Registry, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("profile registry: no presets")
	}

	r := &Registry{
		profiles: make([]domain.Profile, 0, len(profiles)),
		index:    make(map[domain.ProfileID]int, len(profiles)),
	}
	for _, p := range profiles {
		if !presetIDs[p.ID] {
			return nil, fmt.Errorf("profile registry: %w: %q", ErrUnknownProfile, p.ID)
		}
		if err := Validate(p); err != nil {
			return nil, err
		}
		if _, dup := r.index[p.ID]; dup {
			return nil, fmt.Errorf("profile registry: duplicate preset %q", p.ID)
		}
		r.index[p.ID] = len(r.profiles)
		r.profiles = append(r.profiles, p)
	}

	if active == "" {
		active = DefaultID
	}
	if _, ok := r.index[active]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, active)
	}
	r.active = active
	return r, nil
}

// Default builds a registry over the builtin presets with medium active.
func Default() *Registry {
	r, err := NewRegistry(Builtin(), DefaultID)
	if err != nil {
		panic(err)
	}
	return r
}

// Active returns the currently selected profile.
func (r *Registry) Active() domain.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profiles[r.index[r.active]]
}

// ActiveID returns the id of the currently selected profile.
func (r *Registry) ActiveID() domain.ProfileID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActive switches the selector. The previous selection is kept on error.
func (r *Registry) SetActive(id domain.ProfileID) error {
	id = domain.ProfileID(strings.ToLower(strings.TrimSpace(string(id))))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[id]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, id)
	}
	r.active = id
	return nil
}

// Get returns the preset with the given id.
func (r *Registry) Get(id domain.ProfileID) (domain.Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return domain.Profile{}, false
	}
	return r.profiles[i], true
}

// List returns a copy of all presets in display order.
func (r *Registry) List() []domain.Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Profile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Validate rejects presets the recorder or encoder could not honor.
func Validate(p domain.Profile) error {
	if strings.TrimSpace(string(p.ID)) == "" {
		return fmt.Errorf("profile: empty id")
	}
	c := p.Capture
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("profile %s: capture size %dx%d", p.ID, c.Width, c.Height)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("profile %s: capture frame rate %d", p.ID, c.FrameRate)
	}
	if c.VideoBitsPerSecond <= 0 {
		return fmt.Errorf("profile %s: video bitrate %d", p.ID, c.VideoBitsPerSecond)
	}

	e := p.Export
	if e.ScaleWidth <= 0 || e.FPS <= 0 {
		return fmt.Errorf("profile %s: export scale %d fps %d", p.ID, e.ScaleWidth, e.FPS)
	}
	if e.CRF < 0 || e.CRF > 51 {
		return fmt.Errorf("profile %s: crf %d outside 0..51", p.ID, e.CRF)
	}
	if !x264Presets[e.Preset] {
		return fmt.Errorf("profile %s: unknown x264 preset %q", p.ID, e.Preset)
	}
	if strings.TrimSpace(e.AudioBitrate) == "" {
		return fmt.Errorf("profile %s: empty audio bitrate", p.ID)
	}
	if e.MaxDuration <= 0 {
		return fmt.Errorf("profile %s: max duration %d", p.ID, e.MaxDuration)
	}
	return nil
}
