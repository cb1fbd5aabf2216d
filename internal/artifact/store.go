// Package artifact holds finished recordings in memory for the lifetime of
// the process.
package artifact

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown artifact ids.
	ErrNotFound = errors.New("artifact not found")
	// ErrEmptyData is returned when saving a recording without bytes.
	ErrEmptyData = errors.New("artifact data is empty")
)

// TitleLayout formats recording titles from their creation time.
const TitleLayout = "2006-01-02 15:04:05"

// Artifact is a completed recording. It is immutable after creation.
type Artifact struct {
	ID        string    `json:"id"`
	Ref       string    `json:"ref"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Duration  int       `json:"duration"`
	MimeType  string    `json:"mimeType"`
	Size      int       `json:"size"`
	Preview   []byte    `json:"preview,omitempty"`
	Data      []byte    `json:"-"`
}

// SaveOption customizes a saved artifact.
type SaveOption func(*Artifact)

// WithPreview attaches a preview image.
func WithPreview(jpeg []byte) SaveOption {
	return func(a *Artifact) { a.Preview = jpeg }
}

// WithRef reuses an already registered reference instead of a new one.
func WithRef(ref string) SaveOption {
	return func(a *Artifact) { a.Ref = ref }
}

// Store is the ordered in-memory recording library, newest first.
type Store struct {
	mu    sync.RWMutex
	blobs *BlobRegistry
	items []Artifact
	now   func() time.Time
}

// NewStore creates an empty store backed by blobs.
func NewStore(blobs *BlobRegistry) *Store {
	if blobs == nil {
		blobs = NewBlobRegistry()
	}
	return &Store{blobs: blobs, now: time.Now}
}

// Blobs returns the registry holding artifact bytes.
func (s *Store) Blobs() *BlobRegistry {
	return s.blobs
}

// Save assigns id, title and creation time and prepends the artifact.
func (s *Store) Save(data []byte, duration int, mimeType string, opts ...SaveOption) (Artifact, error) {
	if len(data) == 0 {
		return Artifact{}, ErrEmptyData
	}
	if duration < 0 {
		duration = 0
	}

	created := s.now()
	a := Artifact{
		ID:        uuid.NewString(),
		Title:     "Recording " + created.Format(TitleLayout),
		CreatedAt: created,
		Duration:  duration,
		MimeType:  mimeType,
		Size:      len(data),
		Data:      data,
	}
	for _, opt := range opts {
		opt(&a)
	}
	if a.Ref == "" {
		a.Ref = s.blobs.Register(data, mimeType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]Artifact{a}, s.items...)
	return a, nil
}

// Delete removes the artifact and revokes its reference. A second call for
// the same id is a no-op returning false.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.items[idx]
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	s.mu.Unlock()

	s.blobs.Revoke(removed.Ref)
	return true
}

// Get returns one artifact.
func (s *Store) Get(id string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.items[idx], nil
}

// List returns all artifacts newest first.
func (s *Store) List() []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Artifact, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of stored artifacts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// TotalBytes sums the stored recording sizes.
func (s *Store) TotalBytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, a := range s.items {
		total += a.Size
	}
	return total
}

// Close revokes every reference. Used at shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.mu.Unlock()

	for _, a := range items {
		s.blobs.Revoke(a.Ref)
	}
}

func (s *Store) indexOf(id string) int {
	for i, a := range s.items {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Summary is the library row shown to users.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	Duration  string    `json:"duration"`
	Size      string    `json:"size"`
	Filename  string    `json:"filename"`
	Ref       string    `json:"ref"`
	HasThumb  bool      `json:"hasPreview"`
}

// Summarize renders the display fields of a.
func Summarize(a Artifact) Summary {
	return Summary{
		ID:        a.ID,
		Title:     a.Title,
		CreatedAt: a.CreatedAt,
		Duration:  FormatDuration(a.Duration),
		Size:      humanize.Bytes(uint64(a.Size)),
		Filename:  Filename(a.Title, "webm"),
		Ref:       a.Ref,
		HasThumb:  len(a.Preview) > 0,
	}
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Filename builds a download name from a title, replacing ':' and '/'.
func Filename(title, ext string) string {
	name := strings.NewReplacer(":", "-", "/", "-").Replace(title)
	return name + "." + strings.TrimPrefix(ext, ".")
}
