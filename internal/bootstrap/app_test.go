package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"screencap/internal/artifact"
	"screencap/internal/capture"
	"screencap/internal/device"
	"screencap/internal/domain"
	"screencap/internal/export"
	"screencap/internal/jobs"
	"screencap/internal/transcode"
)

// fakeStore keeps settings in memory for App tests.
type fakeStore struct {
	mu       sync.Mutex
	settings domain.Settings
	saves    int
}

// Load returns the last saved settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

// Save replaces the stored settings.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	s.saves++
	return nil
}

func (s *fakeStore) saved() domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// fakeVideo is a display track that ends on Stop.
type fakeVideo struct {
	once sync.Once
	done chan struct{}
}

func (v *fakeVideo) ID() string                     { return "display-test" }
func (v *fakeVideo) Kind() device.Kind              { return device.KindVideo }
func (v *fakeVideo) Ended() <-chan struct{}         { return v.done }
func (v *fakeVideo) Settings() device.VideoSettings { return device.VideoSettings{Width: 1280, Height: 720, FrameRate: 30} }
func (v *fakeVideo) Stop() error                    { v.once.Do(func() { close(v.done) }); return nil }

// fakeDevices grants a fresh display per request and never a microphone.
type fakeDevices struct {
	displayErr error
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{}
}

// OpenDisplay returns a new fake display or the configured error.
func (d *fakeDevices) OpenDisplay(context.Context, device.DisplayRequest) (device.Display, error) {
	if d.displayErr != nil {
		return device.Display{}, d.displayErr
	}
	return device.Display{Video: &fakeVideo{done: make(chan struct{})}}, nil
}

// OpenMicrophone always fails as unavailable.
func (d *fakeDevices) OpenMicrophone(context.Context, device.MicrophoneRequest) (device.AudioTrack, error) {
	return nil, device.ErrUnavailable
}

// fakeEncoder emits one chunk on start and one on stop.
type fakeEncoder struct {
	mu      sync.Mutex
	onChunk func([]byte)
	errCh   chan error
}

func (e *fakeEncoder) Start(onChunk func([]byte)) error {
	e.mu.Lock()
	e.onChunk = onChunk
	e.mu.Unlock()
	onChunk([]byte("head"))
	return nil
}

func (e *fakeEncoder) Pause() error  { return nil }
func (e *fakeEncoder) Resume() error { return nil }

func (e *fakeEncoder) Stop(context.Context) error {
	e.mu.Lock()
	onChunk := e.onChunk
	e.mu.Unlock()
	if onChunk != nil {
		onChunk([]byte("tail"))
	}
	return nil
}

func (e *fakeEncoder) Err() <-chan error { return e.errCh }
func (e *fakeEncoder) MimeType() string  { return "video/webm" }

// fakeFactory builds a new fakeEncoder per recording.
type fakeFactory struct{}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{}
}

func (fakeFactory) NewEncoder(device.VideoTrack, device.AudioTrack, capture.EncoderOptions) (capture.Encoder, error) {
	return &fakeEncoder{errCh: make(chan error, 1)}, nil
}

// idleTicker never fires.
type idleTicker struct{}

func (idleTicker) C() <-chan time.Time { return nil }
func (idleTicker) Stop()               {}

// gatedRuntime produces an mp4 once release is closed.
type gatedRuntime struct {
	mu      sync.Mutex
	files   map[string][]byte
	release chan struct{}
}

func newGatedRuntime() *gatedRuntime {
	return &gatedRuntime{files: map[string][]byte{}, release: make(chan struct{})}
}

func (r *gatedRuntime) WriteFile(name string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[name] = data
	return nil
}

func (r *gatedRuntime) ReadFile(name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (r *gatedRuntime) DeleteFile(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, name)
	return nil
}

func (r *gatedRuntime) Exec(ctx context.Context, args []string, _ func(string)) (transcode.CommandLog, error) {
	select {
	case <-r.release:
	case <-ctx.Done():
		return transcode.CommandLog{}, ctx.Err()
	}
	if err := r.WriteFile(args[len(args)-1], []byte("mp4")); err != nil {
		return transcode.CommandLog{}, err
	}
	return transcode.CommandLog{Command: "ffmpeg", Args: args}, nil
}

// fakeGrabber returns a solid frame.
type fakeGrabber struct{}

func (fakeGrabber) Grab(context.Context, []byte, time.Duration) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 64, 36)), nil
}

type testOptions struct {
	runtime transcode.Runtime
	grabber bool
}

func newTestApp(t *testing.T, devices device.Devices, factory capture.EncoderFactory) (*App, *fakeStore) {
	return newTestAppWith(t, devices, factory, testOptions{})
}

func newTestAppWith(t *testing.T, devices device.Devices, factory capture.EncoderFactory, opts testOptions) (*App, *fakeStore) {
	t.Helper()
	store := &fakeStore{settings: domain.Settings{ExportDir: t.TempDir()}}
	deps := Deps{
		Store:     store,
		Devices:   devices,
		Encoders:  factory,
		NewTicker: func(time.Duration) capture.Ticker { return idleTicker{} },
		LoadRuntime: func(context.Context) (transcode.Runtime, error) {
			if opts.runtime == nil {
				return nil, errors.New("no runtime")
			}
			return opts.runtime, nil
		},
	}
	if opts.grabber {
		deps.Grabber = fakeGrabber{}
	}
	app, err := Assemble(deps)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app, store
}

func record(t *testing.T, app *App) *PendingRecording {
	t.Helper()
	snap, err := app.StartRecording()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if snap.State != domain.SessionRecording {
		t.Fatalf("state = %s, want recording", snap.State)
	}
	pending, err := app.StopRecording()
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if pending == nil {
		t.Fatal("expected a pending recording")
	}
	return pending
}

// TestRecordSaveAddsToLibrary checks the start, stop and save flow.
func TestRecordSaveAddsToLibrary(t *testing.T) {
	app, _ := newTestAppWith(t, newFakeDevices(), newFakeFactory(), testOptions{grabber: true})

	pending := record(t, app)
	if pending.Size != len("headtail") || pending.MimeType != "video/webm" {
		t.Fatalf("pending = %+v, want 8 bytes of video/webm", pending)
	}
	if data, _, ok := app.OpenBlob(pending.Ref); !ok || string(data) != "headtail" {
		t.Fatalf("blob = %q, %v, want headtail", data, ok)
	}

	summary, err := app.SaveRecording()
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !summary.HasThumb {
		t.Fatal("expected preview on saved recording")
	}
	if app.PendingRecording() != nil {
		t.Fatal("pending recording should be cleared after save")
	}
	list := app.ListRecordings()
	if len(list) != 1 || list[0].ID != summary.ID {
		t.Fatalf("library = %+v, want the saved recording", list)
	}
	if _, err := app.RecordingPreview(summary.ID); err != nil {
		t.Fatalf("preview: %v", err)
	}
	assertEventExists(t, app.JobEvents(0), jobs.SourceSession, jobs.EventTypeResult)
	assertEventExists(t, app.JobEvents(0), jobs.SourceLibrary, jobs.EventTypeResult)
}

// TestDiscardRevokesPendingReference checks discard releases the blob.
func TestDiscardRevokesPendingReference(t *testing.T) {
	app, _ := newTestApp(t, newFakeDevices(), newFakeFactory())

	pending := record(t, app)
	if err := app.DiscardRecording(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, _, ok := app.OpenBlob(pending.Ref); ok {
		t.Fatal("discarded reference should be revoked")
	}
	if err := app.DiscardRecording(); !errors.Is(err, ErrNoPendingRecording) {
		t.Fatalf("second discard error = %v, want %v", err, ErrNoPendingRecording)
	}
	if _, err := app.SaveRecording(); !errors.Is(err, ErrNoPendingRecording) {
		t.Fatalf("save error = %v, want %v", err, ErrNoPendingRecording)
	}
}

// TestNewRecordingReplacesUnsavedOne checks an unsaved recording is revoked when another finishes.
func TestNewRecordingReplacesUnsavedOne(t *testing.T) {
	app, _ := newTestApp(t, newFakeDevices(), newFakeFactory())

	first := record(t, app)
	second := record(t, app)
	if first.ID == second.ID {
		t.Fatal("expected distinct pending recordings")
	}
	if _, _, ok := app.OpenBlob(first.Ref); ok {
		t.Fatal("replaced reference should be revoked")
	}
	if got := app.PendingRecording(); got == nil || got.ID != second.ID {
		t.Fatalf("pending = %+v, want %s", got, second.ID)
	}
}

// TestDeleteRecordingIsIdempotent checks a second delete is a no-op.
func TestDeleteRecordingIsIdempotent(t *testing.T) {
	app, _ := newTestApp(t, newFakeDevices(), newFakeFactory())
	record(t, app)
	saved, err := app.SaveRecording()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if !app.DeleteRecording(saved.ID) {
		t.Fatal("first delete should report removal")
	}
	if app.DeleteRecording(saved.ID) {
		t.Fatal("second delete should be a no-op")
	}
	if got := app.Library.Blobs().Live(); got != 0 {
		t.Fatalf("live refs = %d, want 0", got)
	}
}

// TestStartFailurePublishesUserMessage checks acquisition errors reach the event stream.
func TestStartFailurePublishesUserMessage(t *testing.T) {
	devices := newFakeDevices()
	devices.displayErr = &device.AcquisitionError{Device: "display", Err: device.ErrPermissionDenied}
	app, _ := newTestApp(t, devices, newFakeFactory())

	snap, err := app.StartRecording()
	if !errors.Is(err, device.ErrPermissionDenied) {
		t.Fatalf("start error = %v, want permission denied", err)
	}
	if snap.State != domain.SessionFailed {
		t.Fatalf("state = %s, want failed", snap.State)
	}
	event := assertEventExists(t, app.JobEvents(0), jobs.SourceSession, jobs.EventTypeError)
	if event.Message != UserMessage(err) {
		t.Fatalf("message = %q, want %q", event.Message, UserMessage(err))
	}
	if event.Hint != "permissions" {
		t.Fatalf("hint = %q, want permissions", event.Hint)
	}
}

// TestExportWebMWritesFile checks webm export is written immediately.
func TestExportWebMWritesFile(t *testing.T) {
	app, _ := newTestApp(t, newFakeDevices(), newFakeFactory())
	record(t, app)
	saved, err := app.SaveRecording()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	resp, err := app.Export(saved.ID, "WebM")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if resp.JobID != "" || resp.Path == "" {
		t.Fatalf("response = %+v, want direct path", resp)
	}
	data, err := os.ReadFile(resp.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != "headtail" {
		t.Fatalf("export = %q, want headtail", data)
	}
}

// TestExportMP4RejectsSecondJob checks the single-job guard and the finished file.
func TestExportMP4RejectsSecondJob(t *testing.T) {
	rt := newGatedRuntime()
	app, store := newTestAppWith(t, newFakeDevices(), newFakeFactory(), testOptions{runtime: rt})
	record(t, app)
	saved, err := app.SaveRecording()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	first, err := app.Export(saved.ID, "mp4")
	if err != nil {
		t.Fatalf("first export: %v", err)
	}
	if first.JobID == "" {
		t.Fatalf("response = %+v, want a job id", first)
	}
	if _, err := app.Export(saved.ID, "mp4"); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second export error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}

	close(rt.release)
	event := waitForEvent(t, app, jobs.SourceJob, jobs.EventTypeResult)
	if event.JobID != first.JobID {
		t.Fatalf("result job = %s, want %s", event.JobID, first.JobID)
	}
	if filepath.Dir(event.Message) != store.saved().ExportDir {
		t.Fatalf("written path = %s, want inside %s", event.Message, store.saved().ExportDir)
	}
	if data, err := os.ReadFile(event.Message); err != nil || string(data) != "mp4" {
		t.Fatalf("mp4 = %q, %v, want mp4", data, err)
	}
	if got := app.CurrentJob().Status; got != domain.JobStatusSucceeded {
		t.Fatalf("job status = %s, want succeeded", got)
	}
	if app.Transcoder.Busy() {
		t.Fatal("job slot should be released")
	}
	if got := app.Library.Blobs().Live(); got != 1 {
		t.Fatalf("live blobs = %d, want 1 for the saved recording", got)
	}
	app.DeleteRecording(saved.ID)
	if got := app.Library.Blobs().Live(); got != 0 {
		t.Fatalf("live blobs after delete = %d, want 0", got)
	}
}

// TestExportMP4UnavailableRuntimeSuggestsWebM checks the encoder failure event carries the fallback hint.
func TestExportMP4UnavailableRuntimeSuggestsWebM(t *testing.T) {
	app, _ := newTestApp(t, newFakeDevices(), newFakeFactory())
	record(t, app)
	saved, err := app.SaveRecording()
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := app.Export(saved.ID, "mp4"); err != nil {
		t.Fatalf("export: %v", err)
	}
	event := waitForEvent(t, app, jobs.SourceJob, jobs.EventTypeError)
	if event.Hint != "webm" {
		t.Fatalf("hint = %q, want webm", event.Hint)
	}
}

// TestSelectProfilePersists checks profile changes are saved and unknown ids are rejected.
func TestSelectProfilePersists(t *testing.T) {
	app, store := newTestApp(t, newFakeDevices(), newFakeFactory())

	active, err := app.SelectProfile("low")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if active.ID != domain.ProfileLow || store.saved().ActiveProfile != domain.ProfileLow {
		t.Fatalf("active = %s saved = %s, want low", active.ID, store.saved().ActiveProfile)
	}

	if _, err := app.SelectProfile("ultra"); err == nil {
		t.Fatal("expected unknown profile error")
	}
	if got := app.ActiveProfile().ID; got != domain.ProfileLow {
		t.Fatalf("active after unknown = %s, want low", got)
	}
}

// TestUserMessage checks error to text mapping.
func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&device.AcquisitionError{Device: "microphone", Err: device.ErrUnavailable}, "The microphone is unavailable, recording continues without it."},
		{&device.AcquisitionError{Device: "display", Err: device.ErrNotSupported}, "Screen capture is not supported in this desktop session."},
		{&capture.TransitionError{From: domain.SessionRecording, Event: capture.EventStart}, "A recording is already in progress."},
		{&capture.TransitionError{From: domain.SessionIdle, Event: capture.EventPause}, "That action is not available right now."},
		{fmt.Errorf("wrap: %w", jobs.ErrJobAlreadyRunning), "Another conversion is running. Wait for it to finish."},
		{&transcode.Error{Stage: transcode.StageEncode, Message: "exit 1"}, "MP4 conversion failed while encoding. Download the WebM original instead."},
		{fmt.Errorf("%w: 61s > 60s", export.ErrExceedsMaxDuration), "This recording is too long to convert with the current profile. Download the WebM original instead."},
		{artifact.ErrNotFound, "That recording no longer exists."},
		{errors.New("plain"), "plain"},
	}
	for _, tc := range cases {
		if got := UserMessage(tc.err); got != tc.want {
			t.Fatalf("UserMessage(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

// waitForEvent polls the event history until a matching event appears.
func waitForEvent(t *testing.T, app *App, source jobs.EventSource, want jobs.EventType) jobs.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, event := range app.JobEvents(0) {
			if event.Source == source && event.Type == want {
				return event
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %s %s event", source, want)
	return jobs.Event{}
}

// assertEventExists verifies at least one event of the given source and type exists.
func assertEventExists(t *testing.T, events []jobs.Event, source jobs.EventSource, want jobs.EventType) jobs.Event {
	t.Helper()
	for _, event := range events {
		if event.Source == source && event.Type == want {
			return event
		}
	}
	t.Fatalf("event %s/%s not found", source, want)
	return jobs.Event{}
}
