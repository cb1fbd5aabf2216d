package transcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"screencap/internal/domain"
	"screencap/internal/jobs"
	"screencap/internal/profile"
)

// fakeRuntime replays canned log lines and keeps scratch files in memory.
type fakeRuntime struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
	lines   []string
	output  []byte
	execErr error
	// gate, when set, pauses Exec after the canned lines until closed.
	gate    chan struct{}
	started chan struct{}
}

func newFakeRuntime(lines ...string) *fakeRuntime {
	return &fakeRuntime{files: map[string][]byte{}, lines: lines, output: []byte("mp4-bytes")}
}

func (r *fakeRuntime) WriteFile(name string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[name] = data
	return nil
}

func (r *fakeRuntime) ReadFile(name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[name]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", name)
	}
	return data, nil
}

func (r *fakeRuntime) DeleteFile(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, name)
	r.deleted = append(r.deleted, name)
	return nil
}

func (r *fakeRuntime) Exec(_ context.Context, args []string, onLog func(string)) (CommandLog, error) {
	log := CommandLog{Command: "ffmpeg", Args: args}
	for _, line := range r.lines {
		onLog(line)
	}
	if r.started != nil {
		close(r.started)
	}
	if r.gate != nil {
		<-r.gate
	}
	if r.execErr != nil {
		log.ExitCode = 1
		return log, r.execErr
	}
	if r.output != nil {
		r.mu.Lock()
		r.files[args[len(args)-1]] = r.output
		r.mu.Unlock()
	}
	return log, nil
}

func (r *fakeRuntime) fileCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// recorder collects listener updates.
type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) listen(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) progress() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []float64
	for _, u := range r.updates {
		if !u.Final {
			out = append(out, u.Job.Progress)
		}
	}
	return out
}

func (r *recorder) final() (Update, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.updates {
		if u.Final {
			return u, true
		}
	}
	return Update{}, false
}

func newTestService(t *testing.T, load LoadFunc, rec *recorder) (*Service, *jobs.Manager) {
	t.Helper()
	manager := jobs.NewManager()
	registry := profile.Default()
	svc := NewService(manager, NewPipeline(NewLazyRuntime(load)), registry,
		WithListener(rec.listen),
		WithIDFunc(func() string { return "job-1" }),
	)
	return svc, manager
}

func staticLoad(rt Runtime) (LoadFunc, *int) {
	calls := 0
	return func(context.Context) (Runtime, error) {
		calls++
		return rt, nil
	}, &calls
}

func wait(t *testing.T, job *Job) (Output, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := job.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("timed out waiting for job")
	}
	return out, err
}

// TestFrameTimeExtractorHalfway checks the frame token against duration*fps.
func TestFrameTimeExtractorHalfway(t *testing.T) {
	e := NewFrameTimeExtractor(3, 30)
	pct, ok := e.Extract("frame=   45 fps=0.0 q=28.0 size=     256kB time=00:00:01.50 bitrate=1398.1kbits/s speed=2.9x")
	if !ok {
		t.Fatal("expected progress signal")
	}
	if pct != 50 {
		t.Fatalf("progress = %v, want 50", pct)
	}
}

// TestFrameTimeExtractorFallsBackToTime uses the timestamp when frame is unparseable.
func TestFrameTimeExtractorFallsBackToTime(t *testing.T) {
	e := NewFrameTimeExtractor(4, 30)
	pct, ok := e.Extract("frame=N/A fps=0.0 size=N/A time=00:00:01.00 bitrate=N/A")
	if !ok {
		t.Fatal("expected progress signal from time token")
	}
	if pct != 25 {
		t.Fatalf("progress = %v, want 25", pct)
	}
}

// TestFrameTimeExtractorIgnoresOtherLines skips lines without both tokens.
func TestFrameTimeExtractorIgnoresOtherLines(t *testing.T) {
	e := NewFrameTimeExtractor(3, 30)
	for _, line := range []string{
		"Input #0, matroska,webm, from 'input.webm':",
		"  Duration: N/A, start: 0.000000, bitrate: N/A",
		"frame=   10 fps=0.0 q=28.0",
		"size=  12kB time=00:00:01.00",
	} {
		if _, ok := e.Extract(line); ok {
			t.Fatalf("unexpected signal for %q", line)
		}
	}
}

// TestFrameTimeExtractorClamps checks overshoot and zero duration.
func TestFrameTimeExtractorClamps(t *testing.T) {
	e := NewFrameTimeExtractor(0, 30)
	if e.TotalFrames != 1 {
		t.Fatalf("total frames = %v, want 1", e.TotalFrames)
	}
	pct, _ := e.Extract("frame= 900 fps=60 time=00:00:30.00")
	if pct != 100 {
		t.Fatalf("progress = %v, want 100", pct)
	}
}

// TestParseClock converts ffmpeg timestamps.
func TestParseClock(t *testing.T) {
	got, ok := ParseClock("01:02:03.50")
	if !ok || got != 3723.5 {
		t.Fatalf("ParseClock = (%v, %v), want 3723.5", got, ok)
	}
	if _, ok := ParseClock("bogus"); ok {
		t.Fatal("expected parse failure")
	}
}

// TestBuildArgsUsesExportSettings verifies profile parameters reach ffmpeg.
func TestBuildArgsUsesExportSettings(t *testing.T) {
	high, _ := profile.Default().Get(domain.ProfileHigh)
	args := strings.Join(BuildArgs("in.webm", "out.mp4", high.Export), " ")
	for _, want := range []string{
		"-i in.webm",
		"-vf scale=1920:-2,fps=30",
		"-c:v libx264",
		"-preset fast",
		"-crf 23",
		"-b:a 160k",
		"-movflags +faststart",
		"-stats out.mp4",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("args %q missing %q", args, want)
		}
	}
}

// TestServiceSuccessReachesHundredAndResets checks the full job lifecycle.
func TestServiceSuccessReachesHundredAndResets(t *testing.T) {
	rt := newFakeRuntime(
		"frame=   30 fps=0.0 q=28.0 size=0kB time=00:00:01.00",
		"frame=   45 fps=0.0 q=28.0 size=0kB time=00:00:01.50",
		"frame=   20 fps=0.0 q=28.0 size=0kB time=00:00:00.66",
		"frame=   90 fps=0.0 q=28.0 size=0kB time=00:00:03.00",
	)
	load, _ := staticLoad(rt)
	rec := &recorder{}
	svc, manager := newTestService(t, load, rec)

	job, err := svc.Submit(context.Background(), Source{ArtifactID: "a1", Data: []byte("webm"), Duration: 3}, domain.FormatMP4)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	out, err := wait(t, job)
	if err != nil {
		t.Fatalf("job error: %v", err)
	}
	if string(out.Data) != "mp4-bytes" || out.MimeType != MimeMP4 {
		t.Fatalf("output = %+v", out)
	}

	progress := rec.progress()
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress regressed: %v", progress)
		}
	}
	final, ok := rec.final()
	if !ok || final.Job.Progress != 100 || final.Job.Status != domain.JobStatusSucceeded {
		t.Fatalf("final update = %+v, want succeeded at 100", final)
	}

	current := manager.Current()
	if current.Progress != 0 || current.Status != domain.JobStatusSucceeded {
		t.Fatalf("current = %+v, want succeeded reset to 0", current)
	}
	if manager.Slot().Held() {
		t.Fatal("slot should be released")
	}
	if rt.fileCount() != 0 {
		t.Fatalf("scratch entries left: %d", rt.fileCount())
	}
}

// TestServiceRejectsSecondSubmit verifies the single-job guard.
func TestServiceRejectsSecondSubmit(t *testing.T) {
	rt := newFakeRuntime("frame=   45 fps=0.0 q=28.0 size=0kB time=00:00:01.50")
	rt.gate = make(chan struct{})
	rt.started = make(chan struct{})
	load, _ := staticLoad(rt)
	rec := &recorder{}
	svc, manager := newTestService(t, load, rec)

	first, err := svc.Submit(context.Background(), Source{ArtifactID: "a1", Data: []byte("webm"), Duration: 3}, domain.FormatMP4)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-rt.started

	before := manager.Current()
	if _, err := svc.Submit(context.Background(), Source{ArtifactID: "a2", Data: []byte("webm"), Duration: 3}, domain.FormatMP4); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second submit error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}
	after := manager.Current()
	if after != before || after.Progress != 50 || after.ArtifactID != "a1" {
		t.Fatalf("first job changed: before=%+v after=%+v", before, after)
	}

	close(rt.gate)
	if _, err := wait(t, first); err != nil {
		t.Fatalf("first job error: %v", err)
	}
	if svc.Busy() {
		t.Fatal("service should be idle after completion")
	}
}

// TestServiceEncoderUnavailable checks load failures are not cached.
func TestServiceEncoderUnavailable(t *testing.T) {
	calls := 0
	rt := newFakeRuntime()
	load := func(context.Context) (Runtime, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("ffmpeg not found")
		}
		return rt, nil
	}
	rec := &recorder{}
	svc, manager := newTestService(t, load, rec)

	job, err := svc.Submit(context.Background(), Source{ArtifactID: "a1", Data: []byte("webm"), Duration: 1}, domain.FormatMP4)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = wait(t, job)
	if !errors.Is(err, ErrEncoderUnavailable) {
		t.Fatalf("job error = %v, want %v", err, ErrEncoderUnavailable)
	}
	var terr *Error
	if !errors.As(err, &terr) || terr.Stage != StageLoad || terr.Fallback != domain.FormatWebM {
		t.Fatalf("job error = %#v, want load stage error with webm fallback", err)
	}
	if rt.fileCount() != 0 || len(rt.deleted) != 0 {
		t.Fatal("load failure must not touch scratch storage")
	}
	if manager.Current().Status != domain.JobStatusFailed || manager.Slot().Held() {
		t.Fatalf("current = %+v, want failed and released", manager.Current())
	}

	job, err = svc.Submit(context.Background(), Source{ArtifactID: "a1", Data: []byte("webm"), Duration: 1}, domain.FormatMP4)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if _, err := wait(t, job); err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("load calls = %d, want 2", calls)
	}
}

// TestServiceCachesRuntime verifies the runtime loads once for many jobs.
func TestServiceCachesRuntime(t *testing.T) {
	rt := newFakeRuntime()
	load, calls := staticLoad(rt)
	svc, _ := newTestService(t, load, &recorder{})

	for i := 0; i < 3; i++ {
		job, err := svc.Submit(context.Background(), Source{ArtifactID: "a", Data: []byte("x"), Duration: 1}, domain.FormatMP4)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if _, err := wait(t, job); err != nil {
			t.Fatalf("job %d: %v", i, err)
		}
	}
	if *calls != 1 {
		t.Fatalf("load calls = %d, want 1", *calls)
	}
}

type closingRuntime struct {
	*fakeRuntime
	closed int
}

func (c *closingRuntime) Close() error {
	c.closed++
	return nil
}

// TestLazyRuntimeCloseForgetsRuntime closes the cached runtime once.
func TestLazyRuntimeCloseForgetsRuntime(t *testing.T) {
	rt := &closingRuntime{fakeRuntime: newFakeRuntime()}
	lazy := NewLazyRuntime(func(context.Context) (Runtime, error) { return rt, nil })

	if err := lazy.Close(); err != nil {
		t.Fatalf("close before load: %v", err)
	}
	if _, err := lazy.Get(context.Background()); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := lazy.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = lazy.Close()
	if rt.closed != 1 {
		t.Fatalf("closed = %d, want 1", rt.closed)
	}
	if lazy.Loaded() {
		t.Fatal("runtime still cached after close")
	}
}

// TestServiceEncodeFailureFallsBack checks failed conversions reset state.
func TestServiceEncodeFailureFallsBack(t *testing.T) {
	rt := newFakeRuntime("frame=   45 fps=0.0 q=28.0 size=0kB time=00:00:01.50")
	rt.execErr = errors.New("exit status 1")
	load, _ := staticLoad(rt)
	rec := &recorder{}
	svc, manager := newTestService(t, load, rec)

	job, err := svc.Submit(context.Background(), Source{ArtifactID: "a1", Data: []byte("webm"), Duration: 3}, domain.FormatMP4)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = wait(t, job)
	var terr *Error
	if !errors.As(err, &terr) || terr.Stage != StageEncode || terr.CommandLog.ExitCode != 1 {
		t.Fatalf("job error = %v, want encode stage error", err)
	}

	final, _ := rec.final()
	if final.Job.Status != domain.JobStatusFailed || final.Job.Progress != 50 {
		t.Fatalf("final = %+v, want failed at 50", final.Job)
	}
	if manager.Current().Progress != 0 || manager.Slot().Held() {
		t.Fatalf("current = %+v, want reset and released", manager.Current())
	}
}

// TestServiceEmptyOutputFails treats a zero-byte output as failure.
func TestServiceEmptyOutputFails(t *testing.T) {
	rt := newFakeRuntime()
	rt.output = []byte{}
	load, _ := staticLoad(rt)
	svc, _ := newTestService(t, load, &recorder{})

	job, err := svc.Submit(context.Background(), Source{ArtifactID: "a1", Data: []byte("webm"), Duration: 1}, domain.FormatMP4)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := wait(t, job); !errors.Is(err, ErrNoOutput) {
		t.Fatalf("job error = %v, want %v", err, ErrNoOutput)
	}
}

// TestServiceRejectsUnsupportedFormat keeps webm out of the encoder.
func TestServiceRejectsUnsupportedFormat(t *testing.T) {
	load, calls := staticLoad(newFakeRuntime())
	svc, manager := newTestService(t, load, &recorder{})
	if _, err := svc.Submit(context.Background(), Source{}, domain.FormatWebM); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("submit error = %v, want %v", err, ErrUnsupportedFormat)
	}
	if *calls != 0 || manager.Slot().Held() {
		t.Fatal("unsupported format must not load the runtime or take the slot")
	}
}

// TestServiceJobOutlivesCallerContext verifies there is no cancellation path.
func TestServiceJobOutlivesCallerContext(t *testing.T) {
	rt := newFakeRuntime()
	rt.gate = make(chan struct{})
	load, _ := staticLoad(rt)
	svc, _ := newTestService(t, load, &recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	job, err := svc.Submit(ctx, Source{ArtifactID: "a1", Data: []byte("webm"), Duration: 1}, domain.FormatMP4)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	cancel()
	close(rt.gate)
	if _, err := wait(t, job); err != nil {
		t.Fatalf("job error after caller cancel: %v", err)
	}
}
