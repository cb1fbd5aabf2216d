package bootstrap

import (
	"screencap/internal/capture"
	"screencap/internal/domain"
	"screencap/internal/jobs"
	"screencap/internal/transcode"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// Wails event names pushed to the frontend.
const (
	sessionEventName = "session:event"
	jobEventName     = "job:event"
	libraryEventName = "library:event"
)

// onSession maps capture notifications onto metrics and UI events.
func (a *App) onSession(n capture.Notification) {
	event := jobs.Event{
		Source:  jobs.SourceSession,
		Status:  string(n.State),
		Elapsed: n.Elapsed,
	}

	switch n.Kind {
	case capture.NotifyState:
		if n.State == domain.SessionAcquiring {
			a.observer.SessionStarted()
		}
		event.Type = jobs.EventTypeStatus
	case capture.NotifyTick:
		event.Type = jobs.EventTypeTick
	case capture.NotifyWarning:
		a.observer.AcquisitionFailed(n.Err)
		event.Type = jobs.EventTypeWarning
		event.Message = UserMessage(n.Err)
	case capture.NotifyResult:
		if n.Result == nil {
			return
		}
		a.observer.SessionFinished(n.Result.Duration)
		p := a.holdPending(*n.Result)
		event.Type = jobs.EventTypeResult
		event.Message = "Recording ready"
		event.ArtifactID = p.ID
	case capture.NotifyError:
		a.observer.SessionFailed(n.Err)
		event.Type = jobs.EventTypeError
		event.Message = UserMessage(n.Err)
		event.Hint = Hint(n.Err)
	default:
		return
	}
	a.publishEvent(event)
}

// onJob maps transcode updates onto metrics and UI events.
func (a *App) onJob(u transcode.Update) {
	a.observer.JobUpdated(u.Job, u.Final)

	event := jobs.Event{
		Source:     jobs.SourceJob,
		JobID:      u.Job.ID,
		ArtifactID: u.Job.ArtifactID,
		Status:     string(u.Job.Status),
		Progress:   u.Job.Progress,
	}
	switch {
	case !u.Final:
		event.Type = jobs.EventTypeProgress
	case u.Err != nil:
		event.Type = jobs.EventTypeError
		event.Message = UserMessage(u.Err)
		event.Hint = Hint(u.Err)
	default:
		event.Type = jobs.EventTypeStatus
		event.Message = "Conversion finished"
	}
	a.publishEvent(event)
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) jobs.Event {
	published := a.Events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, wailsEventName(published.Source), published)
	}
	return published
}

func wailsEventName(source jobs.EventSource) string {
	switch source {
	case jobs.SourceSession:
		return sessionEventName
	case jobs.SourceLibrary:
		return libraryEventName
	default:
		return jobEventName
	}
}

// SubscribeEvents registers a live event listener; call cancel when done.
func (a *App) SubscribeEvents(buffer int) (<-chan jobs.Event, func()) {
	return a.Events.Subscribe(buffer)
}
