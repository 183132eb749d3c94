package pipeline

import "github.com/dverbin/mediavault/internal/models"

// EventType discriminates pipeline progress events.
type EventType string

const (
	// EventStage marks a file entering a new stage.
	EventStage EventType = "stage"
	// EventRetry reports an upload retry attempt.
	EventRetry EventType = "retry"
)

// Event is one progress notification. Consumers range over the channel
// returned by Events; the pipeline never blocks on a slow consumer, so
// events are advisory and may be dropped under backpressure.
type Event struct {
	Type       EventType
	FileID     string
	Stage      models.Stage
	Retry      int
	MaxRetries int
	Err        error
}

const eventBuffer = 64

func (p *Pipeline) emitStage(fileID string, stage models.Stage, err error) {
	p.emit(Event{Type: EventStage, FileID: fileID, Stage: stage, Err: err})
}

// NotifyRetry forwards upload retry progress onto the event stream. It is
// wired as the upload submitter's notify callback.
func (p *Pipeline) NotifyRetry(currentRetry, maxRetries int) {
	p.mu.Lock()
	p.progress.CurrentRetry = currentRetry
	p.progress.MaxRetries = maxRetries
	p.mu.Unlock()
	p.emit(Event{Type: EventRetry, Retry: currentRetry, MaxRetries: maxRetries})
}

func (p *Pipeline) emit(e Event) {
	select {
	case p.events <- e:
	default:
	}
}

// Events returns the progress event stream.
func (p *Pipeline) Events() <-chan Event {
	return p.events
}
