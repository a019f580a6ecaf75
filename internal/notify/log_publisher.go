package notify

import (
	"context"
	"log"
)

// LogPublisher writes events to the process log. Used in dev when no
// broker is configured.
type LogPublisher struct {
	logger *log.Logger
}

func NewLogPublisher(logger *log.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Printf("event %s id=%s student=%s card=%s msg=%q",
		ev.Kind, ev.ID, ev.StudentID, ev.CardUID, ev.Message)
	return nil
}
