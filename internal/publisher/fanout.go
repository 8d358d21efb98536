package publisher

import (
	"context"
	"errors"

	"enforcement_scraper/internal/domain"
)

// Sink is anything that accepts progress events.
type Sink interface {
	Publish(ctx context.Context, event domain.ProgressEvent) error
	Close() error
}

// Fanout publishes every event to all sinks. One failing sink does not
// stop delivery to the others.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	var nonNil []Sink
	for _, s := range sinks {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	return &Fanout{sinks: nonNil}
}

func (f *Fanout) Publish(ctx context.Context, event domain.ProgressEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
