package downloader

import (
	"context"
	"errors"

	"github.com/cesargomez89/trackreconciler/internal/domain"
	"github.com/cesargomez89/trackreconciler/internal/logger"
)

var ErrNoHandler = errors.New("no handler for status")

// StepHandler advances one ledger record by one acquisition step.
type StepHandler interface {
	Handle(ctx context.Context, rec *domain.MissingTrack, log *logger.Logger) error
}

type StepFunc func(ctx context.Context, rec *domain.MissingTrack, log *logger.Logger) error

func (f StepFunc) Handle(ctx context.Context, rec *domain.MissingTrack, log *logger.Logger) error {
	return f(ctx, rec, log)
}

type Dispatcher struct {
	handlers map[domain.LedgerStatus]StepHandler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[domain.LedgerStatus]StepHandler),
	}
}

func (d *Dispatcher) Register(status domain.LedgerStatus, handler StepHandler) {
	d.handlers[status] = handler
}

func (d *Dispatcher) Handles(status domain.LedgerStatus) bool {
	_, ok := d.handlers[status]
	return ok
}

func (d *Dispatcher) Dispatch(ctx context.Context, rec *domain.MissingTrack, log *logger.Logger) error {
	handler, ok := d.handlers[rec.Status]
	if !ok {
		return ErrNoHandler
	}
	return handler.Handle(ctx, rec, log)
}
