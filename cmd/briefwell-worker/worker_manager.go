package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/briefwell/briefwell/pkg/commandqueue"
	"github.com/briefwell/briefwell/pkg/dispatch"
	"github.com/briefwell/briefwell/pkg/engine"
	"github.com/briefwell/briefwell/pkg/eventbus"
	"github.com/briefwell/briefwell/pkg/events"
	"github.com/briefwell/briefwell/pkg/models"
	"github.com/briefwell/briefwell/pkg/otelhelper"
	"github.com/briefwell/briefwell/pkg/persistence"
)

// WorkerManager subscribes to trigger events and the manual command queue
// and routes both into the execution engine.
type WorkerManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	engine      *engine.Engine
	dispatcher  *dispatch.Dispatcher
	eventBus    eventbus.EventBus
	commands    *commandqueue.Queue
	tracer      trace.Tracer
}

func NewWorkerManager(
	id string,
	persistence persistence.Persistence,
	executionEngine *engine.Engine,
	eventBus eventbus.EventBus,
	commands *commandqueue.Queue,
	tracer trace.Tracer,
	logger *slog.Logger,
) *WorkerManager {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("briefwell-worker")
	}

	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "briefwell-worker", "worker_id", id),
		persistence: persistence,
		engine:      executionEngine,
		dispatcher:  dispatch.NewDispatcher(persistence.ReportRepository(), executionEngine, logger),
		eventBus:    eventBus,
		commands:    commands,
		tracer:      tracer,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	if err := w.eventBus.Handle(events.ReportTriggeredEvent, w.handleReportTriggered); err != nil {
		return err
	}

	if err := w.eventBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if w.commands != nil {
		w.commands.Start(ctx, w.handleCommand)
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	w.logger.InfoContext(ctx, "Shutting down worker...")

	if w.commands != nil {
		if err := w.commands.Stop(ctx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to stop command queue", "error", err)
		}
	}

	return nil
}

func (w *WorkerManager) handleReportTriggered(ctx context.Context, event any) error {
	triggeredEvent, ok := event.(*events.ReportTriggered)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ReportTriggered")

		return nil
	}

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "execution.trigger",
		attribute.String(otelhelper.ReportIDKey, triggeredEvent.ReportID),
		attribute.String(otelhelper.EventIDKey, triggeredEvent.ID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	if err := w.dispatcher.HandleTrigger(ctx, *triggeredEvent); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

// handleCommand serves manual run-now, resume and resend requests. All of
// them funnel into the same engine paths as scheduled work, so every safety
// property holds for operator actions too.
func (w *WorkerManager) handleCommand(ctx context.Context, command commandqueue.Command) error {
	logger := w.logger.With("command_type", command.Type, "report_id", command.ReportID)

	ctx, span := otelhelper.StartSpan(ctx, w.tracer, "execution.command",
		attribute.String(otelhelper.CommandTypeKey, string(command.Type)),
		attribute.String(otelhelper.ReportIDKey, command.ReportID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	report, err := w.persistence.ReportRepository().ReportByID(ctx, command.ReportID)
	if err != nil {
		if persistence.IsReportNotFound(err) {
			logger.InfoContext(ctx, "Dropping command for deleted report")

			return nil
		}

		otelhelper.SetError(span, err)

		return err
	}

	switch command.Type {
	case commandqueue.CommandRunNow:
		periodKey := models.PeriodKey(report.Cadence, time.Now().UTC())

		result, err := w.engine.StartExecution(ctx, report, periodKey)
		if err != nil {
			otelhelper.SetError(span, err)

			return err
		}

		span.SetAttributes(attribute.String(otelhelper.ResultKey, string(result.Kind)))
		logger.InfoContext(ctx, "Run-now handled", "period_key", periodKey, "result", result.Kind)
	case commandqueue.CommandResume:
		result, err := w.engine.ResumeExecution(ctx, report, command.PeriodKey)
		if err != nil {
			otelhelper.SetError(span, err)

			return err
		}

		span.SetAttributes(attribute.String(otelhelper.ResultKey, string(result.Kind)))
		logger.InfoContext(ctx, "Resume handled", "period_key", command.PeriodKey, "result", result.Kind)
	case commandqueue.CommandResend:
		if err := w.engine.Resend(ctx, report, command.PeriodKey); err != nil {
			otelhelper.SetError(span, err)

			return err
		}

		logger.InfoContext(ctx, "Resend handled", "period_key", command.PeriodKey)
	}

	return nil
}
