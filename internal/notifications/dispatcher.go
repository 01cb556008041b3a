package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/insanelabs/witchcraft/internal/nats"
)

// Notifier delivers one alert notification to an external channel. The
// in-app inbox is already written by the alert monitor; implementations add
// email, push or webhook delivery on top.
type Notifier interface {
	Notify(ctx context.Context, event inats.AlertCreatedEvent) error
}

// LogNotifier writes notifications to the structured log. The default
// channel in environments without a configured delivery provider.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, event inats.AlertCreatedEvent) error {
	n.logger.Info("alert notification",
		"alert_id", event.AlertID,
		"account_id", event.AccountID,
		"type", event.AlertType,
		"priority", event.Priority,
		"title", event.Title,
	)
	return nil
}

// Dispatcher consumes alert events from JetStream and hands them to the
// Notifier.
type Dispatcher struct {
	notifier    Notifier
	consumerMgr *inats.ConsumerManager
	logger      *slog.Logger
}

// NewDispatcher creates a notification Dispatcher.
func NewDispatcher(notifier Notifier, consumerMgr *inats.ConsumerManager, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier:    notifier,
		consumerMgr: consumerMgr,
		logger:      logger,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) error {
	consumer, err := d.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "alert-dispatcher", inats.SubjectAlertCreated)
	if err != nil {
		return err
	}

	d.logger.Info("notification dispatcher started", "consumer", "alert-dispatcher")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Debug("dispatcher: fetching alert events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			d.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (d *Dispatcher) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.AlertCreatedEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		d.logger.Error("dispatcher: unmarshaling alert event", "error", err)
		_ = msg.Nak()
		return
	}

	if err := d.notifier.Notify(ctx, event); err != nil {
		d.logger.Error("dispatcher: delivering notification", "error", err, "alert_id", event.AlertID)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
}
