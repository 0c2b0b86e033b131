package webhook

import (
	"context"

	"github.com/livekit/protocol/livekit"
	lkwebhook "github.com/livekit/protocol/webhook"
	"go.uber.org/zap"
)

// Dispatcher routes validated events by kind. Every kind is logged; join and
// leave events additionally go through the Notifier. Dispatch never fails the
// request: notifier errors are logged and swallowed, the webhook has already
// been acknowledged as authentic.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewDispatcher(notifier Notifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		logger:   logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev *livekit.WebhookEvent) {
	switch ev.Event {
	case lkwebhook.EventParticipantJoined:
		d.logEvent(ev, "Participant joined the room")
		d.notify(ctx, KindParticipantJoined, ev)
	case lkwebhook.EventParticipantLeft:
		d.logEvent(ev, "Participant left the room")
		d.notify(ctx, KindParticipantLeft, ev)
	case lkwebhook.EventRoomFinished:
		d.logEvent(ev, "Room finished")
	default:
		d.logEvent(ev, "Unhandled event type")
	}
}

func (d *Dispatcher) notify(ctx context.Context, kind Kind, ev *livekit.WebhookEvent) {
	if d.notifier == nil {
		return
	}
	if err := d.notifier.Notify(ctx, newNotification(kind, ev)); err != nil {
		d.logger.Error("Agent notification failed",
			zap.String("event", ev.Event),
			zap.Error(err))
	}
}

func (d *Dispatcher) logEvent(ev *livekit.WebhookEvent, message string) {
	fields := []zap.Field{
		zap.String("service", "voice-webhook"),
		zap.String("event", ev.Event),
		zap.String("message", message),
	}
	if ev.Room != nil {
		fields = append(fields,
			zap.String("room_name", ev.Room.Name),
			zap.String("room_sid", ev.Room.Sid))
	}
	if ev.Participant != nil {
		fields = append(fields,
			zap.String("participant_identity", ev.Participant.Identity),
			zap.String("participant_sid", ev.Participant.Sid))
	}
	d.logger.Info("Webhook event received", fields...)
}
