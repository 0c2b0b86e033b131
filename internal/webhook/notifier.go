package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"voice-gateway/internal/config"
)

// Kind classifies a notification forwarded to the agent worker.
type Kind string

const (
	KindParticipantJoined Kind = "participant_joined"
	KindParticipantLeft   Kind = "participant_left"
)

// Notification is the message handed to the agent worker when a participant
// joins or leaves a voice room.
type Notification struct {
	ID                  string    `json:"id"`
	Kind                Kind      `json:"kind"`
	RoomName            string    `json:"room_name,omitempty"`
	RoomSID             string    `json:"room_sid,omitempty"`
	ParticipantIdentity string    `json:"participant_identity,omitempty"`
	ParticipantSID      string    `json:"participant_sid,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

func newNotification(kind Kind, ev *livekit.WebhookEvent) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Unix(ev.CreatedAt, 0).UTC(),
	}
	if ev.Room != nil {
		n.RoomName = ev.Room.Name
		n.RoomSID = ev.Room.Sid
	}
	if ev.Participant != nil {
		n.ParticipantIdentity = ev.Participant.Identity
		n.ParticipantSID = ev.Participant.Sid
	}
	return n
}

// Notifier is the seam towards the agent worker. The gateway itself never
// joins rooms; it only tells whoever does that something happened.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

// LogNotifier records the notification and does nothing else. This is the
// default: the portfolio deployment runs the agent worker as a LiveKit agent
// that dispatches itself, so nothing downstream listens yet.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	n.logger.Debug("Agent notification (log only)",
		zap.String("notification_id", notification.ID),
		zap.String("kind", string(notification.Kind)),
		zap.String("room_name", notification.RoomName))
	return nil
}

func (n *LogNotifier) Close() error { return nil }

// KafkaNotifier publishes notifications to a Kafka topic, keyed by room name
// so all events for one room land on the same partition in order.
type KafkaNotifier struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaNotifier(cfg config.NotifierConfig, logger *zap.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafka.LeastBytes{},
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	logger.Info("Kafka agent notifier initialized",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic))

	return &KafkaNotifier{
		writer: writer,
		logger: logger,
	}
}

func (n *KafkaNotifier) Notify(ctx context.Context, notification Notification) error {
	value, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode agent notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(notification.RoomName),
		Value: value,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish agent notification: %w", err)
	}

	n.logger.Debug("Agent notification published",
		zap.String("notification_id", notification.ID),
		zap.String("kind", string(notification.Kind)),
		zap.String("room_name", notification.RoomName))
	return nil
}

func (n *KafkaNotifier) Close() error {
	if n.writer != nil {
		if err := n.writer.Close(); err != nil {
			n.logger.Error("failed to close Kafka notifier", zap.Error(err))
			return err
		}
	}
	return nil
}
