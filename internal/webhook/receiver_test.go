package webhook

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protojson"

	"voice-gateway/internal/config"
)

const (
	testAPIKey    = "devkey"
	testAPISecret = "0123456789abcdef0123456789abcdef"
)

func testLiveKitConfig() config.LiveKitConfig {
	return config.LiveKitConfig{
		APIKey:    testAPIKey,
		APISecret: testAPISecret,
		URL:       "wss://voice.example.com",
	}
}

// signBody produces the Authorization header value the way LiveKit's server
// does: an API token whose sha256 claim covers the exact payload bytes.
func signBody(t *testing.T, apiKey, apiSecret string, body []byte) string {
	t.Helper()
	sum := sha256.Sum256(body)
	at := auth.NewAccessToken(apiKey, apiSecret).
		SetValidFor(5 * time.Minute).
		SetSha256(base64.StdEncoding.EncodeToString(sum[:]))
	token, err := at.ToJWT()
	require.NoError(t, err)
	return token
}

func marshalEvent(t *testing.T, ev *livekit.WebhookEvent) []byte {
	t.Helper()
	body, err := protojson.Marshal(ev)
	require.NoError(t, err)
	return body
}

func participantJoinedEvent() *livekit.WebhookEvent {
	return &livekit.WebhookEvent{
		Event:       "participant_joined",
		Room:        &livekit.Room{Name: "voice-agent-1748779200000-ab12cd", Sid: "RM_test"},
		Participant: &livekit.ParticipantInfo{Identity: "user-x1y2z3", Sid: "PA_test"},
		CreatedAt:   time.Now().Unix(),
	}
}

func TestReceiver_ValidSignature(t *testing.T) {
	rc := NewReceiver(testLiveKitConfig())

	body := marshalEvent(t, participantJoinedEvent())
	req := httptest.NewRequest("POST", "/api/voice-webhook", bytes.NewReader(body))
	// Literal header name: LiveKit deliveries arrive as "Authorization",
	// so this must keep passing even if the constant is renamed.
	req.Header.Set("Authorization", signBody(t, testAPIKey, testAPISecret, body))

	event, err := rc.Receive(req)
	require.NoError(t, err)
	assert.Equal(t, "participant_joined", event.Event)
	assert.Equal(t, "voice-agent-1748779200000-ab12cd", event.Room.Name)
	assert.Equal(t, "user-x1y2z3", event.Participant.Identity)
}

func TestReceiver_TamperedBody(t *testing.T) {
	rc := NewReceiver(testLiveKitConfig())

	body := marshalEvent(t, participantJoinedEvent())
	sig := signBody(t, testAPIKey, testAPISecret, body)

	tampered := bytes.Replace(body, []byte("participant_joined"), []byte("room_finished0000t"), 1)
	req := httptest.NewRequest("POST", "/api/voice-webhook", bytes.NewReader(tampered))
	req.Header.Set(AuthHeader, sig)

	_, err := rc.Receive(req)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestReceiver_WrongSecret(t *testing.T) {
	rc := NewReceiver(testLiveKitConfig())

	body := marshalEvent(t, participantJoinedEvent())
	req := httptest.NewRequest("POST", "/api/voice-webhook", bytes.NewReader(body))
	req.Header.Set(AuthHeader, signBody(t, testAPIKey, "ffffffffffffffffffffffffffffffff", body))

	_, err := rc.Receive(req)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestReceiver_MissingAuthHeader(t *testing.T) {
	rc := NewReceiver(testLiveKitConfig())

	body := marshalEvent(t, participantJoinedEvent())
	req := httptest.NewRequest("POST", "/api/voice-webhook", bytes.NewReader(body))

	_, err := rc.Receive(req)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestReceiver_NotConfigured(t *testing.T) {
	rc := NewReceiver(config.LiveKitConfig{})

	body := marshalEvent(t, participantJoinedEvent())
	req := httptest.NewRequest("POST", "/api/voice-webhook", bytes.NewReader(body))
	req.Header.Set(AuthHeader, "anything")

	_, err := rc.Receive(req)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
