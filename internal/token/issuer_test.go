package token

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voice-gateway/internal/clock"
	"voice-gateway/internal/config"
)

const (
	testAPIKey    = "devkey"
	testAPISecret = "0123456789abcdef0123456789abcdef"
	testServerURL = "wss://voice.example.com"
)

func testConfig() config.LiveKitConfig {
	return config.LiveKitConfig{
		APIKey:     testAPIKey,
		APISecret:  testAPISecret,
		URL:        testServerURL,
		RoomPrefix: "voice-agent",
		TokenTTL:   time.Hour,
	}
}

func newTestIssuer(cfg config.LiveKitConfig) *Issuer {
	vc := clock.NewVirtualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewIssuer(cfg, vc, zap.NewNop())
}

func TestIssuer_NotConfigured(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.LiveKitConfig)
	}{
		{"missing api key", func(c *config.LiveKitConfig) { c.APIKey = "" }},
		{"missing api secret", func(c *config.LiveKitConfig) { c.APISecret = "" }},
		{"missing server url", func(c *config.LiveKitConfig) { c.URL = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			issuer := newTestIssuer(cfg)

			_, err := issuer.Issue(context.Background(), IssueRequest{})
			assert.ErrorIs(t, err, ErrNotConfigured)
		})
	}
}

func TestIssuer_RejectsInvalidRoomName(t *testing.T) {
	issuer := newTestIssuer(testConfig())

	for _, bad := range []string{"bad room!", "room/name", "salaão", "a b"} {
		_, err := issuer.Issue(context.Background(), IssueRequest{RoomName: bad})
		assert.ErrorIs(t, err, ErrInvalidRoomName, "room %q", bad)
	}
}

func TestIssuer_AcceptsValidRoomName(t *testing.T) {
	issuer := newTestIssuer(testConfig())

	details, err := issuer.Issue(context.Background(), IssueRequest{
		RoomName:        "my-room_42",
		ParticipantName: "alex",
	})
	require.NoError(t, err)

	assert.Equal(t, "my-room_42", details.RoomName)
	assert.Equal(t, "alex", details.ParticipantName)
	assert.Equal(t, testServerURL, details.ServerURL)
	assert.NotEmpty(t, details.ParticipantToken)
}

func TestIssuer_TokenCarriesGrants(t *testing.T) {
	issuer := newTestIssuer(testConfig())

	details, err := issuer.Issue(context.Background(), IssueRequest{
		RoomName:        "grant-check",
		ParticipantName: "alex",
	})
	require.NoError(t, err)

	verifier, err := auth.ParseAPIToken(details.ParticipantToken)
	require.NoError(t, err)
	assert.Equal(t, testAPIKey, verifier.APIKey())

	claims, err := verifier.Verify(testAPISecret)
	require.NoError(t, err)
	assert.Equal(t, "alex", claims.Identity)

	require.NotNil(t, claims.Video)
	assert.True(t, claims.Video.RoomJoin)
	assert.Equal(t, "grant-check", claims.Video.Room)
	assert.True(t, claims.Video.GetCanPublish())
	assert.True(t, claims.Video.GetCanSubscribe())
	assert.True(t, claims.Video.GetCanPublishData())
}

func TestIssuer_GeneratedNames(t *testing.T) {
	issuer := newTestIssuer(testConfig())

	roomRe := regexp.MustCompile(`^voice-agent-\d+-[0-9a-z]{6}$`)
	participantRe := regexp.MustCompile(`^user-[0-9a-z]{6}$`)

	first, err := issuer.Issue(context.Background(), IssueRequest{})
	require.NoError(t, err)
	second, err := issuer.Issue(context.Background(), IssueRequest{})
	require.NoError(t, err)

	assert.Regexp(t, roomRe, first.RoomName)
	assert.Regexp(t, participantRe, first.ParticipantName)

	// Same virtual millisecond, still distinct: the random suffix differs.
	assert.NotEqual(t, first.RoomName, second.RoomName)
}
