// Package token mints short-lived, room-scoped LiveKit access credentials
// for visitors opening the voice-agent widget.
package token

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"

	"github.com/livekit/protocol/auth"
	"go.uber.org/zap"

	"voice-gateway/internal/clock"
	"voice-gateway/internal/config"
)

var (
	// ErrNotConfigured means one or more LiveKit credentials are missing.
	ErrNotConfigured = errors.New("voice agent service is not configured")
	// ErrInvalidRoomName means a caller-supplied room name failed validation.
	ErrInvalidRoomName = errors.New("invalid room name format: use only alphanumeric characters, hyphens, and underscores")
)

// roomNameRe is the character set LiveKit room names are held to.
var roomNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const randomSuffixLen = 6

// IssueRequest carries the optional caller-supplied parameters. Empty fields
// fall back to generated values.
type IssueRequest struct {
	RoomName        string
	ParticipantName string
	// AgentName is accepted from room_config for forward compatibility with
	// dispatch-by-name agents; it is logged but not acted on here.
	AgentName string
}

// ConnectionDetails is everything the browser needs to join the room.
type ConnectionDetails struct {
	ServerURL        string `json:"serverUrl"`
	ParticipantToken string `json:"participantToken"`
	ParticipantName  string `json:"participantName"`
	RoomName         string `json:"roomName"`
}

// Issuer builds signed, capability-scoped access tokens via the LiveKit SDK.
// It holds no state: once the response is written, the vendor is the only
// authority on the credential.
type Issuer struct {
	cfg    config.LiveKitConfig
	clk    clock.Clock
	logger *zap.Logger
}

func NewIssuer(cfg config.LiveKitConfig, clk clock.Clock, logger *zap.Logger) *Issuer {
	return &Issuer{
		cfg:    cfg,
		clk:    clk,
		logger: logger,
	}
}

// Issue validates the request and mints a credential. Configuration is
// verified before anything touches the SDK, so a half-configured deployment
// fails fast without partial issuance.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*ConnectionDetails, error) {
	if !i.cfg.Configured() {
		i.logger.Error("Missing LiveKit configuration",
			zap.Strings("missing_vars", i.cfg.MissingVars()))
		return nil, ErrNotConfigured
	}

	roomName := req.RoomName
	if roomName == "" {
		roomName = i.generateRoomName()
	} else if !roomNameRe.MatchString(roomName) {
		return nil, ErrInvalidRoomName
	}

	participantName := req.ParticipantName
	if participantName == "" {
		participantName = "user-" + randomSuffix()
	}

	at := auth.NewAccessToken(i.cfg.APIKey, i.cfg.APISecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     roomName,
	}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)
	at.SetVideoGrant(grant).
		SetIdentity(participantName).
		SetValidFor(i.cfg.TokenTTL)

	jwt, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	if req.AgentName != "" {
		i.logger.Debug("Agent requested for room",
			zap.String("agent_name", req.AgentName),
			zap.String("room_name", roomName))
	}

	return &ConnectionDetails{
		ServerURL:        i.cfg.URL,
		ParticipantToken: jwt,
		ParticipantName:  participantName,
		RoomName:         roomName,
	}, nil
}

// generateRoomName derives a practically-unique name without coordination:
// millisecond timestamp plus a random base36 suffix.
func (i *Issuer) generateRoomName() string {
	millis := i.clk.Now().UnixMilli()
	return i.cfg.RoomPrefix + "-" + strconv.FormatInt(millis, 10) + "-" + randomSuffix()
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randomSuffix() string {
	buf := make([]byte, randomSuffixLen)
	alphabetLen := big.NewInt(int64(len(base36)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			// crypto/rand only fails when the platform source is broken.
			panic("failed to read random source: " + err.Error())
		}
		buf[i] = base36[n.Int64()]
	}
	return string(buf)
}
