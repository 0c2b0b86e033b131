package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"voice-gateway/internal/ratelimit"
	"voice-gateway/internal/token"
	"voice-gateway/internal/util"
	"voice-gateway/internal/webhook"
)

// VoiceHandler serves the voice-agent boundary: credential issuance for the
// browser widget and the LiveKit webhook receiver.
type VoiceHandler struct {
	limiter    ratelimit.Store
	issuer     *token.Issuer
	receiver   webhook.EventReceiver
	dispatcher *webhook.Dispatcher
	trustProxy bool
	logger     *zap.Logger
}

func NewVoiceHandler(
	limiter ratelimit.Store,
	issuer *token.Issuer,
	receiver webhook.EventReceiver,
	dispatcher *webhook.Dispatcher,
	trustProxy bool,
	logger *zap.Logger,
) *VoiceHandler {
	return &VoiceHandler{
		limiter:    limiter,
		issuer:     issuer,
		receiver:   receiver,
		dispatcher: dispatcher,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// RegisterRoutes registers the voice-agent routes. Paths mirror the site's
// original API surface so the widget needs no changes.
func (h *VoiceHandler) RegisterRoutes(router chi.Router) {
	router.Post("/connection-details", h.ConnectionDetails)
	router.Post("/voice-token", h.VoiceToken)
	router.Post("/voice-webhook", h.VoiceWebhook)
	router.Get("/voice-webhook", h.WebhookHealth)
}

// issueRequest is the optional JSON body both issuance endpoints accept.
// Malformed or absent bodies are tolerated; every field has a generated or
// fixed default.
type issueRequest struct {
	RoomName        string `json:"roomName"`
	ParticipantName string `json:"participantName"`
	RoomConfig      *struct {
		Agents []struct {
			AgentName string `json:"agent_name"`
		} `json:"agents"`
	} `json:"room_config"`
}

func (r issueRequest) agentName() string {
	if r.RoomConfig != nil && len(r.RoomConfig.Agents) > 0 {
		return r.RoomConfig.Agents[0].AgentName
	}
	return ""
}

// tokenResponse is the legacy voice-token wire shape.
type tokenResponse struct {
	Token     string `json:"token"`
	RoomName  string `json:"roomName"`
	ServerURL string `json:"serverUrl"`
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type webhookHealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// ConnectionDetails issues a credential in the shape the LiveKit agents UI
// expects: participant token plus generated identity and room.
func (h *VoiceHandler) ConnectionDetails(w http.ResponseWriter, r *http.Request) {
	details, ok := h.issue(w, r, "")
	if !ok {
		return
	}
	h.respondWithJSON(w, http.StatusOK, details)
}

// VoiceToken issues a credential in the older widget shape. Anonymous callers
// get the fixed "visitor" identity this endpoint always had.
func (h *VoiceHandler) VoiceToken(w http.ResponseWriter, r *http.Request) {
	details, ok := h.issue(w, r, "visitor")
	if !ok {
		return
	}
	h.respondWithJSON(w, http.StatusOK, tokenResponse{
		Token:     details.ParticipantToken,
		RoomName:  details.RoomName,
		ServerURL: details.ServerURL,
	})
}

// issue runs the shared rate-limit / parse / mint sequence. On failure the
// response has already been written and ok is false.
func (h *VoiceHandler) issue(w http.ResponseWriter, r *http.Request, defaultParticipant string) (*token.ConnectionDetails, bool) {
	ctx := r.Context()
	callerKey := h.clientKey(r)

	decision, err := h.limiter.Take(ctx, callerKey)
	if err != nil {
		// Counter backend unavailable. Fail open: issuing one extra token
		// is cheaper than taking the widget down with the store.
		h.logger.Warn("Rate limit check failed, allowing request",
			util.String("caller", callerKey),
			util.ErrorField(err))
	} else if !decision.Allowed {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		retryAfter := decision.RetryAfter(time.Now())
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		h.respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		h.logger.Warn("Rate limit exceeded",
			util.String("caller", callerKey),
			util.Time("reset_at", decision.ResetAt))
		return nil, false
	}

	var body issueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		// No body or invalid JSON: defaults apply.
		body = issueRequest{}
	}

	participantName := body.ParticipantName
	if participantName == "" {
		participantName = defaultParticipant
	}

	details, err := h.issuer.Issue(ctx, token.IssueRequest{
		RoomName:        body.RoomName,
		ParticipantName: participantName,
		AgentName:       body.agentName(),
	})
	if err != nil {
		h.respondWithError(w, h.statusFor(err), h.publicMessage(err))
		h.logger.Error("Credential issuance failed",
			util.String("caller", callerKey),
			util.ErrorField(err))
		return nil, false
	}

	h.logger.Info("Credential issued",
		util.String("room_name", details.RoomName),
		util.String("participant_name", details.ParticipantName))
	return details, true
}

// VoiceWebhook authenticates a LiveKit callback and dispatches it. The event
// kind never changes the status: once the signature checks out, it is a 200.
func (h *VoiceHandler) VoiceWebhook(w http.ResponseWriter, r *http.Request) {
	event, err := h.receiver.Receive(r)
	if err != nil {
		status := h.statusFor(err)
		h.respondWithJSON(w, status, webhookResponse{
			Success: false,
			Message: h.webhookMessage(err),
		})
		h.logger.Error("Webhook rejected",
			util.Int("status_code", status),
			util.ErrorField(err))
		return
	}

	h.dispatcher.Dispatch(r.Context(), event)

	h.respondWithJSON(w, http.StatusOK, webhookResponse{
		Success: true,
		Message: "Webhook processed successfully",
	})
}

// WebhookHealth is a static liveness probe for the webhook route.
func (h *VoiceHandler) WebhookHealth(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, webhookHealthResponse{
		Status:    "ok",
		Service:   "voice-webhook",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// clientKey derives the rate-limit key for a request. Proxy-supplied headers
// are only honored when the deployment declared its proxy trustworthy; all
// callers without a usable address share the "unknown" bucket.
func (h *VoiceHandler) clientKey(r *http.Request) string {
	if h.trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			return strings.TrimSpace(strings.Split(forwarded, ",")[0])
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
		return "unknown"
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}

func (h *VoiceHandler) statusFor(err error) int {
	switch {
	case errors.Is(err, token.ErrInvalidRoomName):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrNotConfigured), errors.Is(err, webhook.ErrNotConfigured):
		return http.StatusInternalServerError
	case errors.Is(err, webhook.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage maps an error to the caller-visible text. Configuration
// detail (which variables are missing, vendor error strings) stays in the
// server logs.
func (h *VoiceHandler) publicMessage(err error) string {
	switch {
	case errors.Is(err, token.ErrInvalidRoomName):
		return "Invalid room name format. Use only alphanumeric characters, hyphens, and underscores."
	case errors.Is(err, token.ErrNotConfigured):
		return "Voice agent service is not configured. Please check environment variables."
	default:
		return "Failed to generate connection details"
	}
}

func (h *VoiceHandler) webhookMessage(err error) string {
	switch {
	case errors.Is(err, webhook.ErrNotConfigured):
		return "Webhook service is not configured"
	case errors.Is(err, webhook.ErrUnauthorized):
		return "Missing or invalid webhook authorization"
	default:
		return "Failed to process webhook"
	}
}

func (h *VoiceHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *VoiceHandler) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respondWithJSON(w, statusCode, map[string]string{"error": message})
}
