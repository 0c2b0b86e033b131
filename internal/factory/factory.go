package factory

import (
	"context"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"voice-gateway/internal/clock"
	"voice-gateway/internal/config"
	"voice-gateway/internal/handler"
	"voice-gateway/internal/ratelimit"
	"voice-gateway/internal/tls"
	"voice-gateway/internal/token"
	"voice-gateway/internal/util"
	"voice-gateway/internal/webhook"
)

// Factory wires the application: config, logger, rate-limit store, notifier,
// issuer, receiver, handler. It owns the external clients and closes them.
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	redisClient *redis.Client
	memoryStore *ratelimit.MemoryStore
	store       ratelimit.Store
	notifier    webhook.Notifier

	issuer     *token.Issuer
	receiver   *webhook.Receiver
	dispatcher *webhook.Dispatcher

	closeOnce sync.Once
}

// NewFactory loads configuration and initializes all dependencies. The
// LiveKit credentials are deliberately not validated here: their absence is
// surfaced per-request as a 500, matching the contract the widget relies on.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	logger := util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{config: cfg}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewManager(cfg.Server)
	}

	if err := f.initStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize rate-limit store: %w", err)
	}
	f.initNotifier()

	clk := clock.NewRealClock()
	f.issuer = token.NewIssuer(cfg.LiveKit, clk, logger)
	f.receiver = webhook.NewReceiver(cfg.LiveKit)
	f.dispatcher = webhook.NewDispatcher(f.notifier, logger)

	if !cfg.LiveKit.Configured() {
		util.Warn("LiveKit credentials missing, issuance will fail until configured",
			util.String("missing", fmt.Sprint(cfg.LiveKit.MissingVars())))
	}

	util.Info("Factory initialized",
		util.String("environment", cfg.Environment),
		util.String("rate_limit_store", cfg.RateLimit.Store),
		util.String("agent_notifier", cfg.Notifier.Kind))

	return f, nil
}

func (f *Factory) initStore() error {
	rl := f.config.RateLimit

	switch rl.Store {
	case "redis":
		client, err := ratelimit.NewRedisClient(f.config.Redis.URL)
		if err != nil {
			return err
		}
		f.redisClient = client
		f.store = ratelimit.NewRedisStore(client, rl.MaxRequests, rl.Window)
	case "memory", "":
		f.memoryStore = ratelimit.NewMemoryStore(rl.MaxRequests, rl.Window)
		f.store = f.memoryStore
	default:
		return fmt.Errorf("unknown rate-limit store %q", rl.Store)
	}
	return nil
}

func (f *Factory) initNotifier() {
	switch f.config.Notifier.Kind {
	case "kafka":
		f.notifier = webhook.NewKafkaNotifier(f.config.Notifier, util.Get())
	default:
		f.notifier = webhook.NewLogNotifier(util.Get())
	}
}

// StartBackground launches the maintenance goroutines (the memory-store
// janitor). They stop when ctx is cancelled.
func (f *Factory) StartBackground(ctx context.Context) {
	if f.memoryStore != nil {
		f.memoryStore.StartJanitor(ctx)
	}
}

func (f *Factory) Config() *config.Config { return f.config }

func (f *Factory) TLSManager() *tls.Manager { return f.tlsManager }

// VoiceHandler builds the HTTP handler over the wired dependencies.
func (f *Factory) VoiceHandler() *handler.VoiceHandler {
	return handler.NewVoiceHandler(
		f.store,
		f.issuer,
		f.receiver,
		f.dispatcher,
		f.config.Server.TrustProxyHeaders,
		util.Get(),
	)
}

// Close tears down external clients. Safe to call more than once.
func (f *Factory) Close() {
	f.closeOnce.Do(func() {
		if f.notifier != nil {
			if err := f.notifier.Close(); err != nil {
				util.Error("Failed to close notifier", util.ErrorField(err))
			}
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}
		util.Sync()
	})
}
