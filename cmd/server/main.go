package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"voice-gateway/internal/config"
	"voice-gateway/internal/factory"
	"voice-gateway/internal/handler"
	"voice-gateway/internal/util"
)

func main() {
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	f.StartBackground(ctx)

	router := handler.NewRouter(f.VoiceHandler(), cfg.Server, util.Get())

	server := &http.Server{
		Addr:         serverAddr(cfg),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Server.EnableTLS {
		tlsManager := f.TLSManager()
		server.TLSConfig = tlsManager.GetTLSConfig()

		// ACME HTTP-01 challenges need a plain HTTP listener.
		if cfg.Server.AutoCert {
			if acm := tlsManager.AutocertManager(); acm != nil {
				challengeServer := &http.Server{
					Addr:    ":80",
					Handler: acm.HTTPHandler(nil),
				}
				g.Go(func() error {
					util.Info("Starting ACME challenge server on port 80")
					return ignoreServerClosed(challengeServer.ListenAndServe())
				})
				g.Go(func() error {
					<-gctx.Done()
					return shutdown(challengeServer)
				})
			}
		}

		util.Info("Starting HTTPS server",
			util.String("environment", cfg.Environment),
			util.String("address", server.Addr),
			util.Bool("auto_cert", cfg.Server.AutoCert))
		g.Go(func() error {
			return ignoreServerClosed(server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile))
		})
	} else {
		util.Warn("Starting HTTP server - TLS is disabled",
			util.String("environment", cfg.Environment),
			util.String("address", server.Addr))
		g.Go(func() error {
			return ignoreServerClosed(server.ListenAndServe())
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		util.Info("Shutdown requested")
		return shutdown(server)
	})

	if err := g.Wait(); err != nil {
		util.Fatal("Server exited with error", util.ErrorField(err))
	}
	util.Info("Server shutdown completed")
}

func serverAddr(cfg *config.Config) string {
	if cfg.Server.EnableTLS {
		return fmt.Sprintf(":%d", cfg.Server.TLSPort)
	}
	return cfg.GetServerAddress()
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}
	return nil
}

func ignoreServerClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
