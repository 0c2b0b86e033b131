package tls

import (
	"crypto/tls"
	"errors"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"voice-gateway/internal/config"
	"voice-gateway/internal/util"
)

// Manager resolves the server certificate: ACME autocert when a domain is
// configured, file-based certificates otherwise.
type Manager struct {
	cfg      config.ServerConfig
	autoCert *autocert.Manager
}

func NewManager(cfg config.ServerConfig) *Manager {
	m := &Manager{cfg: cfg}

	if cfg.AutoCert && cfg.Domain != "" {
		if err := os.MkdirAll(cfg.AutoCertDir, 0o700); err != nil {
			util.Warn("Could not create autocert cache directory", zap.Error(err))
		} else {
			m.autoCert = &autocert.Manager{
				Prompt:     autocert.AcceptTOS,
				HostPolicy: autocert.HostWhitelist(cfg.Domain),
				Cache:      autocert.DirCache(cfg.AutoCertDir),
				Email:      cfg.Email,
			}
			util.Info("AutoCert configured",
				zap.String("domain", cfg.Domain),
				zap.String("cache_dir", cfg.AutoCertDir))
		}
	}

	return m
}

// GetCertificate tries autocert first, then the configured certificate files.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		if cert, err := m.autoCert.GetCertificate(hello); err == nil {
			return cert, nil
		}
	}

	if m.cfg.CertFile != "" && m.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.cfg.CertFile, m.cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		return &cert, nil
	}

	return nil, errors.New("no certificate available")
}

// GetTLSConfig returns the server TLS configuration.
func (m *Manager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: m.GetCertificate,
	}
}

// AutocertManager exposes the underlying manager for the ACME HTTP-01
// challenge handler, nil when autocert is disabled.
func (m *Manager) AutocertManager() *autocert.Manager {
	return m.autoCert
}
