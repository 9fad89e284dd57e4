// Command certmint acquires a TLS certificate for a set of domains from an
// ACME certificate authority and writes the result as a PKCS#12 bundle plus
// PEM certificate and key files.
//
// Configuration is read from CERTMINT_* environment variables, optionally
// seeded from a .env file in the working directory.
package main

import (
	"context"
	"crypto/tls"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/letsencrypt/challtestsrv"
	"go.uber.org/zap"

	"github.com/certmint/certmint/acme/client"
	"github.com/certmint/certmint/cmd"
	"github.com/certmint/certmint/issuer"
	"github.com/certmint/certmint/responder"
	"github.com/certmint/certmint/store"
)

const letsEncryptStaging = "https://acme-staging-v02.api.letsencrypt.org/directory"

type config struct {
	Domains      []string `env:"CERTMINT_DOMAINS,required"`
	ContactEmail string   `env:"CERTMINT_CONTACT_EMAIL,required"`
	DirectoryURL string   `env:"CERTMINT_DIRECTORY_URL"`
	CACert       string   `env:"CERTMINT_CA_CERT"`
	KeyAlgorithm string   `env:"CERTMINT_KEY_ALGORITHM" envDefault:"ecdsa"`
	AccountPath  string   `env:"CERTMINT_ACCOUNT_PATH" envDefault:"certmint-account.json"`
	AcceptTOS    bool     `env:"CERTMINT_ACCEPT_TOS"`

	HTTPAddr   string `env:"CERTMINT_HTTP_ADDR" envDefault:":80"`
	TLSAddr    string `env:"CERTMINT_TLS_ADDR" envDefault:":443"`
	EnableALPN bool   `env:"CERTMINT_ENABLE_ALPN" envDefault:"true"`

	OutputDir      string `env:"CERTMINT_OUTPUT_DIR" envDefault:"."`
	ExportPassword string `env:"CERTMINT_EXPORT_PASSWORD"`

	PollInterval time.Duration `env:"CERTMINT_POLL_INTERVAL"`
	PollAttempts int           `env:"CERTMINT_POLL_ATTEMPTS"`

	// DevChallSrv swaps the built-in responders for a challtestsrv instance
	// that also answers DNS, for runs against a local authority like Pebble.
	DevChallSrv bool   `env:"CERTMINT_DEV_CHALLSRV"`
	DevDNSAddr  string `env:"CERTMINT_DEV_DNS_ADDR" envDefault:"127.0.0.1:8053"`
}

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		stdlog.Fatalf("creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := env.ParseAs[config]()
	cmd.FailOnError(logger, err, "parsing environment configuration")
	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = letsEncryptStaging
		logger.Info("no directory configured, using Let's Encrypt staging",
			zap.String("directory", cfg.DirectoryURL))
	}

	ctx, cancel := cmd.SignalContext(context.Background(), logger)
	defer cancel()

	authority, err := client.New(client.Config{
		DirectoryURL: cfg.DirectoryURL,
		CABundlePath: cfg.CACert,
		Logger:       logger.Named("acme"),
	})
	cmd.FailOnError(logger, err, "creating ACME client")

	accounts := store.NewFileStore(cfg.AccountPath)
	ready := issuer.NewGate()

	var (
		httpStore issuer.HTTPChallengeStore
		alpnStore issuer.TLSALPNChallengeStore
	)
	if cfg.DevChallSrv {
		srv, err := challtestsrv.New(challtestsrv.Config{
			HTTPOneAddrs:    []string{cfg.HTTPAddr},
			TLSALPNOneAddrs: []string{cfg.TLSAddr},
			DNSOneAddrs:     []string{cfg.DevDNSAddr},
			Log:             stdlog.New(os.Stderr, "challtestsrv: ", stdlog.LstdFlags),
		})
		cmd.FailOnError(logger, err, "creating dev challenge server")
		go srv.Run()
		defer srv.Shutdown()

		devStore := responder.NewChallSrvStore(srv)
		httpStore, alpnStore = devStore, devStore
		logger.Info("dev challenge server running",
			zap.String("http", cfg.HTTPAddr),
			zap.String("tlsalpn", cfg.TLSAddr),
			zap.String("dns", cfg.DevDNSAddr))
		ready.Fire()
	} else {
		hs := responder.NewHTTPStore(logger.Named("http01"))
		as := responder.NewALPNStore(cfg.EnableALPN, logger.Named("tlsalpn01"))
		httpStore, alpnStore = hs, as

		httpLn, err := net.Listen("tcp", cfg.HTTPAddr)
		cmd.FailOnError(logger, err, "binding HTTP-01 listener")
		defer httpLn.Close()
		httpSrv := &http.Server{Handler: hs}
		go func() {
			if err := httpSrv.Serve(httpLn); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP-01 responder stopped", zap.Error(err))
			}
		}()
		defer httpSrv.Close()
		logger.Info("HTTP-01 responder listening", zap.String("addr", cfg.HTTPAddr))

		if cfg.EnableALPN {
			tlsLn, err := tls.Listen("tcp", cfg.TLSAddr, as.TLSConfig())
			cmd.FailOnError(logger, err, "binding TLS-ALPN-01 listener")
			defer tlsLn.Close()
			// The handshake alone answers the challenge; the HTTP layer on
			// top only drains whatever the validator sends afterwards.
			tlsSrv := &http.Server{Handler: http.NotFoundHandler()}
			go func() {
				if err := tlsSrv.Serve(tlsLn); err != nil && err != http.ErrServerClosed {
					logger.Error("TLS-ALPN-01 responder stopped", zap.Error(err))
				}
			}()
			defer tlsSrv.Close()
			logger.Info("TLS-ALPN-01 responder listening", zap.String("addr", cfg.TLSAddr))
		}

		// Both listeners are bound and accepting.
		ready.Fire()
	}

	iss, err := issuer.New(authority, accounts, httpStore, alpnStore, ready, issuer.Config{
		Domains:      cfg.Domains,
		ContactEmail: cfg.ContactEmail,
		KeyAlgorithm: cfg.KeyAlgorithm,
		AcceptTOS: func(tosURL string) bool {
			if !cfg.AcceptTOS {
				logger.Error("terms of service not accepted, set CERTMINT_ACCEPT_TOS=true to agree",
					zap.String("terms", tosURL))
				return false
			}
			logger.Info("agreeing to terms of service", zap.String("terms", tosURL))
			return true
		},
		PollInterval: cfg.PollInterval,
		PollAttempts: cfg.PollAttempts,
	}, logger.Named("issuer"))
	cmd.FailOnError(logger, err, "creating issuer")

	bundle, err := iss.Issue(ctx)
	cmd.FailOnError(logger, err, "acquiring certificate")

	cmd.FailOnError(logger, writeArtifacts(cfg, bundle), "writing certificate artifacts")

	leaf := bundle.Leaf()
	logger.Info("certificate acquired",
		zap.Strings("domains", leaf.DNSNames),
		zap.Time("notAfter", leaf.NotAfter),
		zap.String("outputDir", cfg.OutputDir))
}

func writeArtifacts(cfg config, bundle *issuer.Bundle) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}

	pfx, err := bundle.Export(cfg.ExportPassword)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(cfg.OutputDir, "bundle.pfx"), pfx, 0o600); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(cfg.OutputDir, "cert.pem"), bundle.CertificatePEM(), 0o644); err != nil {
		return err
	}

	keyPEM, err := bundle.KeyPEM()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cfg.OutputDir, "key.pem"), keyPEM, 0o600)
}
