// main.go - Confidential auction settlement daemon.
//
// The daemon hosts the full engine in one process:
//   - the coprocessor holding the confidential store and the Groth16 input keys
//   - the WETHc payment ledger with JSON snapshot persistence
//   - the auction factory and registry behind the gin REST surface
//   - health, metrics and audit streams for operators
//
// Usage:
//   auctiond -config config.json
//
// On first run a default config file is written next to the binary. Insecure
// mode skips the Groth16 setup and accepts commitment openings as proofs; it
// exists for local development only.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"sealedbid/internal/auction"
	"sealedbid/internal/events"
	"sealedbid/internal/fhe"
	"sealedbid/internal/ledger"
	"sealedbid/internal/server"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logFile, err := setupLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	log.WithFields(log.Fields{
		"version":     version,
		"listen_addr": cfg.ListenAddr,
		"insecure":    cfg.Insecure,
	}).Info("starting auctiond")

	// Coprocessor
	var cop *fhe.Coprocessor
	if cfg.Insecure {
		log.Warn("running in insecure mode: input proofs are commitment openings, not Groth16 proofs")
		cop = fhe.NewInsecure()
	} else {
		start := time.Now()
		cop, err = fhe.NewCoprocessor(cfg.KeyDir)
		if err != nil {
			log.Fatalf("coprocessor setup: %v", err)
		}
		log.WithField("elapsed", time.Since(start).String()).Info("input circuit compiled and keys loaded")
	}

	// Event bus with the settlement audit stream
	bus := events.NewBus(events.TypeSettlementSkipped)
	if cfg.EnableAudit {
		auditFile, err := os.OpenFile(cfg.AuditLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalf("audit log: %v", err)
		}
		defer auditFile.Close()
		enc := json.NewEncoder(auditFile)
		bus.Subscribe(func(e events.Event) {
			if e.Type == events.TypeSettlementSkipped {
				if err := enc.Encode(e); err != nil {
					log.WithError(err).Error("failed to append audit event")
				}
			}
		})
	}

	// Payment ledger
	payment := ledger.NewConfidentialToken("Wrapped Ether Confidential", "WETHc", 0, cop, bus)
	if _, err := os.Stat(cfg.LedgerPath); err == nil {
		if err := payment.LoadFromFile(cfg.LedgerPath); err != nil {
			log.WithError(err).Warn("failed to load ledger snapshot, starting empty")
		} else {
			log.WithField("path", cfg.LedgerPath).Info("ledger snapshot loaded")
		}
	}

	// Engine wiring
	registry := server.NewRegistry()
	factory := auction.NewFactory(cop, bus, payment, nil)
	handler := server.NewHandler(factory, payment, cop, registry)
	limiter := NewRateLimiter(cfg.RateLimitTokens, 1, time.Duration(cfg.RateLimitRefillMs)*time.Millisecond)

	metrics := NewMetricsCollector()
	metrics.ObserveBus(bus)

	health := NewHealthChecker(version)
	health.RegisterComponent("coprocessor", func() error {
		ct := cop.TrivialEncrypt(1)
		v, err := cop.DebugDecrypt(ct)
		if err != nil {
			return err
		}
		if v.Uint64() != 1 {
			return errors.New("coprocessor store roundtrip mismatch")
		}
		return nil
	})
	health.RegisterComponent("ledger", func() error {
		return payment.SaveToFile(cfg.LedgerPath)
	})

	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.SetupRouter(handler, limiter.Allow)
	startTime := time.Now()
	router.GET("/healthz", func(c *gin.Context) {
		h := health.CheckHealth()
		status := http.StatusOK
		if h.OverallStatus == Unhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, h)
	})
	router.GET("/metrics", func(c *gin.Context) {
		metrics.RecordUptime(startTime)
		metrics.RecordCoprocessorOps(cop.OpCount())
		c.JSON(http.StatusOK, metrics.GetMetricsSummary())
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Background loops: ledger snapshots and disclosure resolution.
	go func() {
		snap := time.NewTicker(time.Duration(cfg.SnapshotIntervalSec) * time.Second)
		disclose := time.NewTicker(5 * time.Second)
		defer snap.Stop()
		defer disclose.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-snap.C:
				if err := payment.SaveToFile(cfg.LedgerPath); err != nil {
					log.WithError(err).Error("ledger snapshot failed")
				}
			case <-disclose.C:
				if n, err := cop.ResolvePending(); err != nil {
					log.WithError(err).Error("disclosure resolution failed")
				} else if n > 0 {
					log.WithField("resolved", n).Info("disclosures resolved")
				}
			}
		}
	}()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if err := payment.SaveToFile(cfg.LedgerPath); err != nil {
		log.WithError(err).Error("final ledger snapshot failed")
	}
	log.Info("auctiond stopped")
}
