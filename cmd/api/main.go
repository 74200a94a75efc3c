package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lexhub.org/internal/appointment"
	"lexhub.org/internal/assistant"
	"lexhub.org/internal/chat"
	"lexhub.org/internal/config"
	"lexhub.org/internal/directory"
	"lexhub.org/internal/document"
	"lexhub.org/internal/esign"
	"lexhub.org/internal/estamp"
	"lexhub.org/internal/httpapi"
	"lexhub.org/internal/mail"
	"lexhub.org/internal/obs"
	"lexhub.org/internal/payment"
	"lexhub.org/internal/store/pg"
)

// Overridden at build time via -ldflags.
var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Optional Postgres snapshot store: mutations write through, state is
	// read back on boot, and /readyz pings it.
	var store *pg.Store
	if cfg.PostgresDSN != "" {
		store, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
	}

	var mailer mail.Mailer
	if cfg.SMTPAddr != "" {
		mailer = mail.NewSMTP(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass)
	} else {
		// Codes land in the log instead of a mailbox.
		mailer = mail.LogOnly{}
	}

	var gateway payment.Gateway
	if cfg.GatewayKeyID != "" {
		gateway = payment.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayKeyID, cfg.GatewaySecret)
	} else {
		gateway = payment.NewFakeGateway()
	}

	dir := directory.NewInMemory()
	appts := appointment.NewInMemory(dir)
	docs := document.NewInMemory(dir, mailer)
	esigns := esign.NewInMemory(mailer)
	estamps := estamp.NewInMemory(cfg.GatewaySecret)
	payments := payment.NewInMemory(gateway, cfg.GatewaySecret)

	// A completed payment marks its subject paid.
	payments.OnCompleted(func(ctx context.Context, kind, refID, gatewayPaymentID string) error {
		switch kind {
		case payment.KindAppointment:
			_, err := appts.MarkPaid(ctx, refID)
			return err
		case payment.KindEStamp:
			_, err := estamps.MarkPaid(ctx, refID, gatewayPaymentID)
			return err
		}
		return nil
	})

	if store != nil {
		warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		users, err := store.ListUsers(warmCtx)
		if err != nil {
			log.Fatalf("warm users: %v", err)
		}
		profiles, err := store.ListLawyerProfiles(warmCtx)
		if err != nil {
			log.Fatalf("warm lawyer profiles: %v", err)
		}
		pays, err := store.ListPayments(warmCtx)
		if err != nil {
			log.Fatalf("warm payments: %v", err)
		}
		cancel()
		dir.Warm(users, profiles)
		payments.Warm(pays)
		dir.Persist(store)
		payments.Persist(store)
		log.Printf("Warmed %d users, %d lawyer profiles, %d payments", len(users), len(profiles), len(pays))
	}

	var assist *assistant.Service
	if cfg.AssistantAPIKey != "" {
		assist, err = assistant.New(cfg.AssistantAPIKey, cfg.AssistantBaseURL, cfg.AssistantModel)
		if err != nil && !errors.Is(err, assistant.ErrNotConfigured) {
			log.Fatalf("assistant: %v", err)
		}
	}

	probe := httpapi.ReadyProbe{}
	if store != nil {
		probe.DB = store.DB()
	}
	api := httpapi.New(probe, version, httpapi.Services{
		Directory:    dir,
		Appointments: appts,
		Documents:    docs,
		ESign:        esigns,
		EStamps:      estamps,
		Payments:     payments,
		Assistant:    assist,
		Chat:         chat.NewHub(),
	})
	api.SetLimits(cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.MaxBodyBytes)
	api.SetTokenTTLs(cfg.AccessTTL, cfg.RefreshTTL)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting lexhub-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
