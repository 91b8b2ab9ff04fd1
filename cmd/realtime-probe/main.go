package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/logger/pkg/logger"
	"github.com/medora-health/realtime/config"
	"github.com/medora-health/realtime/internal/api"
	"github.com/medora-health/realtime/internal/domain"
	"github.com/medora-health/realtime/internal/service"
	"github.com/medora-health/realtime/internal/store"
	"github.com/medora-health/realtime/internal/transport/ws"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagToken        string
	flagConsultation int64
)

func main() {
	root := &cobra.Command{
		Use:   "realtime-probe",
		Short: "Headless telehealth realtime client: connects the presence channel and tails events",
		RunE:  run,
	}
	root.Flags().StringVar(&flagToken, "token", "", "access token to store before connecting")
	root.Flags().Int64Var(&flagConsultation, "consultation", 0, "consultation to join and sync")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")

	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting realtime probe",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version)

	// --- store ---
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	if flagToken != "" {
		if err := st.SetToken(flagToken); err != nil {
			log.Fatalf("store token: %v", err)
		}
	}
	tokens := store.TokenSource{Store: st}

	// --- realtime client ---
	client := ws.NewClient(tokens, ws.Options{
		ReconnectAttempts: cfg.Realtime.ReconnectAttempts,
		ReconnectDelay:    cfg.ReconnectDelay(),
		Heartbeat:         cfg.Heartbeat(),
	})
	defer client.Disconnect()

	client.OnStateChange(func(from, to ws.State) {
		slog.Info("state change", "from", from.String(), "to", to.String())
	})
	for _, t := range []string{ws.TypeNotification, ws.TypeSystemBroadcast, ws.TypeStatusResponse, ws.TypeError} {
		frameType := t
		client.On(frameType, func(f ws.Frame) {
			slog.Info("frame", "type", frameType, "data", f.Data)
		})
	}

	// --- incoming calls ---
	calls := service.NewCallService(nil, func(call domain.IncomingCall) {
		slog.Info("accepted call, navigate", "consultation", call.ConsultationID, "appointment", call.AppointmentID)
	})
	calls.SetRingTimeout(cfg.RingTimeout())
	calls.Bind(client)

	endpoint, err := ws.UserEndpoint(cfg.API.BaseURL)
	if err != nil {
		log.Fatalf("endpoint: %v", err)
	}

	ctx := context.Background()
	if err := client.Connect(ctx, endpoint); err != nil {
		log.Fatalf("connect: %v", err)
	}
	client.Send(ws.Frame{Type: ws.TypeGetStatus, Timestamp: time.Now().UnixMilli()})

	// --- consultation sync ---
	if flagConsultation > 0 {
		rest := api.NewClient(cfg.API.BaseURL, tokens)
		session := service.NewChatSession(rest, st, flagConsultation, "")
		session.Bind(client)
		client.Join(ws.ConsultationGroup(flagConsultation))
		if err := session.LoadInitial(ctx); err != nil {
			slog.Error("initial load failed", "err", err)
		} else {
			slog.Info("conversation loaded", "messages", len(session.Messages()), "hasMore", session.HasMore())
		}
	}

	// --- shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutdown signal", "sig", sig)

	client.Disconnect()
	slog.Info("stopped")
	return nil
}
