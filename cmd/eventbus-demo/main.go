// Command eventbus-demo is a minimal service built on the service skeleton:
// it subscribes to one topic synchronously and one asynchronously, and
// republishes a derived event for every user message it handles. It exists to
// exercise internal/service.Manager end to end against a real Redis
// instance, the same role orion-bus played for the bare bus package.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aire-platform/eventbus/internal/config"
	"github.com/aire-platform/eventbus/internal/envelope"
	"github.com/aire-platform/eventbus/internal/eventbus"
	"github.com/aire-platform/eventbus/internal/logging"
	"github.com/aire-platform/eventbus/internal/metrics"
	"github.com/aire-platform/eventbus/internal/service"
	"github.com/aire-platform/eventbus/internal/shutdown"
	"github.com/aire-platform/eventbus/internal/subscription"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the service configuration file")
	serviceName := flag.String("service-name", "dialogue-echo", "Service name used for config lookup and consumer identity")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warning, error)")
	httpAddr := flag.String("http-addr", ":8080", "Address for the health and metrics HTTP server")
	debugMode := flag.Bool("debug", false, "Reset consumer groups on startup and replay history")
	flag.Parse()

	log := logging.New(logging.Config{Level: logging.Level(*logLevel)})
	log.With("version", version).With("service", *serviceName).Info("eventbus-demo starting")

	cfg, err := config.Load(*configPath, log)
	if err != nil {
		log.Errorf("failed to load configuration", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := newEchoService(*serviceName, log)
	mgr := service.New(svc, cfg, eventbus.NewRegistry(), log)
	mgr.SetConsumerConfig(nil, nil, debugMode)

	if err := mgr.Start(ctx); err != nil {
		log.Errorf("failed to start service", err)
		os.Exit(1)
	}
	log.With("topics", mgr.SubscribedTopics()).Info("service started")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "ok"
		if !mgr.IsRunning() {
			status = "stopped"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  status,
			"service": *serviceName,
			"version": version,
		})
	})
	mux.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}
	go func() {
		log.With("addr", *httpAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server failed", err)
		}
	}()

	coordinator := shutdown.NewCoordinator(25*time.Second, log)
	err = coordinator.WaitForShutdown(ctx,
		func(cleanupCtx context.Context) error {
			return httpServer.Shutdown(cleanupCtx)
		},
		func(cleanupCtx context.Context) error {
			return mgr.Stop(cleanupCtx)
		},
	)
	if err != nil {
		log.Errorf("shutdown completed with errors", err)
		os.Exit(1)
	}

	log.Info("eventbus-demo stopped cleanly")
}

// echoService is the demo's Hooks implementation: it republishes every
// user_message_raw it receives as a dialogue_turn, synchronously, and logs
// every session_closed notification asynchronously.
type echoService struct {
	name string
	log  logging.Logger
	bus  eventbus.Bus
}

func newEchoService(name string, log logging.Logger) *echoService {
	return &echoService{name: name, log: log.With("component", "echo-service")}
}

func (s *echoService) ServiceName() string { return s.name }

// InitializeBusinessComponents stores the bus Manager already built so
// the message handlers below can republish derived events on it.
func (s *echoService) InitializeBusinessComponents(ctx context.Context, bus eventbus.Bus) error {
	s.bus = bus
	return nil
}

func (s *echoService) MessageHandlers() map[string]subscription.HandlerSpec {
	return map[string]subscription.HandlerSpec{
		"user_message_raw": {Handler: s.handleUserMessage},
		"session_closed":   {Handler: s.handleSessionClosed, Async: true},
	}
}

func (s *echoService) handleUserMessage(ctx context.Context, messageID string, payload map[string]any) error {
	text, _ := payload["text"].(string)
	sessionID, _ := payload["dialogue_session_id"].(string)
	s.log.With("message_id", messageID).With("session", sessionID).Debug("echoing user message as dialogue turn")

	derived := map[string]any{
		"speaker":              "assistant",
		"utterance":            fmt.Sprintf("echo: %s", text),
		"dialogue_session_id":  sessionID,
		"in_response_to_event": messageID,
	}
	env := envelope.Build(derived, s.name, envelope.BuildParams{EventType: "DialogueTurnProduced"})

	_, err := s.bus.Publish(ctx, "dialogue_turn", env)
	return err
}

func (s *echoService) handleSessionClosed(ctx context.Context, messageID string, payload map[string]any) error {
	sessionID, _ := payload["dialogue_session_id"].(string)
	s.log.With("message_id", messageID).With("session", sessionID).Info("session closed")
	return nil
}
