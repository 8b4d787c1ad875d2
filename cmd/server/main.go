package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/ValentinBorsan/SapereHub/internal/api"
	"github.com/ValentinBorsan/SapereHub/internal/auth"
	"github.com/ValentinBorsan/SapereHub/internal/config"
	"github.com/ValentinBorsan/SapereHub/internal/keepalive"
	"github.com/ValentinBorsan/SapereHub/internal/session"
	"github.com/ValentinBorsan/SapereHub/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	registry := session.NewRegistry()
	hub := ws.NewHub(registry)
	go hub.Run()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	upgradeCfg := ws.UpgradeConfig{
		AllowedOrigin: cfg.AllowedOrigin,
		MessageRate:   cfg.MessageRate,
		MessageBurst:  cfg.MessageBurst,
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, verifier, upgradeCfg, w, r)
	})
	api.New(hub, registry).Routes(router)

	pinger := keepalive.New(cfg.KeepAliveURL)
	pinger.Start()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logrus.Info("shutting down server")
		pinger.Stop()
		os.Exit(0)
	}()

	handler := corsMiddleware(cfg.AllowedOrigin, router)

	logrus.WithField("port", cfg.Port).Info("SapereHub live server starting")
	logrus.Info("endpoints:")
	logrus.Info("  - WebSocket: /ws?token={session token}")
	logrus.Info("  - Health:    GET /health")
	logrus.Info("  - Stats:     GET /api/stats")
	logrus.Info("  - Sessions:  GET /api/sessions, GET /api/sessions/{id}")

	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}

func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
