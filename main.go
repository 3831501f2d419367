package main

import (
	"codecollab-server/broadcast"
	"codecollab-server/config"
	"codecollab-server/core"
	"codecollab-server/handlers/api/rooms"
	"codecollab-server/handlers/websocket"
	"codecollab-server/metrics"
	"codecollab-server/presence"
	roomregistry "codecollab-server/rooms"
	"codecollab-server/session"
	"codecollab-server/stores"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

func setupRouter(coord *session.Coordinator, activity core.ActivityStore, cfg config.Config) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(metrics.Middleware)

	corsOptions := cors.Options{
		AllowedOrigins: append([]string{"tauri://localhost"}, cfg.AllowedOrigins...),
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			if origin == "" {
				return false
			}

			parsed, err := url.Parse(origin)
			if err != nil {
				return false
			}

			switch parsed.Scheme {
			case "http", "https":
				switch parsed.Hostname() {
				case "localhost", "127.0.0.1", "::1":
					return true
				}
			case "tauri":
				return parsed.Hostname() == "localhost"
			}

			return false
		},
		AllowedMethods:   []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	r.Use(cors.Handler(corsOptions))

	r.Get("/healthz", rooms.HandleHealth())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", rooms.HandleList(coord, activity))
		r.Route("/{roomId}", func(r chi.Router) {
			r.Get("/", rooms.HandleGet(coord))
			r.Delete("/", rooms.HandleDelete(coord, activity))
			r.Get("/typing", rooms.HandleTyping(coord))
			r.Get("/files/{fileId}", rooms.HandleFile(coord))
		})
	})

	return r
}

func waitForShutdown(cancel context.CancelFunc, srv *http.Server, ioo *socketio.Server, closers ...io.Closer) {
	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down...")
	cancel()
	ioo.Close(nil)

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close store")
		}
	}
}

func main() {
	// Define a log level flag
	logLevel := flag.String("loglevel", "info", "Set the logging level: debug, info, warn, error, fatal, panic")
	listenAddr := flag.String("listen", ":3002", "Set the server listen address")
	envFile := flag.String("env", ".env", "Optional env file read before the environment")
	flag.Parse()

	// Set the log level
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(*envFile)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	activity, err := stores.GetActivityStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open activity store")
	}
	var closers []io.Closer
	if c, ok := activity.(io.Closer); ok {
		closers = append(closers, c)
	}

	tracker := presence.NewTracker(cfg.TypingTTL)
	go tracker.Run(ctx)

	coord := session.NewCoordinator(
		roomregistry.NewRegistry(cfg.DefaultLanguage),
		tracker,
		broadcast.NewRouter(),
		activity,
	)

	r := setupRouter(coord, activity, cfg)
	ioo := websocket.SetupSocketIO(coord, cfg)
	r.Handle("/socket.io/", ioo.ServeHandler(nil))

	srv := &http.Server{Addr: *listenAddr, Handler: r}

	logrus.WithFields(logrus.Fields{
		"addr":             *listenAddr,
		"default_language": cfg.DefaultLanguage,
		"typing_ttl":       cfg.TypingTTL,
	}).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	logrus.Debug("Server is running in the background")
	waitForShutdown(cancel, srv, ioo, closers...)
}
