package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/veravid/veravid/internal/platform/requestmeta"
	"github.com/veravid/veravid/internal/platform/timeouts"
	authhttp "github.com/veravid/veravid/internal/services/auth/api/http"
	"github.com/veravid/veravid/internal/services/auth/passkey"
	"github.com/veravid/veravid/internal/services/auth/session"
	authsqlite "github.com/veravid/veravid/internal/services/auth/storage/sqlite"
	notifhttp "github.com/veravid/veravid/internal/services/notifications/api/http"
	notifapp "github.com/veravid/veravid/internal/services/notifications/app"
	notifdomain "github.com/veravid/veravid/internal/services/notifications/domain"
	"github.com/veravid/veravid/internal/services/notifications/registry"
	notifsqlite "github.com/veravid/veravid/internal/services/notifications/storage/sqlite"
	verifhttp "github.com/veravid/veravid/internal/services/verification/api/http"
	verifdomain "github.com/veravid/veravid/internal/services/verification/domain"
	verifsqlite "github.com/veravid/veravid/internal/services/verification/storage/sqlite"
	videohttp "github.com/veravid/veravid/internal/services/videos/api/http"
	videodomain "github.com/veravid/veravid/internal/services/videos/domain"
	videosqlite "github.com/veravid/veravid/internal/services/videos/storage/sqlite"
)

// Server hosts the VeraVid HTTP API: auth ceremonies, video uploads,
// verification decisions, and the notification inbox share one listener.
type Server struct {
	listener   net.Listener
	httpServer *http.Server

	authStore  *authsqlite.Store
	videoStore *videosqlite.Store
	verifStore *verifsqlite.Store
	notifStore *notifsqlite.Store

	redisClient *redis.Client
	natsConn    *nats.Conn
}

// New creates a configured server listening on cfg.HTTPAddr.
func New(ctx context.Context, cfg Config) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.HTTPAddr, err)
	}

	srv := &Server{listener: listener}
	closeOnErr := func() {
		srv.closeResources()
		_ = listener.Close()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		closeOnErr()
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if srv.authStore, err = authsqlite.Open(filepath.Join(cfg.DataDir, "auth.db")); err != nil {
		closeOnErr()
		return nil, fmt.Errorf("open auth store: %w", err)
	}
	if srv.videoStore, err = videosqlite.Open(filepath.Join(cfg.DataDir, "videos.db")); err != nil {
		closeOnErr()
		return nil, fmt.Errorf("open video store: %w", err)
	}
	if srv.verifStore, err = verifsqlite.Open(filepath.Join(cfg.DataDir, "verification.db")); err != nil {
		closeOnErr()
		return nil, fmt.Errorf("open verification store: %w", err)
	}
	if srv.notifStore, err = notifsqlite.Open(filepath.Join(cfg.DataDir, "notifications.db")); err != nil {
		closeOnErr()
		return nil, fmt.Errorf("open notification store: %w", err)
	}

	sessionConfig := session.LoadConfigFromEnv()
	srv.redisClient, err = session.NewRedisClient(ctx, sessionConfig.RedisURL)
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	sessions := session.NewStore(srv.redisClient, sessionConfig.TTL)

	var reg registry.Registry
	if cfg.NATSURL != "" {
		srv.natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			closeOnErr()
			return nil, fmt.Errorf("connect to nats: %w", err)
		}
		reg = registry.NewNATSBridge(srv.natsConn, "", nil)
	} else {
		reg = registry.NewHub()
	}

	ticketConfig, err := notifhttp.LoadTicketConfigFromEnv()
	if err != nil {
		closeOnErr()
		return nil, err
	}

	passkeyConfig := passkey.LoadConfigFromEnv()
	passkeys := passkey.NewService(srv.authStore, srv.authStore, sessions)

	notifications := notifdomain.NewService(srv.notifStore)
	notifier := notifapp.NewDecisionNotifier(srv.videoStore, notifications, reg, nil)
	decisions := verifdomain.NewService(srv.verifStore, passkeys, notifier, nil)
	videos := videodomain.NewService(srv.videoStore, srv.authStore, srv.verifStore, nil)

	policy := requestmeta.SchemePolicy{TrustForwardedProto: cfg.TrustProxyHeaders}

	mux := http.NewServeMux()
	authhttp.NewHandler(srv.authStore, sessions, passkeys, passkeyConfig, policy, nil).RegisterRoutes(mux)
	videohttp.NewHandler(videos, sessions, nil).RegisterRoutes(mux)
	verifhttp.NewHandler(decisions, sessions, passkeyConfig, policy, nil).RegisterRoutes(mux)
	notifhttp.NewHandler(notifications, reg, ticketConfig, nil).RegisterRoutes(mux)
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	var handler http.Handler = authhttp.SessionMiddleware(sessions, authhttp.SameOriginMiddleware(policy, mux))
	if len(cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
		}).Handler(handler)
	}

	srv.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return srv, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a server until the context ends.
func Run(ctx context.Context, cfg Config) error {
	srv, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

// Serve starts the server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeResources()

	log.Printf("veravid server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func (s *Server) closeResources() {
	if s == nil {
		return
	}
	if s.natsConn != nil {
		s.natsConn.Close()
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Printf("close redis client: %v", err)
		}
	}
	closeStore := func(name string, closer interface{ Close() error }) {
		if err := closer.Close(); err != nil {
			log.Printf("close %s store: %v", name, err)
		}
	}
	if s.authStore != nil {
		closeStore("auth", s.authStore)
	}
	if s.videoStore != nil {
		closeStore("video", s.videoStore)
	}
	if s.verifStore != nil {
		closeStore("verification", s.verifStore)
	}
	if s.notifStore != nil {
		closeStore("notification", s.notifStore)
	}
}
