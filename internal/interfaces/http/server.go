package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	interfaces "github.com/tdex-network/escrowd/internal/interfaces"
)

const shutdownTimeout = 10 * time.Second

// Opts is the struct given to NewService.
type Opts struct {
	Port      int
	APISecret string
	Escrow    EscrowService
}

func (o Opts) validate() error {
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("invalid listening port %d", o.Port)
	}
	if o.Escrow == nil {
		return fmt.Errorf("missing escrow service")
	}
	return nil
}

type service struct {
	server *http.Server
}

// NewService returns the http interface of the daemon.
func NewService(opts Opts) (interfaces.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	return &service{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           NewRouter(opts.Escrow, opts.APISecret),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start binds the listening port and serves in background.
func (s *service) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	go func() {
		if err := s.server.Serve(lis); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server stopped unexpectedly")
		}
	}()

	log.Infof("http interface listening on %s", s.server.Addr)
	return nil
}

func (s *service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop http interface")
		return
	}
	log.Info("http interface stopped")
}
