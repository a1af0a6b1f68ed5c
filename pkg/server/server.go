// Package server runs a set of long-lived services as one unit.
package server

import (
	"context"

	"github.com/classkit/collab/pkg/logger"
)

type Server interface {
	Run() error
	Shutdown(ctx context.Context) error
	String() string
}

type Services struct {
	list []Server
	log  *logger.Logger
}

func NewServices(log *logger.Logger, servers ...Server) *Services {
	return &Services{list: servers, log: log}
}

func (svs *Services) Add(s Server) { svs.list = append(svs.list, s) }

// Start launches every service in its own goroutine.
func (svs *Services) Start() {
	for _, s := range svs.list {
		s := s
		go func() {
			if err := s.Run(); err != nil {
				svs.log.Error().Err(err).Msgf("service [%s] failed", s)
			}
		}()
	}
}

// Shutdown stops the services in reverse start order.
func (svs *Services) Shutdown(ctx context.Context) {
	for i := len(svs.list) - 1; i >= 0; i-- {
		s := svs.list[i]
		if err := s.Shutdown(ctx); err != nil {
			svs.log.Error().Err(err).Msgf("service [%s] shutdown", s)
		}
	}
}
