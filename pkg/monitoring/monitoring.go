package monitoring

import (
	"context"
	"fmt"
	"net/http/pprof"

	"github.com/classkit/collab/pkg/config"
	"github.com/classkit/collab/pkg/logger"
	"github.com/classkit/collab/pkg/network/httpx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitoring serves the Prometheus metrics and pprof profiling
// endpoints of a service on a dedicated port.
type Monitoring struct {
	conf   config.Monitoring
	log    *logger.Logger
	server *httpx.Server
}

func New(conf config.Monitoring, log *logger.Logger) (*Monitoring, error) {
	log = log.Extend(log.With().Str("m", "mon"))
	server, err := httpx.NewServer(
		fmt.Sprintf(":%d", conf.Port),
		func(serv *httpx.Server) httpx.Handler {
			h := serv.Mux()

			if conf.ProfilingEnabled {
				prefix := conf.URLPrefix + "/debug/pprof"
				log.Info().Msgf("profiling at %v%v", serv.Addr, prefix)
				h.HandleFunc(prefix+"/", pprof.Index)
				h.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
				h.HandleFunc(prefix+"/profile", pprof.Profile)
				h.HandleFunc(prefix+"/symbol", pprof.Symbol)
				h.HandleFunc(prefix+"/trace", pprof.Trace)
				// the pprof index only lists the default paths, so
				// each profile is bound explicitly
				h.Handle(prefix+"/allocs", pprof.Handler("allocs"))
				h.Handle(prefix+"/block", pprof.Handler("block"))
				h.Handle(prefix+"/goroutine", pprof.Handler("goroutine"))
				h.Handle(prefix+"/heap", pprof.Handler("heap"))
				h.Handle(prefix+"/mutex", pprof.Handler("mutex"))
				h.Handle(prefix+"/threadcreate", pprof.Handler("threadcreate"))
			}

			if conf.MetricEnabled {
				path := conf.URLPrefix + "/metrics"
				log.Info().Msgf("metrics at %v%v", serv.Addr, path)
				h.Handle(path, promhttp.Handler())
			}
			return h
		},
		httpx.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return &Monitoring{conf: conf, log: log, server: server}, nil
}

func (m *Monitoring) Run() error {
	m.log.Info().Msgf("monitoring at %v", m.server.Addr)
	return m.server.Run()
}

func (m *Monitoring) Shutdown(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
