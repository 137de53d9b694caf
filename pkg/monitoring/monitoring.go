// Package monitoring serves the metrics, the profiler and the session event feed.
package monitoring

import (
	"context"
	"fmt"
	"net/http/pprof"

	"github.com/dualive/capture/pkg/config"
	"github.com/dualive/capture/pkg/logger"
	"github.com/dualive/capture/pkg/network/httpx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Monitoring struct {
	conf   config.Monitoring
	server *httpx.Server
	events *Hub
	log    *logger.Logger
}

// New creates new monitoring service.
func New(conf config.Monitoring, log *logger.Logger) (*Monitoring, error) {
	log = log.Module("monitoring")
	m := &Monitoring{conf: conf, events: NewHub(log), log: log}
	serv, err := httpx.NewServer(
		fmt.Sprintf(":%d", conf.Port),
		func(serv *httpx.Server) httpx.Handler {
			h := httpx.NewServeMux(conf.URLPrefix)

			if conf.ProfilingEnabled {
				log.Info().Msgf("Profiling is enabled at %v", serv.Addr+h.Prefix()+"/debug/pprof")
				h.HandleFunc("/debug/pprof/", pprof.Index)
				h.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
				h.HandleFunc("/debug/pprof/profile", pprof.Profile)
				h.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
				h.HandleFunc("/debug/pprof/trace", pprof.Trace)
				// the named profiles are not reachable through Index under a custom prefix
				for _, p := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
					h.Handle("/debug/pprof/"+p, pprof.Handler(p))
				}
			}

			if conf.MetricEnabled {
				log.Info().Msgf("Prometheus metric is enabled at %v", serv.Addr+h.Prefix()+"/metrics")
				h.Handle("/metrics", promhttp.Handler())
			}

			if conf.EventsEnabled {
				log.Info().Msgf("Event feed is enabled at %v", serv.Addr+h.Prefix()+"/events")
				h.Handle("/events", m.events)
			}
			return h
		},
		httpx.WithPortRoll(true),
		httpx.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	m.server = serv
	return m, nil
}

// Events returns the event feed, publishing into it with the feed disabled is fine.
func (m *Monitoring) Events() *Hub { return m.events }

func (m *Monitoring) Addr() string { return m.server.Addr }

func (m *Monitoring) Run() {
	m.log.Info().Msgf("Starting monitoring server at %v", m.server.Addr)
	m.server.Run()
}

func (m *Monitoring) Shutdown(ctx context.Context) error {
	m.log.Info().Msg("Shutting down monitoring server")
	m.events.Close()
	return m.server.Shutdown(ctx)
}

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
