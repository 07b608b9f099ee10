// Package promsniffer is a built-in sniffer module that counts request
// traffic as Prometheus metrics. When configured with a listen address it
// also serves a /metrics scrape endpoint on its own listener, the way
// standalone exporters do.
package promsniffer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modserve/modserve/pkg/httpmsg"
	"github.com/modserve/modserve/pkg/module"
	"github.com/modserve/modserve/pkg/modules"
)

// ModuleName is the catalog name of this sniffer.
const ModuleName = "prometheus"

func init() {
	modules.RegisterSniffer(ModuleName, func(conf module.Conf) (module.Sniffer, error) {
		return New(conf)
	})
}

// Config is the module configuration.
type Config struct {
	// Listen is the scrape endpoint address (ex: ":9090"). Empty disables
	// the endpoint; the registry is still populated and reachable through
	// Gatherer.
	Listen string `json:"listen"`
}

// Sniffer observes dispatches and exports counters. Each instance owns its
// own Prometheus registry so multiple instances never collide.
type Sniffer struct {
	registry  *prometheus.Registry
	requests  prometheus.Counter
	responses *prometheus.CounterVec
	misses    prometheus.Counter
	server    *http.Server
}

// New builds the sniffer from its module configuration.
func New(conf module.Conf) (*Sniffer, error) {
	var cfg Config
	if data := conf.Read(); len(data) > 0 {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("promsniffer: conf: %w", err)
		}
	}

	s := &Sniffer{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modserve_requests_total",
			Help: "Requests received, before dispatch.",
		}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modserve_responses_total",
			Help: "Responses produced, by status class.",
		}, []string{"class"}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modserve_request_misses_total",
			Help: "Requests no handler resolved.",
		}),
	}
	s.registry.MustRegister(s.requests, s.responses, s.misses)

	if cfg.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		s.server = &http.Server{Addr: cfg.Listen, Handler: mux}
		go func() {
			// The scrape listener lives for the process; ListenAndServe
			// only returns on failure.
			_ = s.server.ListenAndServe()
		}()
	}
	return s, nil
}

// Gatherer exposes the metric registry for scraping and tests.
func (s *Sniffer) Gatherer() prometheus.Gatherer {
	return s.registry
}

// GotRequest implements module.Sniffer.
func (s *Sniffer) GotRequest(_ *httpmsg.Request, _ module.Logger) {
	s.requests.Inc()
}

// GotResponse implements module.Sniffer.
func (s *Sniffer) GotResponse(_ *httpmsg.Request, resp *httpmsg.Response, _ module.Logger) {
	s.responses.WithLabelValues(statusClass(resp.Status)).Inc()
}

// GotRequestMiss implements module.Sniffer.
func (s *Sniffer) GotRequestMiss(_ *httpmsg.Request, _ module.Logger) {
	s.misses.Inc()
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
