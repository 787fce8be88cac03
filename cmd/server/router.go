package main

import (
	"errors"
	"log/slog"
	"net/http"
	stdhttputil "net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edgeguard/internal/platform/config"
	"edgeguard/internal/platform/health"
	"edgeguard/internal/platform/httpclient"
	"edgeguard/internal/security/handler"
	secmiddleware "edgeguard/internal/security/middleware"
	dErrors "edgeguard/pkg/domain-errors"
	"edgeguard/pkg/platform/httputil"
	"edgeguard/pkg/platform/middleware/admin"
	"edgeguard/pkg/platform/middleware/metadata"
	"edgeguard/pkg/platform/middleware/request"
	"edgeguard/pkg/platform/middleware/requesttime"
	"edgeguard/pkg/platform/middleware/securityheaders"
	"edgeguard/pkg/platform/validation"
	"edgeguard/pkg/requestcontext"
)

const adminTimeout = 30 * time.Second

func newRouter(cfg config.Server, sec *security, healthHandler *health.Handler, log *slog.Logger, reg prometheus.Registerer) (http.Handler, error) {
	proxy, err := newProxy(cfg, log)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.NewMiddleware(&metadata.Config{
		TrustForwardHeaders: cfg.TrustForwardHeaders,
		TrustedProxies:      cfg.TrustedProxies,
	}).Handler)
	r.Use(securityheaders.Middleware(securityheaders.DefaultConfig()))
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(request.LatencyMiddleware(request.NewMetricsWith(reg), routePattern))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	adminHandler := handler.New(sec.sink, sec.blocks, log)
	r.Route("/admin", func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.AdminToken, log))
		r.Use(request.ContentTypeJSON)
		r.Use(request.BodyLimit(validation.MaxBodySize))
		r.Use(request.Timeout(adminTimeout))
		adminHandler.RegisterAdmin(r)
	})

	guard := secmiddleware.New(sec.pipeline, sec.sink, sec.maxBody, log)
	r.Handle("/*", guard.Handler(proxy))
	return r, nil
}

// newProxy forwards allowed traffic upstream through a per-host throttled
// transport. Without an upstream every allowed request gets a JSON 404.
func newProxy(cfg config.Server, log *slog.Logger) (http.Handler, error) {
	if cfg.UpstreamURL == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no upstream configured"))
		}), nil
	}
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, dErrors.Configuration("invalid UPSTREAM_URL: " + err.Error())
	}
	transport, err := httpclient.NewThrottledTransport(cfg.UpstreamRate, cfg.UpstreamBurst,
		httpclient.WithTransport(httpclient.NewTransport()))
	if err != nil {
		return nil, err
	}

	proxy := stdhttputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		ctx := r.Context()
		if errors.Is(err, httpclient.ErrThrottled) {
			log.WarnContext(ctx, "upstream throttled",
				"host", target.Host,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "upstream busy"))
			return
		}
		log.ErrorContext(ctx, "upstream request failed",
			"error", err,
			"host", target.Host,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteJSON(w, http.StatusBadGateway, map[string]string{"error": "bad_gateway"})
	}
	return proxy, nil
}
