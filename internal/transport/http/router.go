package http

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"tugwar-quiz-service/internal/app"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	PublicURL string
	Gatherer  prometheus.Gatherer
	Logger    logrus.FieldLogger
}

// NewRouter wires the admin API, the websocket endpoint, health and metrics.
func NewRouter(service *app.GameService, opts RouterOptions) *httprouter.Router {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		opts.Logger.WithFields(logrus.Fields{"path": r.URL.Path, "panic": v}).Error("handler panic")
		writeJSON(w, http.StatusInternalServerError, errorPayload{Code: CodeInternal, Message: "internal error"})
	}

	NewAdminHandler(service, opts.PublicURL, opts.Logger).Register(mux)
	mux.HandlerFunc(http.MethodGet, "/ws", NewWSHandler(service, opts.Logger).ServeWS)
	mux.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	mux.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
