package simulator

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cardvault/internal/platform/health"
	"cardvault/internal/vault/transport"
	"cardvault/internal/vault/transport/soap"
	"cardvault/pkg/platform/middleware/request"
)

// DefaultPath is where the management service is mounted.
const DefaultPath = "/Management.svc"

const maxRequestBytes = 1 << 20

type handler struct {
	vault     *Vault
	path      string
	namespace string
	logger    *slog.Logger
	health    *health.Handler
	metrics   http.Handler
	latency   *request.Metrics
}

// HandlerOption configures NewHandler.
type HandlerOption func(*handler)

// WithPath mounts the service at path instead of DefaultPath.
func WithPath(path string) HandlerOption {
	return func(h *handler) {
		h.path = path
	}
}

// WithNamespace sets the service namespace requests must use and replies carry.
func WithNamespace(ns string) HandlerOption {
	return func(h *handler) {
		if ns != "" {
			h.namespace = ns
		}
	}
}

// WithHandlerLogger sets the logger for request handling.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *handler) {
		h.logger = logger
	}
}

// WithHealth mounts the given health handler instead of a fresh one.
func WithHealth(hh *health.Handler) HandlerOption {
	return func(h *handler) {
		h.health = hh
	}
}

// WithMetricsHandler serves m on /metrics instead of the default registry.
func WithMetricsHandler(m http.Handler) HandlerOption {
	return func(h *handler) {
		h.metrics = m
	}
}

// WithRequestMetrics records per-route latency into m.
func WithRequestMetrics(m *request.Metrics) HandlerOption {
	return func(h *handler) {
		h.latency = m
	}
}

// NewHandler serves v as a SOAP endpoint, with health probes and Prometheus
// metrics alongside.
func NewHandler(v *Vault, opts ...HandlerOption) http.Handler {
	h := &handler{
		vault:     v,
		path:      DefaultPath,
		namespace: soap.DefaultNamespace,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.health == nil {
		h.health = health.New("simulator")
	}
	if h.metrics == nil {
		h.metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(request.Logger(h.logger))
	r.Use(request.Latency(h.latency))
	r.Use(request.BodyLimit(maxRequestBytes))

	h.health.Register(r)
	r.Method(http.MethodGet, "/metrics", h.metrics)
	r.Get(h.path, h.serveWSDL)
	r.Post(h.path, h.serveSOAP)
	return r
}

func (h *handler) serveSOAP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", middleware.GetReqID(ctx))

	creds, op, req, err := soap.DecodeRequest(r.Body, h.namespace)
	if err != nil {
		logger.WarnContext(ctx, "rejecting malformed soap request", "error", err)
		h.writeFault(w, soap.FaultClient, err.Error())
		return
	}
	if err := h.vault.Authenticate(creds.ClientCode, creds.UserName, creds.Password); err != nil {
		logger.WarnContext(ctx, "rejecting credentials", "operation", op.String(), "client_code", creds.ClientCode)
		h.writeFault(w, soap.FaultAuthentication, "invalid client credentials")
		return
	}

	reply, err := h.vault.Invoke(ctx, op, req)
	if err != nil {
		logger.ErrorContext(ctx, "simulated call failed", "operation", op.String(), "error", err)
		h.writeFault(w, soap.FaultServer, "internal error")
		return
	}

	var buf bytes.Buffer
	if err := soap.EncodeReply(&buf, h.namespace, op, reply); err != nil {
		logger.ErrorContext(ctx, "failed to encode reply", "operation", op.String(), "error", err)
		h.writeFault(w, soap.FaultServer, "internal error")
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *handler) writeFault(w http.ResponseWriter, code, message string) {
	var buf bytes.Buffer
	_ = soap.EncodeFault(&buf, code, message)
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(buf.Bytes())
}

// serveWSDL answers "?wsdl" with a minimal service description naming the
// operations and the address to post to.
func (h *handler) serveWSDL(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	address := fmt.Sprintf("%s://%s%s", scheme, r.Host, h.path)

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>
<wsdl:definitions xmlns:wsdl="http://schemas.xmlsoap.org/wsdl/" xmlns:soap="http://schemas.xmlsoap.org/wsdl/soap/" targetNamespace=%q>
  <wsdl:portType name="ManagementService">
`, h.namespace)
	for _, op := range transport.Operations {
		fmt.Fprintf(w, "    <wsdl:operation name=%q/>\n", op.String())
	}
	fmt.Fprintf(w, `  </wsdl:portType>
  <wsdl:service name="ManagementService">
    <wsdl:port name="ManagementServiceSoap" binding="ManagementServiceSoap">
      <soap:address location=%q/>
    </wsdl:port>
  </wsdl:service>
</wsdl:definitions>
`, address)
}
