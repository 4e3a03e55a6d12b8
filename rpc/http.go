package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auctionhouse/core"
	"auctionhouse/core/events"
	"auctionhouse/native/auction"
	"auctionhouse/native/custody"
	"auctionhouse/observability/metrics"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
	requestIDHeader        = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020

	codeForbidden      = -32031
	codePrecondition   = -32032
	codeInvalidState   = -32033
	codeNotFound       = -32034
	codeInsufficient   = -32035
	codePriceTooLow    = -32036
	codeNonceMismatch  = -32037
	codeRequestTimeout = -32038
)

// ServerConfig configures the JSON-RPC server. Zero values select defaults.
type ServerConfig struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
	MaxBodyBytes       int64
	// TrustedProxies lists peers (IPs or CIDR blocks) whose X-Real-IP and
	// X-Forwarded-For headers name the client. TrustProxyHeaders trusts
	// every peer and is only safe behind a proxy that overwrites them.
	TrustedProxies    []string
	TrustProxyHeaders bool
	// Events backs auction_events; nil disables event history.
	Events  *events.Recorder
	Logger  *slog.Logger
	Metrics *metrics.AuctionMetrics
}

type Server struct {
	exec    *core.Executor
	events  *events.Recorder
	limiter *RateLimiter
	proxies proxyTrust
	logger  *slog.Logger
	metrics *metrics.AuctionMetrics
	maxBody int64
}

func NewServer(exec *core.Executor, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxRequestBytes
	}
	return &Server{
		exec:    exec,
		events:  cfg.Events,
		limiter: NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		proxies: newProxyTrust(cfg.TrustProxyHeaders, cfg.TrustedProxies),
		logger:  logger.With(slog.String("component", "rpc")),
		metrics: cfg.Metrics,
		maxBody: maxBody,
	}
}

// Handler returns the HTTP routes served by the daemon.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.rateLimit).Post("/rpc", s.handle)
	return r
}

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFromContext returns the request identifier assigned by the server.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(s.proxies.clientID(r)) {
			s.metrics.ObserveThrottled()
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// fail writes an error response and records its outcome.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, req *RPCRequest, status, code int, message string, data interface{}) {
	s.metrics.ObserveRPC(metricMethod(req.Method), code)
	s.logger.Info("rpc request failed",
		slog.String("requestId", RequestIDFromContext(r.Context())),
		slog.String("method", req.Method),
		slog.Int("code", code),
		slog.String("reason", message))
	writeError(w, status, req.ID, code, message, data)
}

func (s *Server) succeed(w http.ResponseWriter, r *http.Request, req *RPCRequest, result interface{}) {
	s.metrics.ObserveRPC(metricMethod(req.Method), 0)
	s.logger.Debug("rpc request served",
		slog.String("requestId", RequestIDFromContext(r.Context())),
		slog.String("method", req.Method))
	writeResult(w, req.ID, result)
}

var readMethods = map[string]struct{}{
	MethodGet:     {},
	MethodStatus:  {},
	MethodEvents:  {},
	MethodAccount: {},
	MethodReserve: {},
}

// metricMethod bounds the method label to the served set.
func metricMethod(method string) string {
	if _, ok := signedMethods[method]; ok {
		return method
	}
	if _, ok := readMethods[method]; ok {
		return method
	}
	return "unknown"
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.maxBody)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		s.fail(w, r, req, http.StatusBadRequest, codeInvalidRequest, "method required", nil)
		return
	}

	if build, ok := signedMethods[req.Method]; ok {
		s.handleSigned(w, r, req, build)
		return
	}
	switch req.Method {
	case MethodGet:
		s.handleAuctionGet(w, r, req)
	case MethodStatus:
		s.handleAuctionStatus(w, r, req)
	case MethodEvents:
		s.handleEvents(w, r, req)
	case MethodAccount:
		s.handleAccount(w, r, req)
	case MethodReserve:
		s.handleReserve(w, r, req)
	default:
		s.fail(w, r, req, http.StatusNotFound, codeMethodNotFound, "method not found", req.Method)
	}
}

// failWith maps an executor or engine error onto a JSON-RPC error.
func (s *Server) failWith(w http.ResponseWriter, r *http.Request, req *RPCRequest, err error) {
	status, code, message := classify(err)
	s.fail(w, r, req, status, code, message, err.Error())
}

func classify(err error) (int, int, string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, codeRequestTimeout, "request_cancelled"
	case errors.Is(err, core.ErrNonceMismatch):
		return http.StatusConflict, codeNonceMismatch, "nonce_mismatch"
	case errors.Is(err, core.ErrMissingCaller):
		return http.StatusUnauthorized, codeUnauthorized, "unauthorized"
	case errors.Is(err, auction.ErrAuctionNotFound),
		errors.Is(err, custody.ErrAccountNotFound),
		errors.Is(err, custody.ErrMintNotFound):
		return http.StatusNotFound, codeNotFound, "not_found"
	}
	switch auction.KindOf(err) {
	case auction.KindAuthorization:
		return http.StatusForbidden, codeForbidden, "forbidden"
	case auction.KindPrecondition:
		return http.StatusBadRequest, codePrecondition, "precondition_failed"
	case auction.KindState:
		return http.StatusConflict, codeInvalidState, "invalid_state"
	case auction.KindInsufficient:
		return http.StatusBadRequest, codeInsufficient, "insufficient_funds"
	case auction.KindOrdering:
		return http.StatusConflict, codePriceTooLow, "price_too_low"
	default:
		return http.StatusInternalServerError, codeServerError, "internal_error"
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("json-rpc server listening", slog.String("address", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("json-rpc server shutting down", slog.String("address", srv.Addr))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
