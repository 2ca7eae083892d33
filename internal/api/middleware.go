package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"admissions-forms/internal/common/auth"
	stderrors "admissions-forms/internal/common/errors"
	"admissions-forms/internal/common/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID reuses an inbound X-Request-ID or mints one.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// cors answers preflight requests and tags responses for allowed origins.
// Credentials are only granted to origins listed by name.
func (h *Handler) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed, named := h.originAllowed(origin)
		if origin == "" || !allowed {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Add("Vary", "Origin")
		if named {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader+", Retry-After")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+requestIDHeader+", "+sourceHeader)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed reports whether origin may call the API and whether it is
// listed by name rather than through "*".
func (h *Handler) originAllowed(origin string) (allowed, named bool) {
	for _, o := range h.opts.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true, true
		}
		if o == "*" {
			allowed = true
		}
	}
	return allowed, false
}

func (h *Handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.fail(w, r, stderrors.NewInternalError(fmt.Errorf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := h.now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"durationMs": h.now().Sub(start).Milliseconds(),
			"remoteIp":   h.clientIP(r),
			"requestId":  requestIDFrom(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			h.logger.Warn("request completed", fields)
		} else {
			h.logger.Debug("request completed", fields)
		}
	})
}

// routePattern is the matched chi pattern, or "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func (h *Handler) metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		outcome := "success"
		if status >= http.StatusBadRequest {
			outcome = "error"
		}
		h.opts.Operations.Record(r.Context(), r.Method+" "+route, outcome, elapsed)
	})
}

func (h *Handler) tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.opts.Tracer.Start(r.Context(), "http "+r.Method,
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.String("request.id", requestIDFrom(r.Context())),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetName("http " + r.Method + " " + routePattern(r))
		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

// authenticate admits callers holding a valid bearer token with a staff role.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.staffActor(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
	})
}

// staffActor verifies the bearer token and requires a staff role.
func (h *Handler) staffActor(r *http.Request) (*auth.Actor, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, stderrors.NewAuthenticationError(auth.ErrMissingToken.Error())
	}
	if h.verifier == nil {
		return nil, stderrors.NewAuthenticationError("no token verifier configured")
	}
	actor, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		h.logger.Debug("token rejected", map[string]interface{}{"error": err.Error(), "requestId": requestIDFrom(r.Context())})
		return nil, stderrors.NewAuthenticationError(auth.ErrInvalidToken.Error())
	}
	if len(h.opts.StaffRoles) > 0 && !actor.HasAnyRole(h.opts.StaffRoles...) {
		return nil, stderrors.NewPermissionDeniedError("role " + actor.Role + " is not a staff role")
	}
	return actor, nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// rateLimit throttles public routes per client IP.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.opts.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, retryAfter := h.opts.Limiter.Allow(r.Context(), h.clientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			h.fail(w, r, stderrors.NewRateLimitedError(retryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP is the peer address, or the forwarded client address when the
// peer is a trusted proxy. X-Forwarded-For is walked right to left and the
// first hop that is not a trusted proxy wins.
func (h *Handler) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	if !h.trusted(net.ParseIP(peer)) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			if !h.trusted(ip) {
				return ip.String()
			}
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return peer
}

func (h *Handler) trusted(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range h.proxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// parseProxies accepts bare addresses and CIDR ranges. Invalid entries are
// returned separately so the caller can report them.
func parseProxies(entries []string) (nets []*net.IPNet, invalid []string) {
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				invalid = append(invalid, raw)
				continue
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		nets = append(nets, n)
	}
	return nets, invalid
}
