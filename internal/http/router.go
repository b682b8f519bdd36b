package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianbank/signin-gateway/internal/rate"
)

// RouterOptions wires the surface together. The rate limiters guard only
// the OTP endpoints; Metrics is the prometheus handler from main.
type RouterOptions struct {
	Handlers           *Handlers
	OTPSendLimiter     rate.Limiter
	OTPValidateLimiter rate.Limiter
	CORSAllowedOrigins []string
	AdminAPIKey        string
	Metrics            http.Handler
}

func limited(l rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return WithRateLimit(next, l)
	}
}

// NewRouter builds the full handler chain: recover → request-id → CORS →
// security headers → logging, with no-store on the flow routes.
func NewRouter(opt RouterOptions) http.Handler {
	h := opt.Handlers

	r := chi.NewRouter()

	// Probes and metrics sit outside the no-store flow surface.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.Readyz)
	if opt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opt.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(WithNoStore)

		r.Get("/signin/start", h.StartSignIn)
		r.Get("/signin/callback", h.Callback)
		r.With(limited(opt.OTPSendLimiter)).Post("/signin/otp/send", h.OTPSend)
		r.With(limited(opt.OTPValidateLimiter)).Post("/signin/otp/validate", h.OTPValidate)
		r.Get("/signin/profiles", h.Profiles)
		r.Post("/signin/select", h.Select)
		r.Post("/signout", h.SignOut)

		if opt.AdminAPIKey != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(func(next http.Handler) http.Handler {
					return WithAdminKey(next, opt.AdminAPIKey)
				})
				r.Get("/session/{sid}", h.AdminSessionGet)
				r.Delete("/session/{sid}", h.AdminSessionClear)
			})
		}
	})

	var handler http.Handler = r
	handler = WithLogging(handler)
	handler = WithSecurityHeaders(handler)
	if len(opt.CORSAllowedOrigins) > 0 {
		handler = WithCORS(handler, opt.CORSAllowedOrigins)
	}
	handler = WithRequestID(handler)
	handler = WithRecover(handler)
	return handler
}
