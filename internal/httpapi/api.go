// Package httpapi is the HTTP surface of the catalog service: routing,
// middleware chain, and translation of typed domain errors into JSON
// responses. Business logic never writes responses directly.
package httpapi

import (
	"net/http"
	"time"

	"geometa.org/internal/auth"
	"geometa.org/internal/metadata"
	"geometa.org/internal/obs"
	"geometa.org/internal/rate"
)

// CookieSettings controls attributes on auth and CSRF cookies.
type CookieSettings struct {
	Domain string
	Secure bool
}

// LimitClasses are the fixed-window budgets per route class.
type LimitClasses struct {
	Standard rate.Class
	Login    rate.Class
	Register rate.Class
	Reset    rate.Class
}

// DefaultLimitClasses mirror the documented policy: generous standard
// traffic, tight budgets on credential endpoints.
func DefaultLimitClasses() LimitClasses {
	return LimitClasses{
		Standard: rate.Class{Name: "standard", Max: 100, Window: time.Minute},
		Login:    rate.Class{Name: "login", Max: 5, Window: 5 * time.Minute},
		Register: rate.Class{Name: "register", Max: 3, Window: time.Hour},
		Reset:    rate.Class{Name: "password_reset", Max: 3, Window: time.Hour},
	}
}

type limitClasses struct {
	standard rate.Class
	login    rate.Class
	register rate.Class
	reset    rate.Class
}

// Config wires the API's collaborators. Every stateful component is
// constructed by the caller and injected; the API owns none of their
// lifecycles.
type Config struct {
	Version     string
	ReadyProbe  ReadyProbe
	Auth        *auth.Service
	Metadata    *metadata.Service
	TokenCache  *auth.TokenCache
	AccessCodec *auth.Codec
	Revoker     auth.Revoker
	Limiter     *rate.Limiter
	Limits      LimitClasses
	Cookies     CookieSettings

	TransportBurst  int
	TransportPerSec int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	version    string
	readyProbe ReadyProbe

	auth        *auth.Service
	metadata    *metadata.Service
	tokenCache  *auth.TokenCache
	accessCodec *auth.Codec
	revoker     auth.Revoker
	limiter     *rate.Limiter
	limits      limitClasses
	cookies     CookieSettings

	transportBurst  int
	transportPerSec int
}

func New(cfg Config) *API {
	limits := cfg.Limits
	if limits.Standard.Max == 0 {
		limits = DefaultLimitClasses()
	}
	a := &API{
		mux:             http.NewServeMux(),
		version:         cfg.Version,
		readyProbe:      cfg.ReadyProbe,
		auth:            cfg.Auth,
		metadata:        cfg.Metadata,
		tokenCache:      cfg.TokenCache,
		accessCodec:     cfg.AccessCodec,
		revoker:         cfg.Revoker,
		limiter:         cfg.Limiter,
		limits:          limitClasses{standard: limits.Standard, login: limits.Login, register: limits.Register, reset: limits.Reset},
		cookies:         cfg.Cookies,
		transportBurst:  cfg.TransportBurst,
		transportPerSec: cfg.TransportPerSec,
	}
	if a.transportBurst <= 0 {
		a.transportBurst = 50
	}
	if a.transportPerSec <= 0 {
		a.transportPerSec = 25
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/refresh-token", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/forgot-password", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/auth/reset-password", a.handleResetPassword)
	a.mux.HandleFunc("/v1/auth/verify-email", a.handleVerifyEmail)
	a.mux.HandleFunc("/v1/auth/me", a.handleMe)
	a.mux.HandleFunc("/v1/auth/check", a.handleCheck)

	a.mux.HandleFunc("/v1/metadata", a.handleMetadataCollection)
	a.mux.HandleFunc("/v1/metadata/", a.handleMetadataResource)

	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the router. Order:
// metrics and request identity outermost, then transport throttle and
// body cap, then the policy-class rate limiter, CSRF guard and token
// authentication nearest the handlers.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = a.withCSRF(h)
	h = a.withRateLimit(h)
	h = MaxBodyBytes(h, 1<<20)
	h = TransportThrottle(h, a.transportBurst, a.transportPerSec)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
