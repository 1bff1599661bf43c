package handler

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/MikhailRaia/shortlinks/internal/logger"
	"github.com/MikhailRaia/shortlinks/internal/middleware"
	"github.com/MikhailRaia/shortlinks/internal/model"
	"github.com/MikhailRaia/shortlinks/internal/qrcode"
	"github.com/MikhailRaia/shortlinks/internal/service"
	"github.com/MikhailRaia/shortlinks/internal/storage"
)

const (
	defaultRankingLimit = 10
	maxRankingLimit     = 100
)

type URLService interface {
	ShortenURL(ctx context.Context, originalURL, algorithm, ownerID string) (model.URLMapping, bool, error)
	GetURL(ctx context.Context, id string) (model.URLMapping, error)
	Resolve(ctx context.Context, id string) (string, error)
	Rankings(ctx context.Context, limit int) ([]model.URLMapping, error)
	Stats(ctx context.Context) (model.RankingStats, error)
	UserURLs(ctx context.Context, ownerID string) ([]model.URLMapping, error)
	DeleteURL(ctx context.Context, id, ownerID string) error
	ShortURL(id string) string
	Ping(ctx context.Context) error
}

// Options configures optional parts of the HTTP surface.
type Options struct {
	// QRServiceURL overrides qrcode.DefaultServiceURL.
	QRServiceURL string
	// RateLimit wraps POST /api/shorten. Nil disables limiting.
	RateLimit func(http.Handler) http.Handler
	// TrustedProxies are the peers allowed to report the client address
	// through X-Forwarded-For or X-Real-IP.
	TrustedProxies []netip.Prefix
	// Now replaces time.Now when computing countdowns.
	Now func() time.Time
}

type Handler struct {
	urlService     URLService
	auth           *middleware.AuthMiddleware
	qrService      string
	rateLimit      func(http.Handler) http.Handler
	trustedProxies []netip.Prefix
	now            func() time.Time
}

func NewHandler(urlService URLService, auth *middleware.AuthMiddleware, opts Options) *Handler {
	h := &Handler{
		urlService:     urlService,
		auth:           auth,
		qrService:      opts.QRServiceURL,
		rateLimit:      opts.RateLimit,
		trustedProxies: opts.TrustedProxies,
		now:            opts.Now,
	}
	if h.qrService == "" {
		h.qrService = qrcode.DefaultServiceURL
	}
	if h.rateLimit == nil {
		h.rateLimit = func(next http.Handler) http.Handler { return next }
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

func (h *Handler) RegisterRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.TrustedRealIP(h.trustedProxies))
	r.Use(chimiddleware.Recoverer)

	r.Use(logger.RequestLogger)

	r.Use(middleware.GzipReader)
	r.Use(chimiddleware.Compress(5, "application/json", "text/plain"))

	r.Route("/api", func(r chi.Router) {
		r.Use(h.auth.AuthenticateUser)

		r.With(h.rateLimit).Post("/shorten", h.handleShorten)
		r.Get("/url/{id}", h.handleGetURL)
		r.Get("/url/{id}/qr", h.handleQRCode)
		r.With(h.auth.RequireAuth).Delete("/url/{id}", h.handleDelete)
		r.With(h.auth.RequireAuth).Get("/user/urls", h.handleUserURLs)
		r.Get("/rankings", h.handleRankings)
		r.Get("/rankings/stats", h.handleStats)
	})

	r.Get("/ping", h.handlePing)
	r.Get("/", h.handleHome)
	r.Get("/r/{id}", h.handleRedirect)
	r.Get("/{id}", h.handleRedirect)

	return r
}

func (h *Handler) handleShorten(w http.ResponseWriter, r *http.Request) {
	req, err := decodeShortenRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, _ := middleware.GetUserIDFromContext(r.Context())

	mapping, created, err := h.urlService.ShortenURL(r.Context(), req.URL, req.Algorithm, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrCollision), errors.Is(err, storage.ErrURLExists):
			writeError(w, http.StatusConflict, err.Error())
		default:
			log.Error().Err(err).Str("url", req.URL).Msg("Failed to shorten URL")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, h.view(mapping))
}

func (h *Handler) handleGetURL(w http.ResponseWriter, r *http.Request) {
	mapping, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.view(mapping))
}

func (h *Handler) handleQRCode(w http.ResponseWriter, r *http.Request) {
	size := qrcode.DefaultSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "size must be an integer")
			return
		}
		size = qrcode.ClampSize(n)
	}

	mapping, ok := h.lookup(w, r)
	if !ok {
		return
	}

	http.Redirect(w, r, qrcode.URL(h.qrService, h.urlService.ShortURL(mapping.ID), size), http.StatusFound)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (model.URLMapping, bool) {
	mapping, err := h.urlService.GetURL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, storage.ErrNotFound.Error())
			return model.URLMapping{}, false
		}
		log.Error().Err(err).Msg("Failed to get URL")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return model.URLMapping{}, false
	}
	return mapping, true
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	err := h.urlService.DeleteURL(r.Context(), chi.URLParam(r, "id"), userID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		log.Error().Err(err).Msg("Failed to delete URL")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) handleUserURLs(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	urls, err := h.urlService.UserURLs(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Failed to get user URLs")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if len(urls) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, h.views(urls))
}

func (h *Handler) handleRankings(w http.ResponseWriter, r *http.Request) {
	limit := defaultRankingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRankingLimit)
	}

	top, err := h.urlService.Rankings(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute rankings")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, h.views(top))
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.urlService.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute ranking stats")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRedirect(w http.ResponseWriter, r *http.Request) {
	target, err := h.urlService.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			http.Redirect(w, r, "/?error=notfound", http.StatusFound)
		case errors.Is(err, service.ErrExpired):
			http.Redirect(w, r, "/?error=expired", http.StatusFound)
		default:
			log.Error().Err(err).Msg("Failed to resolve URL")
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

var homeMessages = map[string]string{
	"notfound": "short link not found",
	"expired":  "short link has expired",
}

func (h *Handler) handleHome(w http.ResponseWriter, r *http.Request) {
	resp := HomeResponse{Service: "shortlinks"}
	if code := r.URL.Query().Get("error"); code != "" {
		resp.Error = code
		resp.Message = homeMessages[code]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	if err := h.urlService.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("Storage ping failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
