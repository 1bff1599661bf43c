package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/MikhailRaia/shortlinks/internal/display"
	"github.com/MikhailRaia/shortlinks/internal/model"
	"github.com/MikhailRaia/shortlinks/internal/qrcode"
)

const maxRequestBody = 1 << 16

type ShortenRequest struct {
	URL       string `json:"url"`
	Algorithm string `json:"algorithm,omitempty"`
}

// URLView is a mapping as rendered by the API.
type URLView struct {
	model.URLMapping
	ShortURL  string             `json:"shortUrl"`
	QRCodeURL string             `json:"qrCodeUrl"`
	ExpiresIn *display.Remaining `json:"expiresIn,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HomeResponse struct {
	Service string `json:"service"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

var errMissingURL = errors.New("url is required")

// decodeShortenRequest reads url and algorithm from the query string,
// falling back to a JSON body when the query has no url.
func decodeShortenRequest(r *http.Request) (ShortenRequest, error) {
	q := r.URL.Query()
	req := ShortenRequest{
		URL:       q.Get("url"),
		Algorithm: q.Get("algorithm"),
	}

	if strings.TrimSpace(req.URL) == "" {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			return ShortenRequest{}, errors.New("failed to read request body")
		}
		defer r.Body.Close()

		if len(body) > 0 {
			var fromBody ShortenRequest
			if err := json.Unmarshal(body, &fromBody); err != nil {
				return ShortenRequest{}, errors.New("invalid JSON body")
			}
			req.URL = fromBody.URL
			if req.Algorithm == "" {
				req.Algorithm = fromBody.Algorithm
			}
		}
	}

	if strings.TrimSpace(req.URL) == "" {
		return ShortenRequest{}, errMissingURL
	}
	return req, nil
}

func (h *Handler) view(m model.URLMapping) URLView {
	shortURL := h.urlService.ShortURL(m.ID)
	v := URLView{
		URLMapping: m,
		ShortURL:   shortURL,
		QRCodeURL:  qrcode.URL(h.qrService, shortURL, qrcode.DefaultSize),
	}
	if !m.ExpiryDate.IsZero() {
		remaining := display.Countdown(m.ExpiryDate, h.now())
		v.ExpiresIn = &remaining
	}
	return v
}

func (h *Handler) views(ms []model.URLMapping) []URLView {
	out := make([]URLView, 0, len(ms))
	for _, m := range ms {
		out = append(out, h.view(m))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
