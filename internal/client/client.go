// Package client is a Go client for the shortlinks REST API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikhailRaia/shortlinks/internal/display"
	"github.com/MikhailRaia/shortlinks/internal/model"
)

const DefaultTimeout = 10 * time.Second

var (
	// ErrNotFound matches API errors with status 404.
	ErrNotFound = errors.New("short link not found")
	// ErrNoShortCode is returned when a lookup is attempted without an id.
	ErrNoShortCode = errors.New("no short code given")
)

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Link is a short link as returned by the API.
type Link struct {
	model.URLMapping
	ShortURL  string             `json:"shortUrl"`
	QRCodeURL string             `json:"qrCodeUrl"`
	ExpiresIn *display.Remaining `json:"expiresIn,omitempty"`
}

// Leaderboard is the ranked links together with aggregate statistics.
type Leaderboard struct {
	Links []Link
	Stats model.RankingStats
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient uses one
// with DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Shorten creates a short link. created is false when the server returned an
// existing link for the same URL.
func (c *Client) Shorten(ctx context.Context, longURL, algorithm string) (link Link, created bool, err error) {
	q := url.Values{}
	q.Set("url", longURL)
	if algorithm != "" {
		q.Set("algorithm", algorithm)
	}

	status, err := c.do(ctx, http.MethodPost, "/api/shorten?"+q.Encode(), &link)
	if err != nil {
		return Link{}, false, err
	}
	return link, status == http.StatusCreated, nil
}

func (c *Client) GetURL(ctx context.Context, id string) (Link, error) {
	if strings.TrimSpace(id) == "" {
		return Link{}, ErrNoShortCode
	}

	var link Link
	if _, err := c.do(ctx, http.MethodGet, "/api/url/"+url.PathEscape(id), &link); err != nil {
		return Link{}, err
	}
	return link, nil
}

func (c *Client) Rankings(ctx context.Context, limit int) ([]Link, error) {
	path := "/api/rankings"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	links := []Link{}
	if _, err := c.do(ctx, http.MethodGet, path, &links); err != nil {
		return nil, err
	}
	return links, nil
}

func (c *Client) Stats(ctx context.Context) (model.RankingStats, error) {
	var stats model.RankingStats
	if _, err := c.do(ctx, http.MethodGet, "/api/rankings/stats", &stats); err != nil {
		return model.RankingStats{}, err
	}
	return stats, nil
}

// Leaderboard fetches rankings and stats in parallel.
func (c *Client) Leaderboard(ctx context.Context, limit int) (Leaderboard, error) {
	var lb Leaderboard

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		links, err := c.Rankings(gctx, limit)
		if err != nil {
			return fmt.Errorf("rankings: %w", err)
		}
		lb.Links = links
		return nil
	})
	g.Go(func() error {
		stats, err := c.Stats(gctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		lb.Stats = stats
		return nil
	})

	if err := g.Wait(); err != nil {
		return Leaderboard{}, err
	}
	return lb, nil
}

func (c *Client) do(ctx context.Context, method, path string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Message = payload.Error
		}
		return resp.StatusCode, apiErr
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
