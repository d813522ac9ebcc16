package posts

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Clark-Hu/trueque/internal/domain"
)

// Resolver answers what the negotiation needs to know about a post.
// Unknown posts resolve with Exists=false and a nil error.
type Resolver interface {
	Resolve(ctx context.Context, id string) (domain.PostInfo, error)
}

// HTTPClient implements Resolver against the listings service.
type HTTPClient struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	logger  *log.Logger
}

// NewHTTPClient constructs a new HTTP-backed post resolver.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *log.Logger) (*HTTPClient, error) {
	if logger == nil {
		logger = log.Default()
	}
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse posts url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("posts url %q must be absolute", baseURL)
	}
	return &HTTPClient{
		baseURL: parsed,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// Resolve fetches GET {base}/posts/{id}. A 404 yields Exists=false.
func (c *HTTPClient) Resolve(ctx context.Context, id string) (domain.PostInfo, error) {
	endpoint := c.baseURL.JoinPath("posts", id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return domain.PostInfo{}, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.PostInfo{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var payload apiPost
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return domain.PostInfo{}, fmt.Errorf("decode post response: %w", err)
		}
		return convertToInfo(id, payload), nil
	case http.StatusNotFound:
		return domain.PostInfo{ID: id}, nil
	case http.StatusGone:
		return domain.PostInfo{ID: id, Exists: true, Deleted: true}, nil
	default:
		c.logger.Printf("posts: unexpected status %d for post %s", resp.StatusCode, id)
		return domain.PostInfo{}, fmt.Errorf("posts: upstream returned %d", resp.StatusCode)
	}
}

type apiPost struct {
	ID        string     `json:"id"`
	OwnerID   *string    `json:"ownerId"`
	Title     string     `json:"title"`
	Barrio    *string    `json:"barrio"`
	DeletedAt *time.Time `json:"deletedAt"`
	Status    string     `json:"status"`
}

func convertToInfo(id string, payload apiPost) domain.PostInfo {
	info := domain.PostInfo{
		ID:      id,
		Exists:  true,
		Deleted: payload.DeletedAt != nil || strings.EqualFold(payload.Status, "deleted"),
		OwnerID: normalizeOwner(derefString(payload.OwnerID)),
		Title:   payload.Title,
		Barrio:  strings.TrimSpace(derefString(payload.Barrio)),
	}
	if payload.ID != "" {
		info.ID = payload.ID
	}
	return info
}

// normalizeOwner returns the canonical lower-case form of an owner id. An
// owner that is not a uuid is reported as missing.
func normalizeOwner(raw string) string {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return id.String()
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
