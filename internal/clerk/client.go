// Package clerk is a minimal client for the Clerk Backend API, used to
// push local reference IDs back onto the external identity.
package clerk

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/systemsaholic/clerk-sync/internal/logging"
	"github.com/systemsaholic/clerk-sync/internal/metrics"
)

const DefaultBaseURL = "https://api.clerk.com/v1"

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient builds a Clerk Backend API client. An empty apiKey yields a
// client whose calls are no-ops: push-back is an optional integration and
// its absence is not an error.
func NewClient(apiKey, baseURL string, logger *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With(logging.Service("clerk_client")),
	}
}

// UpdateUserMetadata merges metadata into the Clerk user's private
// metadata. Best effort: any failure is logged and reported as false,
// never propagated.
func (c *Client) UpdateUserMetadata(ctx context.Context, clerkID string, metadata map[string]any) bool {
	if c.apiKey == "" {
		return false
	}

	body, err := json.Marshal(map[string]any{"private_metadata": metadata})
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to marshal Clerk metadata", logging.Error(err))
		return false
	}

	url := c.baseURL + "/users/" + clerkID
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to build Clerk request", logging.Error(err))
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.NotifyFailures.Inc()
		c.logger.WarnContext(ctx, "Clerk metadata push failed",
			logging.ClerkID(clerkID), logging.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.NotifyFailures.Inc()
		c.logger.WarnContext(ctx, "Clerk metadata push rejected",
			logging.ClerkID(clerkID), logging.Status(resp.StatusCode))
		return false
	}

	return true
}
