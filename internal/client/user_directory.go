// Package client holds outbound collaborators: the identity-service user
// directory and the NATS notification publisher.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bizcore/be-approvals/internal/apperr"
)

// HTTPUserDirectory checks user existence against the identity service's
// REST API. Implements service.UserDirectory.
type HTTPUserDirectory struct {
	baseURL string
	http    *http.Client
}

// NewHTTPUserDirectory creates a directory client for the given base URL.
func NewHTTPUserDirectory(baseURL string, timeout time.Duration) *HTTPUserDirectory {
	return &HTTPUserDirectory{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type userResponse struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// Exists reports whether the user is known and active in the identity
// service. 404 means unknown; any other non-2xx is surfaced as an error so
// the caller does not record a delegation on a directory outage.
func (d *HTTPUserDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/users/%s", d.baseURL, url.PathEscape(userID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("identity lookup failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		return false, apperr.Wrap(
			fmt.Errorf("identity service returned %d", resp.StatusCode),
			apperr.CodeInternal, "identity lookup failed")
	}

	var user userResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return false, fmt.Errorf("decode identity response: %w", err)
	}
	return user.Active, nil
}
