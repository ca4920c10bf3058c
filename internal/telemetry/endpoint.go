package telemetry

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultBaseURL is the origin used when no broker host is configured; it is
	// the same host the REST API is served from in a default deployment.
	DefaultBaseURL = "http://localhost:8080"

	// DefaultPath is the STOMP endpoint registered by the backend.
	DefaultPath = "/temperaturas"
)

// ResolveEndpoint builds the broker URL from an optional base URL, the
// endpoint path and an optional auth token passed as the "token" query
// parameter.
func ResolveEndpoint(baseURL, path, token string) (*url.URL, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if path == "" {
		path = DefaultPath
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid broker base URL %q: %w", baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid broker base URL %q: scheme and host required", baseURL)
	}

	u.Path = u.Path + "/" + strings.TrimLeft(path, "/")
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u, nil
}
