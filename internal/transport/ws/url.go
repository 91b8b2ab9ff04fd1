package ws

import (
	"fmt"
	"net/url"
)

// Endpoints are derived from the REST base URL: scheme rewritten to the
// socket scheme, channel path appended, credential as a query parameter at
// dial time.

func UserEndpoint(apiBase string) (string, error) {
	return endpoint(apiBase, "/ws/user/")
}

func ConsultationEndpoint(apiBase string, consultationID int64) (string, error) {
	return endpoint(apiBase, fmt.Sprintf("/ws/consultation/%d/", consultationID))
}

func endpoint(apiBase, path string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("parse api base: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = path
	u.RawQuery = ""
	return u.String(), nil
}

func withToken(endpoint, token string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
