package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Login exchanges credentials for a session token. The backend answers
// with the token as plain text. On success the client starts using it.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" {
		return "", errors.New("api: username is required for login")
	}
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	body, err := c.do(ctx, http.MethodPost, "/login", nil,
		"application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("api: login failed: %w", err)
	}

	token := strings.TrimSpace(string(body))
	// Tolerate a backend that JSON-encodes the string.
	if strings.HasPrefix(token, `"`) {
		var s string
		if err := json.Unmarshal([]byte(token), &s); err == nil {
			token = s
		}
	}
	if token == "" {
		return "", errors.New("api: login returned an empty token")
	}

	c.SetToken(token)
	c.logger.Info("api: logged in", "user", username)
	return token, nil
}

// User is the authenticated principal as reported by /auth/me.
type User struct {
	ID       int64    `json:"id,omitempty"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Me checks the current token and returns who it belongs to. A rejected
// token yields an error wrapping ErrUnauthorized. A plain text body is
// taken as the username.
func (c *Client) Me(ctx context.Context) (*User, error) {
	body, err := c.do(ctx, http.MethodGet, "/auth/me", nil, "", nil)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return &User{Username: strings.Trim(trimmed, `"`)}, nil
	}
	var u User
	if err := decodeJSON(body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
