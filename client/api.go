// Package client is the calling side of the HTTP API: it logs in, keeps
// the access token fresh by scheduling rotation ahead of expiry, and
// persists the refresh token across restarts through a TokenCache.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrUnauthorized covers 401 responses: bad credentials, dead refresh
	// tokens, expired access tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLocked covers 429 lockout responses.
	ErrLocked = errors.New("account temporarily locked")
	// ErrServer covers 5xx responses.
	ErrServer = errors.New("server error")
	// ErrNotLoggedIn is returned when no session is active.
	ErrNotLoggedIn = errors.New("not logged in")
)

// Profile mirrors the identity block in token responses.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int64   `json:"expires_in"`
	RefreshToken string  `json:"refresh_token"`
	User         Profile `json:"user"`
}

type apiError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (c *Controller) postJSON(ctx context.Context, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
	}

	return decodeAPIError(resp)
}

func decodeAPIError(resp *http.Response) error {
	var ae apiError
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&ae)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, ae.Code)
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := resp.Header.Get("Retry-After")
		return fmt.Errorf("%w: retry after %ss", ErrLocked, retryAfter)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrServer, resp.StatusCode)
	default:
		if ae.Message == "" {
			ae.Message = resp.Status
		}
		return fmt.Errorf("%s (%s)", ae.Message, ae.Code)
	}
}

func expiryFrom(now time.Time, expiresIn int64) time.Time {
	return now.Add(time.Duration(expiresIn) * time.Second)
}
