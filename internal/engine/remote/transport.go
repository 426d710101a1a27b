package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"kgrbac.org/internal/engine"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

type body struct {
	r           io.Reader
	contentType string
}

func jsonBody(v any) *body {
	data, err := json.Marshal(v)
	if err != nil {
		// Marshal only fails on unsupported types, which callers never pass.
		panic(fmt.Sprintf("remote: encode request: %v", err))
	}
	return &body{r: bytes.NewReader(data), contentType: "application/json"}
}

func formBody(v url.Values) *body {
	return &body{r: strings.NewReader(v.Encode()), contentType: "application/x-www-form-urlencoded"}
}

func (c *Client) do(ctx context.Context, op, method, path, token string, in *body, out any) error {
	var r io.Reader
	if in != nil {
		r = in.r
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return engine.E(op, engine.KindInvalidInput, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", in.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return engine.E(op, engine.KindUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return statusError(op, resp.StatusCode, detail(msg))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return engine.E(op, engine.KindUnknown, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// detail extracts the FastAPI {"detail": ...} message when present.
func detail(raw []byte) string {
	var d struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &d); err == nil && d.Detail != nil {
		if s, ok := d.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(d.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(raw))
}

func statusError(op string, status int, msg string) error {
	cause := fmt.Errorf("status %d: %s", status, msg)
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusConflict,
		strings.Contains(lower, "already exists"),
		strings.Contains(lower, "already_exists"):
		return engine.E(op, engine.KindAlreadyExists, cause)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return engine.E(op, engine.KindPermissionDenied, cause)
	case status == http.StatusNotFound:
		return engine.E(op, engine.KindNotFound, cause)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return engine.E(op, engine.KindInvalidInput, cause)
	case status == http.StatusTooManyRequests, status >= 500:
		return engine.E(op, engine.KindUnavailable, cause)
	default:
		return engine.E(op, engine.KindUnknown, cause)
	}
}

func (c *Client) remember(email, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cred, ok := c.byEmail[email]; ok {
		if cred.password != password {
			cred.password = password
			cred.token = ""
		}
		return
	}
	c.byEmail[email] = &credential{email: email, password: password}
}

func (c *Client) bind(email string, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cred, ok := c.byEmail[email]; ok && id != uuid.Nil {
		c.byID[id] = cred
	}
}

func (c *Client) tokenForID(ctx context.Context, op string, id uuid.UUID) (string, error) {
	c.mu.Lock()
	cred, ok := c.byID[id]
	c.mu.Unlock()
	if !ok {
		return "", engine.E(op, engine.KindInvalidInput, fmt.Errorf("no credentials for user %s", id))
	}
	return c.tokenFor(ctx, cred.email)
}

// tokenFor returns a cached bearer token for email, logging in when the cached
// one is missing or about to expire.
func (c *Client) tokenFor(ctx context.Context, email string) (string, error) {
	c.mu.Lock()
	cred, ok := c.byEmail[email]
	if !ok {
		c.mu.Unlock()
		return "", engine.E("login", engine.KindInvalidInput, fmt.Errorf("no credentials for %s", email))
	}
	if cred.token != "" && (cred.expires.IsZero() || c.now().Add(tokenSkew).Before(cred.expires)) {
		token := cred.token
		c.mu.Unlock()
		return token, nil
	}
	password := cred.password
	c.mu.Unlock()

	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := c.do(ctx, "login", http.MethodPost, "/api/v1/auth/login", "", formBody(url.Values{
		"username": {email},
		"password": {password},
	}), &out)
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", engine.E("login", engine.KindUnknown, errors.New("empty access token"))
	}

	c.mu.Lock()
	cred.token = out.AccessToken
	cred.expires = tokenExpiry(out.AccessToken)
	c.mu.Unlock()
	return out.AccessToken, nil
}

// tokenExpiry reads exp without verifying the signature; the server verifies.
func tokenExpiry(token string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
