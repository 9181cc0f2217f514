package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	actorHeader    = "X-Actor-Id"
	requestTimeout = 30 * time.Second
	tokenTTL       = time.Minute
)

// client calls the escrowd http interface on behalf of an admin.
type client struct {
	baseURL   string
	actor     string
	apiSecret []byte
	http      *http.Client
}

func newClient(server, actor, apiSecret string) (*client, error) {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if _, err := url.ParseRequestURI(server); err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if strings.TrimSpace(actor) == "" {
		return nil, fmt.Errorf("actor must not be empty")
	}

	var secret []byte
	if apiSecret != "" {
		secret = []byte(apiSecret)
	}
	return &client{
		baseURL:   server,
		actor:     strings.TrimSpace(actor),
		apiSecret: secret,
		http:      &http.Client{Timeout: requestTimeout},
	}, nil
}

type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%d)", e.Code, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (c *client) get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *client) post(path string, body, out interface{}) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *client) do(method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(actorHeader, c.actor)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiSecret != nil {
		token, err := c.signToken()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &apiError{Status: resp.StatusCode}
		if err := json.Unmarshal(payload, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(payload, out)
}

func (c *client) signToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Issuer:    "escrow-cli",
		Subject:   c.actor,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(tokenTTL).Unix(),
	})
	return token.SignedString(c.apiSecret)
}
