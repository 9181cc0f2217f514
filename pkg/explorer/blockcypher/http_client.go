package blockcypher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tdex-network/escrowd/pkg/explorer"
)

type client struct {
	*http.Client
	baseURL  string
	token    string
	throttle *explorer.Throttle
}

func newHTTPClient(
	baseURL, token string, requestTimeout time.Duration,
	throttle *explorer.Throttle,
) *client {
	return &client{
		Client:   &http.Client{Timeout: requestTimeout},
		baseURL:  baseURL,
		token:    token,
		throttle: throttle,
	}
}

// get fetches the given path and decodes the JSON response into out.
func (c *client) get(
	ctx context.Context, method, path string, query url.Values, out interface{},
) error {
	return c.call(ctx, method, func() error {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet, c.url(path, query), nil,
		)
		if err != nil {
			return explorer.Permanent(err)
		}
		return c.doRequest(req, out)
	})
}

// post sends body as JSON to the given path and decodes the response into out.
func (c *client) post(
	ctx context.Context, method, path string, body, out interface{},
) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return c.call(ctx, method, func() error {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, c.url(path, nil), bytes.NewReader(buf),
		)
		if err != nil {
			return explorer.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.doRequest(req, out)
	})
}

func (c *client) call(ctx context.Context, method string, fn func() error) error {
	if c.throttle == nil {
		return fn()
	}
	return c.throttle.Do(ctx, method, fn)
}

func (c *client) doRequest(req *http.Request, out interface{}) error {
	rs, err := c.Do(req)
	if err != nil {
		return explorer.TransportError(err)
	}
	defer rs.Body.Close()

	body, err := io.ReadAll(rs.Body)
	if err != nil {
		return explorer.TransportError(err)
	}

	if rs.StatusCode != http.StatusOK && rs.StatusCode != http.StatusCreated {
		msg := string(body)
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
		return explorer.StatusError(rs.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %s", explorer.ErrMalformedResponse, err)
	}
	return nil
}

func (c *client) url(path string, query url.Values) string {
	if c.token != "" {
		if query == nil {
			query = url.Values{}
		}
		query.Set("token", c.token)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
