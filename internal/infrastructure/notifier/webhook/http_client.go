package webhooknotifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type client struct {
	*http.Client
}

func newHTTPClient(requestTimeout time.Duration) *client {
	return &client{&http.Client{Timeout: requestTimeout}}
}

func (c *client) post(
	ctx context.Context, url string, body []byte, header map[string]string,
) error {
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(body),
	)
	if err != nil {
		return err
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf(
			"webhook %s responded with status %d: %s", url, resp.StatusCode, msg,
		)
	}
	return nil
}
