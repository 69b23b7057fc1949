package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goahttp "goa.design/goa/v3/http"
)

type client struct {
	base  string
	token string
	doer  goahttp.Doer
}

func newClient(base, token string, timeout time.Duration, debug bool) *client {
	var doer goahttp.Doer
	{
		doer = &http.Client{Timeout: timeout}
		if debug {
			doer = goahttp.NewDebugDoer(doer)
		}
	}
	return &client{base: strings.TrimRight(base, "/"), token: token, doer: doer}
}

// do sends body as JSON and decodes the JSON response into out. Non-2xx
// responses become errors carrying the server message.
func (c *client) do(method, path string, body, out any) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	if body != nil {
		if err := goahttp.RequestEncoder(req).Encode(body); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Name    string `json:"name"`
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body = io.NopCloser(strings.NewReader(string(raw)))
		if goahttp.ResponseDecoder(resp).Decode(&e) == nil && (e.Message != "" || e.Error != "") {
			return fmt.Errorf("%s: %s%s", resp.Status, e.Message, e.Error)
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return goahttp.ResponseDecoder(resp).Decode(out)
}
