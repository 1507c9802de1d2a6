package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"sktvault/crypto"
	"sktvault/gateway/auth"
)

type client struct {
	endpoint string
	http     *http.Client
	key      *crypto.PrivateKey
	now      func() time.Time
}

func newClient(endpoint string) *client {
	return &client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		now:      time.Now,
	}
}

// do sends c and pretty-prints the JSON response. Non-2xx responses are
// returned as errors carrying the gateway's error body.
func (cl *client) do(c *call, out io.Writer) error {
	var payload []byte
	if c.body != nil {
		var err error
		if payload, err = json.Marshal(c.body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(c.method, cl.endpoint+c.path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signed {
		if cl.key == nil {
			return fmt.Errorf("signed request without a key")
		}
		if err := auth.SignRequest(req, cl.key, payload, cl.now(), uuid.NewString()); err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
	}
	resp, err := cl.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s: %s", c.method, c.path, resp.Status, strings.TrimSpace(string(data)))
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		_, err = out.Write(data)
		return err
	}
	pretty.WriteByte('\n')
	_, err = out.Write(pretty.Bytes())
	return err
}
