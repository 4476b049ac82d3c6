package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/config"
	"github.com/spf13/viper"
)

// client talks to the API of a running server
type client struct {
	base string
	http *http.Client
}

func newClient() (*client, error) {
	port := viper.GetInt("server_port")
	if port <= 0 {
		configMgr, err := config.NewManager(GetConfigFile())
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		port = configMgr.GetPort()
	}
	host := viper.GetString("host")
	if host == "" {
		host = "localhost"
	}
	return &client{
		base: fmt.Sprintf("http://%s:%d", host, port),
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// do sends body as JSON and returns the raw response body. Non-2xx answers
// become errors carrying the server's message.
func (c *client) do(method, path string, body interface{}) ([]byte, http.Header, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("is the server running? %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(data)))
	}
	return data, resp.Header, nil
}

// doJSON is do with the response decoded into out
func (c *client) doJSON(method, path string, body, out interface{}) error {
	data, _, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
