package aurum

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	OUTPUT_PATH     = "/measurements/output.xml"
	DEFAULT_TIMEOUT = 10 * time.Second
)

var (
	ErrAurum          = errors.New("aurum: error communicating with device")
	ErrXMLDataMissing = errors.New("aurum: xml data missing")
)

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu   sync.RWMutex
	data NumberedData
}

type Option func(*Client)

// WithTimeout sets the timeout of every request to the device.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a client for the Meetstekker at host. host may be a bare
// address ("192.168.1.20") or a full base URL ("https://meter.local:8443").
func NewClient(host string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL(host),
		httpClient: &http.Client{
			Timeout: DEFAULT_TIMEOUT,
			Transport: &http.Transport{
				// the device ships a self-signed certificate
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		data: NumberedData{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect checks the device answers with a readable measurement document.
func (c *Client) Connect(ctx context.Context) (bool, error) {
	body, err := c.fetch(ctx)
	if err != nil {
		return false, err
	}
	if _, err := parseOutput(body); err != nil {
		return false, nil
	}
	return true, nil
}

// UpdateData fetches a fresh measurement document and replaces the cached data.
// The cached data is left untouched on error.
func (c *Client) UpdateData(ctx context.Context) error {
	body, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	data, err := parseOutput(body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data = data
	c.mu.Unlock()
	return nil
}

// GetAurumData returns a copy of the last successfully fetched data.
func (c *Client) GetAurumData() NumberedData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Copy()
}

func (c *Client) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+OUTPUT_PATH, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAurum, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrAurum, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrAurum, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrAurum, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrAurum, err)
	}
	return body, nil
}

func baseURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "http://" + host
}
