package bdss

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"grantfeed/internal/config"
	"grantfeed/internal/services"
)

// RemoteFile is one archive advertised by the listing service.
type RemoteFile struct {
	Name string `json:"fileName"`
	URL  string `json:"fileDownloadUrl"`
	Size int64  `json:"fileSize,omitempty"`
}

type query struct {
	Name     string `json:"name"`
	FromDate string `json:"fromDate,omitempty"`
	ToDate   string `json:"toDate,omitempty"`
}

type listing struct {
	ProductFiles []RemoteFile `json:"productFiles"`
}

// Client queries the listing endpoint.
type Client struct {
	baseURL    string
	product    string
	fromDate   string
	toDate     string
	userAgent  string
	httpClient *http.Client
}

// NewClient builds a listing client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.BDSS.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSpace(cfg.BDSS.BaseURL),
		product:    strings.TrimSpace(cfg.BDSS.Product),
		fromDate:   strings.TrimSpace(cfg.BDSS.FromDate),
		toDate:     strings.TrimSpace(cfg.BDSS.ToDate),
		userAgent:  cfg.Download.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// List returns the archives currently advertised for the configured product.
func (c *Client) List(ctx context.Context) ([]RemoteFile, error) {
	payload, err := json.Marshal(query{Name: c.product, FromDate: c.fromDate, ToDate: c.toDate})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "discover", "encode query", "", err)
	}
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "discover", "parse base url", c.baseURL, err)
	}
	values := endpoint.Query()
	values.Set("data", string(payload))
	endpoint.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "discover", "build request", "", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "discover", "list releases", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, services.Wrap(services.ErrTransientIO, "discover", "list releases",
			fmt.Sprintf("listing returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	var decoded listing
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, services.Wrap(services.ErrTransientIO, "discover", "decode listing", "malformed response", err)
	}

	files := make([]RemoteFile, 0, len(decoded.ProductFiles))
	for _, file := range decoded.ProductFiles {
		file.Name = strings.TrimSpace(file.Name)
		file.URL = strings.TrimSpace(file.URL)
		if file.Name == "" || file.URL == "" {
			continue
		}
		files = append(files, file)
	}
	return files, nil
}
