// Package nocodb reads and writes design assets in a NocoDB table
package nocodb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"stash-api/pkg/logger"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPageSize = 100
	// maxPages caps a full-table walk at pageSize*maxPages records
	maxPages = 50
)

// Config points the client at one NocoDB table
type Config struct {
	// APIURL is the table records endpoint, optionally with query params
	// (viewId and the like) that every listing keeps
	APIURL      string
	APIToken    string
	FileBaseURL string
	Development bool
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client speaks the NocoDB v2 records API
type Client struct {
	listURL    *url.URL
	recordsURL string
	token      string
	httpClient *http.Client
	logger     *logger.Logger
}

// record is a raw NocoDB row
type record map[string]interface{}

type pageInfo struct {
	TotalRows  int  `json:"totalRows"`
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	IsLastPage bool `json:"isLastPage"`
}

type listResponse struct {
	List     []record  `json:"list"`
	PageInfo *pageInfo `json:"pageInfo,omitempty"`
}

// NewClient creates a client. An empty APIURL yields a client that reports
// itself unconfigured rather than an error, so the service can still boot.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	c := &Client{
		token:  cfg.APIToken,
		logger: log,
	}

	if cfg.APIURL != "" {
		parsed, err := url.Parse(cfg.APIURL)
		if err != nil {
			return nil, fmt.Errorf("invalid NocoDB API URL: %w", err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("invalid NocoDB API URL: %q is not absolute", cfg.APIURL)
		}
		c.listURL = parsed
		c.recordsURL = strings.TrimRight(strings.SplitN(cfg.APIURL, "?", 2)[0], "/")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	base := http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}
	c.httpClient = &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIToken, TokenType: "Bearer"}),
			Base:   base,
		},
	}

	return c, nil
}

// Configured reports whether both the endpoint and the token are set
func (c *Client) Configured() bool {
	return c.listURL != nil && c.token != ""
}

// list fetches one page of records. params override the base URL's query.
func (c *Client) list(ctx context.Context, params url.Values) (*listResponse, error) {
	u := *c.listURL
	query := u.Query()
	for key, values := range params {
		query[key] = values
	}
	u.RawQuery = query.Encode()

	var resp listResponse
	if err := c.do(ctx, http.MethodGet, u.String(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// listAll walks every page matching where
func (c *Client) listAll(ctx context.Context, where string) ([]record, error) {
	var all []record
	for page := 0; page < maxPages; page++ {
		params := url.Values{
			"limit":  {strconv.Itoa(defaultPageSize)},
			"offset": {strconv.Itoa(page * defaultPageSize)},
		}
		if where != "" {
			params.Set("where", where)
		}

		resp, err := c.list(ctx, params)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.List...)

		if resp.PageInfo == nil || resp.PageInfo.IsLastPage || len(resp.List) < defaultPageSize {
			return all, nil
		}
	}

	c.logger.WithField("max_records", maxPages*defaultPageSize).Warn("NocoDB listing truncated")
	return all, nil
}

func (c *Client) getRecord(ctx context.Context, id string) (record, error) {
	var rec record
	if err := c.do(ctx, http.MethodGet, c.recordsURL+"/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) updateRecord(ctx context.Context, fields map[string]interface{}) error {
	return c.do(ctx, http.MethodPatch, c.recordsURL, fields, nil)
}

func (c *Client) createRecord(ctx context.Context, fields map[string]interface{}) (record, error) {
	var rec record
	if err := c.do(ctx, http.MethodPost, c.recordsURL, fields, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xc-token", c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("NocoDB %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"method":      method,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("NocoDB request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(respBody))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("failed to parse NocoDB response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx NocoDB response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("NocoDB returned status %d: %s", e.StatusCode, e.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
