// Package httpdrive implements the drive network ports over the drive
// service's HTTP API: authenticated byte-stream fetches and paginated folder
// listing.
package httpdrive

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/windrift/drivefetch/internal/domain"
	"github.com/windrift/drivefetch/internal/port"
)

// Client talks to the drive HTTP API. It keeps two HTTP clients: one with a
// request timeout for metadata calls and one without for long-running
// downloads.
type Client struct {
	baseURL        string
	creds          domain.Credentials
	httpClient     *http.Client
	downloadClient *http.Client
}

// Ensure Client implements both network-facing ports
var (
	_ port.DriveClient = (*Client)(nil)
	_ port.DriveLister = (*Client)(nil)
)

// ClientConfig contains optional client configuration
type ClientConfig struct {
	// Token and Mnemonic authenticate metadata calls (listing, item
	// lookup). Fetch takes its credentials per call.
	Token    string
	Mnemonic string

	SkipTLSVerify bool
	BufferSizeMB  int // read/write buffer size in MB (default: 8)
}

// NewClient creates a new drive API client
func NewClient(baseURL string, cfg *ClientConfig) *Client {
	bufferSize := 8 * 1024 * 1024
	skipTLS := false
	var creds domain.Credentials
	if cfg != nil {
		if cfg.BufferSizeMB > 0 {
			bufferSize = cfg.BufferSizeMB * 1024 * 1024
		}
		skipTLS = cfg.SkipTLSVerify
		creds = domain.Credentials{Token: cfg.Token, Mnemonic: cfg.Mnemonic}
	}

	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: skipTLS},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	downloadTransport := &http.Transport{
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: skipTLS},
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   50,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       120 * time.Second,
		WriteBufferSize:       bufferSize,
		ReadBufferSize:        bufferSize,
		ForceAttemptHTTP2:     true,
		DisableCompression:    true,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &Client{
		baseURL: baseURL,
		creds:   creds,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		downloadClient: &http.Client{
			Transport: downloadTransport,
			Timeout:   0, // downloads run until the stream ends or ctx cancels
		},
	}
}

// Fetch opens a plaintext byte stream for the given bucket/file. The body is
// lazy: bytes transfer as the caller reads, and cancelling ctx aborts the
// stream.
func (c *Client) Fetch(ctx context.Context, bucketID, fileID string, creds domain.Credentials, opts *port.FetchOptions) (io.ReadCloser, int64, error) {
	urlStr := fmt.Sprintf("%s/buckets/%s/files/%s", c.baseURL, url.PathEscape(bucketID), url.PathEscape(fileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req, creds)
	if opts != nil && opts.RangeStart > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", opts.RangeStart))
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

// listItem is the wire shape of one folder child.
type listItem struct {
	ID        string `json:"id"`
	ParentID  string `json:"parentId"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	IsFolder  bool   `json:"isFolder"`
	Size      int64  `json:"size"`
	UpdatedAt int64  `json:"updatedAt"` // unix seconds
	FileID    string `json:"fileId"`
	BucketID  string `json:"bucket"`
}

// listResponse is one page of a folder listing.
type listResponse struct {
	Items      []listItem `json:"items"`
	NextOffset int        `json:"nextOffset"`
	More       bool       `json:"more"`
}

// ListChildren lists one page of a folder's children.
func (c *Client) ListChildren(ctx context.Context, folderID, workspaceID string, offset, limit int) (*port.ChildPage, error) {
	params := url.Values{}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if workspaceID != "" {
		params.Set("workspace", workspaceID)
	}
	urlStr := fmt.Sprintf("%s/folders/%s/children?%s", c.baseURL, url.PathEscape(folderID), params.Encode())

	var resp listResponse
	if err := c.getJSON(ctx, urlStr, &resp); err != nil {
		return nil, err
	}

	page := &port.ChildPage{
		Items:      make([]domain.DownloadableItem, 0, len(resp.Items)),
		NextOffset: resp.NextOffset,
		More:       resp.More,
	}
	for _, it := range resp.Items {
		page.Items = append(page.Items, it.toDomain())
	}
	return page, nil
}

// GetItem resolves a single item's metadata.
func (c *Client) GetItem(ctx context.Context, itemID string) (*domain.DownloadableItem, error) {
	urlStr := fmt.Sprintf("%s/items/%s", c.baseURL, url.PathEscape(itemID))

	var it listItem
	if err := c.getJSON(ctx, urlStr, &it); err != nil {
		return nil, err
	}
	item := it.toDomain()
	return &item, nil
}

func (c *Client) getJSON(ctx context.Context, urlStr string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req, c.creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request, creds domain.Credentials) {
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
	if creds.Mnemonic != "" {
		req.Header.Set("X-Drive-Mnemonic", creds.Mnemonic)
	}
}

func (it *listItem) toDomain() domain.DownloadableItem {
	return domain.DownloadableItem{
		ID:        it.ID,
		ParentID:  it.ParentID,
		IsFolder:  it.IsFolder,
		Name:      it.Name,
		Type:      it.Type,
		Size:      it.Size,
		UpdatedAt: time.Unix(it.UpdatedAt, 0),
		FileID:    it.FileID,
		BucketID:  it.BucketID,
	}
}
