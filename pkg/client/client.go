// Package client talks to the foptd daemon over HTTP on its Unix socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/jamesainslie/fopt/pkg/daemon"
	"github.com/jamesainslie/fopt/pkg/fopt/catalog"
	"github.com/jamesainslie/fopt/pkg/fopt/manifest"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// baseURL is a placeholder host; every request is dialled to the socket.
const baseURL = "http://foptd"

// Client is a connection to the foptd daemon.
type Client struct {
	base string
	http *http.Client
}

// Error is a failed API request. It matches the engine's sentinel errors
// with errors.Is, so callers handle daemon and in-process failures alike.
type Error struct {
	Status  int
	Code    string
	Message string

	sentinel error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.sentinel
}

// Connect establishes a connection to the foptd daemon.
// Uses a default timeout of 5 seconds.
func Connect(socketPath string) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ConnectWithContext(ctx, socketPath)
}

// ConnectWithContext connects to the daemon and checks that it answers.
func ConnectWithContext(ctx context.Context, socketPath string) (*Client, error) {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon socket not found at %s", socketPath)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
		MaxIdleConns:    4,
		IdleConnTimeout: 30 * time.Second,
	}
	c := newClient(baseURL, &http.Client{Transport: transport})

	if _, err := c.Status(ctx); err != nil {
		transport.CloseIdleConnections()
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return c, nil
}

func newClient(base string, hc *http.Client) *Client {
	return &Client{base: base, http: hc}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do sends a JSON request. On failure the envelope's result, if any, is
// decoded into result.
func (c *Client) do(ctx context.Context, method, path string, body, out, result any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp, result)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response, result any) error {
	var envelope struct {
		Error  daemon.APIError `json:"error"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return &Error{Status: resp.StatusCode, Code: daemon.CodeInternal, Message: resp.Status}
	}
	if result != nil && len(envelope.Result) > 0 {
		_ = json.Unmarshal(envelope.Result, result)
	}
	return &Error{
		Status:   resp.StatusCode,
		Code:     envelope.Error.Code,
		Message:  envelope.Error.Message,
		sentinel: daemon.SentinelFor(envelope.Error.Code),
	}
}

// Status returns the daemon's current status.
func (c *Client) Status(ctx context.Context) (daemon.Status, error) {
	var st daemon.Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &st, nil)
	return st, err
}

// Folders lists the folders a scan can be pointed at.
func (c *Client) Folders(ctx context.Context) ([]string, error) {
	var resp daemon.FoldersResponse
	err := c.do(ctx, http.MethodGet, "/api/folders", nil, &resp, nil)
	return resp.Folders, err
}

// StartScan starts a scan job and returns its id. Empty groups includes
// every type.
func (c *Client) StartScan(ctx context.Context, threshold int64, folders, groups []string) (string, error) {
	var resp daemon.ScanResponse
	req := daemon.ScanRequest{ThresholdBytes: threshold, Folders: folders, Types: groups}
	err := c.do(ctx, http.MethodPost, "/api/scans", req, &resp, nil)
	return resp.JobID, err
}

// Job returns a snapshot of a scan job.
func (c *Client) Job(ctx context.Context, id string) (daemon.JobSnapshot, error) {
	var snap daemon.JobSnapshot
	err := c.do(ctx, http.MethodGet, "/api/scans/"+url.PathEscape(id), nil, &snap, nil)
	return snap, err
}

// CancelScan requests cancellation of a scan job.
func (c *Client) CancelScan(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/scans/"+url.PathEscape(id), nil, nil, nil)
}

// Compact compacts one file into an archive beside it. The result is
// populated on failure too.
func (c *Client) Compact(ctx context.Context, path string) (types.CompactResult, error) {
	var res types.CompactResult
	err := c.do(ctx, http.MethodPost, "/api/compact", daemon.CompactRequest{Path: path}, &res, &res)
	return res, err
}

// Catalog returns every cataloged archive keyed by name.
func (c *Client) Catalog(ctx context.Context) (map[string]catalog.Record, error) {
	var resp daemon.CatalogResponse
	err := c.do(ctx, http.MethodGet, "/api/catalog", nil, &resp, nil)
	if resp.Archives == nil {
		resp.Archives = map[string]catalog.Record{}
	}
	return resp.Archives, err
}

// PruneCatalog drops records whose archive is gone and returns their names.
func (c *Client) PruneCatalog(ctx context.Context) ([]string, error) {
	var resp daemon.RemovedResponse
	err := c.do(ctx, http.MethodPost, "/api/catalog/prune", nil, &resp, nil)
	return resp.Removed, err
}

// Open extracts an archive to the scratch area and opens it.
func (c *Client) Open(ctx context.Context, name, originalName string) (types.OpenResult, error) {
	var res types.OpenResult
	path := "/api/catalog/" + url.PathEscape(name) + "/open"
	err := c.do(ctx, http.MethodPost, path, daemon.OpenRequest{OriginalName: originalName}, &res, &res)
	return res, err
}

// Restore extracts an archive next to its original path.
func (c *Client) Restore(ctx context.Context, name string) (types.OpenResult, error) {
	var res types.OpenResult
	path := "/api/catalog/" + url.PathEscape(name) + "/restore"
	err := c.do(ctx, http.MethodPost, path, nil, &res, &res)
	return res, err
}

// History returns up to limit operations, newest first. Zero means all.
func (c *Client) History(ctx context.Context, limit int) ([]manifest.Entry, error) {
	var resp daemon.HistoryResponse
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp, nil)
	return resp.Entries, err
}

// HistoryEntry returns one operation by id.
func (c *Client) HistoryEntry(ctx context.Context, id string) (*manifest.Entry, error) {
	var entry manifest.Entry
	if err := c.do(ctx, http.MethodGet, "/api/history/"+url.PathEscape(id), nil, &entry, nil); err != nil {
		return nil, err
	}
	return &entry, nil
}

// CleanHistory removes history entries past retention.
func (c *Client) CleanHistory(ctx context.Context) (int, error) {
	var resp daemon.RemovedResponse
	err := c.do(ctx, http.MethodPost, "/api/history/clean", nil, &resp, nil)
	return resp.Count, err
}

// CleanScratch removes expired extracted copies.
func (c *Client) CleanScratch(ctx context.Context) (int, error) {
	var resp daemon.RemovedResponse
	err := c.do(ctx, http.MethodPost, "/api/scratch/clean", nil, &resp, nil)
	return resp.Count, err
}

// Shutdown requests the daemon to shut down gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/shutdown", nil, &resp, nil); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("shutdown request was not successful")
	}
	return nil
}
