// Package remote implements the HTTP client for the EO processing platform.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"eotracker/internal/apperrors"
	"eotracker/internal/job"

	"github.com/google/uuid"
)

// Config holds client configuration.
type Config struct {
	BaseURL       string
	Timeout       time.Duration // per-request; uploads get uploadTimeout
	TokenLifetime time.Duration
	TokenBuffer   time.Duration
}

// Uploads run inference server-side and can take minutes.
const uploadTimeout = 100 * time.Minute

// Client talks to the processing platform. It implements job.Remote.
type Client struct {
	baseURL string
	http    *http.Client
	upload  *http.Client
	tokens  *TokenSource

	mu       sync.Mutex
	username string
	password string
}

// NewClient creates a platform client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		upload:  &http.Client{Timeout: uploadTimeout, Transport: transport},
		tokens:  NewTokenSource(cfg.TokenLifetime, cfg.TokenBuffer),
	}
}

// Login authenticates and stores the bearer token. Credentials are kept
// for transparent re-login when the token ages out.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.Internal("remote.login", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Unavailable("remote.login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return apperrors.Auth("invalid credentials")
	}
	if resp.StatusCode != http.StatusOK {
		return statusError("remote.login", resp)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return apperrors.Internal("remote.login", fmt.Errorf("malformed token response: %w", err))
	}
	if body.AccessToken == "" {
		return apperrors.Internal("remote.login", fmt.Errorf("empty access token"))
	}

	c.tokens.Set(body.AccessToken)
	c.mu.Lock()
	c.username, c.password = username, password
	c.mu.Unlock()
	return nil
}

// bearer returns a usable token, re-logging in when the stored one has
// aged out and credentials are available.
func (c *Client) bearer(ctx context.Context) (string, error) {
	if token, ok := c.tokens.Token(); ok {
		return token, nil
	}

	c.mu.Lock()
	username, password := c.username, c.password
	c.mu.Unlock()
	if username == "" {
		return "", apperrors.Auth("session expired, login required")
	}
	if err := c.Login(ctx, username, password); err != nil {
		return "", err
	}
	token, ok := c.tokens.Token()
	if !ok {
		return "", apperrors.Auth("session expired, login required")
	}
	return token, nil
}

// SubmitAOI submits a processing request over an area of interest.
func (c *Client) SubmitAOI(ctx context.Context, req *job.AOIRequest) (string, error) {
	geometry, err := req.Geometry.MarshalGeometry()
	if err != nil {
		return "", apperrors.Validation("geometry", err.Error())
	}

	payload := map[string]any{
		"pipeline":    req.Pipeline,
		"datatype_id": req.Datatype,
		"geometry":    geometry,
		"start_date":  req.Dates.Start,
		"end_date":    req.Dates.End,
	}
	return c.submit(ctx, "/jobs/", payload)
}

func (c *Client) submit(ctx context.Context, path string, payload map[string]any) (string, error) {
	const op = "remote.submit"

	body, err := json.Marshal(payload)
	if err != nil {
		return "", apperrors.Internal(op, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Unavailable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(op, resp)
	}
	return decodeJobID(op, resp.Body)
}

// SubmitImagery uploads a local raster as a multipart request.
func (c *Client) SubmitImagery(ctx context.Context, req *job.ImageryRequest) (string, error) {
	const op = "remote.upload"

	file, err := os.Open(req.FilePath)
	if err != nil {
		return "", apperrors.Validation("file", fmt.Sprintf("imagery file not readable: %v", err))
	}
	defer file.Close()

	// Stream the multipart body through a pipe so the raster is never
	// buffered in memory whole.
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(req.FilePath))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	query := url.Values{}
	query.Set("pipeline", req.Pipeline)
	query.Set("datatype_id", req.Datatype)
	query.Set("image_type", req.ImageType)

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/jobs/from-file?"+query.Encode(), pr)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.upload.Do(httpReq)
	if err != nil {
		return "", apperrors.Unavailable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(op, resp)
	}
	return decodeJobID(op, resp.Body)
}

// decodeJobID reads the platform's submission response.
func decodeJobID(op string, r io.Reader) (string, error) {
	var body struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return "", apperrors.Internal(op, fmt.Errorf("malformed submission response: %w", err))
	}
	if body.JobID == "" {
		return "", apperrors.Internal(op, fmt.Errorf("submission response carries no job id"))
	}
	return body.JobID, nil
}

// statusPayload is the platform's job status document.
type statusPayload struct {
	Status      string `json:"status"` // pending | start | update | end | error
	Result      string `json:"result"`
	StatusCode  int    `json:"status_code"`
	ResourceURL string `json:"resource_url"`
	Body        struct {
		DatatypeID string `json:"datatype_id"`
	} `json:"body"`
}

// Status queries the platform and maps its vocabulary onto tracker states.
func (c *Client) Status(ctx context.Context, id string) (*job.RemoteStatus, error) {
	const op = "remote.status"

	req, err := c.newRequest(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Unavailable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}

	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.Unavailable(op, fmt.Errorf("malformed status payload: %w", err))
	}
	return mapStatus(id, &payload), nil
}

// mapStatus translates a platform status document to a RemoteStatus.
func mapStatus(id string, p *statusPayload) *job.RemoteStatus {
	rs := &job.RemoteStatus{
		Detail:   p.Result,
		Datatype: p.Body.DatatypeID,
	}
	switch p.Status {
	case "pending":
		rs.State = job.StateSubmitted
	case "start", "update":
		rs.State = job.StateRunning
	case "end":
		rs.State = job.StateSucceeded
		if p.ResourceURL != "" {
			rs.ResultHandle = id
		} else {
			// Completed without an artifact; treat as failure so the
			// user is told instead of waiting on an import forever.
			rs.State = job.StateFailed
			rs.Detail = "job completed but no resource was published"
		}
	case "error":
		rs.State = job.StateFailed
		if rs.Detail == "" {
			rs.Detail = fmt.Sprintf("platform error (status code %d)", p.StatusCode)
		}
	default:
		rs.State = job.StateFailed
		rs.Detail = fmt.Sprintf("unknown platform status %q", p.Status)
	}
	return rs
}

// Cancel issues a best-effort cancellation.
func (c *Client) Cancel(ctx context.Context, id string) error {
	const op = "remote.cancel"

	req, err := c.newRequest(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Unavailable(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusMethodNotAllowed:
		// Platform does not support cancellation; the caller marks the
		// job cancelled locally anyway.
		return nil
	default:
		return statusError(op, resp)
	}
}

// Download streams the output artifact for a result handle into dir and
// returns the written path. The filename comes from Content-Disposition
// with a handle-based fallback.
func (c *Client) Download(ctx context.Context, handle, dir string) (string, error) {
	const op = "remote.download"

	req, err := c.newRequest(ctx, http.MethodGet, "/retrieve/"+url.PathEscape(handle), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Unavailable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(op, resp)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apperrors.Import(op, err)
	}

	name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = handle + ".zip"
	}
	dest := filepath.Join(dir, filepath.Base(name))

	file, err := os.Create(dest)
	if err != nil {
		return "", apperrors.Import(op, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(dest)
		return "", apperrors.Unavailable(op, err)
	}
	if err := file.Sync(); err != nil {
		return "", apperrors.Import(op, err)
	}
	return dest, nil
}

// Ready checks the platform is reachable with the current session.
func (c *Client) Ready(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/jobs/", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Unavailable("remote.ready", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Clear()
		return apperrors.Auth("platform rejected the session token")
	}
	if resp.StatusCode >= 500 {
		return statusError("remote.ready", resp)
	}
	return nil
}

// TokenExpiry exposes the remaining session lifetime for status display.
func (c *Client) TokenExpiry() time.Duration {
	return c.tokens.TimeUntilExpiry()
}

// newRequest builds an authenticated request with a correlation id.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, apperrors.Internal("remote.request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

// statusError classifies a non-2xx platform response.
func statusError(op string, resp *http.Response) error {
	detail := strings.TrimSpace(string(readLimited(resp.Body, 4096)))
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.Auth("platform rejected the session token")
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound("remote job", detailOr(detail, "resource"))
	case resp.StatusCode >= 500:
		return apperrors.Unavailable(op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, detailOr(detail, "server error")))
	default:
		return apperrors.Validation("", fmt.Sprintf("%s: HTTP %d: %s", op, resp.StatusCode, detailOr(detail, "rejected")))
	}
}

func readLimited(r io.Reader, n int64) []byte {
	data, _ := io.ReadAll(io.LimitReader(r, n))
	return data
}

func detailOr(detail, fallback string) string {
	if detail == "" {
		return fallback
	}
	return detail
}

// filenameFromDisposition extracts the filename parameter from a
// Content-Disposition header, tolerating the platform's unquoted form.
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	const marker = "filename="
	idx := strings.LastIndex(header, marker)
	if idx < 0 {
		return ""
	}
	name := header[idx+len(marker):]
	if semi := strings.IndexByte(name, ';'); semi >= 0 {
		name = name[:semi]
	}
	return strings.Trim(name, `" `)
}

// Verify Client implements the job.Remote contract.
var _ job.Remote = (*Client)(nil)
