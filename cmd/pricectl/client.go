package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"b2b-pricing/internal/handler"
	"b2b-pricing/internal/model"
	"b2b-pricing/internal/shopctx"
)

// apiClient calls the pricing service's REST surface.
type apiClient struct {
	baseURL string
	shop    string
	actor   string
	http    *http.Client
}

func newAPIClient(baseURL, shop, actor string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		shop:    shop,
		actor:   actor,
		http:    &http.Client{Timeout: timeout},
	}
}

// reconcile posts rows as JSON.
func (c *apiClient) reconcile(ctx context.Context, rows []model.DesiredRow) (*model.Report, error) {
	body, err := json.Marshal(handler.ReconcileRequest{Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var report model.Report
	if err := c.do(ctx, http.MethodPost, "/prices/reconcile", "application/json", bytes.NewReader(body), &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// importSheet uploads an xlsx file.
func (c *apiClient) importSheet(ctx context.Context, path string, content []byte) (*handler.ImportResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := fw.Write(content); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	var resp handler.ImportResponse
	if err := c.do(ctx, http.MethodPost, "/prices/import", mw.FormDataContentType(), &body, &resp); err != nil {
		return nil, err
	}
	if resp.Report == nil {
		return nil, fmt.Errorf("import response has no report")
	}
	return &resp, nil
}

// export downloads the catalog workbook.
func (c *apiClient) export(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, "/prices/export", "", nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// poll checks a bulk job once.
func (c *apiClient) poll(ctx context.Context, jobID string) (*model.PollResult, error) {
	var result model.PollResult
	path := "/bulk-jobs?id=" + url.QueryEscape(jobID)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do sends one request. A *bytes.Buffer out receives the raw body; anything
// else is decoded as JSON.
func (c *apiClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.shop != "" {
		header, err := shopctx.FormatHeader(model.ShopContext{Shop: c.shop, Actor: c.actor})
		if err != nil {
			return fmt.Errorf("encoding shop context: %w", err)
		}
		req.Header.Set(shopctx.Header, header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return responseError(resp.StatusCode, respBody)
	}

	if buf, ok := out.(*bytes.Buffer); ok {
		buf.Write(respBody)
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// responseError renders the service's error envelope, or the raw body.
func responseError(status int, body []byte) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		return fmt.Errorf("HTTP %d %s: %s", status, env.Error.Code, env.Error.Message)
	}
	return fmt.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(body)))
}
