package shopify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"b2b-pricing/internal/model"
)

const stagedUploadsMutation = `mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets { url resourceUrl parameters { name value } }
    userErrors { field message }
  }
}`

const runMutationMutation = `mutation bulkOperationRunMutation($mutation: String!, $stagedUploadPath: String!) {
  bulkOperationRunMutation(mutation: $mutation, stagedUploadPath: $stagedUploadPath) {
    bulkOperation { id status errorCode objectCount url }
    userErrors { field message }
  }
}`

const bulkOperationQuery = `query bulkOperation($id: ID!) {
  node(id: $id) {
    ... on BulkOperation { id status errorCode objectCount url }
  }
}`

const currentBulkOperationQuery = `query currentBulkOperation {
  currentBulkOperation(type: MUTATION) { id status errorCode objectCount url }
}`

const cancelBulkOperationMutation = `mutation bulkOperationCancel($id: ID!) {
  bulkOperationCancel(id: $id) {
    bulkOperation { id status }
    userErrors { field message }
  }
}`

// StageUpload reserves a staged upload target for a bulk mutation variables file.
func (c *Client) StageUpload(ctx context.Context, filename string) (*model.StagedTarget, error) {
	vars := map[string]any{
		"input": []map[string]string{{
			"resource":   "BULK_MUTATION_VARIABLES",
			"filename":   filename,
			"mimeType":   "text/jsonl",
			"httpMethod": "POST",
		}},
	}

	var data stagedUploadsData
	if err := c.graphql(ctx, stagedUploadsMutation, vars, &data); err != nil {
		return nil, fmt.Errorf("creating staged upload: %w", err)
	}
	result := data.StagedUploadsCreate
	if err := userErrorsErr("staged upload", result.UserErrors); err != nil {
		return nil, err
	}
	if len(result.StagedTargets) == 0 {
		return nil, fmt.Errorf("creating staged upload: no target returned")
	}

	t := result.StagedTargets[0]
	target := &model.StagedTarget{URL: t.URL, ResourceURL: t.ResourceURL}
	for _, p := range t.Parameters {
		target.Parameters = append(target.Parameters, model.StagedParameter{Name: p.Name, Value: p.Value})
	}
	return target, nil
}

// Upload posts payload to the staged target. The target's parameters must
// precede the file part, in the order given.
func (c *Client) Upload(ctx context.Context, target *model.StagedTarget, filename string, payload []byte) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, p := range target.Parameters {
		if err := form.WriteField(p.Name, p.Value); err != nil {
			return fmt.Errorf("writing form field %s: %w", p.Name, err)
		}
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return fmt.Errorf("writing file part: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("closing form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body.Bytes()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("uploading payload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("uploading payload: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// RunBulkMutation starts a bulk mutation against a staged upload.
func (c *Client) RunBulkMutation(ctx context.Context, mutation, stagedPath string) (*model.BulkJob, error) {
	vars := map[string]any{
		"mutation":         mutation,
		"stagedUploadPath": stagedPath,
	}

	var data runMutationData
	if err := c.graphql(ctx, runMutationMutation, vars, &data); err != nil {
		return nil, fmt.Errorf("starting bulk mutation: %w", err)
	}
	result := data.BulkOperationRunMutation
	if err := userErrorsErr("bulk mutation", result.UserErrors); err != nil {
		return nil, err
	}
	if result.BulkOperation == nil {
		return nil, fmt.Errorf("starting bulk mutation: no operation returned")
	}
	return jobFromNode(result.BulkOperation), nil
}

// GetBulkJob reads a bulk operation by id. Unknown ids report status NONE.
func (c *Client) GetBulkJob(ctx context.Context, jobID string) (*model.BulkJob, error) {
	var data nodeData
	if err := c.graphql(ctx, bulkOperationQuery, map[string]any{"id": jobID}, &data); err != nil {
		return nil, fmt.Errorf("reading bulk operation: %w", err)
	}
	if data.Node == nil || data.Node.ID == "" {
		return &model.BulkJob{ID: jobID, Status: model.BulkJobNone}, nil
	}
	return jobFromNode(data.Node), nil
}

// CurrentBulkJob returns the shop's latest bulk mutation, or nil.
func (c *Client) CurrentBulkJob(ctx context.Context) (*model.BulkJob, error) {
	var data currentBulkData
	if err := c.graphql(ctx, currentBulkOperationQuery, nil, &data); err != nil {
		return nil, fmt.Errorf("reading current bulk operation: %w", err)
	}
	if data.CurrentBulkOperation == nil {
		return nil, nil
	}
	return jobFromNode(data.CurrentBulkOperation), nil
}

// CancelBulkJob requests cancellation of a bulk operation.
func (c *Client) CancelBulkJob(ctx context.Context, jobID string) error {
	var data cancelData
	if err := c.graphql(ctx, cancelBulkOperationMutation, map[string]any{"id": jobID}, &data); err != nil {
		return fmt.Errorf("canceling bulk operation: %w", err)
	}
	return userErrorsErr("bulk cancel", data.BulkOperationCancel.UserErrors)
}

// FetchResult opens a bulk operation result file.
func (c *Client) FetchResult(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching results: %w", err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching results: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func jobFromNode(n *bulkOperationNode) *model.BulkJob {
	job := &model.BulkJob{
		ID:          n.ID,
		Status:      model.BulkJobStatus(n.Status),
		ObjectCount: int64(n.ObjectCount),
		ErrorCode:   n.ErrorCode,
	}
	if n.URL != nil {
		job.URL = *n.URL
	}
	return job
}
