// Package upload pushes a teacher's file to the remote upload endpoint and
// returns the public URL the directory will advertise.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/JainamDedhia/Eduthon/internal/material"
)

type Client struct {
	client   *http.Client
	endpoint string
}

func NewClient(endpoint string) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 5 * time.Minute,
		},
		endpoint: endpoint,
	}
}

// Upload sends the file as a multipart form with fields "file" and "folder"
// (the class identifier) and returns the public URL from the response.
func (c *Client) Upload(ctx context.Context, classID, filename string, file io.Reader) (string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to copy file into form: %w", err)
	}

	if err := writer.WriteField("folder", classID); err != nil {
		return "", fmt.Errorf("failed to write folder field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &material.NetworkError{Operation: "upload_material", APIMessage: err.Error(), Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return "", &material.NetworkError{Operation: "upload_material", StatusCode: resp.StatusCode, APIMessage: string(msg)}
	}

	var result struct {
		URL string `json:"url"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}

	if result.URL == "" {
		return "", fmt.Errorf("upload endpoint returned no url")
	}

	return result.URL, nil
}
