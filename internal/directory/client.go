// Package directory talks to the hosted class directory: class documents,
// their material lists, membership, and a polling change subscription.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/JainamDedhia/Eduthon/internal/logctx"
	"github.com/JainamDedhia/Eduthon/internal/material"
	"golang.org/x/oauth2"
)

// Service is the read/write surface of the class directory. The offline
// pipelines only read; the surrounding app also appends.
type Service interface {
	GetClass(ctx context.Context, classID string) (*material.Class, error)
	AddMaterial(ctx context.Context, classID string, mat material.Material) error
	AddStudent(ctx context.Context, classID, userID string) error
}

type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient builds a directory client authenticated with a static bearer
// token.
func NewClient(baseURL, token string) *Client {
	var hc *http.Client

	if token != "" {
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), tokenSource)
	} else {
		hc = &http.Client{}
	}

	return &Client{
		client:  hc,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// GetClass fetches the current class document.
func (c *Client) GetClass(ctx context.Context, classID string) (*material.Class, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/classes/"+classID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &material.NetworkError{Operation: "get_class", APIMessage: err.Error(), Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &material.NotFoundError{Kind: "record", ClassID: classID}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &material.NetworkError{Operation: "get_class", StatusCode: resp.StatusCode, APIMessage: resp.Status}
	}

	var class material.Class
	if err := json.NewDecoder(resp.Body).Decode(&class); err != nil {
		return nil, fmt.Errorf("failed to decode class document: %w", err)
	}

	if class.ID == "" {
		class.ID = classID
	}

	return &class, nil
}

// AddMaterial appends a material to the class document's materials array.
func (c *Client) AddMaterial(ctx context.Context, classID string, mat material.Material) error {
	return c.post(ctx, "/classes/"+classID+"/materials", "add_material", mat)
}

// AddStudent appends a student to the class membership array. Membership is
// checked first so a repeated join never duplicates the entry.
func (c *Client) AddStudent(ctx context.Context, classID, userID string) error {
	logger := logctx.LoggerFromContext(ctx).With("class_id", classID)

	class, err := c.GetClass(ctx, classID)
	if err != nil {
		return err
	}

	if class.HasStudent(userID) {
		logger.Debug("student already enrolled, skipping append")

		return nil
	}

	return c.post(ctx, "/classes/"+classID+"/students", "add_student", map[string]string{"userId": userID})
}

func (c *Client) post(ctx context.Context, path, operation string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &material.NetworkError{Operation: operation, APIMessage: err.Error(), Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &material.NetworkError{Operation: operation, StatusCode: resp.StatusCode, APIMessage: resp.Status}
	}

	return nil
}
