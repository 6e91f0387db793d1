// Package auth wraps the external authentication service. The offline core
// never talks to it directly; it is injected where a signed-in user handle
// is needed (class joins, uploads).
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/JainamDedhia/Eduthon/internal/material"
	"golang.org/x/oauth2"
)

// User is the signed-in user handle provided by the auth service.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IsTeacher   bool   `json:"isTeacher"`
}

// Service exposes the two capabilities the app needs from the identity
// provider.
type Service interface {
	CurrentUser(ctx context.Context) (*User, error)
	SignOut(ctx context.Context) error
}

type Client struct {
	client  *http.Client
	baseURL string
}

func NewClient(baseURL, token string) *Client {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})

	return &Client{
		client:  oauth2.NewClient(context.Background(), tokenSource),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &material.NetworkError{Operation: "current_user", APIMessage: err.Error(), Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &material.NetworkError{Operation: "current_user", StatusCode: resp.StatusCode, APIMessage: resp.Status}
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	return &user, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/signout", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &material.NetworkError{Operation: "sign_out", APIMessage: err.Error(), Err: err}
	}

	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &material.NetworkError{Operation: "sign_out", StatusCode: resp.StatusCode, APIMessage: resp.Status}
	}

	return nil
}
