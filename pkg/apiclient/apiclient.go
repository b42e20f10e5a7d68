// Package apiclient is the agent-side HTTP client for the coordinator
// API: every outgoing request is signed with the agent's Ed25519 key
// before being sent.
package apiclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yeet-sh/yeet/pkg/contracts"
	"github.com/yeet-sh/yeet/pkg/reqsig"
)

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// Client talks to one coordinator, signing every request with signer.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	signer  *reqsig.Signer
}

// New returns a Client bound to baseURL, signing requests with signer.
func New(baseURL string, signer *reqsig.Signer) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{Timeout: 30 * time.Second}, signer: signer}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("apiclient: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.signer.ApplyTo(req, time.Now()); err != nil {
		return nil, fmt.Errorf("apiclient: sign request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("apiclient: decode response: %w", err)
		}
	}
	return resp, nil
}

// IsVerified calls GET /system/verify — 200 means the agent's key is
// an active enrolled host.
func (c *Client) IsVerified(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/system/verify", nil, nil)
	if err != nil {
		return false, err
	}
	return resp.StatusCode == http.StatusOK, nil
}

// SubmitVerificationAttempt posts a fresh enrollment attempt and
// returns the assigned code.
func (c *Client) SubmitVerificationAttempt(ctx context.Context, attempt contracts.VerificationAttempt) (uint32, error) {
	var out struct {
		Code uint32 `json:"code"`
	}
	resp, err := c.do(ctx, http.MethodPost, "/system/verify", attempt, &out)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("apiclient: submit verification attempt: status %d", resp.StatusCode)
	}
	return out.Code, nil
}

// SystemCheck posts the agent's current store path and returns the
// coordinator's decision.
func (c *Client) SystemCheck(ctx context.Context, current contracts.StorePath) (contracts.AgentAction, error) {
	var action contracts.AgentAction
	resp, err := c.do(ctx, http.MethodPost, "/system/check", map[string]contracts.StorePath{"store_path": current}, &action)
	if err != nil {
		return contracts.AgentAction{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return contracts.AgentAction{}, fmt.Errorf("apiclient: system check: status %d", resp.StatusCode)
	}
	return action, nil
}

// AcceptVerification promotes a pending attempt into an enrolled host,
// returning its collected artifacts. Requires the caller's key to pass
// the coordinator's Host.Accept check, which the route makes without
// resource tags, so only admin keys pass it.
func (c *Client) AcceptVerification(ctx context.Context, code uint32, hostname string) (contracts.VerificationArtifacts, error) {
	var out contracts.VerificationArtifacts
	resp, err := c.do(ctx, http.MethodPost, "/system/verify/accept", map[string]any{
		"code":     code,
		"hostname": hostname,
	}, &out)
	if err != nil {
		return contracts.VerificationArtifacts{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return contracts.VerificationArtifacts{}, fmt.Errorf("apiclient: accept verification: status %d", resp.StatusCode)
	}
	return out, nil
}

// ServerRecipient fetches the coordinator's X25519 recipient string.
func (c *Client) ServerRecipient(ctx context.Context) (string, error) {
	var out struct {
		Recipient string `json:"recipient"`
	}
	resp, err := c.do(ctx, http.MethodGet, "/secret/server_key", nil, &out)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("apiclient: fetch server recipient: status %d", resp.StatusCode)
	}
	return out.Recipient, nil
}

// GetSecret fetches secret, asking the coordinator to encrypt the
// response for recipientHex. A nil, nil result means the secret is
// missing or this host is not in its ACL.
func (c *Client) GetSecret(ctx context.Context, secret, recipientHex string) ([]byte, error) {
	var out *string
	resp, err := c.do(ctx, http.MethodPost, "/secret", map[string]string{
		"secret":    secret,
		"recipient": recipientHex,
	}, &out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("apiclient: get secret %q: status %d", secret, resp.StatusCode)
	}
	if out == nil {
		return nil, nil
	}
	return decodeBase64(*out)
}
