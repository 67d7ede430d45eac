package proxmox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// apiResponse is the standard Proxmox envelope: every endpoint wraps its
// payload in a "data" member.
type apiResponse struct {
	Data json.RawMessage `json:"data"`
}

// ticketData is the payload of POST /access/ticket.
type ticketData struct {
	Ticket              string `json:"ticket"`
	CSRFPreventionToken string `json:"CSRFPreventionToken"`
}

// Authenticate resolves a usable Auth for the given credentials. The token
// pair is tried first and verified with a cheap authenticated node listing;
// any failure there falls through to the password ticket login. ErrAuthFailed
// wraps the underlying cause when no path succeeds.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (*Auth, error) {
	var tokenErr error

	if creds.HasToken() {
		auth := &Auth{
			method: "token",
			headers: map[string]string{
				"Authorization": fmt.Sprintf("PVEAPIToken=%s=%s", creds.TokenID, creds.TokenSecret),
			},
		}
		if err := c.GetJSON(ctx, "/api2/json/nodes", auth, nil); err == nil {
			return auth, nil
		} else {
			tokenErr = err
		}
	}

	if !creds.HasPassword() {
		if tokenErr != nil {
			return nil, fmt.Errorf("%w: token rejected and no password fallback: %v", ErrAuthFailed, tokenErr)
		}
		return nil, fmt.Errorf("%w: no credentials configured", ErrAuthFailed)
	}

	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	var ticket ticketData
	if err := c.PostForm(ctx, "/api2/json/access/ticket", form, nil, &ticket); err != nil {
		return nil, fmt.Errorf("%w: login failed: %v", ErrAuthFailed, err)
	}
	if ticket.Ticket == "" {
		return nil, fmt.Errorf("%w: missing PVE ticket in response", ErrAuthFailed)
	}
	if ticket.CSRFPreventionToken == "" {
		return nil, fmt.Errorf("%w: missing CSRFPreventionToken in response", ErrAuthFailed)
	}

	return &Auth{
		method: "password",
		headers: map[string]string{
			"Cookie":              "PVEAuthCookie=" + ticket.Ticket,
			"CSRFPreventionToken": ticket.CSRFPreventionToken,
		},
	}, nil
}

// GetJSON issues a GET against path and decodes the data envelope into out
// (out may be nil when only the status check matters).
func (c *Client) GetJSON(ctx context.Context, path string, auth *Auth, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, auth, out, c.lightTimeout)
}

// PostForm issues a form-encoded POST against path and decodes the data
// envelope into out.
func (c *Client) PostForm(ctx context.Context, path string, form url.Values, auth *Auth, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	return c.do(ctx, http.MethodPost, path, body, auth, out, c.heavyTimeout)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, auth *Auth, out any, timeout time.Duration) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	auth.apply(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}

	var envelope apiResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%s: parse response: %w", path, err)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("%s: parse data: %w", path, err)
	}

	return nil
}

// taskStatus is the payload of GET /nodes/{node}/tasks/{upid}/status.
type taskStatus struct {
	Status     string `json:"status"`
	ExitStatus string `json:"exitstatus"`
}

// WaitTask polls the task until the hypervisor reports it stopped or the
// deadline elapses. Success requires the exit status to equal "OK"
// case-insensitively; any other terminal exit status is a *TaskError.
// WaitTask never retries a failed task, it only waits for completion.
func (c *Client) WaitTask(ctx context.Context, node, upid string, auth *Auth, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	path := fmt.Sprintf("/api2/json/nodes/%s/tasks/%s/status", url.PathEscape(node), url.PathEscape(upid))

	for time.Now().Before(deadline) {
		var status taskStatus
		if err := c.GetJSON(ctx, path, auth, &status); err != nil {
			return err
		}
		if strings.EqualFold(status.Status, "stopped") && status.ExitStatus != "" {
			if strings.EqualFold(status.ExitStatus, "OK") {
				return nil
			}
			return &TaskError{UPID: upid, ExitStatus: status.ExitStatus}
		}
		if err := c.sleep(ctx, taskPollInterval); err != nil {
			return err
		}
	}

	return ErrTaskTimeout
}
