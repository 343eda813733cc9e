// Package client is a Go client for the vmfleet line-delimited JSON
// protocol. One Client wraps one persistent connection; requests on a single
// client are synchronous and must not be issued concurrently.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// Disk describes one disk in a registration or update request.
type Disk struct {
	DiskSize int `json:"disk_size"`
}

// RegisterRequest is the payload for registering a VM profile.
type RegisterRequest struct {
	VMID     string `json:"vm_id"`
	RAM      int    `json:"ram"`
	CPU      int    `json:"cpu"`
	Password string `json:"password"`
	Disks    []Disk `json:"disks,omitempty"`
}

// UpdateRequest is the payload for a partial profile update. Nil fields are
// left unchanged; a non-nil Disks slice replaces the whole disk set.
type UpdateRequest struct {
	RAM   *int   `json:"ram,omitempty"`
	CPU   *int   `json:"cpu,omitempty"`
	Disks []Disk `json:"disks,omitempty"`
}

// Response is one server reply.
type Response struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type request struct {
	Command string `json:"command"`
	Data    any    `json:"data,omitempty"`
}

// Client holds one persistent connection to a vmfleet server.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	token  string
}

// Dial connects to the server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client.Dial: %w", err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Close closes the connection. The server drops the session with it.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Token returns the token obtained by the last successful Authenticate.
func (c *Client) Token() string {
	return c.token
}

// Do sends one command and reads one response. It does not interpret the
// status; callers that want errors surfaced use the typed methods.
func (c *Client) Do(ctx context.Context, command string, data any) (*Response, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	if err := json.NewEncoder(c.conn).Encode(request{Command: command, Data: data}); err != nil {
		return nil, fmt.Errorf("client: send %s: %w", command, err)
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("client: read %s response: %w", command, err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("client: decode %s response: %w", command, err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, command string, data any) (*Response, error) {
	resp, err := c.Do(ctx, command, data)
	if err != nil {
		return nil, err
	}
	if resp.Status != "success" {
		return nil, &ServerError{Command: command, Message: resp.Message}
	}
	return resp, nil
}

// Ping checks liveness; the server echoes data back.
func (c *Client) Ping(ctx context.Context, data any) (*Response, error) {
	return c.do(ctx, "ping", data)
}

// Register creates a VM profile.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	_, err := c.do(ctx, "register", req)
	return err
}

// Authenticate obtains a session token for the VM and remembers it for
// subsequent privileged calls.
func (c *Client) Authenticate(ctx context.Context, vmID, password string) (string, error) {
	resp, err := c.do(ctx, "authenticate", map[string]string{"vm_id": vmID, "password": password})
	if err != nil {
		return "", err
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &payload); err != nil {
		return "", fmt.Errorf("client.Authenticate: decode token: %w", err)
	}
	c.token = payload.Token
	return c.token, nil
}

// List runs a list query ("active_vms", "authenticated_vms", "all_vms",
// "all_disks") and decodes the result into out.
func (c *Client) List(ctx context.Context, listType string, out any) error {
	resp, err := c.do(ctx, "list", map[string]string{"token": c.token, "list_type": listType})
	if err != nil {
		return err
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("client.List: decode %s: %w", listType, err)
	}
	return nil
}

// Update applies a partial update to the authenticated VM's own profile.
func (c *Client) Update(ctx context.Context, req UpdateRequest) error {
	payload := struct {
		Token string `json:"token"`
		UpdateRequest
	}{Token: c.token, UpdateRequest: req}
	_, err := c.do(ctx, "update", payload)
	return err
}

// Logout ends the session on this connection and forgets the stored token.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.do(ctx, "logout", map[string]string{"token": c.token}); err != nil {
		return err
	}
	c.token = ""
	return nil
}
