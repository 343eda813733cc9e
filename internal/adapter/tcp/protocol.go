// Package tcp is the driving adapter: a line-delimited JSON request/response
// server over persistent TCP connections. Each connection is one goroutine;
// the shared state is the connection registry, reached only through its
// atomic operations.
package tcp

import "encoding/json"

// Request is the top-level envelope for one inbound message. Data stays raw
// until the dispatcher decodes it against the per-command payload type.
type Request struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// Response is the envelope for one outbound message, serialized as a single
// JSON document followed by a newline.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

func successResponse(message string, data any) Response {
	return Response{Status: statusSuccess, Message: message, Data: data}
}

func errorResponse(message string, data any) Response {
	return Response{Status: statusError, Message: message, Data: data}
}

// Per-command payload types. The raw data is decoded into these before any
// handler logic runs, so mistyped fields are rejected up front.

type registerData struct {
	VMID     string     `json:"vm_id"`
	RAM      int        `json:"ram"`
	CPU      int        `json:"cpu"`
	Password string     `json:"password"`
	Disks    []diskSpec `json:"disks"`
}

type diskSpec struct {
	DiskSize int `json:"disk_size"`
}

type authenticateData struct {
	VMID     string `json:"vm_id"`
	Password string `json:"password"`
}

type listData struct {
	Token    string `json:"token"`
	ListType string `json:"list_type"`
}

// Recognized list_type values.
const (
	listActiveVMs        = "active_vms"
	listAuthenticatedVMs = "authenticated_vms"
	listAllVMs           = "all_vms"
	listAllDisks         = "all_disks"
)

type updateData struct {
	Token string     `json:"token"`
	RAM   *int       `json:"ram"`
	CPU   *int       `json:"cpu"`
	Disks []diskSpec `json:"disks"`
}

type logoutData struct {
	Token string `json:"token"`
}

// Outbound payload shapes. Tokens are redacted and password hashes excluded.

type connInfo struct {
	Addr          string `json:"addr"`
	Authenticated bool   `json:"authenticated"`
}

type peerInfo struct {
	Addr string `json:"addr"`
	VMID string `json:"vm_id"`
	RAM  int    `json:"ram"`
	CPU  int    `json:"cpu"`
}

type vmInfo struct {
	VMID string `json:"vm_id"`
	RAM  int    `json:"ram"`
	CPU  int    `json:"cpu"`
}

type diskInfo struct {
	DiskID   string `json:"disk_id"`
	VMID     string `json:"vm_id"`
	DiskSize int    `json:"disk_size"`
}
