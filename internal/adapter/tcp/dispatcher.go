package tcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"vmfleet/internal/app"
	"vmfleet/internal/domain"
)

// unknownCommandMessage is deliberately a success, not an error: a peer
// speaking a newer protocol revision keeps its connection alive.
const unknownCommandMessage = "unknown command"

type handlerFunc func(ctx context.Context, connID app.ConnID, data json.RawMessage) Response

// Dispatcher decodes one request, authorizes it against the registry, invokes
// the matching handler and produces exactly one response. Command-level
// faults never escape: they become error responses.
type Dispatcher struct {
	auth     *app.AuthService
	vms      *app.VMService
	tokens   *app.TokenService
	registry *app.Registry
	logger   *slog.Logger

	handlers map[string]handlerFunc
}

// NewDispatcher creates a dispatcher wired to the given application services.
func NewDispatcher(auth *app.AuthService, vms *app.VMService, tokens *app.TokenService, registry *app.Registry, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		auth:     auth,
		vms:      vms,
		tokens:   tokens,
		registry: registry,
		logger:   logger,
	}
	d.handlers = map[string]handlerFunc{
		"ping":         d.handlePing,
		"register":     d.handleRegister,
		"authenticate": d.handleAuthenticate,
		"list":         d.handleList,
		"update":       d.handleUpdate,
		"logout":       d.handleLogout,
	}
	return d
}

// Dispatch routes one decoded envelope. It always returns a response, even
// when the handler panics.
func (d *Dispatcher) Dispatch(ctx context.Context, connID app.ConnID, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", "command", req.Command, "conn", connID, "panic", r)
			resp = errorResponse("internal error", nil)
		}
	}()

	handler, ok := d.handlers[req.Command]
	if !ok {
		return successResponse(unknownCommandMessage, nil)
	}
	return handler(ctx, connID, req.Data)
}

func (d *Dispatcher) handlePing(_ context.Context, _ app.ConnID, data json.RawMessage) Response {
	var echo any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &echo); err != nil {
			return errorResponse("malformed ping data", string(data))
		}
	}
	return successResponse("PONG", echo)
}

func (d *Dispatcher) handleRegister(ctx context.Context, connID app.ConnID, data json.RawMessage) Response {
	var payload registerData
	if err := json.Unmarshal(data, &payload); err != nil {
		return errorResponse("malformed register data", string(data))
	}

	params := app.RegisterParams{
		ID:       payload.VMID,
		RAM:      payload.RAM,
		CPU:      payload.CPU,
		Password: payload.Password,
	}
	for _, disk := range payload.Disks {
		params.DiskSizes = append(params.DiskSizes, disk.DiskSize)
	}

	if err := d.vms.Register(ctx, params); err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			return errorResponse(err.Error(), string(data))
		case errors.Is(err, domain.ErrDuplicateVM):
			return errorResponse(domain.ErrDuplicateVM.Error(), nil)
		default:
			d.logger.Error("register failed", "vm_id", payload.VMID, "conn", connID, "error", err)
			return errorResponse("registration failed", nil)
		}
	}
	d.logger.Info("vm registered", "vm_id", payload.VMID, "conn", connID)
	return successResponse("VM registered", map[string]string{"vm_id": payload.VMID})
}

func (d *Dispatcher) handleAuthenticate(ctx context.Context, connID app.ConnID, data json.RawMessage) Response {
	var payload authenticateData
	if err := json.Unmarshal(data, &payload); err != nil {
		return errorResponse("malformed authenticate data", string(data))
	}

	token, err := d.auth.Authenticate(ctx, connID, payload.VMID, payload.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			return errorResponse(app.ErrInvalidCredentials.Error(), nil)
		}
		d.logger.Error("authenticate failed", "conn", connID, "error", err)
		return errorResponse("authentication failed", nil)
	}
	d.logger.Info("vm authenticated", "vm_id", payload.VMID, "conn", connID)
	return successResponse("authentication successful", map[string]string{"token": token})
}

func (d *Dispatcher) handleList(ctx context.Context, connID app.ConnID, data json.RawMessage) Response {
	var payload listData
	if err := json.Unmarshal(data, &payload); err != nil {
		return errorResponse("malformed list data", string(data))
	}

	if _, err := d.auth.Authorize(connID, payload.Token); err != nil {
		return authErrorResponse(err)
	}

	switch payload.ListType {
	case listActiveVMs:
		return successResponse("", d.activeConns())
	case listAuthenticatedVMs:
		return d.authenticatedPeers(ctx)
	case listAllVMs:
		return d.allVMs(ctx)
	case listAllDisks:
		return d.allDisks(ctx)
	default:
		return errorResponse(fmt.Sprintf("unknown list_type %q", payload.ListType), string(data))
	}
}

func (d *Dispatcher) activeConns() []connInfo {
	snapshot := d.registry.Snapshot()
	out := make([]connInfo, 0, len(snapshot))
	for _, st := range snapshot {
		out = append(out, connInfo{Addr: string(st.ID), Authenticated: st.Authenticated()})
	}
	return out
}

func (d *Dispatcher) authenticatedPeers(ctx context.Context) Response {
	out := make([]peerInfo, 0)
	for _, st := range d.registry.Snapshot() {
		if !st.Authenticated() {
			continue
		}
		vmID, err := d.tokens.Verify(st.Token)
		if err != nil {
			continue
		}
		vm, err := d.vms.Get(ctx, vmID)
		if err != nil {
			d.logger.Error("list authenticated peers: lookup failed", "vm_id", vmID, "error", err)
			return errorResponse("listing failed", nil)
		}
		if vm == nil {
			continue
		}
		out = append(out, peerInfo{Addr: string(st.ID), VMID: vm.ID, RAM: vm.RAM, CPU: vm.CPU})
	}
	return successResponse("", out)
}

func (d *Dispatcher) allVMs(ctx context.Context) Response {
	vms, err := d.vms.List(ctx)
	if err != nil {
		d.logger.Error("list vms failed", "error", err)
		return errorResponse("listing failed", nil)
	}
	out := make([]vmInfo, 0, len(vms))
	for _, vm := range vms {
		out = append(out, vmInfo{VMID: vm.ID, RAM: vm.RAM, CPU: vm.CPU})
	}
	return successResponse("", out)
}

func (d *Dispatcher) allDisks(ctx context.Context) Response {
	disks, err := d.vms.ListDisks(ctx)
	if err != nil {
		d.logger.Error("list disks failed", "error", err)
		return errorResponse("listing failed", nil)
	}
	out := make([]diskInfo, 0, len(disks))
	for _, disk := range disks {
		out = append(out, diskInfo{DiskID: disk.ID, VMID: disk.VMID, DiskSize: disk.SizeGB})
	}
	return successResponse("", out)
}

func (d *Dispatcher) handleUpdate(ctx context.Context, connID app.ConnID, data json.RawMessage) Response {
	var payload updateData
	if err := json.Unmarshal(data, &payload); err != nil {
		return errorResponse("malformed update data", string(data))
	}

	// The acting vm id comes from the verified token, never from the
	// request body.
	vmID, err := d.auth.Authorize(connID, payload.Token)
	if err != nil {
		return authErrorResponse(err)
	}

	params := app.UpdateParams{RAM: payload.RAM, CPU: payload.CPU}
	if payload.Disks != nil {
		params.DiskSizes = make([]int, 0, len(payload.Disks))
		for _, disk := range payload.Disks {
			params.DiskSizes = append(params.DiskSizes, disk.DiskSize)
		}
	}

	if err := d.vms.Update(ctx, vmID, params); err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			return errorResponse(err.Error(), string(data))
		case errors.Is(err, domain.ErrVMNotFound):
			// The profile behind a valid session vanished; treat it as
			// an authorization failure, not a server fault.
			return errorResponse(app.ErrInvalidToken.Error(), nil)
		default:
			d.logger.Error("update failed", "vm_id", vmID, "error", err)
			return errorResponse("update failed", nil)
		}
	}
	d.logger.Info("vm updated", "vm_id", vmID, "conn", connID)
	return successResponse("VM updated", nil)
}

func (d *Dispatcher) handleLogout(_ context.Context, connID app.ConnID, data json.RawMessage) Response {
	var payload logoutData
	if err := json.Unmarshal(data, &payload); err != nil {
		return errorResponse("malformed logout data", string(data))
	}

	if err := d.auth.Logout(connID, payload.Token); err != nil {
		return authErrorResponse(err)
	}
	d.logger.Info("vm logged out", "conn", connID)
	return successResponse("logged out", nil)
}

func authErrorResponse(err error) Response {
	switch {
	case errors.Is(err, app.ErrNotAuthenticated):
		return errorResponse(app.ErrNotAuthenticated.Error(), nil)
	case errors.Is(err, app.ErrTokenExpired):
		return errorResponse(app.ErrTokenExpired.Error(), nil)
	default:
		return errorResponse(app.ErrInvalidToken.Error(), nil)
	}
}
