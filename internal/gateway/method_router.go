package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nextlevelbuilder/agentgate/pkg/protocol"
)

// HandlerFunc handles one RPC method call.
type HandlerFunc func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter dispatches RequestFrames to registered handlers by method
// name, gating everything but "connect" and "health" behind the connect
// handshake.
type MethodRouter struct {
	server   *Server
	handlers map[string]HandlerFunc
}

// NewMethodRouter creates a router wired to server and pre-registers the
// connect/health/status system methods.
func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{server: server, handlers: make(map[string]HandlerFunc)}
	r.Register(protocol.MethodConnect, r.handleConnect)
	r.Register(protocol.MethodHealth, r.handleHealth)
	r.Register(protocol.MethodStatus, r.handleStatus)
	return r
}

// Register adds (or replaces) the handler for methodName.
func (r *MethodRouter) Register(methodName string, handler HandlerFunc) {
	r.handlers[methodName] = handler
}

var publicMethods = map[string]bool{
	protocol.MethodConnect: true,
	protocol.MethodHealth:  true,
}

// Dispatch routes req to its registered handler, rejecting unauthenticated
// calls to any method other than connect/health.
func (r *MethodRouter) Dispatch(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInvalidRequest, "unknown method: "+req.Method))
		return
	}

	if !client.Authenticated && !publicMethods[req.Method] {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnauthorized, "connect first"))
		return
	}

	if pe := r.server.policyEngine; pe != nil {
		if !pe.Allow(pe.RoleFor(client.OwnerID), req.Method) {
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrForbidden, "owner-only method"))
			return
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("gateway method panic", "method", req.Method, "recover", rec)
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "internal error"))
		}
	}()

	handler(ctx, client, req)
}

type connectParams struct {
	Token      string `json:"token"`
	DeviceID   string `json:"deviceId"`
	PairingKey string `json:"pairingKey"`
}

// handleConnect authenticates a client either via the shared gateway token
// or a paired device's bearer token (spec §4.10).
func (r *MethodRouter) handleConnect(_ context.Context, client *Client, req *protocol.RequestFrame) {
	var params connectParams
	if req.Params != nil {
		_ = json.Unmarshal(req.Params, &params)
	}

	cfgToken := r.server.cfg.Gateway.Token
	switch {
	case cfgToken == "":
		// No shared token configured: accept any connection (local dev / CLI).
		client.Authenticated = true
	case params.Token == cfgToken:
		client.Authenticated = true
		client.OwnerID = "owner"
	case params.PairingKey != "" && r.server.pairingService != nil:
		if req, err := r.server.pairingService.Get(params.PairingKey); err == nil && req.Token == params.Token {
			client.Authenticated = true
			client.DeviceID = params.DeviceID
			client.OwnerID = req.SenderID
		}
	}

	if !client.Authenticated {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnauthorized, "invalid credentials"))
		return
	}

	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"protocolVersion": protocol.ProtocolVersion,
		"clientId":        client.id,
	}))
}

func (r *MethodRouter) handleHealth(_ context.Context, client *Client, req *protocol.RequestFrame) {
	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"status":          "ok",
		"protocolVersion": protocol.ProtocolVersion,
	}))
}

func (r *MethodRouter) handleStatus(_ context.Context, client *Client, req *protocol.RequestFrame) {
	r.server.mu.RLock()
	clients := len(r.server.clients)
	r.server.mu.RUnlock()

	client.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
		"connectedClients": clients,
	}))
}
