package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/domain/shared"
	"go.uber.org/zap"
)

// Odoo web client endpoints
const (
	pathAuthenticate = "/web/session/authenticate"
	pathSearchRead   = "/web/dataset/search_read"
	pathCallKW       = "/web/dataset/call_kw"

	sessionCookie = "session_id"
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	if len(e.Data) == 0 {
		return e.Message
	}
	return e.Message + " " + string(e.Data)
}

// Session is an authenticated ERP session valid for one dispatched call.
type Session struct {
	Env       environment.Environment
	UID       int64
	sessionID string
}

type authResult struct {
	UID       json.RawMessage `json:"uid"`
	SessionID string          `json:"session_id"`
}

// Connect authenticates creds against env's database.
func (c *Client) Connect(ctx context.Context, env environment.Environment, creds Credentials) (*Session, error) {
	started := time.Now()
	session, err := c.connect(ctx, env, creds)
	c.metrics.ObserveERPCall("connect", started, err)
	return session, err
}

func (c *Client) connect(ctx context.Context, env environment.Environment, creds Credentials) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	params := map[string]any{
		"db":       env.Database,
		"login":    creds.Username,
		"password": creds.Password,
	}
	raw, cookies, err := c.post(ctx, env.BaseURL()+pathAuthenticate, "", params)
	if err != nil {
		c.logger.Debug("ERP authentication failed",
			zap.String("env", env.Code),
			zap.String("login", creds.Username),
			zap.Error(err),
		)
		return nil, shared.NewConnectionError(err.Error())
	}

	var res authResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, shared.NewConnectionError("decode authentication result: " + err.Error())
	}
	var uid int64
	if err := json.Unmarshal(res.UID, &uid); err != nil || uid == 0 {
		return nil, shared.NewConnectionError(fmt.Sprintf("login %q rejected by database %q", creds.Username, env.Database))
	}

	sessionID := res.SessionID
	for _, ck := range cookies {
		if ck.Name == sessionCookie {
			sessionID = ck.Value
		}
	}
	return &Session{Env: env, UID: uid, sessionID: sessionID}, nil
}

// call performs one JSON-RPC call on an authenticated session.
func (c *Client) call(ctx context.Context, s *Session, operation, path string, params any, timeout time.Duration) (json.RawMessage, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeoutOr(timeout, c.callTimeout))
	defer cancel()

	raw, _, err := c.post(ctx, s.Env.BaseURL()+path, s.sessionID, params)
	c.metrics.ObserveERPCall(operation, started, err)
	if err != nil {
		c.logger.Debug("ERP call failed",
			zap.String("env", s.Env.Code),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return nil, shared.NewOperationError(operation, err.Error())
	}
	return raw, nil
}

func (c *Client) post(ctx context.Context, url, sessionID string, params any) (json.RawMessage, []*http.Cookie, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(rpcRequest{JSONRPC: "2.0", Method: "call", Params: params, ID: c.nextID.Add(1)})
	if sessionID != "" {
		req.SetCookie(&http.Cookie{Name: sessionCookie, Value: sessionID})
	}

	resp, err := req.Post(url)
	if err != nil {
		return nil, nil, describeTransportError(ctx, err)
	}
	if resp.IsError() {
		return nil, nil, describeHTTPError(resp.StatusCode(), resp.Header().Get("Content-Type"), resp.Bytes())
	}

	var envelope rpcResponse
	if err := json.Unmarshal(resp.Bytes(), &envelope); err != nil {
		return nil, nil, fmt.Errorf("invalid JSON-RPC response: %w", err)
	}
	if envelope.Error != nil {
		return nil, nil, envelope.Error
	}
	return envelope.Result, resp.Cookies(), nil
}

func describeTransportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timeout: %w", err)
	}
	return err
}
