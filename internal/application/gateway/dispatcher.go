package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/domain/shared"
	"github.com/erp/posgateway/internal/infrastructure/logger"
	"github.com/erp/posgateway/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Content types of dispatched replies
const (
	ContentTypeJSON   = shared.ContentTypeJSON
	ContentTypeBinary = "application/octet-stream"
)

// metric label for calls that never resolved to a registered function
const unresolved = "unknown"

// Request is one inbound device call, already extracted from HTTP.
type Request struct {
	RequestID string
	Method    string
	// Origin is the candidate origin computed by RequestOrigin.
	Origin   string
	EnvCode  string
	Module   string
	Function string
	Args     map[string]any
	Username string
	Password string
	// BodyErr is set when the body could not be read as a JSON object.
	// It answers only once the call itself resolved.
	BodyErr error
}

func (r Request) readOnly() bool {
	return r.Method == http.MethodGet
}

// Reply is the fully shaped answer to a Request.
type Reply struct {
	Status      int
	ContentType string
	Body        []byte
	// Err is set when the reply is an error body.
	Err *shared.AppError
}

// Dispatcher resolves, invokes and shapes device calls.
type Dispatcher struct {
	envs     *environment.Registry
	registry *Registry
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// NewDispatcher creates a Dispatcher. logger and metrics may be nil.
func NewDispatcher(envs *environment.Registry, registry *Registry, logger *zap.Logger, metrics *telemetry.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{envs: envs, registry: registry, logger: logger, metrics: metrics}
}

// Dispatch runs the call state machine: origin check (writes only),
// environment, module and function resolution, invocation, then shaping.
// It never returns an error; failures are shaped into 400 replies.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) *Reply {
	if !req.readOnly() && !OriginAllowed(req.Origin, d.envs.AllowedOrigins(req.EnvCode)) {
		return d.fail(ctx, req, unresolved, unresolved, shared.NewOriginNotAuthorized(req.Origin))
	}

	env, ok := d.envs.Lookup(req.EnvCode)
	if !ok {
		return d.fail(ctx, req, unresolved, unresolved, shared.NewUnknownEnvironment(req.EnvCode))
	}

	op, appErr := d.registry.Lookup(req.Module, req.Function)
	if appErr != nil {
		return d.fail(ctx, req, unresolved, unresolved, appErr)
	}

	if req.BodyErr != nil {
		return d.fail(ctx, req, req.Module, req.Function, shared.NewUnexpectedError(req.BodyErr.Error()))
	}

	call := Call{Env: env, Args: req.Args, Username: req.Username, Password: req.Password}
	if call.Args == nil {
		call.Args = map[string]any{}
	}

	result, err := invoke(ctx, op, call)
	if err != nil {
		return d.fail(ctx, req, req.Module, req.Function, shared.AsAppError(err))
	}

	if failure, ok := result.(FailureResult); ok {
		appErr := failure.Err
		if appErr == nil {
			appErr = shared.NewUnexpectedError("empty failure result")
		}
		return d.fail(ctx, req, req.Module, req.Function, appErr)
	}

	reply, err := shape(result, req.readOnly() || IsBinaryFunction(req.Function))
	if err != nil {
		return d.fail(ctx, req, req.Module, req.Function, shared.NewUnexpectedError(err.Error()))
	}
	d.metrics.RecordDispatch(req.Module, req.Function, telemetry.OutcomeOK)
	return reply
}

// invoke calls op, turning a panic into a class 0 error carrying the stack.
func invoke(ctx context.Context, op Operation, call Call) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = shared.NewUnexpectedError(fmt.Sprint(rec)).WithStack(string(debug.Stack()))
		}
	}()
	return op(ctx, call)
}

// shape encodes a successful result. Binary calls send raw bytes; a binary
// call whose operation returned structured data sends it as JSON bytes.
func shape(result Result, binary bool) (*Reply, error) {
	if bin, ok := result.(BinaryResult); ok && binary {
		return &Reply{Status: http.StatusOK, ContentType: MimeType(bin.MimeType), Body: bin.Bytes}, nil
	}

	var value any
	switch r := result.(type) {
	case JSONResult:
		value = r.Value
	case BinaryResult:
		value = r.Bytes
	case nil:
		value = nil
	default:
		return nil, fmt.Errorf("unsupported result %T", result)
	}
	body, err := encodeJSON(value)
	if err != nil {
		return nil, err
	}
	return &Reply{Status: http.StatusOK, ContentType: ContentTypeJSON, Body: body}, nil
}

// fail logs appErr on the request-scoped logger when ctx carries one.
func (d *Dispatcher) fail(ctx context.Context, req Request, module, function string, appErr *shared.AppError) *Reply {
	body := appErr.Body()

	log := logger.FromContextOr(ctx, d.logger.With(zap.String("request_id", req.RequestID)))
	log.Warn("Operation failed",
		zap.String("func", req.Module+"/"+req.Function),
		zap.String("env", req.EnvCode),
		zap.Int("class", appErr.Class),
		zap.ByteString("error", body),
	)
	d.metrics.RecordDispatch(module, function, strconv.Itoa(appErr.Class))

	return &Reply{Status: http.StatusBadRequest, ContentType: ContentTypeJSON, Body: body, Err: appErr}
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MimeType resolves a declared type that may be a bare extension such as "jpg".
func MimeType(declared string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return ContentTypeBinary
	}
	if strings.Contains(declared, "/") {
		return declared
	}
	if t := mime.TypeByExtension("." + strings.TrimPrefix(declared, ".")); t != "" {
		return t
	}
	return ContentTypeBinary
}
