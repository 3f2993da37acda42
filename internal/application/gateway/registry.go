// Package gateway routes device calls to the operations registered per module.
package gateway

import (
	"context"
	"sort"
	"strings"

	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/domain/shared"
	"github.com/erp/posgateway/internal/infrastructure/erp"
)

// BinaryPrefix marks functions whose result is always sent as raw bytes.
const BinaryPrefix = "_get_"

// Call is what an operation receives.
type Call struct {
	Env      environment.Environment
	Args     map[string]any
	Username string
	Password string
}

// Credentials returns the caller's ERP credentials.
func (c Call) Credentials() erp.Credentials {
	return erp.Credentials{Username: c.Username, Password: c.Password}
}

// Result is the outcome of a successful operation invocation.
type Result interface {
	result()
}

// JSONResult is a structured result.
type JSONResult struct {
	Value any
}

// BinaryResult carries raw bytes and the MIME type (or file extension) they are sent with.
type BinaryResult struct {
	Bytes    []byte
	MimeType string
}

// FailureResult is a functional error the operation chose to report.
type FailureResult struct {
	Err *shared.AppError
}

func (JSONResult) result()    {}
func (BinaryResult) result()  {}
func (FailureResult) result() {}

// Operation is one callable function of a module.
type Operation func(ctx context.Context, call Call) (Result, error)

// Module maps function names to operations.
type Module map[string]Operation

// Registry is the static module table. It is filled at startup and only
// read afterwards.
type Registry struct {
	modules map[string]Module
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds or replaces a module.
func (r *Registry) Register(name string, m Module) {
	r.modules[name] = m
}

// Lookup resolves module then function.
func (r *Registry) Lookup(module, function string) (Operation, *shared.AppError) {
	m, ok := r.modules[module]
	if !ok {
		return nil, shared.NewUnknownModule(module)
	}
	op, ok := m[function]
	if !ok || op == nil {
		return nil, shared.NewUnknownFunction(function)
	}
	return op, nil
}

// Functions lists a module's function names, sorted.
func (r *Registry) Functions(module string) []string {
	m := r.modules[module]
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBinaryFunction reports whether function always answers with raw bytes.
func IsBinaryFunction(function string) bool {
	return strings.HasPrefix(function, BinaryPrefix)
}
