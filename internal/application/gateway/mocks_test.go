package gateway

import (
	"context"
	"encoding/json"
	"time"

	appcatalog "github.com/erp/posgateway/internal/application/catalog"
	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/infrastructure/erp"
	"github.com/stretchr/testify/mock"
)

// MockERPGateway is a mock implementation of ERPGateway
type MockERPGateway struct {
	mock.Mock
}

func rawResult(args mock.Arguments) (json.RawMessage, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockERPGateway) Connect(ctx context.Context, env environment.Environment, creds erp.Credentials) (*erp.Session, error) {
	args := m.Called(ctx, env, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.Session), args.Error(1)
}

func (m *MockERPGateway) SearchRead(ctx context.Context, env environment.Environment, creds erp.Credentials, p erp.SearchParams, timeout time.Duration) (json.RawMessage, error) {
	return rawResult(m.Called(ctx, env, creds, p, timeout))
}

func (m *MockERPGateway) Read(ctx context.Context, env environment.Environment, creds erp.Credentials, model string, ids []int64, fields []string, timeout time.Duration) (json.RawMessage, error) {
	return rawResult(m.Called(ctx, env, creds, model, ids, fields, timeout))
}

func (m *MockERPGateway) Browse(ctx context.Context, env environment.Environment, creds erp.Credentials, p erp.SearchParams, timeout time.Duration) (json.RawMessage, error) {
	return rawResult(m.Called(ctx, env, creds, p, timeout))
}

func (m *MockERPGateway) Create(ctx context.Context, env environment.Environment, creds erp.Credentials, model string, values map[string]any, timeout time.Duration) (json.RawMessage, error) {
	return rawResult(m.Called(ctx, env, creds, model, values, timeout))
}

func (m *MockERPGateway) Update(ctx context.Context, env environment.Environment, creds erp.Credentials, model string, id int64, values map[string]any, timeout time.Duration) (json.RawMessage, error) {
	return rawResult(m.Called(ctx, env, creds, model, id, values, timeout))
}

func (m *MockERPGateway) Delete(ctx context.Context, env environment.Environment, creds erp.Credentials, model string, id int64, timeout time.Duration) (json.RawMessage, error) {
	return rawResult(m.Called(ctx, env, creds, model, id, timeout))
}

func (m *MockERPGateway) Fetch(ctx context.Context, env environment.Environment, path, mimeType string, timeout time.Duration) (*erp.Binary, error) {
	args := m.Called(ctx, env, path, mimeType, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.Binary), args.Error(1)
}

func (m *MockERPGateway) Barcode(ctx context.Context, env environment.Environment, code string, timeout time.Duration) (*erp.Binary, error) {
	args := m.Called(ctx, env, code, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*erp.Binary), args.Error(1)
}

// MockCatalogProvider is a mock implementation of CatalogProvider
type MockCatalogProvider struct {
	mock.Mock
}

func (m *MockCatalogProvider) GetCatalog(ctx context.Context, env environment.Environment, creds erp.Credentials, callerDigest string, force bool) (*appcatalog.CatalogView, error) {
	args := m.Called(ctx, env, creds, callerDigest, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appcatalog.CatalogView), args.Error(1)
}
