package gateway

import (
	"context"
	"encoding/json"
	"time"

	appcatalog "github.com/erp/posgateway/internal/application/catalog"
	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/domain/shared"
	"github.com/erp/posgateway/internal/infrastructure/erp"
)

// DeviceModuleName is the module scales and POS devices call.
const DeviceModuleName = "m1"

// Function names of the device module, fixed by the device firmware.
const (
	FnConnection = "connection"
	FnCatalog    = "articlesAPeser"
)

// ERPGateway is the remote procedure gateway used by the device module.
type ERPGateway interface {
	Connect(ctx context.Context, env environment.Environment, creds erp.Credentials) (*erp.Session, error)
	SearchRead(ctx context.Context, env environment.Environment, creds erp.Credentials, p erp.SearchParams, timeout time.Duration) (json.RawMessage, error)
	Read(ctx context.Context, env environment.Environment, creds erp.Credentials, model string, ids []int64, fields []string, timeout time.Duration) (json.RawMessage, error)
	Browse(ctx context.Context, env environment.Environment, creds erp.Credentials, p erp.SearchParams, timeout time.Duration) (json.RawMessage, error)
	Create(ctx context.Context, env environment.Environment, creds erp.Credentials, model string, values map[string]any, timeout time.Duration) (json.RawMessage, error)
	Update(ctx context.Context, env environment.Environment, creds erp.Credentials, model string, id int64, values map[string]any, timeout time.Duration) (json.RawMessage, error)
	Delete(ctx context.Context, env environment.Environment, creds erp.Credentials, model string, id int64, timeout time.Duration) (json.RawMessage, error)
	Fetch(ctx context.Context, env environment.Environment, path, mimeType string, timeout time.Duration) (*erp.Binary, error)
	Barcode(ctx context.Context, env environment.Environment, code string, timeout time.Duration) (*erp.Binary, error)
}

// CatalogProvider serves the weighed-article catalog.
type CatalogProvider interface {
	GetCatalog(ctx context.Context, env environment.Environment, creds erp.Credentials, callerDigest string, force bool) (*appcatalog.CatalogView, error)
}

type searchArgs struct {
	Model   string `mapstructure:"model"`
	Timeout int64  `mapstructure:"timeout"`
	Params  struct {
		IDs    []int64  `mapstructure:"ids"`
		Domain []any    `mapstructure:"domain"`
		Fields []string `mapstructure:"fields"`
		Order  string   `mapstructure:"order"`
		Limit  int      `mapstructure:"limit"`
		Offset int      `mapstructure:"offset"`
	} `mapstructure:"params"`
}

func (a searchArgs) searchParams() erp.SearchParams {
	return erp.SearchParams{
		Model:  a.Model,
		IDs:    a.Params.IDs,
		Domain: a.Params.Domain,
		Fields: a.Params.Fields,
		Order:  a.Params.Order,
		Limit:  a.Params.Limit,
		Offset: a.Params.Offset,
	}
}

type writeArgs struct {
	Model   string         `mapstructure:"model"`
	ID      int64          `mapstructure:"id"`
	Timeout int64          `mapstructure:"timeout"`
	Params  map[string]any `mapstructure:"params"`
}

type catalogArgs struct {
	Digest string `mapstructure:"sha"`
	Reload bool   `mapstructure:"recharg"`
}

type fetchArgs struct {
	URL     string `mapstructure:"url"`
	Type    string `mapstructure:"type"`
	Timeout int64  `mapstructure:"timeout"`
}

type barcodeArgs struct {
	Code    string `mapstructure:"cb"`
	Timeout int64  `mapstructure:"timeout"`
}

// NewDeviceModule builds the module serving scales and POS devices.
func NewDeviceModule(gw ERPGateway, catalog CatalogProvider) Module {
	return Module{
		FnConnection: func(ctx context.Context, call Call) (Result, error) {
			if _, err := gw.Connect(ctx, call.Env, call.Credentials()); err != nil {
				return nil, err
			}
			return JSONResult{Value: map[string]bool{"ok": true}}, nil
		},

		erp.OpSearchRead: func(ctx context.Context, call Call) (Result, error) {
			var a searchArgs
			if err := decodeModelArgs(erp.OpSearchRead, call.Args, &a, &a.Model); err != nil {
				return nil, err
			}
			return jsonResult(gw.SearchRead(ctx, call.Env, call.Credentials(), a.searchParams(), millis(a.Timeout)))
		},

		erp.OpRead: func(ctx context.Context, call Call) (Result, error) {
			var a searchArgs
			if err := decodeModelArgs(erp.OpRead, call.Args, &a, &a.Model); err != nil {
				return nil, err
			}
			return jsonResult(gw.Read(ctx, call.Env, call.Credentials(), a.Model, a.Params.IDs, a.Params.Fields, millis(a.Timeout)))
		},

		erp.OpBrowse: func(ctx context.Context, call Call) (Result, error) {
			var a searchArgs
			if err := decodeModelArgs(erp.OpBrowse, call.Args, &a, &a.Model); err != nil {
				return nil, err
			}
			return jsonResult(gw.Browse(ctx, call.Env, call.Credentials(), a.searchParams(), millis(a.Timeout)))
		},

		erp.OpCreate: func(ctx context.Context, call Call) (Result, error) {
			var a writeArgs
			if err := decodeModelArgs(erp.OpCreate, call.Args, &a, &a.Model); err != nil {
				return nil, err
			}
			return jsonResult(gw.Create(ctx, call.Env, call.Credentials(), a.Model, a.Params, millis(a.Timeout)))
		},

		erp.OpUpdate: func(ctx context.Context, call Call) (Result, error) {
			var a writeArgs
			if err := decodeModelArgs(erp.OpUpdate, call.Args, &a, &a.Model); err != nil {
				return nil, err
			}
			return jsonResult(gw.Update(ctx, call.Env, call.Credentials(), a.Model, a.ID, a.Params, millis(a.Timeout)))
		},

		erp.OpDelete: func(ctx context.Context, call Call) (Result, error) {
			var a writeArgs
			if err := decodeModelArgs(erp.OpDelete, call.Args, &a, &a.Model); err != nil {
				return nil, err
			}
			return jsonResult(gw.Delete(ctx, call.Env, call.Credentials(), a.Model, a.ID, millis(a.Timeout)))
		},

		FnCatalog: func(ctx context.Context, call Call) (Result, error) {
			var a catalogArgs
			if err := decodeArgs(call.Args, &a); err != nil {
				return nil, shared.NewOperationError(FnCatalog, err.Error())
			}
			view, err := catalog.GetCatalog(ctx, call.Env, call.Credentials(), a.Digest, a.Reload)
			if err != nil {
				return nil, err
			}
			return JSONResult{Value: view}, nil
		},

		erp.OpFetch: func(ctx context.Context, call Call) (Result, error) {
			var a fetchArgs
			if err := decodeArgs(call.Args, &a); err != nil {
				return nil, shared.NewOperationError(erp.OpFetch, err.Error())
			}
			return binaryResult(gw.Fetch(ctx, call.Env, a.URL, a.Type, millis(a.Timeout)))
		},

		erp.OpBarcode: func(ctx context.Context, call Call) (Result, error) {
			var a barcodeArgs
			if err := decodeArgs(call.Args, &a); err != nil {
				return nil, shared.NewOperationError(erp.OpBarcode, err.Error())
			}
			return binaryResult(gw.Barcode(ctx, call.Env, a.Code, millis(a.Timeout)))
		},
	}
}

// decodeModelArgs decodes args and requires a model name.
func decodeModelArgs(op string, args map[string]any, out any, model *string) error {
	if err := decodeArgs(args, out); err != nil {
		return shared.NewOperationError(op, err.Error())
	}
	if *model == "" {
		return shared.NewOperationError(op, "missing model")
	}
	return nil
}

func jsonResult(raw json.RawMessage, err error) (Result, error) {
	if err != nil {
		return nil, err
	}
	return JSONResult{Value: raw}, nil
}

func binaryResult(bin *erp.Binary, err error) (Result, error) {
	if err != nil {
		return nil, err
	}
	return BinaryResult{Bytes: bin.Bytes, MimeType: bin.MimeType}, nil
}
