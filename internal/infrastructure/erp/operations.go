package erp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/domain/shared"
)

// Operation names, also used as the tag of operation errors
const (
	OpSearchRead = "search_read"
	OpRead       = "get_by_ids"
	OpBrowse     = "browse_by_id"
	OpCreate     = "create_object"
	OpUpdate     = "update_object"
	OpDelete     = "delete_object"
	OpFetch      = "_get_url"
	OpBarcode    = "codebarre"
)

// SearchParams selects records of one model.
type SearchParams struct {
	Model  string
	IDs    []int64
	Domain []any
	Fields []string
	Order  string
	Limit  int
	Offset int
}

func (p SearchParams) rpcParams() map[string]any {
	domain := p.Domain
	if domain == nil {
		domain = []any{}
	}
	params := map[string]any{
		"model":  p.Model,
		"domain": domain,
		"fields": p.Fields,
		"offset": p.Offset,
		"sort":   p.Order,
	}
	if p.Fields == nil {
		params["fields"] = []string{}
	}
	if p.Limit > 0 {
		params["limit"] = p.Limit
	}
	return params
}

func callKW(model, method string, args ...any) map[string]any {
	if args == nil {
		args = []any{}
	}
	return map[string]any{
		"model":  model,
		"method": method,
		"args":   args,
		"kwargs": map[string]any{},
	}
}

// SearchRead connects and runs a search_read. The result is returned as sent.
func (c *Client) SearchRead(ctx context.Context, env environment.Environment, creds Credentials, p SearchParams, timeout time.Duration) (json.RawMessage, error) {
	s, err := c.Connect(ctx, env, creds)
	if err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, s, OpSearchRead, pathSearchRead, p.rpcParams(), timeout)
	if err != nil {
		return nil, err
	}
	return unwrapRecords(raw), nil
}

// Read connects and reads the records with the given ids.
func (c *Client) Read(ctx context.Context, env environment.Environment, creds Credentials, model string, ids []int64, fields []string, timeout time.Duration) (json.RawMessage, error) {
	s, err := c.Connect(ctx, env, creds)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int64{}
	}
	if fields == nil {
		fields = []string{}
	}
	return c.call(ctx, s, OpRead, pathCallKW, callKW(model, "read", ids, fields), timeout)
}

// Browse connects and reads records by id through search_read. Without ids
// every record of the model matches.
func (c *Client) Browse(ctx context.Context, env environment.Environment, creds Credentials, p SearchParams, timeout time.Duration) (json.RawMessage, error) {
	s, err := c.Connect(ctx, env, creds)
	if err != nil {
		return nil, err
	}
	if len(p.IDs) > 0 {
		p.Domain = []any{[]any{"id", "in", p.IDs}}
	} else {
		p.Domain = []any{[]any{"id", ">", 0}}
	}
	raw, err := c.call(ctx, s, OpBrowse, pathSearchRead, p.rpcParams(), timeout)
	if err != nil {
		return nil, err
	}
	return unwrapRecords(raw), nil
}

// Create connects and creates one record. The result is the new id.
func (c *Client) Create(ctx context.Context, env environment.Environment, creds Credentials, model string, values map[string]any, timeout time.Duration) (json.RawMessage, error) {
	s, err := c.Connect(ctx, env, creds)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = map[string]any{}
	}
	return c.call(ctx, s, OpCreate, pathCallKW, callKW(model, "create", values), timeout)
}

// Update connects and writes values on record id.
func (c *Client) Update(ctx context.Context, env environment.Environment, creds Credentials, model string, id int64, values map[string]any, timeout time.Duration) (json.RawMessage, error) {
	s, err := c.Connect(ctx, env, creds)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = map[string]any{}
	}
	return c.call(ctx, s, OpUpdate, pathCallKW, callKW(model, "write", []int64{id}, values), timeout)
}

// Delete connects and unlinks record id.
func (c *Client) Delete(ctx context.Context, env environment.Environment, creds Credentials, model string, id int64, timeout time.Duration) (json.RawMessage, error) {
	s, err := c.Connect(ctx, env, creds)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, s, OpDelete, pathCallKW, callKW(model, "unlink", []int64{id}), timeout)
}

// SearchRecords runs a search_read and decodes the result as a list of records.
// Numbers decode as float64.
func (c *Client) SearchRecords(ctx context.Context, env environment.Environment, creds Credentials, p SearchParams, timeout time.Duration) ([]map[string]any, error) {
	raw, err := c.SearchRead(ctx, env, creds, p, timeout)
	if err != nil {
		return nil, err
	}
	records, err := decodeRecords(raw)
	if err != nil {
		return nil, shared.NewOperationError(OpSearchRead, err.Error())
	}
	return records, nil
}
