package erp

import (
	"context"
	"net/url"
	"time"

	"github.com/erp/posgateway/internal/domain/environment"
	"github.com/erp/posgateway/internal/domain/shared"
)

// BarcodeMimeType is the type reported for rendered barcodes.
const BarcodeMimeType = "jpg"

const barcodePath = "/report/barcode?type=EAN13&width=200&height=40&value="

// Binary is a raw payload with the MIME type declared by the caller.
type Binary struct {
	Bytes    []byte
	MimeType string
}

// Fetch GETs env's base URL followed by path and returns the raw body.
// No session is opened.
func (c *Client) Fetch(ctx context.Context, env environment.Environment, path, mimeType string, timeout time.Duration) (*Binary, error) {
	body, err := c.get(ctx, OpFetch, env.BaseURL()+path, timeout)
	if err != nil {
		return nil, err
	}
	return &Binary{Bytes: body, MimeType: mimeType}, nil
}

// Barcode renders code as an EAN13 image through the ERP report engine.
func (c *Client) Barcode(ctx context.Context, env environment.Environment, code string, timeout time.Duration) (*Binary, error) {
	body, err := c.get(ctx, OpBarcode, env.BaseURL()+barcodePath+url.QueryEscape(code), timeout)
	if err != nil {
		return nil, err
	}
	return &Binary{Bytes: body, MimeType: BarcodeMimeType}, nil
}

func (c *Client) get(ctx context.Context, operation, target string, timeout time.Duration) ([]byte, error) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeoutOr(timeout, c.fetchTimeout))
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "*/*").
		Get(target)
	if err == nil && resp.IsError() {
		err = describeHTTPError(resp.StatusCode(), resp.Header().Get("Content-Type"), resp.Bytes())
	} else if err != nil {
		err = describeTransportError(ctx, err)
	}
	c.metrics.ObserveERPCall(operation, started, err)
	if err != nil {
		return nil, shared.NewOperationError(operation, err.Error())
	}
	return resp.Bytes(), nil
}
