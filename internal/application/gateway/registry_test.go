package gateway

import (
	"context"
	"testing"

	"github.com/erp/posgateway/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register("m1", Module{
		"connection": func(context.Context, Call) (Result, error) { return JSONResult{}, nil },
		"broken":     nil,
	})

	op, appErr := reg.Lookup("m1", "connection")
	require.Nil(t, appErr)
	assert.NotNil(t, op)

	_, appErr = reg.Lookup("m9", "connection")
	require.NotNil(t, appErr)
	assert.Equal(t, shared.ClassUnknownModule, appErr.Class)

	_, appErr = reg.Lookup("m1", "nope")
	require.NotNil(t, appErr)
	assert.Equal(t, shared.ClassUnknownFunction, appErr.Class)

	_, appErr = reg.Lookup("m1", "broken")
	require.NotNil(t, appErr)
	assert.Equal(t, shared.ClassUnknownFunction, appErr.Class)

	assert.Equal(t, []string{"broken", "connection"}, reg.Functions("m1"))
	assert.Empty(t, reg.Functions("m9"))
}

func TestIsBinaryFunction(t *testing.T) {
	assert.True(t, IsBinaryFunction("_get_url"))
	assert.False(t, IsBinaryFunction("codebarre"))
	assert.False(t, IsBinaryFunction("get_by_ids"))
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "image/jpeg", MimeType("jpg"))
	assert.Equal(t, "image/png", MimeType(".png"))
	assert.Equal(t, "application/pdf", MimeType("application/pdf"))
	assert.Equal(t, ContentTypeBinary, MimeType(""))
	assert.Equal(t, ContentTypeBinary, MimeType("nosuchext"))
}
