package hostlms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type codeOnlyClient struct {
	Client
	code string
}

func (c *codeOnlyClient) Code() string { return c.code }

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	registry.Register(&codeOnlyClient{code: "alpha-sys"})
	registry.Register(&codeOnlyClient{code: "beta-sys"})

	client, err := registry.ClientFor("alpha-sys")
	require.NoError(t, err)
	assert.Equal(t, "alpha-sys", client.Code())

	_, err = registry.ClientFor("unknown-sys")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoClient)

	assert.ElementsMatch(t, []string{"alpha-sys", "beta-sys"}, registry.Codes())
}

func TestRegistryReplacesOnReRegister(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	first := &codeOnlyClient{code: "alpha-sys"}
	second := &codeOnlyClient{code: "alpha-sys"}
	registry.Register(first)
	registry.Register(second)

	client, err := registry.ClientFor("alpha-sys")
	require.NoError(t, err)
	assert.Same(t, second, client)
	assert.Len(t, registry.Codes(), 1)
}

// Compile-time check that the HTTP adapter satisfies the full interface.
var _ Client = (*HTTPClient)(nil)
