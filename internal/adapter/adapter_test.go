package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulescan/rulescan/internal/rules"
)

type stubSource struct {
	name string
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Convert([]byte) ([]rules.RawRule, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	reg := NewRegistry(stubSource{name: "Nuclei"})
	require.NoError(t, reg.Register(stubSource{name: "crs"}))

	assert.Error(t, reg.Register(stubSource{name: "nuclei"}))
	assert.Error(t, reg.Register(stubSource{name: " "}))
	assert.Error(t, reg.Register(nil))

	src, ok := reg.Lookup("NUCLEI")
	require.True(t, ok)
	assert.Equal(t, "Nuclei", src.Name())

	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"crs", "nuclei"}, reg.Names())
}

func TestCheckCanonical(t *testing.T) {
	complete := rules.RawRule{"id": "n-1", "title": "Exposed env", "regex": "APP_KEY=", "where": []any{"response.body"}}
	assert.Empty(t, CheckCanonical(complete))

	partial := rules.RawRule{"id": "n-2", "title": " ", "where": []any{}}
	assert.Equal(t, []string{"title is required", "regex is required", "where is required"}, CheckCanonical(partial))
}
