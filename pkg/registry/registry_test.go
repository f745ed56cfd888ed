package registry_test

import (
	"log/slog"
	"testing"

	"github.com/bizbooks/approvalflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	reg := registry.NewRegistry(slog.Default())
	handler := registry.NewLoggingHandler(slog.Default(), "expense")

	require.NoError(t, reg.Register("expense", handler))
	assert.True(t, reg.HasHandler("expense"))
	assert.False(t, reg.HasHandler("purchase_order"))

	got, err := reg.GetHandler("expense")
	require.NoError(t, err)
	assert.Equal(t, handler, got)

	_, err = reg.GetHandler("purchase_order")
	require.Error(t, err)
}

func TestRegistry_RegisterDuplicateFails(t *testing.T) {
	t.Parallel()

	reg := registry.NewRegistry(slog.Default())
	handler := registry.NewLoggingHandler(slog.Default(), "expense")

	require.NoError(t, reg.Register("expense", handler))
	require.Error(t, reg.Register("expense", handler))
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	t.Parallel()

	reg := registry.NewRegistry(slog.Default())

	require.Error(t, reg.Register("", registry.NewLoggingHandler(slog.Default(), "expense")))
	require.Error(t, reg.Register("expense", nil))
}

func TestRegistry_HealthCheck(t *testing.T) {
	t.Parallel()

	reg := registry.NewRegistry(slog.Default())

	_, ok := reg.HealthCheck()
	assert.False(t, ok)

	require.NoError(t, reg.Register("expense", registry.NewLoggingHandler(slog.Default(), "expense")))

	msg, ok := reg.HealthCheck()
	assert.True(t, ok)
	assert.Contains(t, msg, "1 activity handler")
	assert.Equal(t, []string{"expense"}, reg.ActivityTypes())
}
