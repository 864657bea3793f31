package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgig/quickgig/internal/errors"
	"github.com/quickgig/quickgig/internal/storage/memory"
)

func TestEnsureUpsertsWithoutClobbering(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	u, err := svc.Ensure(ctx, "u1", "Alice", "+3581234")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.DisplayName)

	u, err = svc.Ensure(ctx, "u1", "", "+3589999")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.DisplayName)
	assert.Equal(t, "+3589999", u.Phone)

	_, err = svc.Ensure(ctx, "  ", "x", "")
	assert.True(t, errors.IsCode(err, errors.CodeInvalid))
}

func TestGetAndDeviceToken(t *testing.T) {
	ctx := context.Background()
	svc := New(memory.New(), nil)

	_, err := svc.Get(ctx, "missing")
	assert.True(t, errors.IsNotFound(err))
	_, err = svc.SetDeviceToken(ctx, "missing", "tok")
	assert.True(t, errors.IsNotFound(err))

	_, err = svc.Ensure(ctx, "u1", "Alice", "")
	require.NoError(t, err)

	u, err := svc.SetDeviceToken(ctx, "u1", " tok-1 ")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", u.DeviceToken)

	u, err = svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", u.DeviceToken)
}
