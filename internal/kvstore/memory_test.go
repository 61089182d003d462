package kvstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveless/driveless/internal/kvstore"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	_, err := store.Get(ctx, "geocode_austin")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, store.Set(ctx, "geocode_austin", []byte(`{"a":1}`)))
	require.NoError(t, store.Set(ctx, "geocode_austin", []byte(`{"a":2}`)))

	got, err := store.Get(ctx, "geocode_austin")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(got))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "geocode_austin"))
	require.NoError(t, store.Delete(ctx, "geocode_austin"))
	_, err = store.Get(ctx, "geocode_austin")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()

	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[1] = 'y'
	again, _ := store.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}
