package sqlitemirror

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMissingKeyReturnsNil(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	defer m.Close()

	value, err := m.Get(context.Background(), "saved_filters/user-1")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestSetThenGet(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "favorite_people/user-1", []byte(`[{"id":"p1"}]`)))

	value, err := m.Get(ctx, "favorite_people/user-1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"p1"}]`, string(value))
}

func TestSetReplacesValue(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte("[1]")))
	require.NoError(t, m.Set(ctx, "k", []byte("[1,2]")))

	value, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(value))
}

// TestSurvivesReopen is the device-scope property: mirror contents must
// outlive the process, not just the session.
func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	ctx := context.Background()

	m, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, m.Set(ctx, "saved_filters/user-1", []byte(`["x"]`)))
	require.NoError(t, m.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "saved_filters/user-1")
	require.NoError(t, err)
	assert.Equal(t, `["x"]`, string(value))
}

func TestKeysAreIndependent(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "favorite_people/user-1", []byte("[1]")))
	require.NoError(t, m.Set(ctx, "favorite_companies/user-1", []byte("[2]")))

	people, err := m.Get(ctx, "favorite_people/user-1")
	require.NoError(t, err)
	companies, err := m.Get(ctx, "favorite_companies/user-1")
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(people))
	assert.Equal(t, "[2]", string(companies))
}
