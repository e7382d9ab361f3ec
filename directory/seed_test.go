package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoUsersSeedOnce(t *testing.T) {
	ctx := context.Background()
	f := newMemoryFixture(t)

	n, err := f.users.EnsureSeed(ctx, DemoUsers())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.users.EnsureSeed(ctx, DemoUsers())
	require.NoError(t, err)
	assert.Zero(t, n)

	alex, err := f.users.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alex@eventide.app", alex.Email)
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
users:
  - id: u1
    name: Ann
    email: ann@x.com
    avatarUrl: https://img.example/ann.png
  - id: u2
    name: Bo
    email: bo@x.com
`), 0o600))

	users, err := LoadSeedFile(path)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "https://img.example/ann.png", users[0].AvatarURL)
	assert.Equal(t, "bo@x.com", users[1].Email)
}

func TestParseSeedRejectsBadEntries(t *testing.T) {
	_, err := ParseSeed([]byte("users:\n  - name: nobody\n"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseSeed([]byte("users:\n  - id: u1\n  - id: u1\n"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseSeed([]byte("users: ["))
	assert.Error(t, err)
}

func TestLoadSeedFileMissing(t *testing.T) {
	_, err := LoadSeedFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
