package credentials

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattsp1290/blackholio-go-client/model"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	cred := model.Credential{
		Identity:     "id-abc",
		Token:        "tok-xyz",
		Host:         "localhost",
		DatabaseName: "blackholio",
		IssuedAt:     time.Now(),
	}
	require.NoError(t, store.Save(cred))

	loaded, ok, err := store.Load("localhost", "blackholio")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "id-abc", loaded.Identity)
	assert.Equal(t, "tok-xyz", loaded.Token)
}

func TestLoadMissingIsNotFound(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	_, ok, err := store.Load("localhost", "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiredCredentialIsTreatedAsAbsent(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	cred := model.Credential{
		Identity:     "id-old",
		Token:        "tok-old",
		Host:         "localhost",
		DatabaseName: "blackholio",
		IssuedAt:     time.Now().Add(-25 * time.Hour),
	}
	require.NoError(t, store.Save(cred))

	_, ok, err := store.Load("localhost", "blackholio")
	require.NoError(t, err)
	assert.False(t, ok, "credential older than 24h must be treated as absent")
}
