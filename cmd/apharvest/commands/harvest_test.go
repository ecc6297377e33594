package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"apharvest/lib/fetch"
	"apharvest/lib/scrapers/apsiken"

	"github.com/stretchr/testify/require"
)

type fetchFunc func(ctx context.Context, req fetch.Request) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, req fetch.Request) ([]byte, error) {
	return f(ctx, req)
}

func writeSessionsConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json5")
	err := os.WriteFile(path, []byte(`{
		sessions: [
			{label: "令和7年春期", year: 2025, times_code: "07_haru"},
			{label: "平成31年春期", year: 2019, times_code: "31_haru"},
		],
	}`), 0o644)
	require.NoError(t, err)
	return path
}

func TestResolveSessionsAll(t *testing.T) {
	path := writeSessionsConfig(t)
	client := apsiken.NewClient(nil)

	sessions, err := resolveSessions(context.Background(), client, path, "all")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestResolveSessionsSubset(t *testing.T) {
	path := writeSessionsConfig(t)
	client := apsiken.NewClient(nil)

	sessions, err := resolveSessions(context.Background(), client, path, "平成31年春期")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "平成31年春期", sessions[0].Label)

	// times codes select too
	sessions, err = resolveSessions(context.Background(), client, path, "07_haru")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "令和7年春期", sessions[0].Label)
}

func TestResolveSessionsUnknownLabelErrors(t *testing.T) {
	path := writeSessionsConfig(t)
	client := apsiken.NewClient(nil)

	// one valid plus one unknown must not silently shrink to the subset
	_, err := resolveSessions(context.Background(), client, path, "令和7年春期,平成99年春期")
	require.Error(t, err)
	require.Contains(t, err.Error(), "平成99年春期")

	_, err = resolveSessions(context.Background(), client, path, "nonsense")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nonsense")
}

func TestResolveSessionsDiscoveryFallback(t *testing.T) {
	startPage := `<html><body>
<label><input type="checkbox" name="times[]" value="07_haru">令和7年春期</label>
</body></html>`
	client := apsiken.NewClient(fetchFunc(func(ctx context.Context, req fetch.Request) ([]byte, error) {
		return []byte(startPage), nil
	}))

	missing := filepath.Join(t.TempDir(), "sessions.json5")
	sessions, err := resolveSessions(context.Background(), client, missing, "all")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "令和7年春期", sessions[0].Label)
}
