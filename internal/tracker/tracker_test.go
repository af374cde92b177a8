package tracker

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "analytics.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestMintAndResolve(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	token, err := s.Mint(ctx, "company-1", "https://acme.de/")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	companyID, target, err := s.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "company-1", companyID)
	assert.Equal(t, "https://acme.de/", target)
}

func TestResolveUnknownToken(t *testing.T) {
	s := testStore(t)
	companyID, target, err := s.Resolve(context.Background(), "no-such-token")
	require.NoError(t, err, "unknown tokens resolve empty, not as errors")
	assert.Equal(t, "", companyID)
	assert.Equal(t, "", target)
}

func TestMintUniqueTokens(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a, err := s.Mint(ctx, "company-1", "")
	require.NoError(t, err)
	b, err := s.Mint(ctx, "company-1", "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	busy, err := s.Mint(ctx, "company-busy", "")
	require.NoError(t, err)
	quiet, err := s.Mint(ctx, "company-quiet", "")
	require.NoError(t, err)

	require.NoError(t, s.RecordOpen(ctx, busy, "10.0.0.1", "curl/8"))
	require.NoError(t, s.RecordOpen(ctx, busy, "10.0.0.2", "curl/8"))
	require.NoError(t, s.RecordEvent(ctx, busy, "demo_started", `{"page":"motors"}`))
	require.NoError(t, s.RecordOpen(ctx, quiet, "10.0.0.3", "curl/8"))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, busy, stats[0].Token)
	assert.Equal(t, "company-busy", stats[0].CompanyID)
	assert.Equal(t, 2, stats[0].Opens)
	assert.Equal(t, 1, stats[0].Events)

	assert.Equal(t, quiet, stats[1].Token)
	assert.Equal(t, 1, stats[1].Opens)
	assert.Equal(t, 0, stats[1].Events)
}

func TestStatsEmpty(t *testing.T) {
	s := testStore(t)
	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestLinkMinter(t *testing.T) {
	s := testStore(t)
	m := NewLinkMinter(s, "http://localhost:8787")

	token, url, err := m.Link("company-1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8787/t/"+token, url)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8787/t/"))

	companyID, _, err := s.Resolve(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "company-1", companyID)
}
