package uuid

import (
	"sort"
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/techradar/internal/radar"
)

var _ radar.IDGenerator = (*Generator)(nil)

func TestGeneratorNewIDIsVersion7(t *testing.T) {
	t.Parallel()

	id, err := New().NewID()
	require.NoError(t, err)
	parsed, err := goUUID.Parse(id)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
}

// Run and job ids are created back to back; their string order must follow creation order.
func TestGeneratorNewIDSortsByCreation(t *testing.T) {
	t.Parallel()

	gen := New()
	ids := make([]string, 200)
	for i := range ids {
		id, err := gen.NewID()
		require.NoError(t, err)
		ids[i] = id
	}
	require.True(t, sort.StringsAreSorted(ids))

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	require.Len(t, seen, len(ids))
}
