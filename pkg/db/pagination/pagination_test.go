package pagination

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type row struct{ id string }

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2025-01-02T03:04:05.123456789Z"})
	require.NoError(t, err)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, "42", decoded.ID)
	require.Equal(t, "2025-01-02T03:04:05.123456789Z", decoded.CreatedAt)
}

func TestBuildCursorPageInfo(t *testing.T) {
	extract := func(r *row) string { return r.id }

	info := BuildCursorPageInfo([]*row{{"a"}, {"b"}}, 2, extract)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextPageToken)

	info = BuildCursorPageInfo([]*row{{"a"}, {"b"}, {"c"}}, 2, extract)
	require.True(t, info.HasMore)
	require.Equal(t, "b", info.NextPageToken)
}

func TestPaginationSize(t *testing.T) {
	require.Equal(t, DefaultPageSize, Pagination{}.Size())
	require.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
	require.Equal(t, 5, Pagination{PageSize: 5}.Size())
}
