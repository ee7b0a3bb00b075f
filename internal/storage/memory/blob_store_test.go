package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte(`{"startUrl":"https://example.com"}`)
	uri, err := store.PutObject(context.Background(), "reports/job/abc.json", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://reports/job/abc.json", uri)

	payload[0] = 'X'
	body, contentType, ok := store.Object("reports/job/abc.json")
	require.True(t, ok)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, byte('{'), body[0])
	require.Equal(t, []string{"reports/job/abc.json"}, store.Paths())

	_, _, ok = store.Object("missing")
	require.False(t, ok)
}
