package destination_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/datazip-inc/gorgias-tap/destination"
	"github.com/datazip-inc/gorgias-tap/types"
	_ "github.com/datazip-inc/gorgias-tap/writers/local"
	_ "github.com/datazip-inc/gorgias-tap/writers/parquet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterFileDestinations(t *testing.T) {
	tests := []struct {
		writerType types.DestinationType
		pattern    string
	}{
		{writerType: types.Local, pattern: "*.jsonl"},
		{writerType: types.Parquet, pattern: "*.parquet"},
	}

	for _, tc := range tests {
		t.Run(string(tc.writerType), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			pool, err := destination.NewWriter(ctx, &types.WriterConfig{
				Type:         tc.writerType,
				WriterConfig: map[string]any{"local_path": dir},
			})
			require.NoError(t, err)

			require.NoError(t, pool.Setup(ctx, types.NewStream("tickets", "gorgias")))
			for _, id := range []string{"a", "b"} {
				require.NoError(t, pool.Push(ctx, types.RawRecord{Stream: "tickets", Namespace: "gorgias", RecordID: id, Data: types.Record{"id": id}}))
			}
			require.NoError(t, pool.Flush(ctx, "tickets"))
			require.NoError(t, pool.Close(ctx))
			assert.Equal(t, int64(2), pool.SyncedRecords())

			files, err := filepath.Glob(filepath.Join(dir, "gorgias", "tickets", tc.pattern))
			require.NoError(t, err)
			assert.Len(t, files, 1)
		})
	}
}

func TestNewWriterFileDestinationsRequirePath(t *testing.T) {
	for _, writerType := range []types.DestinationType{types.Local, types.Parquet} {
		_, err := destination.NewWriter(context.Background(), &types.WriterConfig{
			Type:         writerType,
			WriterConfig: map[string]any{},
		})
		assert.ErrorContains(t, err, "local_path", string(writerType))
	}
}
