package parquet

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/goccy/go-json"
	pqgo "github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, config Config) *Parquet {
	t.Helper()
	writer := &Parquet{}
	writer.GetConfigRef()
	*writer.config = config
	require.NoError(t, writer.config.Validate())
	require.NoError(t, writer.Check(context.Background()))
	return writer
}

func rawRecords(n int) []types.RawRecord {
	records := make([]types.RawRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, types.RawRecord{
			Stream:    "tickets",
			RecordID:  string(rune('a' + i)),
			Timestamp: time.Date(2024, 1, 1, 0, 0, i, 0, time.UTC),
			Data:      types.Record{"id": int64(i), "status": "open"},
		})
	}
	return records
}

func TestParquetRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writer := newTestWriter(t, Config{Path: dir})

	require.NoError(t, writer.Setup(ctx, types.NewStream("tickets", "gorgias")))
	require.NoError(t, writer.Write(ctx, rawRecords(3)))
	require.NoError(t, writer.Checkpoint(ctx, "tickets", types.NewState()))
	require.NoError(t, writer.Close(ctx))

	files, err := filepath.Glob(filepath.Join(dir, "gorgias", "tickets", "*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	rows, err := pqgo.ReadFile[Row](files[0])
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0].RecordID)
	assert.Equal(t, "tickets", rows[0].Stream)

	data := map[string]any{}
	require.NoError(t, json.Unmarshal([]byte(rows[2].Data), &data))
	assert.Equal(t, map[string]any{"id": float64(2), "status": "open"}, data)
}

func TestParquetRotatesFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writer := newTestWriter(t, Config{Path: dir, Compression: "zstd", MaxRows: 2})

	require.NoError(t, writer.Setup(ctx, types.NewStream("tickets", "gorgias")))
	require.NoError(t, writer.Write(ctx, rawRecords(5)))
	require.NoError(t, writer.Close(ctx))

	files, err := filepath.Glob(filepath.Join(dir, "gorgias", "tickets", "*.parquet"))
	require.NoError(t, err)
	require.Len(t, files, 3)

	total := 0
	for _, file := range files {
		rows, err := pqgo.ReadFile[Row](file)
		require.NoError(t, err)
		total += len(rows)
	}
	assert.Equal(t, 5, total)
}

func TestParquetRemovesEmptyFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writer := newTestWriter(t, Config{Path: dir})

	require.NoError(t, writer.Setup(ctx, types.NewStream("customers", "gorgias")))
	require.NoError(t, writer.Close(ctx))

	files, err := filepath.Glob(filepath.Join(dir, "gorgias", "customers", "*.parquet"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestParquetConfigValidation(t *testing.T) {
	assert.Error(t, (&Config{Path: "/tmp", Compression: "brotli"}).Validate())
	assert.Error(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{Path: "/tmp", Compression: "gzip"}).Validate())
}
