package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ice-scout/config"
	"ice-scout/providers/meteofrance"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestChunkRangeSingleChunk(t *testing.T) {
	chunks := ChunkRange(day("2024-01-01"), day("2024-06-30"), 366)
	require.Len(t, chunks, 1)
	assert.Equal(t, day("2024-01-01"), chunks[0].Start)
	assert.Equal(t, day("2024-06-30"), chunks[0].End)
}

func TestChunkRangeSplitsLongPeriods(t *testing.T) {
	chunks := ChunkRange(day("2020-01-01"), day("2022-06-15"), 366)
	require.Len(t, chunks, 3)

	// Teilzeiträume sind inklusiv und lückenlos.
	assert.Equal(t, day("2020-01-01"), chunks[0].Start)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].End.AddDate(0, 0, 1), chunks[i].Start)
	}
	assert.Equal(t, day("2022-06-15"), chunks[len(chunks)-1].End)

	for _, c := range chunks {
		days := int(c.End.Sub(c.Start).Hours()/24) + 1
		assert.LessOrEqual(t, days, 366)
	}
}

func TestChunkRangeSingleDay(t *testing.T) {
	chunks := ChunkRange(day("2024-03-15"), day("2024-03-15"), 366)
	require.Len(t, chunks, 1)
	assert.Equal(t, chunks[0].Start, chunks[0].End)
}

func TestMergeChunksKeepsFirstHeaderOnly(t *testing.T) {
	files := [][]byte{
		[]byte("DATE;T;RR\n2020-01-01;1.0;0.0\n2020-01-02;2.0;0.5\n"),
		[]byte("DATE;T;RR\n2021-01-01;3.0;1.0\n"),
		[]byte("DATE;T;RR\n2022-01-01;4.0;0.0\n"),
	}

	merged := string(mergeChunks(files))

	assert.Equal(t,
		"DATE;T;RR\n2020-01-01;1.0;0.0\n2020-01-02;2.0;0.5\n2021-01-01;3.0;1.0\n2022-01-01;4.0;0.0\n",
		merged)
}

func TestMergeChunksSkipsEmptyFiles(t *testing.T) {
	files := [][]byte{
		[]byte("DATE;T\n2020-01-01;1.0\n"),
		[]byte(""),
		[]byte("DATE;T\n2021-01-01;2.0\n"),
	}

	merged := string(mergeChunks(files))
	assert.Equal(t, "DATE;T\n2020-01-01;1.0\n2021-01-01;2.0\n", merged)
}

func TestMergeChunksHeaderOnlyFileAddsNothing(t *testing.T) {
	files := [][]byte{
		[]byte("DATE;T\n2020-01-01;1.0\n"),
		[]byte("DATE;T\n"),
	}

	merged := string(mergeChunks(files))
	assert.Equal(t, "DATE;T\n2020-01-01;1.0\n", merged)
}

func TestDownloadRangeSkipsFailedChunks(t *testing.T) {
	// Bestellungen für 2021 schlagen fehl, 2020 und 2022 liefern Daten.
	orders := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/commande-station/quotidienne":
			start := q.Get("date-deb-periode")
			if start[:4] == "2021" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			orderID := "10" + start[:4]
			orders[orderID] = fmt.Sprintf("DATE;T\n%s-06-01;5.0\n", start[:4])
			fmt.Fprintf(w, `{"return": "%s"}`, orderID)
		case "/commande/fichier":
			fmt.Fprint(w, orders[q.Get("id-cmde")])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := &config.Config{
		MFBaseURL:        server.URL,
		MFAPIKey:         "test-key",
		MFCadence:        "quotidienne",
		MFPollSeconds:    0,
		MFPollTimeoutMin: 1,
		MFMaxChunkDays:   366,
	}
	service := NewTimeSeriesService(cfg, nil, meteofrance.NewClient(cfg, zap.NewNop()), nil, zap.NewNop())

	data, chunksOK, err := service.DownloadRange(context.Background(),
		"73001001", day("2020-06-01"), day("2022-06-15"))
	require.NoError(t, err)

	assert.Equal(t, 2, chunksOK)
	merged := string(data)
	assert.Contains(t, merged, "2020-06-01")
	assert.Contains(t, merged, "2022-06-01")
	assert.NotContains(t, merged, "2021")
}

func TestDownloadRangeRejectsInvertedPeriod(t *testing.T) {
	cfg := &config.Config{MFMaxChunkDays: 366}
	service := NewTimeSeriesService(cfg, nil, meteofrance.NewClient(cfg, zap.NewNop()), nil, zap.NewNop())

	_, _, err := service.DownloadRange(context.Background(),
		"73001001", day("2024-02-01"), day("2024-01-01"))
	require.Error(t, err)
}
