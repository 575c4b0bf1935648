package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"ice-scout/config"
	"ice-scout/providers/meteofrance"
	"ice-scout/storage"
)

// DateChunk ist ein inklusiver Teilzeitraum einer Zeitreihenbestellung.
type DateChunk struct {
	Start time.Time
	End   time.Time
}

// TimeSeriesService bestellt, pollt und lädt Wetterzeitreihen pro Station
// und legt das kombinierte Ergebnis im S3 ab.
type TimeSeriesService struct {
	Config   *config.Config
	Store    *storage.Store
	MF       *meteofrance.Client
	S3Client *s3.Client
	Logger   *zap.Logger
}

// NewTimeSeriesService erstellt eine neue Instanz des TimeSeriesService.
func NewTimeSeriesService(cfg *config.Config, store *storage.Store, client *meteofrance.Client, s3Client *s3.Client, logger *zap.Logger) *TimeSeriesService {
	return &TimeSeriesService{Config: cfg, Store: store, MF: client, S3Client: s3Client, Logger: logger}
}

// ChunkRange teilt [start, end] in inklusive Teilzeiträume von höchstens
// maxDays Tagen.
func ChunkRange(start, end time.Time, maxDays int) []DateChunk {
	var chunks []DateChunk
	cur := start
	for !cur.After(end) {
		next := cur.AddDate(0, 0, maxDays-1)
		if next.After(end) {
			next = end
		}
		chunks = append(chunks, DateChunk{Start: cur, End: next})
		cur = next.AddDate(0, 0, 1)
	}
	return chunks
}

// mergeChunks verkettet die CSV-Dateien der Teilzeiträume zu einer Datei.
// Die Kopfzeile der ersten Datei bleibt erhalten, die der folgenden werden
// verworfen.
func mergeChunks(files [][]byte) []byte {
	var out bytes.Buffer
	for i, f := range files {
		f = bytes.TrimSpace(f)
		if len(f) == 0 {
			continue
		}
		if i > 0 {
			if idx := bytes.IndexByte(f, '\n'); idx >= 0 {
				f = f[idx+1:]
			} else {
				continue
			}
		}
		out.Write(f)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// DownloadRange lädt die Zeitreihe einer Station für den Zeitraum. Pro
// Teilzeitraum wird eine Bestellung platziert, gepollt und geladen; ein
// fehlgeschlagener Teilzeitraum wird übersprungen, nicht abgebrochen.
// Teilabdeckung ist besser als ein Totalausfall.
func (t *TimeSeriesService) DownloadRange(ctx context.Context, stationID string, start, end time.Time) ([]byte, int, error) {
	log := t.Logger.With(zap.String("station_id", stationID))

	if start.After(end) {
		return nil, 0, fmt.Errorf("start must not be after end")
	}

	chunks := ChunkRange(start, end, t.Config.MFMaxChunkDays)
	log.Info("Starte Zeitreihen-Download.", zap.Int("chunks", len(chunks)))

	var files [][]byte
	for _, chunk := range chunks {
		chunkStart := time.Date(chunk.Start.Year(), chunk.Start.Month(), chunk.Start.Day(), 0, 0, 0, 0, time.UTC)
		chunkEnd := time.Date(chunk.End.Year(), chunk.End.Month(), chunk.End.Day(), 23, 59, 59, 0, time.UTC)

		orderID, err := t.MF.PlaceOrder(ctx, stationID, chunkStart, chunkEnd)
		if err != nil {
			log.Warn("Bestellung fehlgeschlagen, Teilzeitraum wird übersprungen.",
				zap.Time("chunk_start", chunkStart), zap.Error(err))
			continue
		}

		data, err := t.MF.DownloadOrder(ctx, orderID)
		if err != nil {
			log.Warn("Download fehlgeschlagen, Teilzeitraum wird übersprungen.",
				zap.String("order_id", orderID), zap.Error(err))
			continue
		}
		files = append(files, data)
	}

	log.Info("Zeitreihen-Download abgeschlossen.",
		zap.Int("chunks_total", len(chunks)), zap.Int("chunks_ok", len(files)))
	return mergeChunks(files), len(files), nil
}

// Archive legt die kombinierte Zeitreihe im S3 ab und gibt den Link zurück.
func (t *TimeSeriesService) Archive(ctx context.Context, stationID string, start, end time.Time, data []byte) (string, error) {
	key := fmt.Sprintf("timeseries/station_%s_%s_to_%s.csv",
		stationID, start.Format("2006-01-02"), end.Format("2006-01-02"))
	return storage.UploadFile(ctx, t.S3Client, t.Config.S3Bucket, key, data, t.Config)
}

// RunForStationsOfInterest lädt und archiviert die Historie aller Stationen,
// die mindestens einer Route zugeordnet sind. Der Zeitraum pro Station ist
// ihr Gültigkeitsfenster, gekappt auf heute.
func (t *TimeSeriesService) RunForStationsOfInterest(ctx context.Context) (int, error) {
	stations, err := t.Store.StationsOfInterest()
	if err != nil {
		return 0, fmt.Errorf("loading stations of interest: %w", err)
	}
	t.Logger.Info("Stationen für Zeitreihen-Download geladen.", zap.Int("count", len(stations)))

	archived := 0
	now := time.Now()
	for _, station := range stations {
		start := station.DateStart
		end := station.DateEnd
		if end.After(now) {
			end = now
		}
		if start.After(end) {
			continue
		}

		data, chunksOK, err := t.DownloadRange(ctx, station.StationID, start, end)
		if err != nil || chunksOK == 0 {
			t.Logger.Warn("Keine Daten für Station erhalten.",
				zap.String("station_id", station.StationID), zap.Error(err))
			continue
		}

		link, err := t.Archive(ctx, station.StationID, start, end, data)
		if err != nil {
			t.Logger.Error("S3-Upload fehlgeschlagen.",
				zap.String("station_id", station.StationID), zap.Error(err))
			continue
		}
		t.Logger.Info("Zeitreihe archiviert.",
			zap.String("station_id", station.StationID), zap.String("link", link))
		archived++
	}
	return archived, nil
}
