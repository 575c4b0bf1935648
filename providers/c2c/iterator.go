package c2c

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// PageIterator läuft einmalig über alle Seiten eines Listen-Endpunkts.
// Die Gesamtseitenzahl wird aus dem total-Feld der ersten Seite abgeleitet;
// ein total von 0 ergibt genau eine (leere) Seite. Der Iterator ist nicht
// neu startbar.
type PageIterator struct {
	baseURL    string
	limit      int
	maxRetries int
	backoff    time.Duration
	client     *http.Client
	logger     *zap.Logger

	// sleep ist austauschbar, damit Tests ohne echte Wartezeiten auskommen.
	sleep func(time.Duration)

	currentPage int
	totalPages  int
	done        bool
}

// NewPageIterator erstellt einen Iterator für die gegebene Listen-URL.
// limit muss zwischen 1 und 100 liegen (API-Limit).
func NewPageIterator(baseURL string, limit, maxRetries int, backoff time.Duration, logger *zap.Logger) *PageIterator {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return &PageIterator{
		baseURL:     baseURL,
		limit:       limit,
		maxRetries:  maxRetries,
		backoff:     backoff,
		client:      httpClient,
		logger:      logger,
		sleep:       time.Sleep,
		currentPage: 1,
		totalPages:  1,
	}
}

// Next liefert die nächste Seite oder (nil, nil), wenn alle Seiten geliefert
// wurden. Ein Fehler beendet die Sequenz endgültig.
func (it *PageIterator) Next() (*ListResponse, error) {
	if it.done || it.currentPage > it.totalPages {
		it.done = true
		return nil, nil
	}

	offset := (it.currentPage - 1) * it.limit
	url := fmt.Sprintf("%s%soffset=%d&limit=%d", it.baseURL, separator(it.baseURL), offset, it.limit)

	body, err := it.getWithRetries(url)
	if err != nil {
		it.done = true
		return nil, err
	}

	var page ListResponse
	if err := json.Unmarshal(body, &page); err != nil {
		it.done = true
		return nil, fmt.Errorf("decoding page %d: %w", it.currentPage, err)
	}

	if it.currentPage == 1 {
		it.totalPages = (page.Total + it.limit - 1) / it.limit
		if it.totalPages < 1 {
			it.totalPages = 1
		}
		it.logger.Debug("Seitenzahl aus erster Seite abgeleitet",
			zap.String("url", it.baseURL),
			zap.Int("total", page.Total),
			zap.Int("total_pages", it.totalPages))
	}

	it.currentPage++
	return &page, nil
}

// getWithRetries holt eine Seite mit bis zu maxRetries Versuchen.
// 429 und 5xx gelten als transient und werden mit exponentiellem Backoff
// wiederholt; jeder andere nicht-2xx-Status bricht sofort ab.
func (it *PageIterator) getWithRetries(url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= it.maxRetries; attempt++ {
		resp, err := it.client.Get(url)
		if err != nil {
			lastErr = err
			it.logger.Warn("Seitenabruf fehlgeschlagen",
				zap.String("url", url), zap.Int("attempt", attempt), zap.Error(err))
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()

			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				if readErr != nil {
					lastErr = readErr
					break
				}
				return body, nil
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				lastErr = fmt.Errorf("page fetch failed with status %d", resp.StatusCode)
				it.logger.Warn("Transienter API-Fehler",
					zap.String("url", url), zap.Int("status", resp.StatusCode), zap.Int("attempt", attempt))
			default:
				return nil, fmt.Errorf("page fetch failed with status %d", resp.StatusCode)
			}
		}

		if attempt < it.maxRetries {
			it.sleep(it.backoff * time.Duration(1<<(attempt-1)))
		}
	}
	return nil, lastErr
}

func separator(url string) string {
	for _, c := range url {
		if c == '?' {
			return "&"
		}
	}
	return "?"
}
