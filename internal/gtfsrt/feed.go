// Package gtfsrt reads GTFS-Realtime feeds over HTTP and turns their trip
// updates into bridge messages: trip cancellations resolved against the
// enrichment cache, and sanitized rail trip updates.
package gtfsrt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/logger"
)

// maxFeedSize bounds how much of a response body is read.
const maxFeedSize = 64 << 20

// FeedSource returns the current feed snapshot.
type FeedSource interface {
	Fetch(ctx context.Context) (*gtfs.FeedMessage, error)
}

// Fetcher downloads and decodes one feed URL.
type Fetcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewFetcher(url string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: slog.Default().With("component", "feed-fetcher"),
	}
}

// Fetch reads the feed. Network and HTTP status failures are transient;
// a body that does not decode is a batch parse failure.
func (f *Fetcher) Fetch(ctx context.Context) (*gtfs.FeedMessage, error) {
	logger.FromContext(ctx, f.logger).Info("reading feed", "url", f.url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidConfig, err, "building feed request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransient, err, "fetching feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Newf(apperrors.ErrTransient, "feed returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrTransient, err, "reading feed body")
	}
	return Decode(body)
}

// Decode parses a serialized FeedMessage.
func Decode(body []byte) (*gtfs.FeedMessage, error) {
	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrBatchParse, err, fmt.Sprintf("decoding %d byte feed", len(body)))
	}
	return feed, nil
}

// TripUpdates returns the entities of feed that carry a trip update.
func TripUpdates(feed *gtfs.FeedMessage) []*gtfs.FeedEntity {
	var out []*gtfs.FeedEntity
	for _, e := range feed.GetEntity() {
		if e.GetTripUpdate() != nil {
			out = append(out, e)
		}
	}
	return out
}
