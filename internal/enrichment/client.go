// Package enrichment reads the trip and stop context that a separate
// bootstrap job keeps in Redis, and gates extraction on that cache being
// fresh.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/redis"
)

// Store is the subset of the Redis client the enrichment cache needs. Get
// returns redis.Nil for a missing key; HGetAll returns an empty map.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// TripContext is the scheduled identity of a dated vehicle journey. Empty
// strings and a zero Direction mean the cache did not hold that field.
type TripContext struct {
	DvjID        string
	RouteName    string
	Direction    int
	StartTime    string
	OperatingDay string
}

// MetroJourney is the trip context of a metro journey keyed by its start
// stop and start instant.
type MetroJourney struct {
	TripContext
	StartStopNumber string
	StartDatetime   string
}

// Client performs point lookups. Calls are serialized on one mutex, so
// several handlers in a process may share a Client.
type Client struct {
	mu     sync.Mutex
	store  Store
	logger *slog.Logger
}

func NewClient(store Store) *Client {
	return &Client{
		store:  store,
		logger: slog.Default().With("component", "enrichment-cache"),
	}
}

// StopID returns the stop number of a journey pattern point.
func (c *Client) StopID(ctx context.Context, jppGid int64) (string, bool, error) {
	key := StopKey(jppGid)
	v, found, err := c.get(ctx, key)
	if err != nil || !found {
		return "", false, err
	}
	return v, true, nil
}

// Trip returns the trip context of a dated vehicle journey. Fields absent
// from the cached hash are left empty; an absent hash is a miss.
func (c *Client) Trip(ctx context.Context, dvjID int64) (TripContext, bool, error) {
	key := TripKey(dvjID)
	c.mu.Lock()
	fields, err := c.store.HGetAll(ctx, key)
	c.mu.Unlock()
	if err != nil {
		return TripContext{}, false, apperrors.Wrap(apperrors.ErrConnectivity, err, "reading "+key)
	}
	trip, err := tripFromFields(fields)
	if err != nil {
		c.logger.Warn("trip context miss", "key", key, "reason", err)
		return TripContext{}, false, nil
	}
	if trip.DvjID == "" {
		trip.DvjID = strconv.FormatInt(dvjID, 10)
	}
	return trip, true, nil
}

// MetroJourney returns the journey departing stopNumber at startDatetime.
// An absent hash is a miss.
func (c *Client) MetroJourney(ctx context.Context, stopNumber, startDatetime string) (MetroJourney, bool, error) {
	key := MetroKey(stopNumber, startDatetime)
	c.mu.Lock()
	fields, err := c.store.HGetAll(ctx, key)
	c.mu.Unlock()
	if err != nil {
		return MetroJourney{}, false, apperrors.Wrap(apperrors.ErrConnectivity, err, "reading "+key)
	}
	trip, err := tripFromFields(fields)
	if err != nil {
		c.logger.Warn("metro journey miss", "key", key, "reason", err)
		return MetroJourney{}, false, nil
	}
	return MetroJourney{
		TripContext:     trip,
		StartStopNumber: fields[FieldStartStopNumber],
		StartDatetime:   fields[FieldStartDatetime],
	}, true, nil
}

// DvjID resolves a scheduled departure to its dated vehicle journey id.
func (c *Client) DvjID(ctx context.Context, routeName string, direction int, operatingDay, startTime string) (string, bool, error) {
	return c.get(ctx, JoreKey(routeName, direction, operatingDay, startTime))
}

// LastUpdate returns the raw control timestamp written after each bulk load.
func (c *Client) LastUpdate(ctx context.Context) (string, bool, error) {
	return c.get(ctx, KeyLastUpdate)
}

func (c *Client) get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	v, err := c.store.Get(ctx, key)
	c.mu.Unlock()
	if redis.IsNilError(err) {
		c.logger.Warn("cache miss", "key", key)
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.Wrap(apperrors.ErrConnectivity, err, "reading "+key)
	}
	return v, true, nil
}

func tripFromFields(fields map[string]string) (TripContext, error) {
	if len(fields) == 0 {
		return TripContext{}, fmt.Errorf("key not found")
	}
	trip := TripContext{
		DvjID:        fields[FieldDvjID],
		RouteName:    fields[FieldRouteName],
		StartTime:    fields[FieldStartTime],
		OperatingDay: fields[FieldOperatingDay],
	}
	if raw, ok := fields[FieldDirection]; ok && raw != "" {
		dir, err := strconv.Atoi(raw)
		if err != nil {
			return TripContext{}, fmt.Errorf("direction %q: %w", raw, err)
		}
		trip.Direction = dir
	}
	return trip, nil
}
