// Package envelope frames domain payloads for the messaging backbone. Every
// envelope carries a schema identifier and version as message headers so
// consumers can dispatch without decoding the payload.
package envelope

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/kafka"
)

// Schema identifies the payload type of an envelope.
type Schema string

const (
	SchemaArrival         Schema = "arrival"
	SchemaDeparture       Schema = "departure"
	SchemaCancellation    Schema = "cancellation"
	SchemaTripUpdate      Schema = "trip-update"
	SchemaVehiclePosition Schema = "vehicle-position"
	SchemaServiceAlert    Schema = "service-alert"
	SchemaMetroEstimate   Schema = "metro-estimate"
	// SchemaMQTTRaw frames payloads relayed unchanged from an MQTT broker.
	SchemaMQTTRaw Schema = "mqtt-raw"
)

// Header and property names.
const (
	HeaderSchema        = "schema"
	HeaderSchemaVersion = "schemaVersion"
	PropertyDvjID       = "dvj-id"
)

// Envelope is one message ready for publishing. It is immutable once built.
type Envelope struct {
	key           string
	eventTimeMs   int64
	schema        Schema
	schemaVersion int
	properties    map[string]string
	payload       []byte
}

// New builds an envelope. properties may be nil; it is copied.
func New(key string, eventTimeMs int64, schema Schema, schemaVersion int, properties map[string]string, payload []byte) (Envelope, error) {
	if schema == "" {
		return Envelope{}, errors.New("envelope schema is required")
	}
	if schemaVersion <= 0 {
		return Envelope{}, fmt.Errorf("envelope schema version must be positive, got %d", schemaVersion)
	}
	for k := range properties {
		if k == HeaderSchema || k == HeaderSchemaVersion {
			return Envelope{}, fmt.Errorf("property %q is reserved", k)
		}
	}
	return Envelope{
		key:           key,
		eventTimeMs:   eventTimeMs,
		schema:        schema,
		schemaVersion: schemaVersion,
		properties:    maps.Clone(properties),
		payload:       slices.Clone(payload),
	}, nil
}

func (e Envelope) Key() string        { return e.key }
func (e Envelope) EventTimeMs() int64 { return e.eventTimeMs }
func (e Envelope) Schema() Schema     { return e.schema }
func (e Envelope) SchemaVersion() int { return e.schemaVersion }

// Property returns an extra property and whether it was set.
func (e Envelope) Property(name string) (string, bool) {
	v, ok := e.properties[name]
	return v, ok
}

// Payload returns the serialized domain message. Callers must not modify it.
func (e Envelope) Payload() []byte { return e.payload }

// Message converts the envelope to its wire form.
func (e Envelope) Message() kafka.Message {
	headers := make([]kafka.Header, 0, 2+len(e.properties))
	headers = append(headers,
		kafka.Header{Key: HeaderSchema, Value: []byte(e.schema)},
		kafka.Header{Key: HeaderSchemaVersion, Value: []byte(strconv.Itoa(e.schemaVersion))},
	)
	keys := make([]string, 0, len(e.properties))
	for k := range e.properties {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(e.properties[k])})
	}
	return kafka.Message{
		Key:     []byte(e.key),
		Value:   e.payload,
		Time:    time.UnixMilli(e.eventTimeMs),
		Headers: headers,
	}
}

// FromMessage reads an envelope back from its wire form.
func FromMessage(msg kafka.Message) (Envelope, error) {
	var schema Schema
	version := -1
	props := make(map[string]string)
	for _, h := range msg.Headers {
		switch h.Key {
		case HeaderSchema:
			schema = Schema(h.Value)
		case HeaderSchemaVersion:
			v, err := strconv.Atoi(string(h.Value))
			if err != nil {
				return Envelope{}, fmt.Errorf("parsing schema version %q: %w", h.Value, err)
			}
			version = v
		default:
			props[h.Key] = string(h.Value)
		}
	}
	if len(props) == 0 {
		props = nil
	}
	var eventTimeMs int64
	if !msg.Time.IsZero() {
		eventTimeMs = msg.Time.UnixMilli()
	}
	return New(string(msg.Key), eventTimeMs, schema, version, props, msg.Value)
}

// SchemaOf returns the schema header of a message, or "" if it has none.
func SchemaOf(msg kafka.Message) Schema {
	for _, h := range msg.Headers {
		if h.Key == HeaderSchema {
			return Schema(h.Value)
		}
	}
	return ""
}
