package dedup

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/internal/envelope"
)

var deterministic = proto.MarshalOptions{Deterministic: true}

// Normalize re-encodes payload so that equal content hashes equally even when
// producers serialize it differently. GTFS-RT trip updates are re-marshalled
// deterministically, JSON documents are re-encoded with sorted keys and no
// insignificant whitespace, and anything that fails to parse is returned
// as is.
func Normalize(schema envelope.Schema, payload []byte) []byte {
	switch schema {
	case envelope.SchemaTripUpdate, envelope.SchemaVehiclePosition:
		if out, ok := normalizeFeed(payload); ok {
			return out
		}
		return payload
	default:
		if out, ok := normalizeJSON(payload); ok {
			return out
		}
		return payload
	}
}

func normalizeFeed(payload []byte) ([]byte, bool) {
	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(payload, feed); err != nil {
		return nil, false
	}
	out, err := deterministic.Marshal(feed)
	if err != nil {
		return nil, false
	}
	return out, true
}

func normalizeJSON(payload []byte) ([]byte, bool) {
	// encoding/json rewrites invalid UTF-8 as U+FFFD, which would collapse
	// distinct payloads onto one hash.
	if !utf8.Valid(payload) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return out, true
}
