// Package codec encodes stored records as CBOR.
//
// Record types carry json struct tags; fxamacker/cbor falls back to them
// when no cbor tag is present, so the same field names are used on the wire
// (JSON, via gin) and in storage (CBOR, via this package).
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding so the same record always
// produces the same bytes. Backends compare versions, not bytes, but
// deterministic output keeps stored blobs diffable.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value.
type RawMessage = cbor.RawMessage

// Merge performs a shallow merge of fields into the CBOR map in data.
// Every supplied field replaces the prior value wholesale; fields that are
// not supplied keep their encoded bytes untouched. data must encode a map
// (a struct record); the merged map is returned re-encoded.
func Merge(data []byte, fields map[string]any) ([]byte, error) {
	doc := map[string]RawMessage{}
	if len(data) > 0 {
		if err := decMode.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
	}

	for name, value := range fields {
		raw, err := encMode.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", name, err)
		}
		doc[name] = raw
	}

	return encMode.Marshal(doc)
}
