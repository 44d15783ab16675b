package distributed

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Codec serializes objects for the wire. The format is an implementation
// choice but must be symmetric across ranks: every participant of a
// collective uses the same codec.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// wire wraps the payload so nil values and interface-typed values round-trip
// cleanly through gob.
type wire struct {
	V any
}

// GobCodec is the default Codec, using encoding/gob. Concrete types carried
// through the object collectives must be registered with RegisterType (the
// common scalar-map types used by the metric handlers are pre-registered).
type GobCodec struct{}

// Encode implements Codec.
func (GobCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(wire{V: v}); err != nil {
		return nil, fmt.Errorf("encode object: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (GobCodec) Decode(data []byte) (any, error) {
	var w wire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return w.V, nil
}

// RegisterType records a concrete type for transmission through the object
// collectives, mirroring gob.Register semantics.
func RegisterType(v any) {
	gob.Register(v)
}

func init() {
	// Types the metric aggregation handlers exchange by default.
	gob.Register(map[string]float64{})
	gob.Register(map[string]any{})
	gob.Register([]float64{})
	gob.Register([]any{})
	gob.Register([]string{})
}
