package distributed

import (
	"context"
	"encoding/binary"
	"fmt"
)

const sizeBytes = 8

// Comm layers the object collective protocol over a raw Transport. A Comm is
// cheap and stateless apart from its configuration; one instance per rank.
type Comm struct {
	transport Transport
	codec     Codec
	device    Device
	observe   func(op string, payloadBytes int)
}

// Option customizes a Comm.
type Option func(*Comm)

// WithCodec overrides the default gob codec. Every rank must use the same
// codec or payloads will not decode.
func WithCodec(c Codec) Option {
	return func(cm *Comm) { cm.codec = c }
}

// WithObserver installs a telemetry callback invoked once per collective call
// with the operation name and the local serialized payload size.
func WithObserver(fn func(op string, payloadBytes int)) Option {
	return func(cm *Comm) { cm.observe = fn }
}

// New creates a Comm over the given transport.
func New(t Transport, opts ...Option) *Comm {
	cm := &Comm{
		transport: t,
		codec:     GobCodec{},
		device:    DeviceFor(t.Backend()),
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// Rank returns the local process rank.
func (c *Comm) Rank() int { return c.transport.Rank() }

// WorldSize returns the process group size.
func (c *Comm) WorldSize() int { return c.transport.WorldSize() }

// Device returns the payload device implied by the transport backend.
func (c *Comm) Device() Device { return c.device }

func (c *Comm) observed(op string, n int) {
	if c.observe != nil {
		c.observe(op, n)
	}
}

func encodeSize(n int) []byte {
	buf := make([]byte, sizeBytes)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return buf
}

func decodeSize(buf []byte) (int, error) {
	if len(buf) != sizeBytes {
		return 0, fmt.Errorf("size buffer has %d bytes, want %d", len(buf), sizeBytes)
	}
	return int(binary.LittleEndian.Uint64(buf)), nil
}

// allGatherSizes exchanges every rank's local payload length. Lengths travel
// as fixed 8 byte buffers, which is always safe: their size is known up
// front, unlike the payloads they describe.
func (c *Comm) allGatherSizes(ctx context.Context, n int) ([]int, error) {
	bufs, err := c.transport.AllGather(ctx, encodeSize(n))
	if err != nil {
		return nil, fmt.Errorf("all-gather payload sizes: %w", err)
	}
	sizes := make([]int, len(bufs))
	for i, b := range bufs {
		if sizes[i], err = decodeSize(b); err != nil {
			return nil, err
		}
	}
	return sizes, nil
}

func maxSize(sizes []int) int {
	max := 0
	for _, n := range sizes {
		if n > max {
			max = n
		}
	}
	return max
}

func pad(payload []byte, n int) []byte {
	if len(payload) == n {
		return payload
	}
	padded := make([]byte, n)
	copy(padded, payload)
	return padded
}

// AllGather runs the raw fixed-shape collective: every rank's buffer, in rank
// order, on every rank. No length negotiation happens; the caller guarantees
// equal buffer lengths across ranks.
func (c *Comm) AllGather(ctx context.Context, send []byte) ([][]byte, error) {
	c.observed("all_gather", len(send))
	return c.transport.AllGather(ctx, send)
}

// Gather runs the raw fixed-shape gather to dst. Non-destination ranks
// receive nil.
func (c *Comm) Gather(ctx context.Context, send []byte, dst int) ([][]byte, error) {
	c.observed("gather", len(send))
	return c.transport.Gather(ctx, send, dst)
}

// Broadcast runs the raw fixed-shape broadcast from src.
func (c *Comm) Broadcast(ctx context.Context, buf []byte, src int) ([]byte, error) {
	c.observed("broadcast", len(buf))
	return c.transport.Broadcast(ctx, buf, src)
}

// Scatter runs the raw fixed-shape scatter from src.
func (c *Comm) Scatter(ctx context.Context, sends [][]byte, src int) ([]byte, error) {
	n := 0
	if len(sends) > 0 {
		n = len(sends[0])
	}
	c.observed("scatter", n)
	return c.transport.Scatter(ctx, sends, src)
}

// AllGatherObject gathers every rank's object on every rank, in rank order.
// Serialized sizes may differ arbitrarily between ranks; the protocol
// negotiates lengths first and pads to the group maximum. Padding bytes are
// never interpreted: each destination truncates to the sender's true length.
func (c *Comm) AllGatherObject(ctx context.Context, obj any) ([]any, error) {
	payload, err := c.codec.Encode(obj)
	if err != nil {
		return nil, err
	}
	c.observed("all_gather_object", len(payload))

	sizes, err := c.allGatherSizes(ctx, len(payload))
	if err != nil {
		return nil, err
	}
	bufs, err := c.transport.AllGather(ctx, pad(payload, maxSize(sizes)))
	if err != nil {
		return nil, fmt.Errorf("all-gather object payloads: %w", err)
	}
	return c.decodeAll(bufs, sizes)
}

// GatherObject gathers every rank's object on dst, in rank order. Other ranks
// participate in the exchange but receive nil.
func (c *Comm) GatherObject(ctx context.Context, obj any, dst int) ([]any, error) {
	payload, err := c.codec.Encode(obj)
	if err != nil {
		return nil, err
	}
	c.observed("gather_object", len(payload))

	sizes, err := c.allGatherSizes(ctx, len(payload))
	if err != nil {
		return nil, err
	}
	bufs, err := c.transport.Gather(ctx, pad(payload, maxSize(sizes)), dst)
	if err != nil {
		return nil, fmt.Errorf("gather object payloads: %w", err)
	}
	if bufs == nil {
		return nil, nil
	}
	return c.decodeAll(bufs, sizes)
}

// BroadcastObject delivers src's object to every rank. Only src serializes;
// the other ranks learn the payload length from a broadcast scalar and
// allocate their receive buffers from it.
func (c *Comm) BroadcastObject(ctx context.Context, obj any, src int) (any, error) {
	var payload []byte
	if c.Rank() == src {
		var err error
		if payload, err = c.codec.Encode(obj); err != nil {
			return nil, err
		}
	}
	c.observed("broadcast_object", len(payload))

	sizeBuf, err := c.transport.Broadcast(ctx, encodeSize(len(payload)), src)
	if err != nil {
		return nil, fmt.Errorf("broadcast payload size: %w", err)
	}
	n, err := decodeSize(sizeBuf)
	if err != nil {
		return nil, err
	}
	if c.Rank() != src {
		payload = make([]byte, n)
	}
	buf, err := c.transport.Broadcast(ctx, payload, src)
	if err != nil {
		return nil, fmt.Errorf("broadcast object payload: %w", err)
	}
	return c.codec.Decode(buf[:n])
}

// ScatterObject distributes objs[i] (supplied on src, one per rank) to rank
// i. Only src serializes; the group maximum length travels as a broadcast
// scalar and each destination's true length is scattered alongside the padded
// payloads.
func (c *Comm) ScatterObject(ctx context.Context, objs []any, src int) (any, error) {
	rank, world := c.Rank(), c.WorldSize()

	var payloads [][]byte
	var sizeBufs [][]byte
	localMax := 0
	if rank == src {
		if len(objs) != world {
			return nil, fmt.Errorf("scatter object: got %d objects for %d ranks", len(objs), world)
		}
		payloads = make([][]byte, world)
		sizeBufs = make([][]byte, world)
		for i, obj := range objs {
			p, err := c.codec.Encode(obj)
			if err != nil {
				return nil, err
			}
			payloads[i] = p
			sizeBufs[i] = encodeSize(len(p))
			if len(p) > localMax {
				localMax = len(p)
			}
		}
	}
	c.observed("scatter_object", localMax)

	maxBuf, err := c.transport.Broadcast(ctx, encodeSize(localMax), src)
	if err != nil {
		return nil, fmt.Errorf("broadcast max payload size: %w", err)
	}
	max, err := decodeSize(maxBuf)
	if err != nil {
		return nil, err
	}

	mySizeBuf, err := c.transport.Scatter(ctx, sizeBufs, src)
	if err != nil {
		return nil, fmt.Errorf("scatter payload sizes: %w", err)
	}
	mySize, err := decodeSize(mySizeBuf)
	if err != nil {
		return nil, err
	}

	if rank == src {
		for i := range payloads {
			payloads[i] = pad(payloads[i], max)
		}
	}
	mine, err := c.transport.Scatter(ctx, payloads, src)
	if err != nil {
		return nil, fmt.Errorf("scatter object payloads: %w", err)
	}
	return c.codec.Decode(mine[:mySize])
}

func (c *Comm) decodeAll(bufs [][]byte, sizes []int) ([]any, error) {
	if len(bufs) != len(sizes) {
		return nil, fmt.Errorf("got %d payloads for %d sizes", len(bufs), len(sizes))
	}
	objs := make([]any, len(bufs))
	for i, buf := range bufs {
		obj, err := c.codec.Decode(buf[:sizes[i]])
		if err != nil {
			return nil, fmt.Errorf("decode payload from rank %d: %w", i, err)
		}
		objs[i] = obj
	}
	return objs, nil
}
