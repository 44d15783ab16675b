package distributed

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LocalGroup is an in-process Transport provider for tests and single-machine
// simulation: N goroutines act as N ranks, rendezvousing on every collective
// call. Semantics match a synchronous process group: every collective blocks
// until all ranks arrive, and an ordering mismatch between ranks is a fatal
// error.
type LocalGroup struct {
	size int

	mu     sync.Mutex
	rounds map[uint64]*round
	seq    []uint64
}

type round struct {
	op      string
	inputs  []any
	outputs []any
	err     error
	arrived int
	readers int
	done    chan struct{}
}

// NewLocalGroup creates a group of the given size.
func NewLocalGroup(size int) (*LocalGroup, error) {
	if size < 1 {
		return nil, fmt.Errorf("group size must be positive, got %d", size)
	}
	return &LocalGroup{
		size:   size,
		rounds: make(map[uint64]*round),
		seq:    make([]uint64, size),
	}, nil
}

// Size returns the number of ranks in the group.
func (g *LocalGroup) Size() int { return g.size }

// Transport returns the Transport endpoint for one rank. Each rank must be
// driven by its own goroutine.
func (g *LocalGroup) Transport(rank int) Transport {
	return &localTransport{group: g, rank: rank}
}

// Run drives fn once per rank, each on its own goroutine, and waits for all
// of them. The first error cancels the derived context, unblocking ranks
// parked inside a collective.
func (g *LocalGroup) Run(ctx context.Context, fn func(ctx context.Context, t Transport) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	for rank := 0; rank < g.size; rank++ {
		t := g.Transport(rank)
		eg.Go(func() error {
			return fn(ctx, t)
		})
	}
	return eg.Wait()
}

// exchange is the rendezvous primitive behind every collective: rank deposits
// its contribution under its next round number, the last arriver runs combine
// to produce one output per rank, and everyone picks up its own output. Round
// numbers advance per rank, so a rank issuing collective k only ever meets
// the other ranks' collective k; an op mismatch within a round means the
// ranks diverged and is reported as fatal.
func (g *LocalGroup) exchange(ctx context.Context, rank int, op string, in any, combine func(inputs []any) ([]any, error)) (any, error) {
	g.mu.Lock()
	seq := g.seq[rank]
	g.seq[rank]++
	r, ok := g.rounds[seq]
	if !ok {
		r = &round{op: op, inputs: make([]any, g.size), done: make(chan struct{})}
		g.rounds[seq] = r
	}
	if r.op != op {
		g.mu.Unlock()
		return nil, fmt.Errorf("collective ordering mismatch: rank %d called %s while the group is in %s", rank, op, r.op)
	}
	r.inputs[rank] = in
	r.arrived++
	last := r.arrived == g.size
	g.mu.Unlock()

	if last {
		r.outputs, r.err = combine(r.inputs)
		close(r.done)
	} else {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	g.mu.Lock()
	r.readers++
	if r.readers == g.size {
		delete(g.rounds, seq)
	}
	g.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	return r.outputs[rank], nil
}

type localTransport struct {
	group *LocalGroup
	rank  int
}

func (t *localTransport) Rank() int       { return t.rank }
func (t *localTransport) WorldSize() int  { return t.group.size }
func (t *localTransport) Backend() string { return "local" }

func cloneBuf(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func equalLengths(inputs []any) error {
	want := -1
	for rank, in := range inputs {
		buf := in.([]byte)
		if want == -1 {
			want = len(buf)
		} else if len(buf) != want {
			return fmt.Errorf("buffer length mismatch: rank %d sent %d bytes, rank 0 sent %d", rank, len(buf), want)
		}
	}
	return nil
}

// AllGather implements Transport.
func (t *localTransport) AllGather(ctx context.Context, send []byte) ([][]byte, error) {
	out, err := t.group.exchange(ctx, t.rank, "all_gather", cloneBuf(send), func(inputs []any) ([]any, error) {
		if err := equalLengths(inputs); err != nil {
			return nil, err
		}
		outputs := make([]any, len(inputs))
		for i := range outputs {
			bufs := make([][]byte, len(inputs))
			for j, in := range inputs {
				bufs[j] = cloneBuf(in.([]byte))
			}
			outputs[i] = bufs
		}
		return outputs, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([][]byte), nil
}

// Gather implements Transport.
func (t *localTransport) Gather(ctx context.Context, send []byte, dst int) ([][]byte, error) {
	if dst < 0 || dst >= t.group.size {
		return nil, fmt.Errorf("gather destination rank %d out of range", dst)
	}
	out, err := t.group.exchange(ctx, t.rank, "gather", cloneBuf(send), func(inputs []any) ([]any, error) {
		if err := equalLengths(inputs); err != nil {
			return nil, err
		}
		bufs := make([][]byte, len(inputs))
		for j, in := range inputs {
			bufs[j] = cloneBuf(in.([]byte))
		}
		outputs := make([]any, len(inputs))
		outputs[dst] = bufs
		return outputs, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out.([][]byte), nil
}

// Broadcast implements Transport.
func (t *localTransport) Broadcast(ctx context.Context, buf []byte, src int) ([]byte, error) {
	if src < 0 || src >= t.group.size {
		return nil, fmt.Errorf("broadcast source rank %d out of range", src)
	}
	out, err := t.group.exchange(ctx, t.rank, "broadcast", cloneBuf(buf), func(inputs []any) ([]any, error) {
		payload := inputs[src].([]byte)
		outputs := make([]any, len(inputs))
		for i := range outputs {
			outputs[i] = cloneBuf(payload)
		}
		return outputs, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// Scatter implements Transport.
func (t *localTransport) Scatter(ctx context.Context, sends [][]byte, src int) ([]byte, error) {
	if src < 0 || src >= t.group.size {
		return nil, fmt.Errorf("scatter source rank %d out of range", src)
	}
	var in any
	if t.rank == src {
		cloned := make([][]byte, len(sends))
		for i, b := range sends {
			cloned[i] = cloneBuf(b)
		}
		in = cloned
	}
	out, err := t.group.exchange(ctx, t.rank, "scatter", in, func(inputs []any) ([]any, error) {
		list, ok := inputs[src].([][]byte)
		if !ok || len(list) != len(inputs) {
			return nil, fmt.Errorf("scatter source must supply one buffer per rank")
		}
		outputs := make([]any, len(inputs))
		for i := range outputs {
			outputs[i] = cloneBuf(list[i])
		}
		return outputs, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}
