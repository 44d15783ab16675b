// Package distributed implements the collective object-communication layer:
// gather, all-gather, broadcast and scatter of arbitrary serializable Go
// values across a process group, built over a raw Transport that only moves
// fixed-size byte buffers.
//
// Object variants always perform a length negotiation first (serialized size
// is not known in advance): payload lengths travel as fixed 8 byte buffers,
// every rank pads its payload to the group maximum, the real collective runs
// over uniformly sized buffers, and each receiver truncates to the sender's
// true length before decoding.
//
// All ranks must issue the same sequence of collective calls in the same
// order; the layer does not enforce this, and a missing participant blocks
// the group. Transport failures are fatal to the run with no retry policy.
package distributed
