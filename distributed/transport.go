package distributed

import "context"

// Device names the memory space payload buffers should live in. The engine
// never touches device memory itself; the value is advisory for transports
// that stage buffers onto accelerators.
type Device string

const (
	// DeviceHost places payloads in host memory.
	DeviceHost Device = "host"
	// DeviceAccelerator places payloads on the transport's accelerator.
	DeviceAccelerator Device = "accelerator"
)

// backendDevices maps transport backend names to their payload device. The
// lookup mirrors the convention of accelerator-aware collective runtimes:
// accelerator-direct backends stage payloads on the device, host-networked
// backends keep them in host memory.
var backendDevices = map[string]Device{
	"nccl":  DeviceAccelerator,
	"rccl":  DeviceAccelerator,
	"gloo":  DeviceHost,
	"mpi":   DeviceHost,
	"local": DeviceHost,
}

// DeviceFor returns the payload device for a backend name, defaulting to
// host memory for unknown backends.
func DeviceFor(backend string) Device {
	if d, ok := backendDevices[backend]; ok {
		return d
	}
	return DeviceHost
}

// Transport is the raw process-group primitive set the object protocol is
// built on. Implementations move fixed-shape byte buffers between ranks; the
// caller guarantees that every rank passes buffers of identical length to the
// same collective call. All methods block until every participating rank has
// arrived and honor ctx cancellation locally (cancellation does not release
// the other ranks; it abandons the collective, which is fatal to the group).
type Transport interface {
	// Rank returns this process's index within the group.
	Rank() int
	// WorldSize returns the number of participating processes.
	WorldSize() int
	// Backend names the underlying runtime ("gloo", "nccl", "local", ...).
	Backend() string

	// AllGather delivers every rank's send buffer to every rank, indexed by
	// rank. All send buffers must have equal length.
	AllGather(ctx context.Context, send []byte) ([][]byte, error)
	// Gather delivers every rank's send buffer to dst, indexed by rank.
	// Non-destination ranks receive nil.
	Gather(ctx context.Context, send []byte, dst int) ([][]byte, error)
	// Broadcast delivers src's buffer to every rank. Non-source ranks pass
	// a buffer of the agreed length that is returned filled.
	Broadcast(ctx context.Context, buf []byte, src int) ([]byte, error)
	// Scatter delivers sends[i] (supplied on src, equal lengths) to rank i.
	Scatter(ctx context.Context, sends [][]byte, src int) ([]byte, error)
}
