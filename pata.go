// Package pata implements the protocol core of a parallel ATA (ATA-5)
// host driver: task-file command issue, ATAPI packet handshaking,
// transfer-mode negotiation against PCI IDE bridges, and the bus-master
// DMA engine, for two host channels each exposing a master and slave
// device.
//
// This package owns the protocol engine only. Everything the real
// kernel would otherwise provide — port I/O, PCI configuration space,
// DMA-capable memory, interrupt control, and per-host serialization —
// is expressed as an interface in platform.go and injected by the
// caller. A Controller built by NewController exercises those interfaces
// exactly the way the original driver exercised bare hardware.
package pata

import "golang.org/x/net/context"

// Host channel indices. Primary and secondary are the only two host
// channels this driver supports.
const (
	HostPrimary   = 0
	HostSecondary = 1
)

// Device indices within a host channel.
const (
	DeviceMaster = 0
	DeviceSlave  = 1
)

// sectorSize is the fixed ATA sector size. ATAPI devices negotiate their
// own sector size via READ CAPACITY, rounded down to a multiple of this.
const sectorSize = 512

// Direction selects the data direction of a Transfer call.
type Direction int

const (
	DirectionRead Direction = iota
	DirectionWrite
)

// DeviceKind identifies what, if anything, answered a probe.
type DeviceKind int

const (
	KindAbsent DeviceKind = iota
	KindATA
	KindATAPI
)

func (k DeviceKind) String() string {
	switch k {
	case KindATA:
		return "ATA"
	case KindATAPI:
		return "ATAPI"
	default:
		return "absent"
	}
}

// TransferMode is a negotiated data-transfer mode family.
type TransferMode int

const (
	ModePIO TransferMode = iota
	ModeMultiDMA
	ModeUltraDMA
)

func (m TransferMode) String() string {
	switch m {
	case ModeMultiDMA:
		return "MDMA"
	case ModeUltraDMA:
		return "UDMA"
	default:
		return "PIO"
	}
}

// IntrMode is the current interrupt-enable state of a host channel.
type IntrMode int

const (
	IntrDisabled IntrMode = iota
	IntrEnabled
)

// backgroundCtx is used where the public API does not accept a
// context.Context of its own (the original driver has no user-level
// cancellation, per spec §5 "Cancellation").
var backgroundCtx = context.Background()
