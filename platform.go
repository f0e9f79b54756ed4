package pata

import (
	"time"

	"golang.org/x/net/context"
)

// PortIO is the legacy x86 I/O-space port access primitive. A
// Controller never issues IN/OUT instructions itself; it calls through
// this interface, which the embedding kernel backs with real hardware
// access (or a test backs with an in-memory register file).
type PortIO interface {
	InB(port uint16) uint8
	OutB(port uint16, val uint8)
	InW(port uint16) uint16
	OutW(port uint16, val uint16)
	InL(port uint16) uint32
	OutL(port uint16, val uint32)
}

// DMABuffer is a buffer suitable for bus-master DMA: a byte slice the
// CPU can address, plus the bus address a PRD entry must carry to let
// the IDE controller address the same memory.
type DMABuffer struct {
	Bytes    []byte
	PhysAddr uint32
}

// DMAAllocator stands in for the kernel memory allocator's small
// buffer allocation (spec §1's "deliberately out of scope"
// collaborators).
type DMAAllocator interface {
	Alloc(n int) (DMABuffer, error)
	Free(DMABuffer)
}

// PCIAddress identifies one PCI function and caches the 32-bit
// vendor:device word read from it, since the mode negotiator switches
// on that word (spec §4.3).
type PCIAddress struct {
	Bus, Device, Function uint8
	VendorDevice          uint32
}

// PCIConfig is PCI configuration-space access: locating the IDE
// function by class code, and reading/writing its configuration
// registers. Bridge-specific UDMA enable bits (spec §4.3) are written
// through Write32/Write16 at the offsets the bridge table names.
type PCIConfig interface {
	FindClass(class uint32) (PCIAddress, error)
	Read16(addr PCIAddress, offset uint8) uint16
	Write16(addr PCIAddress, offset uint8, val uint16)
	Read32(addr PCIAddress, offset uint8) uint32
	Write32(addr PCIAddress, offset uint8, val uint32)
}

// IRQController is the interrupt-controller primitive: masking,
// unmasking, and (on SMP) steering a given IRQ line to the CPU that is
// about to wait on it.
type IRQController interface {
	Mask(irq uint8)
	Unmask(irq uint8)
	SteerToCurrentCPU(irq uint8)
}

// Clock is a free-running monotonic tick source, standing in for the
// rdtsc-style counter check_busy uses to bound its busy-wait (spec
// §4.1). It intentionally has no notion of "sleep": check_busy spins.
type Clock interface {
	Now() uint64
}

// Timer provides the fixed-duration busy-wait delays device_select and
// soft_reset require between issuing a register write and sampling the
// result (spec §1's mili_timer/micro_timer collaborators). Unlike
// Clock, a Timer has no notion of elapsed-time polling: it either
// returns after d has passed, or it doesn't return at all.
type Timer interface {
	Delay(d time.Duration)
}

// RealTimer is a Timer backed by time.Sleep, suitable for a host
// environment that can afford to park the calling goroutine rather
// than spin the CPU for the duration.
type RealTimer struct{}

func (RealTimer) Delay(d time.Duration) { time.Sleep(d) }

// WaitQueue provides per-host command serialization (invariant H1).
// Acquire blocks until any prior holder has Released.
type WaitQueue interface {
	Acquire()
	Release()
}

// InterruptWait is the interrupt-wait rendezvous: exactly one
// outstanding Wait per host at a time (guaranteed by H1), woken by the
// host's IRQ handler calling Wake, or expiring after timeout.
type InterruptWait interface {
	Wait(ctx context.Context, timeout time.Duration) error
	Wake()
}

// FIFOWaitQueue is a minimal WaitQueue implementation built on a
// single-slot channel used as a ticket. It is provided so this module
// is usable standalone; an embedding kernel is free to inject its own
// scheduler-backed wait-queue instead.
type FIFOWaitQueue struct {
	ticket chan struct{}
}

// NewFIFOWaitQueue returns a ready-to-use WaitQueue.
func NewFIFOWaitQueue() *FIFOWaitQueue {
	q := &FIFOWaitQueue{ticket: make(chan struct{}, 1)}
	q.ticket <- struct{}{}
	return q
}

func (q *FIFOWaitQueue) Acquire() { <-q.ticket }
func (q *FIFOWaitQueue) Release() { q.ticket <- struct{}{} }

// ChannelInterruptWait is a minimal InterruptWait built on a
// single-slot channel. Wake is safe to call with no Wait pending (the
// IRQ handler doesn't know whether anyone is listening).
type ChannelInterruptWait struct {
	woken chan struct{}
}

// NewChannelInterruptWait returns a ready-to-use InterruptWait.
func NewChannelInterruptWait() *ChannelInterruptWait {
	return &ChannelInterruptWait{woken: make(chan struct{}, 1)}
}

func (w *ChannelInterruptWait) Wake() {
	select {
	case w.woken <- struct{}{}:
	default:
	}
}

func (w *ChannelInterruptWait) Wait(ctx context.Context, timeout time.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-w.woken:
		return nil
	case <-tctx.Done():
		return ETIMEOUT
	}
}
