package pata

import (
	"time"

	"golang.org/x/net/context"
)

// fakePort is a scriptable PortIO: each port can either hold a plain
// last-written value or be given a scripted read sequence (consumed in
// order, repeating the final entry once exhausted) so a test can model
// a register that changes value across successive polls, the way
// checkBusy's BSY bit clears after a few reads.
type fakePort struct {
	b map[uint16]uint8
	w map[uint16]uint16

	readSeqB map[uint16][]uint8
	readSeqW map[uint16][]uint16

	writesB []regWriteB
	writesW []regWriteW
}

type regWriteB struct {
	port uint16
	val  uint8
}

type regWriteW struct {
	port uint16
	val  uint16
}

func newFakePort() *fakePort {
	return &fakePort{
		b:        make(map[uint16]uint8),
		w:        make(map[uint16]uint16),
		readSeqB: make(map[uint16][]uint8),
		readSeqW: make(map[uint16][]uint16),
	}
}

func (p *fakePort) InB(port uint16) uint8 {
	if seq := p.readSeqB[port]; len(seq) > 0 {
		v := seq[0]
		if len(seq) > 1 {
			p.readSeqB[port] = seq[1:]
		}
		return v
	}
	return p.b[port]
}

func (p *fakePort) OutB(port uint16, val uint8) {
	p.b[port] = val
	p.writesB = append(p.writesB, regWriteB{port, val})
}

func (p *fakePort) InW(port uint16) uint16 {
	if seq := p.readSeqW[port]; len(seq) > 0 {
		v := seq[0]
		if len(seq) > 1 {
			p.readSeqW[port] = seq[1:]
		}
		return v
	}
	return p.w[port]
}

func (p *fakePort) OutW(port uint16, val uint16) {
	p.w[port] = val
	p.writesW = append(p.writesW, regWriteW{port, val})
}

func (p *fakePort) InL(port uint16) uint32    { return 0 }
func (p *fakePort) OutL(port uint16, v uint32) {}

// fakeClock advances by step on every Now() call, letting a test choose
// whether checkBusy's budget ever appears to elapse.
type fakeClock struct {
	n    uint64
	step uint64
}

func (c *fakeClock) Now() uint64 {
	c.n += c.step
	return c.n
}

// fakeTimer records every requested delay without sleeping.
type fakeTimer struct {
	delays []time.Duration
}

func (t *fakeTimer) Delay(d time.Duration) {
	t.delays = append(t.delays, d)
}

// fakeIRQController records calls instead of touching a real interrupt
// controller.
type fakeIRQController struct {
	masked  map[uint8]bool
	steered []uint8
}

func newFakeIRQController() *fakeIRQController {
	return &fakeIRQController{masked: make(map[uint8]bool)}
}

func (f *fakeIRQController) Mask(irq uint8)             { f.masked[irq] = true }
func (f *fakeIRQController) Unmask(irq uint8)           { f.masked[irq] = false }
func (f *fakeIRQController) SteerToCurrentCPU(irq uint8) { f.steered = append(f.steered, irq) }

// fakeInterruptWait is a controllable InterruptWait: Wait returns
// waitErr unless a Wake has already been recorded, in which case it
// returns nil immediately, mirroring the real channel-based
// implementation's semantics closely enough for unit tests that don't
// need true concurrency.
type fakeInterruptWait struct {
	waitErr error
	woken   bool
	waits   int
}

func (f *fakeInterruptWait) Wake() { f.woken = true }

func (f *fakeInterruptWait) Wait(ctx context.Context, timeout time.Duration) error {
	f.waits++
	if f.woken {
		f.woken = false
		return nil
	}
	return f.waitErr
}

// fakePCIConfig is an in-memory PCI configuration space keyed by
// (offset) for a single pre-registered IDE function.
type fakePCIConfig struct {
	addr    PCIAddress
	present bool
	regs16  map[uint8]uint16
	regs32  map[uint8]uint32
}

func newFakePCIConfig(vendorDevice uint32) *fakePCIConfig {
	return &fakePCIConfig{
		addr:    PCIAddress{Bus: 0, Device: 1, Function: 1, VendorDevice: vendorDevice},
		present: true,
		regs16:  make(map[uint8]uint16),
		regs32:  make(map[uint8]uint32),
	}
}

func (f *fakePCIConfig) FindClass(class uint32) (PCIAddress, error) {
	if !f.present {
		return PCIAddress{}, ENODEV
	}
	return f.addr, nil
}

func (f *fakePCIConfig) Read16(addr PCIAddress, offset uint8) uint16 { return f.regs16[offset] }
func (f *fakePCIConfig) Write16(addr PCIAddress, offset uint8, val uint16) {
	f.regs16[offset] = val
}
func (f *fakePCIConfig) Read32(addr PCIAddress, offset uint8) uint32 { return f.regs32[offset] }
func (f *fakePCIConfig) Write32(addr PCIAddress, offset uint8, val uint32) {
	f.regs32[offset] = val
}

// fakeDMAAllocator hands out a fresh heap buffer of the requested size
// per Alloc call,
// good enough to exercise the DMA transfer path without real
// bus-addressable memory.
type fakeDMAAllocator struct {
	failAlloc bool
	allocated int
	freed     int
}

func (f *fakeDMAAllocator) Alloc(n int) (DMABuffer, error) {
	if f.failAlloc {
		return DMABuffer{}, ENOMEM
	}
	f.allocated++
	return DMABuffer{Bytes: make([]byte, n), PhysAddr: 0x1000}, nil
}

func (f *fakeDMAAllocator) Free(DMABuffer) { f.freed++ }

// newTestHostChannel builds a HostChannel around a fakePort, with a
// clock that never appears to exceed checkBusy's budget and a timer
// that records but does not sleep.
func newTestHostChannel(host int, port PortIO) (*HostChannel, *fakeIRQController, *fakeInterruptWait) {
	irqc := newFakeIRQController()
	iw := &fakeInterruptWait{waitErr: ETIMEOUT}
	hc := NewHostChannel(host, port, &fakeClock{step: 1}, &fakeTimer{}, irqc, nil, iw, NewFIFOWaitQueue())
	return hc, irqc, iw
}
