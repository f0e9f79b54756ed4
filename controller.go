package pata

import (
	"time"
)

// intrSettleDelay is the fixed wait set_intr observes after toggling
// the interrupt-enable bit in the device control register, before
// trusting the new mode is in effect (spec §4.6, invariant H2).
const intrSettleDelay = 5 * time.Millisecond

// HostChannel bundles one IDE host channel's fixed register map
// together with the collaborators the command and packet layers need
// to drive it: port access, timing, the interrupt controller, the
// bus-master DMA engine, and the per-host interrupt-wait rendezvous
// (spec §4, §6). It also tracks the host's current interrupt mode, so
// SetIntr can implement the idempotent switch invariant H2 requires.
type HostChannel struct {
	Host int
	Regs RegisterMap
	IRQ  uint8

	Port  PortIO
	Clock Clock
	Timer Timer
	IRQC  IRQController
	BM    *BusMaster
	IW    InterruptWait
	WQ    WaitQueue

	intrMode IntrMode
}

// NewHostChannel builds a HostChannel for host (HostPrimary or
// HostSecondary), wiring in the caller's injected collaborators. The
// channel starts with interrupts disabled (Open Question decision:
// current_intr has no reset-time initializer in the original driver,
// so probing must explicitly disable interrupts before relying on
// SetIntr's idempotence; see DESIGN.md).
func NewHostChannel(host int, port PortIO, clock Clock, timer Timer, irqc IRQController, bm *BusMaster, iw InterruptWait, wq WaitQueue) *HostChannel {
	irq := primaryIRQ
	if host == HostSecondary {
		irq = secondaryIRQ
	}
	return &HostChannel{
		Host:     host,
		Regs:     registerMapFor(host),
		IRQ:      irq,
		Port:     port,
		Clock:    clock,
		Timer:    timer,
		IRQC:     irqc,
		BM:       bm,
		IW:       iw,
		WQ:       wq,
		intrMode: IntrDisabled,
	}
}

// SetIntr switches the host's interrupt-enable mode, a no-op if mode
// already matches the tracked current mode (spec §4.6, invariant H2:
// "set_intr observably changes nothing beyond acknowledging the call"
// when invoked with the mode already in effect). When disabling, the
// IRQ line is masked before the device control register is written;
// when enabling, the device control register is written before the
// line is unmasked — in both orders the settle delay runs last, after
// the hardware has been told about the new mode.
func (h *HostChannel) SetIntr(mode IntrMode) {
	if mode == h.intrMode {
		return
	}

	if mode == IntrDisabled {
		h.IRQC.Mask(h.IRQ)
		h.Port.OutB(h.Regs.AltControl, 0x2)
		h.Timer.Delay(intrSettleDelay)
	} else {
		h.Port.OutB(h.Regs.AltControl, 0)
		h.IRQC.Unmask(h.IRQ)
		h.Timer.Delay(intrSettleDelay)
	}
	h.intrMode = mode
}

// handleInterrupt is the IRQ handler entry point: it wakes whichever
// InterruptWait is outstanding for this host and reports that a task
// switch may now be warranted, mirroring prim_intr_handler/
// sec_intr_handler's return convention (spec §4.6).
func (h *HostChannel) handleInterrupt() (taskSwitch bool) {
	h.IW.Wake()
	return true
}

// select runs device_select against this host's registers (spec
// §4.1).
func (h *HostChannel) select_(sel uint8) error {
	return deviceSelect(h.Port, h.Clock, h.Timer, h.Regs, sel)
}

// checkAltStatus runs check_busy against this host's alternate status
// port, the read commands poll to avoid disturbing a pending data
// transfer's interrupt-reason semantics on the primary status port.
func (h *HostChannel) checkAltStatus() uint8 {
	return checkBusy(h.Port, h.Clock, h.Regs.AltControl)
}

// DeviceSlot is everything Probe learns and the command/packet layers
// subsequently rely on for one (host, device) position: whether a
// device is present and of what kind, its negotiated transfer mode and
// bridge-capped UDMA ceiling, its addressable sector count, and
// whether it advertised ATAPI overlapped-command support (spec §3,
// §4.3, §4.7).
type DeviceSlot struct {
	Host int
	Dev  int

	Kind        DeviceKind
	Mode        TransferMode
	UDMAMode    uint8
	UDMACeiling uint8
	Overlap     bool

	LBASectors uint32
	BlockSize  uint32 // ATAPI only, from ReadCapacity; 0 until probed
	Model      string
}

// Controller owns both host channels and all four device slots, and
// is the entry point the public block-device layer calls through; its
// Transfer dispatches to command.go's and packet.go's transfer paths
// (spec §5, §6).
type Controller struct {
	Hosts   [2]*HostChannel
	Devices [2][2]*DeviceSlot
	DMA     DMAAllocator
	PCI     PCIConfig
}

// NewController wires an empty Controller around the given host
// channels and DMA allocator; Probe populates Devices.
func NewController(primary, secondary *HostChannel, dma DMAAllocator, pci PCIConfig) *Controller {
	c := &Controller{
		Hosts: [2]*HostChannel{primary, secondary},
		DMA:   dma,
		PCI:   pci,
	}
	for h := 0; h < 2; h++ {
		for d := 0; d < 2; d++ {
			c.Devices[h][d] = &DeviceSlot{Host: h, Dev: d, Kind: KindAbsent}
		}
	}
	return c
}

// Transfer reads (dir = DirectionRead) or writes (dir = DirectionWrite)
// count sectors starting at the LBA28 address begin, on the device at
// (host, dev) (spec §5's top-level entry point). It serializes against
// any other in-flight command on the same host channel via WaitQueue,
// steers the host's IRQ line to the calling CPU before issuing the
// command, and dispatches to the ATA or ATAPI transfer path according
// to the slot's Kind.
func (c *Controller) Transfer(host, dev int, dir Direction, buf []byte, count int, begin uint32) error {
	if host < 0 || host > 1 || dev < 0 || dev > 1 {
		return EINVAL
	}
	slot := c.Devices[host][dev]
	if slot.Kind == KindAbsent {
		return ENODEV
	}
	if count == 0 {
		return nil
	}
	if slot.LBASectors > 0 && uint64(begin)+uint64(count) > uint64(slot.LBASectors) {
		return EINVAL
	}

	hc := c.Hosts[host]
	hc.WQ.Acquire()
	defer hc.WQ.Release()

	hc.IRQC.SteerToCurrentCPU(hc.IRQ)

	switch slot.Kind {
	case KindATA:
		return transferATA(hc, slot, c.DMA, dir, buf, count, begin)
	case KindATAPI:
		return transferATAPI(hc, slot, c.DMA, dir, buf, count, begin)
	default:
		return ENODEV
	}
}
