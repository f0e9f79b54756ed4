package pata

import (
	"encoding/binary"
	"io"
	"time"
)

// simDisk is a software ATA drive sitting behind a simulated PortIO,
// used by cmd/patactl and by this package's own tests in place of real
// hardware. It answers IDENTIFY DEVICE, READ SECTORS, and WRITE
// SECTORS against a backing byte slice addressed by LBA28; DMA and
// ATAPI commands are out of scope for the simulator (a real host
// channel drives those through BusMaster and the packet layer, neither
// of which this type models).
type simDisk struct {
	regs RegisterMap
	dev  uint8 // 0 = master, 1 = slave; the only device position this disk answers for

	store []byte // sectorSize-aligned backing store
	heads uint8
	spt   uint8

	selected  uint8 // last value written to DriveHead
	status    uint8
	errorReg  uint8
	sectorCnt uint8
	lba       [3]uint8 // SectorNumber, CylinderLow, CylinderHigh

	dataBuf []byte // pending PIO data, drained by reads/appended by writes
	dataPos int
	pending func() // run once dataBuf is fully drained on a write
}

// newSimDisk builds a simulated disk of the given sector count at the
// given base port, answering only when the drive/head register
// selects dev.
func newSimDisk(base uint16, dev uint8, sectors uint32, heads, spt uint8) *simDisk {
	return &simDisk{
		regs:   newRegisterMap(base),
		dev:    dev,
		store:  make([]byte, int(sectors)*sectorSize),
		heads:  heads,
		spt:    spt,
		status: 0x40, // DRDY
	}
}

// answersSelection reports whether the last DriveHead write selected
// this disk's device position.
func (d *simDisk) answersSelection() bool {
	return (d.selected>>4)&1 == d.dev
}

func (d *simDisk) lbaValue() uint32 {
	return uint32(d.lba[0]) | uint32(d.lba[1])<<8 | uint32(d.lba[2])<<16 | uint32(d.selected&0xf)<<24
}

func (d *simDisk) InB(port uint16) uint8 {
	switch port {
	case d.regs.ErrorFeatures:
		return d.errorReg
	case d.regs.SectorCount:
		return d.sectorCnt
	case d.regs.SectorNumber:
		return d.lba[0]
	case d.regs.CylinderLow:
		return d.lba[1]
	case d.regs.CylinderHigh:
		return d.lba[2]
	case d.regs.DriveHead:
		return d.selected
	case d.regs.StatusCommand, d.regs.AltControl:
		return d.status
	default:
		return 0xff
	}
}

func (d *simDisk) OutB(port uint16, val uint8) {
	if port == d.regs.DriveHead {
		d.selected = val
		return
	}
	if !d.answersSelection() {
		return
	}

	switch port {
	case d.regs.ErrorFeatures:
		// feature register write; nothing to stage for SET FEATURES
		// in the simulator, which always accepts any transfer mode.
	case d.regs.SectorCount:
		d.sectorCnt = val
	case d.regs.SectorNumber:
		d.lba[0] = val
	case d.regs.CylinderLow:
		d.lba[1] = val
	case d.regs.CylinderHigh:
		d.lba[2] = val
	case d.regs.AltControl:
		// device control register: nIEN/SRST toggling has no visible
		// effect on the synchronous simulator.
	case d.regs.StatusCommand:
		d.runCommand(val)
	}
}

func (d *simDisk) runCommand(cmd uint8) {
	switch cmd {
	case cmdIdentifyDevice:
		d.dataBuf = d.buildIdentify()
		d.dataPos = 0
		d.status = 0x48 // DRDY|DRQ

	case cmdInitDevParams, cmdSetFeatures, cmdIdleImmediate, cmdDeviceReset:
		d.status = 0x40

	case cmdReadSectors:
		n := int(d.sectorCnt)
		if n == 0 {
			n = 256
		}
		begin := int(d.lbaValue())
		d.dataBuf = append([]byte(nil), d.store[begin*sectorSize:(begin+n)*sectorSize]...)
		d.dataPos = 0
		d.status = 0x48

	case cmdWriteSectors:
		n := int(d.sectorCnt)
		if n == 0 {
			n = 256
		}
		begin := int(d.lbaValue())
		d.dataBuf = make([]byte, n*sectorSize)
		d.dataPos = 0
		d.status = 0x48
		d.pending = func() {
			copy(d.store[begin*sectorSize:(begin+n)*sectorSize], d.dataBuf)
			d.status = 0x40
		}

	default:
		d.status = 0x41 // DRDY|ERR
		d.errorReg = 0x04
	}
}

func (d *simDisk) InW(port uint16) uint16 {
	if port != d.regs.Data || d.dataPos+2 > len(d.dataBuf) {
		return 0
	}
	v := binary.LittleEndian.Uint16(d.dataBuf[d.dataPos : d.dataPos+2])
	d.dataPos += 2
	if d.dataPos >= len(d.dataBuf) {
		d.status = 0x40
	}
	return v
}

func (d *simDisk) OutW(port uint16, val uint16) {
	if port != d.regs.Data || d.dataPos+2 > len(d.dataBuf) {
		return
	}
	binary.LittleEndian.PutUint16(d.dataBuf[d.dataPos:d.dataPos+2], val)
	d.dataPos += 2
	if d.dataPos >= len(d.dataBuf) {
		if d.pending != nil {
			d.pending()
			d.pending = nil
		}
	}
}

func (d *simDisk) InL(port uint16) uint32     { return 0 }
func (d *simDisk) OutL(port uint16, v uint32) {}

// buildIdentify synthesizes a minimal but internally consistent
// IDENTIFY DEVICE response: model string, CHS geometry, and an LBA28
// sector count matching the backing store.
func (d *simDisk) buildIdentify() []byte {
	var words [identifyWords]uint16
	words[3] = uint16(d.heads)
	words[6] = uint16(d.spt)

	putSwappedASCII(words[27:47], "pata simulated disk")

	sectors := uint32(len(d.store) / sectorSize)
	words[60] = uint16(sectors)
	words[61] = uint16(sectors >> 16)
	words[49] = 0 // no overlap support modeled
	words[64] = pio4AdvancedBit
	words[88] = 0x0000 // no Ultra DMA modeled; simulator is PIO-only

	raw := make([]byte, identifyWords*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(raw[i*2:i*2+2], w)
	}
	return raw
}

// pio4AdvancedBit mirrors identify.go's pio4 bit so the simulator
// advertises Advanced PIO mode 4, matching ChangeMode's preference.
const pio4AdvancedBit = 1 << 1

// putSwappedASCII writes s, space-padded, into words using the same
// byte-swapped layout asciiField expects to read back.
func putSwappedASCII(words []uint16, s string) {
	raw := make([]byte, len(words)*2)
	copy(raw, s)
	for i := len(s); i < len(raw); i++ {
		raw[i] = ' '
	}
	for i := range words {
		words[i] = uint16(raw[i*2])<<8 | uint16(raw[i*2+1])
	}
}

// simChannelBus multiplexes up to two simDisks sharing one register
// base, the way a real master/slave pair shares a single cable: every
// OutB reaches both disks (so each tracks whether it was just
// selected), while InB and the 16/32-bit data accessors are routed to
// whichever disk last matched the drive/head select bit. If neither
// disk matches (an empty slave position), reads return 0xff, which
// fails both the ATA and ATAPI signature checks in Probe and so
// correctly reports the position absent.
type simChannelBus struct {
	disks [2]*simDisk // index 0 = master, 1 = slave; nil if absent
}

func (b *simChannelBus) selectedDisk() *simDisk {
	for _, d := range b.disks {
		if d != nil && d.answersSelection() {
			return d
		}
	}
	return nil
}

func (b *simChannelBus) InB(port uint16) uint8 {
	if d := b.selectedDisk(); d != nil {
		return d.InB(port)
	}
	return 0xff
}

func (b *simChannelBus) OutB(port uint16, val uint8) {
	for _, d := range b.disks {
		if d != nil {
			d.OutB(port, val)
		}
	}
}

func (b *simChannelBus) InW(port uint16) uint16 {
	if d := b.selectedDisk(); d != nil {
		return d.InW(port)
	}
	return 0xffff
}

func (b *simChannelBus) OutW(port uint16, val uint16) {
	if d := b.selectedDisk(); d != nil {
		d.OutW(port, val)
	}
}

func (b *simChannelBus) InL(port uint16) uint32     { return 0 }
func (b *simChannelBus) OutL(port uint16, v uint32) {}

// simIRQController, simClock, and simTimer are no-op collaborators
// suitable for the synchronous simulator, which never actually raises
// an interrupt line or needs a real delay.
type simIRQController struct{}

func (simIRQController) Mask(uint8)             {}
func (simIRQController) Unmask(uint8)           {}
func (simIRQController) SteerToCurrentCPU(uint8) {}

type simClock struct{ tick uint64 }

func (c *simClock) Now() uint64 {
	c.tick++
	return c.tick
}

type simTimer struct{}

func (simTimer) Delay(time.Duration) {}

// simPCIConfig stands in for PCI configuration space when no bus-master
// DMA or Ultra DMA negotiation is exercised; every method reports the
// IDE function absent, which keeps ChangeMode's PIO path (the only
// path the simulator supports) working while failing fast if a caller
// ever asks it for DMA.
type simPCIConfig struct{}

func (simPCIConfig) FindClass(uint32) (PCIAddress, error) { return PCIAddress{}, ENODEV }
func (simPCIConfig) Read16(PCIAddress, uint8) uint16      { return 0 }
func (simPCIConfig) Write16(PCIAddress, uint8, uint16)    {}
func (simPCIConfig) Read32(PCIAddress, uint8) uint32      { return 0 }
func (simPCIConfig) Write32(PCIAddress, uint8, uint32)    {}

// simDMAAllocator refuses every allocation, since the simulator never
// negotiates a DMA transfer mode.
type simDMAAllocator struct{}

func (simDMAAllocator) Alloc(int) (DMABuffer, error) { return DMABuffer{}, ENOSYS }
func (simDMAAllocator) Free(DMABuffer)               {}

// SimulatedController wires a Controller around the in-package
// software drive simulator, so a caller with no access to real
// hardware — a demo binary, or this package's own tests — can still
// exercise Probe and Transfer end to end (spec §5, §6's hardware
// collaborators all satisfied by simDisk/simChannelBus rather than
// real I/O-space access).
type SimulatedController struct {
	Controller *Controller
	primary    *simChannelBus
}

// SimulatedControllerConfig sizes the drives the simulator presents.
// A zero field leaves that device position empty.
type SimulatedControllerConfig struct {
	PrimaryMasterSectors   uint32
	PrimarySlaveSectors    uint32
	SecondaryMasterSectors uint32
	SecondarySlaveSectors  uint32
}

// NewSimulatedController builds a two-channel simulated bus per cfg and
// returns a Controller ready for Probe.
func NewSimulatedController(cfg SimulatedControllerConfig) *SimulatedController {
	mkDisk := func(base uint16, dev uint8, sectors uint32) *simDisk {
		if sectors == 0 {
			return nil
		}
		return newSimDisk(base, dev, sectors, 16, 63)
	}

	primaryBus := &simChannelBus{disks: [2]*simDisk{
		mkDisk(primaryBase, 0, cfg.PrimaryMasterSectors),
		mkDisk(primaryBase, 1, cfg.PrimarySlaveSectors),
	}}
	secondaryBus := &simChannelBus{disks: [2]*simDisk{
		mkDisk(secondaryBase, 0, cfg.SecondaryMasterSectors),
		mkDisk(secondaryBase, 1, cfg.SecondarySlaveSectors),
	}}

	irqc := simIRQController{}
	pci := simPCIConfig{}
	dma := simDMAAllocator{}

	newChannel := func(host int, bus PortIO) *HostChannel {
		return NewHostChannel(host, bus, &simClock{}, simTimer{}, irqc, nil, NewChannelInterruptWait(), NewFIFOWaitQueue())
	}

	primaryHC := newChannel(HostPrimary, primaryBus)
	secondaryHC := newChannel(HostSecondary, secondaryBus)

	return &SimulatedController{
		Controller: NewController(primaryHC, secondaryHC, dma, pci),
		primary:    primaryBus,
	}
}

// LoadPrimaryMasterImage copies the contents of src into the primary
// master's backing store, up to whichever is smaller. It must be
// called before Probe.
func (s *SimulatedController) LoadPrimaryMasterImage(src io.ReaderAt) error {
	d := s.primary.disks[0]
	if d == nil {
		return ENODEV
	}
	if _, err := src.ReadAt(d.store, 0); err != nil && err != io.EOF {
		return err
	}
	return nil
}
