package pata

// Bus-master IDE register offsets, relative to a host's bus-master I/O
// base (spec §4.5, §6).
const (
	bmCommand  uint16 = 0x0 // BMIC
	bmStatus   uint16 = 0x2 // BMIS
	bmTablePtr uint16 = 0x4 // BMIDTP, 32-bit
)

// Bus-master command register bits.
const (
	bmCmdStart     uint8 = 1 << 0
	bmCmdReadWrite uint8 = 1 << 3 // set = read from device into memory
)

// Bus-master status register bits cleared before starting a transfer.
const bmStatusClearIntrError uint8 = 0x06

// pciConfBMBase is the PCI configuration offset (BAR4) holding the
// bus-master I/O base address.
const pciConfBMBase uint8 = 0x20

// pciClassIDE is the PCI class code this driver searches for.
const pciClassIDE uint32 = 0x01018A // mass storage / IDE, programming
// interface legacy (matches the class search the original driver
// performs via search_pci_class).

// pciCommandRegister and its bus-master enable bit.
const (
	pciConfCommand uint8  = 0x04
	pciCommandBM   uint16 = 1 << 2
)

// PRDEndOfTable is bit 31 of a PRD's byte count, marking the last (and,
// for this driver, only) descriptor in the table.
const PRDEndOfTable uint32 = 1 << 31

// MaxPRDTransferBytes is the largest single transfer a PRD entry can
// describe (spec invariant H5: a region must be ≤ 64 KiB).
const MaxPRDTransferBytes = 64 * 1024

// PRD is a Physical Region Descriptor: one entry in the table the
// bus-master controller walks to perform DMA (spec §3).
type PRD struct {
	PhysAddr  uint32
	ByteCount uint32 // bit 31 set = end of table
}

// BusMaster drives one host channel's bus-master DMA engine: PRD
// programming and start/stop of the engine. It does not itself know
// about ATA semantics; lowlevel.go's dmaTransferSectors drives it on
// behalf of command.go and packet.go.
type BusMaster struct {
	port PortIO
	base uint16 // learned bus-master I/O base for this host
}

// initBusMaster locates the IDE function on the PCI bus, enables bus
// mastering, and computes each host's bus-master I/O base (spec §4.3
// "init_ide_busmaster", §6 "PCI configuration").
func initBusMaster(pci PCIConfig, port PortIO) (primary, secondary *BusMaster, err error) {
	addr, err := pci.FindClass(pciClassIDE)
	if err != nil {
		return nil, nil, ENODEV
	}

	cmd := pci.Read16(addr, pciConfCommand)
	pci.Write16(addr, pciConfCommand, cmd|pciCommandBM)
	if pci.Read16(addr, pciConfCommand)&pciCommandBM == 0 {
		return nil, nil, ENOSYS
	}

	base := pci.Read32(addr, pciConfBMBase)
	if base == 0 {
		return nil, nil, ENOSYS
	}
	base &^= 0xf // mask off the I/O-space indicator bits

	primaryBase := uint16(base)
	secondaryBaseAddr := primaryBase + busMasterSecondaryOffset

	primary = &BusMaster{port: port, base: primaryBase}
	secondary = &BusMaster{port: port, base: secondaryBaseAddr}

	// Reset the engine on both channels.
	port.OutB(primary.base+bmCommand, 0)
	port.OutB(secondary.base+bmCommand, 0)

	return primary, secondary, nil
}

// program writes prd into the table-pointer register and clears any
// latched interrupt/error bits, ahead of starting a transfer (spec
// §4.5 steps 1-3).
func (bm *BusMaster) program(prd PRD) {
	bm.port.OutL(bm.base+bmTablePtr, prd.PhysAddr)
	bm.port.OutB(bm.base+bmStatus, bmStatusClearIntrError)
}

// start kicks off the bus-master engine in the given direction (spec
// §4.5 step 4).
func (bm *BusMaster) start(dir Direction) {
	cmd := bmCmdStart
	if dir == DirectionRead {
		cmd |= bmCmdReadWrite
	}
	bm.port.OutB(bm.base+bmCommand, cmd)
}

// stop halts the bus-master engine (spec §4.5 step 6).
func (bm *BusMaster) stop() {
	bm.port.OutB(bm.base+bmCommand, 0)
}
