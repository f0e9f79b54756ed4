package pata

// RegisterMap is the compile-time table of task-file port addresses for
// one host channel, as described in spec §3 ("Register map") and
// §6 ("Hardware port map"). It is computed once from a host's base
// port and never changes.
//
// Port layout (offsets from base):
//
//	+0 data, +1 error/features, +2 sector count, +3 sector number,
//	+4 cylinder low, +5 cylinder high, +6 drive/head, +7 status/command
//	+0x206 alternate status / device control
type RegisterMap struct {
	Data          uint16 // DTR, read/write 16-bit
	ErrorFeatures uint16 // ERR (read) / FTR (write)
	SectorCount   uint16 // SCR
	SectorNumber  uint16 // SNR, LBA bits 0:7
	CylinderLow   uint16 // CLR, LBA bits 8:15
	CylinderHigh  uint16 // CHR, LBA bits 16:23
	DriveHead     uint16 // DHR
	StatusCommand uint16 // STR (read) / CMR (write)
	AltControl    uint16 // ASTR (read) / CTR (write)
}

// primaryBase and secondaryBase are the fixed legacy ISA task-file base
// ports for the two IDE host channels (spec §6).
const (
	primaryBase   uint16 = 0x1F0
	secondaryBase uint16 = 0x170
)

// primaryIRQ and secondaryIRQ are the fixed legacy ISA IRQ lines routed
// to each host channel.
const (
	primaryIRQ   uint8 = 14
	secondaryIRQ uint8 = 15
)

// busMasterSecondaryOffset is added to the bus-master I/O base learned
// from PCI BAR4 to get the secondary channel's bus-master registers
// (spec §4.5, §6).
const busMasterSecondaryOffset uint16 = 8

// newRegisterMap builds the RegisterMap for a host given its task-file
// base port.
func newRegisterMap(base uint16) RegisterMap {
	return RegisterMap{
		Data:          base + 0,
		ErrorFeatures: base + 1,
		SectorCount:   base + 2,
		SectorNumber:  base + 3,
		CylinderLow:   base + 4,
		CylinderHigh:  base + 5,
		DriveHead:     base + 6,
		StatusCommand: base + 7,
		AltControl:    base + 0x206,
	}
}

// registerMapFor returns the fixed RegisterMap for host (0=primary,
// 1=secondary).
func registerMapFor(host int) RegisterMap {
	if host == HostSecondary {
		return newRegisterMap(secondaryBase)
	}
	return newRegisterMap(primaryBase)
}
