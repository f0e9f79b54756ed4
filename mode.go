package pata

// SET FEATURES SET TRANSFER MODE subcommand byte layout: the low
// bits select a mode number, the high bits select which mode family it
// belongs to (spec §4.3).
const (
	subPIODefault uint8 = 0x00
	subPIOFlow    uint8 = 0x08
	subMultiDMA   uint8 = 0x20
	subUltraDMA   uint8 = 0x40
)

// bridgeFamily identifies which PCI IDE-bridge register layout a
// chipset uses to gate its Ultra DMA modes (spec §4.3, "the messiest
// part of the driver").
type bridgeFamily int

const (
	familyNone bridgeFamily = iota
	familyIntel
	familyViaAMD
	familySiSWide  // 5591/63x/64x/65x/73x/74x/75x: per-mode bit patterns, ceiling UDMA5
	familySiSNarrow // 530/540/620: per-mode bit patterns, ceiling UDMA4
)

// bridgeEntry records one recognized bridge's register family and the
// highest Ultra DMA mode it is capable of driving, so HighestUltraDMA
// can cap a device's own advertised capability to what the bridge
// supports (spec §4.3).
type bridgeEntry struct {
	family  bridgeFamily
	ceiling uint8
}

// bridgeTable maps a PCI vendor:device word (as PCIAddress.VendorDevice
// carries it) to its bridge entry, transcribed from the original
// driver's change_mode vendor/device switch (spec §4.3, original
// driver's PCI IDE-bridge table).
var bridgeTable = map[uint32]bridgeEntry{
	0x24cb8086: {familyIntel, 5}, // Intel ICH4
	0x248a8086: {familyIntel, 5}, // Intel ICH3 mobile
	0x248b8086: {familyIntel, 5}, // Intel ICH3
	0x244a8086: {familyIntel, 5}, // Intel ICH2 mobile
	0x244b8086: {familyIntel, 5}, // Intel ICH2
	0x24118086: {familyIntel, 4}, // Intel ICH
	0x76018086: {familyIntel, 4}, // Intel ICH
	0x24218086: {familyIntel, 2}, // Intel ICH0
	0x71118086: {familyIntel, 2}, // Intel PIIX4
	0x84ca8086: {familyIntel, 2}, // Intel PIIX4
	0x71998086: {familyIntel, 2}, // Intel PIIX4e

	0x74411022: {familyViaAMD, 5}, // AMD 768
	0x74111022: {familyViaAMD, 5}, // AMD 766
	0x74091022: {familyViaAMD, 4}, // AMD 756
	0x05711106: {familyViaAMD, 2}, // VIA 82C571/586/596/686, 8231, 8233
	0x31471106: {familyViaAMD, 6}, // VIA 8233a
	0x82311106: {familyViaAMD, 5}, // VIA 8231
	0x30741106: {familyViaAMD, 5}, // VIA 8233
	0x31091106: {familyViaAMD, 5}, // VIA 8233c
	0x06861106: {familyViaAMD, 5}, // VIA 82C686/686a/686b
	0x05961106: {familyViaAMD, 4}, // VIA 82C596a/596b
	0x05861106: {familyViaAMD, 2}, // VIA 82C586b

	0x55131039: {familySiSWide, 5}, // SiS 5591
	0x06301039: {familySiSWide, 5}, // SiS 630
	0x06331039: {familySiSWide, 5}, // SiS 633
	0x06351039: {familySiSWide, 5}, // SiS 635
	0x06401039: {familySiSWide, 5}, // SiS 640
	0x06451039: {familySiSWide, 5}, // SiS 645
	0x06501039: {familySiSWide, 5}, // SiS 650
	0x07301039: {familySiSWide, 5}, // SiS 730
	0x07331039: {familySiSWide, 5}, // SiS 733
	0x07351039: {familySiSWide, 5}, // SiS 735
	0x07401039: {familySiSWide, 5}, // SiS 740
	0x07451039: {familySiSWide, 5}, // SiS 745
	0x07501039: {familySiSWide, 5}, // SiS 750
	0x05301039: {familySiSNarrow, 4}, // SiS 530
	0x05401039: {familySiSNarrow, 4}, // SiS 540
	0x06201039: {familySiSNarrow, 4}, // SiS 620
}

// lookupBridge locates the IDE function's bridge entry, returning
// ENOSYS for an unrecognized vendor:device (spec §4.3 falls back to
// refusing the mode switch rather than guessing a ceiling).
func lookupBridge(addr PCIAddress) (bridgeEntry, error) {
	entry, ok := bridgeTable[addr.VendorDevice]
	if !ok {
		return bridgeEntry{}, ENOSYS
	}
	return entry, nil
}

// pioSubcommand picks the SET FEATURES SET TRANSFER MODE byte for PIO
// mode, preferring Advanced PIO mode 4 over 3 over the legacy default
// (spec §4.3).
func pioSubcommand(id IdentifyBlock) uint8 {
	switch {
	case id.SupportsPIO4():
		return subPIOFlow | 4
	case id.SupportsPIO3():
		return subPIOFlow | 3
	default:
		return subPIODefault
	}
}

// disableBridgeUDMA clears whatever bit(s) the bridge family uses to
// gate Ultra DMA for (host, dev), undoing a BIOS-set Ultra DMA
// configuration before dropping to Multi-word DMA (spec §4.3: "ULTRA
// DMA対応のドライブについては、BIOSでIDEがULTRA DMAに設定されているので、
// その設定を取り消す必要がある").
func disableBridgeUDMA(pci PCIConfig, addr PCIAddress, family bridgeFamily, host, dev int) {
	switch family {
	case familyIntel:
		v := pci.Read32(addr, 0x48)
		pci.Write32(addr, 0x48, v&^(1<<uint(host*2+dev)))
	case familyViaAMD:
		v := pci.Read32(addr, 0x50)
		pci.Write32(addr, 0x50, v&^(0x40000000>>uint(host*16+dev*8)))
	case familySiSWide, familySiSNarrow:
		off := uint8(0x40 + host*4)
		v := pci.Read32(addr, off)
		pci.Write32(addr, off, v&^(0xf000<<uint(dev*16)))
	}
}

// enableBridgeUDMA sets the bit pattern selecting the given Ultra DMA
// mode for (host, dev), per the bridge family's register layout (spec
// §4.3). SiS's two subfamilies use distinct per-mode bit patterns
// rather than a single enable bit, transcribed directly from the
// original driver's literal constants.
func enableBridgeUDMA(pci PCIConfig, addr PCIAddress, family bridgeFamily, host, dev int, mode uint8) error {
	switch family {
	case familyIntel:
		v := pci.Read32(addr, 0x48)
		pci.Write32(addr, 0x48, v|(1<<uint(host*2+dev)))
		return nil
	case familyViaAMD:
		v := pci.Read32(addr, 0x50)
		pci.Write32(addr, 0x50, v|(0x40000000>>uint(host*16+dev*8)))
		return nil
	case familySiSWide:
		off := uint8(0x40 + host*4)
		var bits uint32
		switch mode {
		case 5:
			bits = 0x8000
		case 4:
			bits = 0x9000
		case 2:
			bits = 0xb000
		default:
			return ENOSYS
		}
		v := pci.Read32(addr, off)
		pci.Write32(addr, off, v|(bits<<uint(dev*16)))
		return nil
	case familySiSNarrow:
		off := uint8(0x40 + host*4)
		var bits uint32
		switch mode {
		case 4:
			bits = 0x9000
		case 2:
			bits = 0xa000
		default:
			return ENOSYS
		}
		v := pci.Read32(addr, off)
		pci.Write32(addr, off, v|(bits<<uint(dev*16)))
		return nil
	default:
		return ENOSYS
	}
}

// ChangeMode negotiates the transfer mode for the device at (host,
// dev): it re-runs IDENTIFY to get current capability words, picks the
// SET FEATURES subcommand for the requested mode family, and for
// Multi-word/Ultra DMA touches the PCI IDE-bridge registers that gate
// the host controller's own DMA engine (spec §4.3). It is a no-op if
// the slot is already in the requested mode.
func ChangeMode(hc *HostChannel, slot *DeviceSlot, pci PCIConfig, want TransferMode) error {
	if slot.Mode == want {
		return nil
	}

	id, err := Identify(hc, slot.Dev, slot.Kind)
	if err != nil {
		return err
	}

	var subcm uint8

	switch want {
	case ModePIO:
		subcm = pioSubcommand(id)

	case ModeMultiDMA:
		mdma, ok := id.HighestMultiWordDMA()
		if !ok {
			return ENOSYS
		}
		subcm = subMultiDMA | mdma

		addr, ferr := pci.FindClass(pciClassIDE)
		if ferr != nil {
			return ENODEV
		}
		entry, berr := lookupBridge(addr)
		if berr == nil {
			disableBridgeUDMA(pci, addr, entry.family, hc.Host, slot.Dev)
		}

	case ModeUltraDMA:
		addr, ferr := pci.FindClass(pciClassIDE)
		if ferr != nil {
			return ENODEV
		}
		entry, berr := lookupBridge(addr)
		if berr != nil {
			return berr
		}

		mode, ok := id.HighestUltraDMA(entry.ceiling)
		if !ok {
			return ENOSYS
		}
		subcm = subUltraDMA | mode

		if err := enableBridgeUDMA(pci, addr, entry.family, hc.Host, slot.Dev, mode); err != nil {
			return err
		}
		slot.UDMAMode = mode
		slot.UDMACeiling = entry.ceiling

	default:
		return EINVAL
	}

	if err := SetFeatures(hc, slot.Dev, subcm); err != nil {
		return err
	}
	slot.Mode = want
	return nil
}
