package pata

import "time"

// ATA command opcodes this driver issues (spec §4).
const (
	cmdReadSectors    uint8 = 0x20
	cmdWriteSectors   uint8 = 0x30
	cmdReadDMA        uint8 = 0xc8
	cmdWriteDMA       uint8 = 0xca
	cmdDeviceReset    uint8 = 0x08
	cmdIdentifyDevice uint8 = 0xec
	cmdIdentifyPacket uint8 = 0xa1
	cmdIdleImmediate  uint8 = 0xe1
	cmdInitDevParams  uint8 = 0x91
	cmdSetFeatures    uint8 = 0xef
)

// setFeaturesSetTransfer is the SET FEATURES subcommand this driver
// uses, selecting a transfer mode via the sector-count register (spec
// §4.3).
const setFeaturesSetTransfer uint8 = 0x03

// lbaBit is the Device/Head register bit selecting LBA addressing
// instead of CHS (spec §3).
const lbaBit uint8 = 0x40

// commandSettleDelay is the fixed wait every single-register command
// issue observes between writing the command register and sampling
// status, standing in for the original driver's micro_timer(1) 400ns
// pause (spec §4.1, §4.2).
const commandSettleDelay = 1 * time.Microsecond

// ResetDevice issues DEVICE RESET (0x08) to the device at (host, dev),
// disabling interrupts first since the reset itself is polled rather
// than interrupt-driven (spec §4.2, supplementing the ATA soft-reset
// path with the original driver's per-device reset command).
func ResetDevice(hc *HostChannel, dev int) error {
	hc.SetIntr(IntrDisabled)

	if err := hc.select_(uint8(dev) << 4); err != nil {
		return err
	}

	hc.Port.OutB(hc.Regs.StatusCommand, cmdDeviceReset)
	hc.Timer.Delay(commandSettleDelay)

	status := hc.checkAltStatus()
	if status&statusERR != 0 {
		return EDERRE
	}
	if status&statusBSY != 0 {
		return EDBUSY
	}
	return nil
}

// Identify issues IDENTIFY DEVICE (0xec) or IDENTIFY PACKET DEVICE
// (0xa1) to the device at (host, dev) depending on kind, and returns
// the parsed 512-byte response (spec §3, §4.2).
func Identify(hc *HostChannel, dev int, kind DeviceKind) (IdentifyBlock, error) {
	hc.SetIntr(IntrDisabled)

	if err := hc.select_(uint8(dev) << 4); err != nil {
		return IdentifyBlock{}, err
	}

	cmd := cmdIdentifyDevice
	if kind == KindATAPI {
		cmd = cmdIdentifyPacket
	}
	hc.Port.OutB(hc.Regs.StatusCommand, cmd)
	hc.Timer.Delay(commandSettleDelay)

	raw := make([]byte, identifyWords*2)
	status := pioTransferSectors(hc.Port, hc.Clock, hc.Regs, raw, identifyWords*2, 1, DirectionRead)
	if status&(statusBSY|statusDRQ|statusERR) != 0 {
		if status&(statusDRQ|statusERR) != 0 {
			return IdentifyBlock{}, EDERRE
		}
		return IdentifyBlock{}, EDBUSY
	}

	return ParseIdentifyBlock(raw)
}

// IdleImmediate issues IDLE IMMEDIATE (0xe1), spinning the device down
// from any active power state without a deadline (spec §4.2).
func IdleImmediate(hc *HostChannel, dev int) error {
	hc.SetIntr(IntrDisabled)

	if err := hc.select_(uint8(dev) << 4); err != nil {
		return err
	}

	hc.Port.OutB(hc.Regs.StatusCommand, cmdIdleImmediate)
	hc.Timer.Delay(commandSettleDelay)

	status := hc.checkAltStatus()
	if status&statusERR != 0 {
		return EDERRE
	}
	if status&statusBSY != 0 {
		return EDBUSY
	}
	return nil
}

// InitDeviceParameters issues INITIALIZE DEVICE PARAMETERS (0x91),
// telling the device the CHS geometry Probe read back from its own
// IDENTIFY response (spec §4.2). head is the highest head number (the
// head count minus one) and must fit the four head-select bits of the
// Device/Head register.
func InitDeviceParameters(hc *HostChannel, dev int, head, sectors uint8) error {
	if head > 0xf {
		return EINVAL
	}

	hc.SetIntr(IntrDisabled)

	if err := hc.select_((uint8(dev) << 4) | head); err != nil {
		return err
	}

	hc.Port.OutB(hc.Regs.SectorCount, sectors)
	hc.Port.OutB(hc.Regs.StatusCommand, cmdInitDevParams)
	hc.Timer.Delay(commandSettleDelay)

	status := hc.checkAltStatus()
	if status&statusERR != 0 {
		return EDERRE
	}
	if status&statusBSY != 0 {
		return EDBUSY
	}
	return nil
}

// SetFeatures issues SET FEATURES (0xef) with the SET TRANSFER MODE
// subcommand, requesting the device switch to the given PIO/Multi-word
// DMA/Ultra DMA mode code (spec §4.3's mode negotiation handshake).
func SetFeatures(hc *HostChannel, dev int, transferModeCode uint8) error {
	hc.SetIntr(IntrDisabled)

	if err := hc.select_(uint8(dev) << 4); err != nil {
		return err
	}

	hc.Port.OutB(hc.Regs.ErrorFeatures, setFeaturesSetTransfer)
	hc.Port.OutB(hc.Regs.SectorCount, transferModeCode)
	hc.Port.OutB(hc.Regs.StatusCommand, cmdSetFeatures)
	hc.Timer.Delay(commandSettleDelay)

	status := hc.checkAltStatus()
	if status&statusERR != 0 {
		return EDERRE
	}
	if status&statusBSY != 0 {
		return EDBUSY
	}
	return nil
}

// transferATA implements _transfer_ata: it selects PIO or DMA interrupt
// mode according to the slot's negotiated transfer mode, issues the
// appropriate READ/WRITE SECTORS or READ/WRITE DMA command against an
// LBA28 address, and runs the transfer (spec §4.4, §4.5).
func transferATA(hc *HostChannel, slot *DeviceSlot, dma DMAAllocator, dir Direction, buf []byte, count int, begin uint32) error {
	if slot.Mode == ModePIO {
		hc.SetIntr(IntrDisabled)
	} else {
		hc.SetIntr(IntrEnabled)
	}

	sel := uint8(begin>>24) | (uint8(slot.Dev) << 4) | lbaBit
	if err := hc.select_(sel); err != nil {
		return err
	}

	hc.Port.OutB(hc.Regs.SectorCount, uint8(count))
	hc.Port.OutB(hc.Regs.SectorNumber, uint8(begin))
	hc.Port.OutB(hc.Regs.CylinderLow, uint8(begin>>8))
	hc.Port.OutB(hc.Regs.CylinderHigh, uint8(begin>>16))

	var status uint8
	var err error

	if slot.Mode == ModePIO {
		if dir == DirectionRead {
			hc.Port.OutB(hc.Regs.StatusCommand, cmdReadSectors)
			status = pioTransferSectors(hc.Port, hc.Clock, hc.Regs, buf, sectorSize, count, DirectionRead)
		} else {
			hc.Port.OutB(hc.Regs.StatusCommand, cmdWriteSectors)
			status = pioTransferSectors(hc.Port, hc.Clock, hc.Regs, buf, sectorSize, count, DirectionWrite)
		}
	} else {
		if dir == DirectionRead {
			hc.Port.OutB(hc.Regs.StatusCommand, cmdReadDMA)
		} else {
			hc.Port.OutB(hc.Regs.StatusCommand, cmdWriteDMA)
		}
		status, err = dmaTransferSectors(hc.BM, hc.Port, hc.Regs, hc.IW, dma, buf, sectorSize, count, dir)
		if err != nil {
			return err
		}
	}

	if status&(statusBSY|statusDRQ|statusERR) != 0 {
		if status&(statusDRQ|statusERR) != 0 {
			return EDERRE
		}
		return EDBUSY
	}
	return nil
}
