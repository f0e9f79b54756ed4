package pata

import "encoding/binary"

// ATAPI packet-protocol command opcodes issued on the status/command
// register (spec §4.7).
const (
	cmdPacket  uint8 = 0xa0
	cmdService uint8 = 0xa2
)

// Packet feature-register bits issue_packet_command inspects to pick
// the PIO/DMA and overlapped/non-overlapped handshake (spec §4.7).
const (
	packetFeatureDMA     uint8 = 0x1
	packetFeatureOverlap uint8 = 0x2
)

// ATAPI interrupt-reason register bits, read from the sector-count
// port immediately after issuing PACKET (spec §4.7).
const (
	irrCD uint8 = 0x01 // command/data: 1 = device expects a CDB
	irrIO uint8 = 0x02 // 1 = device-to-host transfer
)

// CDB opcodes this driver builds (spec §4.7, §4.8).
const (
	cdbTestUnitReady uint8 = 0x00
	cdbRequestSense  uint8 = 0x03
	cdbStartStopUnit uint8 = 0x1b
	cdbReadCapacity  uint8 = 0x25
	cdbRead10        uint8 = 0x28
	cdbWrite10       uint8 = 0x2a
)

// issuePacketCommand drives the ATAPI packet protocol for one CDB: it
// selects the device, writes the feature/byte-count registers, issues
// PACKET, sends the 12-byte CDB as six words, and then — according to
// whether the feature byte requested DMA and/or the overlapped
// handshake — either waits for the completion interrupt and issues
// SERVICE, or polls directly, before running the data-phase transfer
// (spec §4.7). byteCount is the length in bytes of the data phase,
// moved as a single block; the byte-count registers themselves are
// always programmed with 0xFFFF.
func issuePacketCommand(hc *HostChannel, dev int, dma DMAAllocator, features uint8, cdb [12]byte, buf []byte, byteCount int, dir Direction) error {
	useDMA := features&packetFeatureDMA != 0
	overlap := features&packetFeatureOverlap != 0

	if err := hc.select_(uint8(dev) << 4); err != nil {
		return err
	}

	hc.Port.OutB(hc.Regs.ErrorFeatures, features)
	hc.Port.OutB(hc.Regs.SectorCount, 0)
	hc.Port.OutB(hc.Regs.CylinderLow, 0xff)
	hc.Port.OutB(hc.Regs.CylinderHigh, 0xff)
	hc.Port.OutB(hc.Regs.StatusCommand, cmdPacket)

	status := checkBusy(hc.Port, hc.Clock, hc.Regs.StatusCommand)
	if status&(statusDRQ|statusERR) != statusDRQ {
		return EDERRE
	}
	irr := hc.Port.InB(hc.Regs.SectorCount)
	if irr&(irrCD|irrIO) != irrCD {
		return EDERRE
	}

	if useDMA {
		hc.SetIntr(IntrEnabled)
	} else {
		hc.SetIntr(IntrDisabled)
	}

	for i := 0; i < 6; i++ {
		v := binary.LittleEndian.Uint16(cdb[i*2 : i*2+2])
		hc.Port.OutW(hc.Regs.Data, v)
	}

	var status2 uint8
	if useDMA {
		if err := waitWithTimeout(hc.IW, commandTimeout); err != nil {
			return ETIMEOUT
		}
		status2 = hc.Port.InB(hc.Regs.StatusCommand)
		if status2&statusERR != 0 {
			return EDERRE
		}
		if status2&statusDRQ == 0 {
			return nil // non-data command, no transfer phase
		}
	} else {
		status2 = checkBusy(hc.Port, hc.Clock, hc.Regs.StatusCommand)
		if status2&statusERR != 0 {
			return EDERRE
		}
		if status2&statusDRQ == 0 {
			return nil
		}
	}

	if overlap {
		if err := hc.select_(uint8(dev) << 4); err != nil {
			return err
		}
		if err := waitWithTimeout(hc.IW, commandTimeout); err != nil {
			return ETIMEOUT
		}
		hc.Port.OutB(hc.Regs.StatusCommand, cmdService)
		status2 = checkBusy(hc.Port, hc.Clock, hc.Regs.StatusCommand)
		if status2&(statusBSY|statusDRQ) != statusDRQ {
			return EDBUSY
		}
	}

	var finalStatus uint8
	var err error
	switch {
	case useDMA:
		finalStatus, err = dmaTransferSectors(hc.BM, hc.Port, hc.Regs, hc.IW, dma, buf, byteCount, 1, dir)
		if err != nil {
			return err
		}
	case cdb[0] == cdbRead10 || cdb[0] == cdbWrite10:
		finalStatus = pioTransferSectors(hc.Port, hc.Clock, hc.Regs, buf, byteCount, 1, dir)
	default:
		finalStatus = pioTransferSectors(hc.Port, hc.Clock, hc.Regs, buf, byteCount, 1, DirectionRead)
	}

	if finalStatus&(statusBSY|statusDRQ|statusERR) != 0 {
		if finalStatus&(statusDRQ|statusERR) != 0 {
			return EDERRE
		}
		return EDBUSY
	}
	return nil
}

// TestUnitReady issues the ATAPI TEST UNIT READY (0x00) command: a
// zero-length, non-data CDB (spec §4.8).
func TestUnitReady(hc *HostChannel, dev int, dma DMAAllocator) error {
	var cdb [12]byte
	cdb[0] = cdbTestUnitReady
	return issuePacketCommand(hc, dev, dma, 0, cdb, nil, 0, DirectionRead)
}

// RequestSense issues REQUEST SENSE (0x03), requesting a 14-byte fixed
// sense buffer, and classifies the sense key / ASC / ASCQ triplet
// (spec §4.8): 0x06/0x28/0x00 ("not ready to ready") reports ready;
// 0x06/0x29/0x00 ("power on, reset") and 0x02/0x04/0x01 ("becoming
// ready") report a transient condition worth retrying; 0x06/0x3a/0x00
// ("medium not present") reports ENOMEDIUM; anything else is EDERRE.
func RequestSense(hc *HostChannel, dev int, slot *DeviceSlot, dma DMAAllocator) (retry bool, err error) {
	var cdb [12]byte
	cdb[0] = cdbRequestSense
	cdb[4] = 14

	buf := make([]byte, 14)
	features := slot.dmaFeatureBit()
	if err := issuePacketCommand(hc, dev, dma, features, cdb, buf, 14, DirectionRead); err != nil {
		return false, err
	}

	senseKey := buf[2] & 0x0f
	asc := buf[12]
	ascq := buf[13]
	key := uint32(senseKey)<<16 | uint32(asc)<<8 | uint32(ascq)

	switch key {
	case 0x06_28_00:
		return false, nil
	case 0x06_29_00, 0x02_04_01:
		return true, nil
	case 0x06_3a_00:
		return false, ENOMEDIUM
	default:
		return false, EDERRE
	}
}

// StartStopUnit issues START STOP UNIT (0x1b) with the given operation
// code: 0 stops, 1 starts (spins up and loads), 2 ejects, 0x30 puts the
// medium in standby (spec §4.8).
func StartStopUnit(hc *HostChannel, dev int, slot *DeviceSlot, dma DMAAllocator, op uint8) error {
	var cdb [12]byte
	cdb[0] = cdbStartStopUnit
	cdb[4] = op

	features := slot.overlapFeatureBit()
	return issuePacketCommand(hc, dev, dma, features, cdb, nil, 0, DirectionRead)
}

// ReadCapacity issues READ CAPACITY (0x25), byte-swaps the big-endian
// 8-byte response in place, and returns the device's last addressable
// LBA and block size, rounding the block size down to a 512-byte
// multiple since some drives report a physical rather than logical
// sector size (spec §4.8).
func ReadCapacity(hc *HostChannel, dev int, slot *DeviceSlot, dma DMAAllocator) (lastLBA uint32, blockSize uint32, err error) {
	var cdb [12]byte
	cdb[0] = cdbReadCapacity

	buf := make([]byte, 8)
	features := slot.dmaFeatureBit()
	if err := issuePacketCommand(hc, dev, dma, features, cdb, buf, 8, DirectionRead); err != nil {
		return 0, 0, err
	}

	lastLBA = binary.BigEndian.Uint32(buf[0:4])
	blockSize = binary.BigEndian.Uint32(buf[4:8])
	blockSize -= blockSize % sectorSize

	return lastLBA, blockSize, nil
}

// transferATAPI implements _transfer_atapi: it builds a READ(10)/
// WRITE(10) CDB addressing begin for count logical blocks, and issues
// it through issuePacketCommand using the slot's negotiated DMA and
// overlapped-command feature bits (spec §4.7's data-phase dispatch,
// with the begin/count field layout spec §8 Open Question 1 corrects:
// the block count is masked into a byte only after the high-byte shift,
// never before — otherwise a count of exactly 256 silently truncates
// to zero before it ever reaches the high-byte field).
func transferATAPI(hc *HostChannel, slot *DeviceSlot, dma DMAAllocator, dir Direction, buf []byte, count int, begin uint32) error {
	var cdb [12]byte
	if dir == DirectionRead {
		cdb[0] = cdbRead10
	} else {
		cdb[0] = cdbWrite10
	}
	cdb[2] = byte(begin >> 24)
	cdb[3] = byte(begin >> 16)
	cdb[4] = byte(begin >> 8)
	cdb[5] = byte(begin)
	cdb[7] = byte(uint32(count) >> 8)
	cdb[8] = byte(uint32(count))

	blockSize := int(slot.BlockSize)
	if blockSize == 0 {
		blockSize = sectorSize
	}

	features := slot.dmaFeatureBit() | slot.overlapFeatureBit()
	return issuePacketCommand(hc, slot.Dev, dma, features, cdb, buf, count*blockSize, dir)
}

// dmaFeatureBit returns the PACKET feature-register DMA bit for this
// slot's negotiated transfer mode.
func (s *DeviceSlot) dmaFeatureBit() uint8 {
	if s.Mode == ModePIO {
		return 0
	}
	return packetFeatureDMA
}

// overlapFeatureBit returns the PACKET feature-register overlap bit if
// the device advertised overlapped-command support at probe time.
func (s *DeviceSlot) overlapFeatureBit() uint8 {
	if s.Overlap {
		return packetFeatureOverlap
	}
	return 0
}

