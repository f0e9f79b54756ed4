package pata

import (
	"time"
)

// ATA status/alternate-status register bits.
const (
	statusBSY uint8 = 0x80
	statusDF  uint8 = 0x20
	statusSRV uint8 = 0x10
	statusDRQ uint8 = 0x08
	statusERR uint8 = 0x01
)

// ATAPI interrupt-reason register bits (aliased onto the sector-count
// port during the packet protocol).
const (
	interruptCD  uint8 = 0x01
	interruptIO  uint8 = 0x02
	interruptREL uint8 = 0x04
)

// busyPollBudget bounds check_busy's busy-wait (spec §4.1: ~2000ms).
const busyPollBudget = 2000 * time.Millisecond

// settleDelay is the 400ns settle time device_select waits after
// writing the drive/head register (spec §4.1 step 3).
const settleDelay = 400 * time.Nanosecond

// commandTimeout bounds the DMA and ATAPI packet interrupt-wait (spec
// §4.5 step 5, §4.7 step 5a, §5).
const commandTimeout = 2000 * time.Millisecond

// checkBusy reads the given status port until BSY clears or
// busyPollBudget elapses, per spec §4.1. It never fails; the caller
// inspects the returned status bits. It is a true busy-wait (spec §5:
// "does not yield") driven by an injected monotonic Clock rather than
// real wall time, so it can be exercised deterministically in tests.
func checkBusy(port PortIO, clock Clock, statusPort uint16) uint8 {
	start := clock.Now()
	budget := uint64(busyPollBudget.Nanoseconds())

	in := port.InB(statusPort)
	for in&statusBSY != 0 {
		if clock.Now()-start > budget {
			return in
		}
		in = port.InB(statusPort)
	}
	return in
}

// deviceSelect implements spec §4.1's device_select: pre-check,
// select, settle, post-check. sel carries the caller-packed drive/head
// byte, excluding the fixed 0xA0 select bits.
func deviceSelect(port PortIO, clock Clock, timer Timer, regs RegisterMap, sel uint8) error {
	if err := checkSelectReady(port, clock, regs); err != nil {
		return err
	}

	port.OutB(regs.DriveHead, 0xA0|sel)
	timer.Delay(settleDelay)

	return checkSelectReady(port, clock, regs)
}

// checkSelectReady is the pre/post-check device_select performs: DRQ
// set is an error, BSY set is a busy condition.
func checkSelectReady(port PortIO, clock Clock, regs RegisterMap) error {
	status := checkBusy(port, clock, regs.AltControl)
	if status&statusDRQ != 0 {
		return EDERRE
	}
	if status&statusBSY != 0 {
		return EDBUSY
	}
	return nil
}

// softReset pulses SRST for 5ms, deasserts it while leaving nIEN
// asserted, waits 20ms, then confirms BSY has cleared (spec §4.2).
func softReset(port PortIO, clock Clock, timer Timer, regs RegisterMap) error {
	const (
		srstAndNIEN uint8 = 0x06 // SRST set, nIEN asserted
		nienOnly    uint8 = 0x02 // SRST clear, nIEN asserted
	)

	port.OutB(regs.AltControl, srstAndNIEN)
	timer.Delay(5 * time.Millisecond)
	port.OutB(regs.AltControl, nienOnly)
	timer.Delay(20 * time.Millisecond)

	if checkBusy(port, clock, regs.AltControl)&statusBSY != 0 {
		return EDBUSY
	}
	return nil
}

// pioTransferSectors streams count sectors of blockSize bytes each,
// to (write) or from (read) the data port, polling check_busy between
// each sector (spec §4.4). It returns the final status byte.
func pioTransferSectors(port PortIO, clock Clock, regs RegisterMap, buf []byte, blockSize, count int, dir Direction) uint8 {
	var status uint8
	words := blockSize / 2

	for i := 0; i < count; i++ {
		status = checkBusy(port, clock, regs.StatusCommand)
		if status&(statusBSY|statusDRQ) != statusDRQ {
			return status
		}

		block := buf[i*blockSize : i*blockSize+blockSize]
		for w := 0; w < words; w++ {
			if dir == DirectionRead {
				v := port.InW(regs.Data)
				block[w*2] = byte(v)
				block[w*2+1] = byte(v >> 8)
			} else {
				v := uint16(block[w*2]) | uint16(block[w*2+1])<<8
				port.OutW(regs.Data, v)
			}
		}
	}

	return checkBusy(port, clock, regs.StatusCommand)
}

// dmaTransferSectors programs the PRD for a single bus-master transfer
// and waits for the completion interrupt (spec §4.5).
func dmaTransferSectors(bm *BusMaster, port PortIO, regs RegisterMap, iw InterruptWait, dma DMAAllocator, buf []byte, blockSize, count int, dir Direction) (uint8, error) {
	n := blockSize * count
	if n > MaxPRDTransferBytes {
		return 0, EINVAL
	}

	region, err := dma.Alloc(n)
	if err != nil {
		return 0, ENOMEM
	}
	defer dma.Free(region)

	if dir == DirectionWrite {
		copy(region.Bytes, buf[:n])
	}

	bm.program(PRD{PhysAddr: region.PhysAddr, ByteCount: uint32(n) | PRDEndOfTable})
	bm.start(dir)

	if err := iw.Wait(backgroundCtx, commandTimeout); err != nil {
		bm.stop()
		return 0, ETIMEOUT
	}
	bm.stop()

	if dir == DirectionRead {
		copy(buf[:n], region.Bytes)
	}

	return port.InB(regs.StatusCommand), nil
}

// waitWithTimeout is a small helper so higher layers needing a bare
// context (e.g. tests) don't each re-derive one from backgroundCtx.
func waitWithTimeout(iw InterruptWait, timeout time.Duration) error {
	return iw.Wait(backgroundCtx, timeout)
}
