package pata

import "testing"

// setupNonDMAPacketDataPhase scripts a fakePort to walk issuePacketCommand's
// non-DMA, non-overlapped path through a successful data-in phase: the
// device accepts the CDB (interrupt-reason CD set), reports DRQ both
// before and during the data phase, and returns words as the data-in
// payload.
func setupNonDMAPacketDataPhase(port *fakePort, regs RegisterMap, words []uint16) {
	port.readSeqB[regs.SectorCount] = []uint8{irrCD}
	port.readSeqB[regs.StatusCommand] = []uint8{statusDRQ, statusDRQ, statusDRQ, 0x40}
	port.readSeqW[regs.Data] = words
}

// setupNonDMAPacketNoDataPhase scripts a non-data command (TEST UNIT
// READY, START STOP UNIT): the device accepts the CDB, then reports no
// DRQ once the command itself completes.
func setupNonDMAPacketNoDataPhase(port *fakePort, regs RegisterMap) {
	port.readSeqB[regs.SectorCount] = []uint8{irrCD}
	port.readSeqB[regs.StatusCommand] = []uint8{statusDRQ, 0x40}
}

func TestTestUnitReadySuccess(t *testing.T) {
	port := newFakePort()
	hc, _, _ := newTestHostChannel(HostPrimary, port)
	setupNonDMAPacketNoDataPhase(port, hc.Regs)

	if err := TestUnitReady(hc, DeviceMaster, &fakeDMAAllocator{}); err != nil {
		t.Fatalf("TestUnitReady: %v", err)
	}
	if got := port.b[hc.Regs.StatusCommand]; got != cmdPacket {
		t.Errorf("command register = %#x, want PACKET (%#x)", got, cmdPacket)
	}
}

func TestIssuePacketCommandRejectsIfDeviceDoesNotAcceptCDB(t *testing.T) {
	port := newFakePort()
	hc, _, _ := newTestHostChannel(HostPrimary, port)
	port.readSeqB[hc.Regs.StatusCommand] = []uint8{0x40} // no DRQ -> device never requested the CDB

	var cdb [12]byte
	cdb[0] = cdbTestUnitReady
	err := issuePacketCommand(hc, DeviceMaster, &fakeDMAAllocator{}, 0, cdb, nil, 0, DirectionRead)
	if err != EDERRE {
		t.Fatalf("issuePacketCommand error = %v, want EDERRE", err)
	}
}

// senseWords lays out a 14-byte REQUEST SENSE response (sense key at
// byte 2, ASC at byte 12, ASCQ at byte 13) as the 7 little-endian words
// pioTransferSectors will read back.
func senseWords(senseKeyByte, asc, ascq uint8) []uint16 {
	buf := make([]byte, 14)
	buf[2] = senseKeyByte
	buf[12] = asc
	buf[13] = ascq
	words := make([]uint16, 7)
	for i := range words {
		words[i] = uint16(buf[i*2]) | uint16(buf[i*2+1])<<8
	}
	return words
}

func TestRequestSenseClassification(t *testing.T) {
	tests := []struct {
		desc        string
		key, asc, q uint8
		wantRetry   bool
		wantErr     error
	}{
		{"not ready to ready", 0x06, 0x28, 0x00, false, nil},
		{"power on reset", 0x06, 0x29, 0x00, true, nil},
		{"becoming ready", 0x02, 0x04, 0x01, true, nil},
		{"medium not present", 0x06, 0x3a, 0x00, false, ENOMEDIUM},
		{"unclassified sense", 0x04, 0x00, 0x00, false, EDERRE},
	}
	for _, tc := range tests {
		t.Run(tc.desc, func(t *testing.T) {
			port := newFakePort()
			hc, _, _ := newTestHostChannel(HostPrimary, port)
			setupNonDMAPacketDataPhase(port, hc.Regs, senseWords(tc.key, tc.asc, tc.q))
			slot := &DeviceSlot{Host: HostPrimary, Dev: DeviceMaster, Kind: KindATAPI, Mode: ModePIO}

			retry, err := RequestSense(hc, DeviceMaster, slot, &fakeDMAAllocator{})
			if err != tc.wantErr {
				t.Fatalf("RequestSense error = %v, want %v", err, tc.wantErr)
			}
			if retry != tc.wantRetry {
				t.Errorf("RequestSense retry = %v, want %v", retry, tc.wantRetry)
			}
		})
	}
}

func TestStartStopUnitWritesOperationCode(t *testing.T) {
	port := newFakePort()
	hc, _, _ := newTestHostChannel(HostPrimary, port)
	setupNonDMAPacketNoDataPhase(port, hc.Regs)
	slot := &DeviceSlot{Host: HostPrimary, Dev: DeviceMaster, Kind: KindATAPI, Overlap: true}

	if err := StartStopUnit(hc, DeviceMaster, slot, &fakeDMAAllocator{}, 0x30); err != nil {
		t.Fatalf("StartStopUnit: %v", err)
	}
	if got := port.writesW; len(got) == 0 {
		t.Fatalf("no CDB words written")
	}
	// cdb[4] (the operation code byte) sits in the third word written.
	if got := port.writesW[2].val; byte(got>>8) != 0x30 && byte(got) != 0x30 {
		t.Errorf("operation code not found in third CDB word %#x", got)
	}
}

// readCapacityWords lays out an 8-byte READ CAPACITY response (last LBA,
// then block size, both big-endian 32-bit) as the 4 little-endian words
// pioTransferSectors will read back.
func readCapacityWords(lastLBA, blockSize uint32) []uint16 {
	buf := make([]byte, 8)
	buf[0] = byte(lastLBA >> 24)
	buf[1] = byte(lastLBA >> 16)
	buf[2] = byte(lastLBA >> 8)
	buf[3] = byte(lastLBA)
	buf[4] = byte(blockSize >> 24)
	buf[5] = byte(blockSize >> 16)
	buf[6] = byte(blockSize >> 8)
	buf[7] = byte(blockSize)
	words := make([]uint16, 4)
	for i := range words {
		words[i] = uint16(buf[i*2]) | uint16(buf[i*2+1])<<8
	}
	return words
}

func TestReadCapacityByteSwapAndRounding(t *testing.T) {
	port := newFakePort()
	hc, _, _ := newTestHostChannel(HostPrimary, port)
	setupNonDMAPacketDataPhase(port, hc.Regs, readCapacityWords(4095, 2049)) // 2049 rounds down to 2048
	slot := &DeviceSlot{Host: HostPrimary, Dev: DeviceMaster, Kind: KindATAPI, Mode: ModePIO}

	lastLBA, blockSize, err := ReadCapacity(hc, DeviceMaster, slot, &fakeDMAAllocator{})
	if err != nil {
		t.Fatalf("ReadCapacity: %v", err)
	}
	if lastLBA != 4095 {
		t.Errorf("lastLBA = %d, want 4095", lastLBA)
	}
	if blockSize != 2048 {
		t.Errorf("blockSize = %d, want 2048 (rounded down from 2049)", blockSize)
	}
}

func TestTransferATAPICDBLayoutAndCountNarrowing(t *testing.T) {
	port := newFakePort()
	hc, _, _ := newTestHostChannel(HostPrimary, port)
	// 256 sectors' worth of zero data; the important thing is that the
	// CDB fields land correctly, not the payload content.
	setupNonDMAPacketDataPhase(port, hc.Regs, make([]uint16, sectorSize*256/2))

	slot := &DeviceSlot{Host: HostPrimary, Dev: DeviceMaster, Kind: KindATAPI, Mode: ModePIO, BlockSize: sectorSize}
	buf := make([]byte, sectorSize*256)

	if err := transferATAPI(hc, slot, &fakeDMAAllocator{}, DirectionRead, buf, 256, 0x01020304); err != nil {
		t.Fatalf("transferATAPI: %v", err)
	}

	// The CDB itself was written as six 16-bit words; reconstruct it
	// to check field placement rather than re-deriving the bytes twice.
	if len(port.writesW) < 6 {
		t.Fatalf("only %d CDB words written, want at least 6", len(port.writesW))
	}
	var cdb [12]byte
	for i := 0; i < 6; i++ {
		v := port.writesW[i].val
		cdb[i*2] = byte(v)
		cdb[i*2+1] = byte(v >> 8)
	}
	if cdb[0] != cdbRead10 {
		t.Errorf("cdb[0] = %#x, want READ(10) (%#x)", cdb[0], cdbRead10)
	}
	wantLBA := []byte{0x01, 0x02, 0x03, 0x04}
	if cdb[2] != wantLBA[0] || cdb[3] != wantLBA[1] || cdb[4] != wantLBA[2] || cdb[5] != wantLBA[3] {
		t.Errorf("cdb[2:6] = % x, want % x", cdb[2:6], wantLBA)
	}
	// count=256: masking after shifting, not before, must preserve the
	// full value across the two-byte field rather than truncating it
	// to zero (spec's Open Question 1 correction).
	if cdb[7] != 0x01 || cdb[8] != 0x00 {
		t.Errorf("cdb[7:9] = % x, want [01 00] (count=256 split across transfer-length bytes)", cdb[7:9])
	}
}

func TestTransferATAPIDefaultsBlockSizeWhenUnprobed(t *testing.T) {
	port := newFakePort()
	hc, _, _ := newTestHostChannel(HostPrimary, port)
	setupNonDMAPacketDataPhase(port, hc.Regs, make([]uint16, sectorSize/2))

	slot := &DeviceSlot{Host: HostPrimary, Dev: DeviceMaster, Kind: KindATAPI, Mode: ModePIO} // BlockSize left zero
	buf := make([]byte, sectorSize)

	if err := transferATAPI(hc, slot, &fakeDMAAllocator{}, DirectionRead, buf, 1, 0); err != nil {
		t.Fatalf("transferATAPI with unprobed BlockSize: %v", err)
	}
}
