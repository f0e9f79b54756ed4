package pata

import "time"

// signatureSettleDelay is the fixed wait between selecting a device by
// writing the drive/head register directly and sampling the
// cylinder-low/high signature bytes, mirroring init_ata's bare
// mili_timer(5) (spec §4.2).
const signatureSettleDelay = 5 * time.Millisecond

// Probe runs device discovery on both host channels: soft reset, then
// for each of the two device positions, read back the ATA/ATAPI
// signature left in the cylinder registers, IDENTIFY whichever kind it
// indicates, validate LBA support for ATA disks, idle the device, and
// negotiate PIO mode (spec §4.2's signature detection, mirroring
// init_ata). A channel whose own soft reset fails is skipped entirely;
// an individual device position that fails IDENTIFY, or an ATA disk
// that reports zero LBA28 sectors, is left absent rather than aborting
// the whole probe.
func Probe(c *Controller) error {
	for host := 0; host < 2; host++ {
		hc := c.Hosts[host]

		if err := softReset(hc.Port, hc.Clock, hc.Timer, hc.Regs); err != nil {
			continue
		}
		hc.intrMode = IntrDisabled

		for dev := 0; dev < 2; dev++ {
			slot := c.Devices[host][dev]
			*slot = DeviceSlot{Host: host, Dev: dev, Kind: KindAbsent}

			hc.Port.OutB(hc.Regs.DriveHead, uint8(dev)<<4)
			hc.Timer.Delay(signatureSettleDelay)
			cl := hc.Port.InB(hc.Regs.CylinderLow)
			ch := hc.Port.InB(hc.Regs.CylinderHigh)

			switch {
			case cl == 0x00 && ch == 0x00:
				probeATADisk(hc, slot)
			case cl == 0x14 && ch == 0xeb:
				probeATAPIDevice(hc, slot)
			default:
				continue
			}

			if slot.Kind == KindAbsent {
				continue
			}

			IdleImmediate(hc, dev)
			// The slot was just reset to the zero Mode, ModePIO, so
			// ChangeMode would return without touching the device; issue
			// the PIO SET FEATURES handshake directly instead.
			if id, err := Identify(hc, dev, slot.Kind); err == nil {
				SetFeatures(hc, dev, pioSubcommand(id))
			}
			slot.Mode = ModePIO
		}
	}
	return nil
}

// probeATADisk issues IDENTIFY DEVICE, validates the device reported
// LBA28 addressable sectors, and populates slot accordingly (spec
// §4.2).
func probeATADisk(hc *HostChannel, slot *DeviceSlot) {
	id, err := Identify(hc, slot.Dev, KindATA)
	if err != nil {
		return
	}

	sectors := id.LBA28Sectors()
	if sectors == 0 {
		return // no LBA support; this driver has no CHS transfer path
	}

	slot.Kind = KindATA
	slot.LBASectors = sectors
	slot.Model = id.Model()

	InitDeviceParameters(hc, slot.Dev, id.Heads()-1, id.SectorsPerTrack())
}

// probeATAPIDevice issues IDENTIFY PACKET DEVICE and records the
// device's overlapped-command support (spec §4.2).
func probeATAPIDevice(hc *HostChannel, slot *DeviceSlot) {
	id, err := Identify(hc, slot.Dev, KindATAPI)
	if err != nil {
		return
	}

	slot.Kind = KindATAPI
	slot.Model = id.Model()
	slot.Overlap = id.ATAPIOverlapSupported()
}

// UnwedgeBusyChannels runs init_ata's second discovery pass: selecting
// each device position again and, if the status register still reports
// BSY, resetting the whole host. The original driver's comment notes
// this handles a drive that is left busy when its slave position has
// no device attached; that asymmetry is preserved here rather than
// resolved, since nothing in the protocol explains which side is at
// fault (spec §4.2, left ambiguous deliberately).
func UnwedgeBusyChannels(c *Controller) {
	for host := 0; host < 2; host++ {
		hc := c.Hosts[host]
		for dev := 0; dev < 2; dev++ {
			hc.Port.OutB(hc.Regs.DriveHead, uint8(dev)<<4)
			hc.Timer.Delay(signatureSettleDelay)
			if hc.Port.InB(hc.Regs.StatusCommand)&statusBSY != 0 {
				ResetHost(c, host)
				break
			}
		}
	}
}

// ResetHost soft-resets a host channel and re-negotiates the DMA
// transfer mode of each of its devices that was last set to Multi-word
// or Ultra DMA, mirroring reset_host (spec §4.2). A device last set to
// PIO is left as it is; no SET FEATURES is issued for it. If the soft reset itself fails, it falls
// back to issuing DEVICE RESET to each present device as a
// second-chance recovery; the original error is only returned if every
// device still fails DEVICE RESET too.
func ResetHost(c *Controller, host int) error {
	hc := c.Hosts[host]
	if err := softReset(hc.Port, hc.Clock, hc.Timer, hc.Regs); err != nil {
		recovered := false
		for dev := 0; dev < 2; dev++ {
			if c.Devices[host][dev].Kind == KindAbsent {
				continue
			}
			if rerr := ResetDevice(hc, dev); rerr == nil {
				recovered = true
			}
		}
		if !recovered {
			return err
		}
	}
	hc.intrMode = IntrDisabled

	for dev := 0; dev < 2; dev++ {
		slot := c.Devices[host][dev]
		if slot.Kind == KindAbsent {
			continue
		}
		want := slot.Mode
		slot.Mode = ModePIO // force ChangeMode to re-issue rather than no-op
		if want == ModePIO {
			continue
		}
		ChangeMode(hc, slot, c.PCI, want)
	}
	return nil
}

// UnmaskHostIRQs releases the IRQ mask for both legacy ISA lines,
// mirroring init_ata's final release_irq_mask pair. A real embedding
// kernel calls this only after its interrupt handlers are installed,
// since the comment in the original driver notes an already-pending
// level-triggered 8259 interrupt fires as soon as the mask lifts.
func UnmaskHostIRQs(c *Controller) {
	for host := 0; host < 2; host++ {
		hc := c.Hosts[host]
		hc.IRQC.Unmask(hc.IRQ)
	}
}
