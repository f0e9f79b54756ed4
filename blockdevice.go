package pata

import "fmt"

// DeviceInfo is the information a block-device registration needs from
// this driver: a name, the device's last addressable block, and its
// block size (spec §5, mirroring the original driver's DEV_INFO/
// regist_device).
type DeviceInfo struct {
	Name      string
	LastBlock uint32
	BlockSize int
}

// BlockDevice binds one (host, dev) position to the Controller driving
// it, exposing the Open/Read/Write/Ioctl surface an embedding kernel's
// device-filesystem registration would call through (spec §5's
// "deliberately out of scope" device-fs registration collaborator).
type BlockDevice struct {
	Name string
	host int
	dev  int
	c    *Controller
}

// hda, hdb, hdc, and hdd are the four legacy device names this driver
// exposes, bound to their fixed (host, dev) positions (spec §6).
func NewBlockDevices(c *Controller) map[string]*BlockDevice {
	return map[string]*BlockDevice{
		"hda": {Name: "hda", host: HostPrimary, dev: DeviceMaster, c: c},
		"hdb": {Name: "hdb", host: HostPrimary, dev: DeviceSlave, c: c},
		"hdc": {Name: "hdc", host: HostSecondary, dev: DeviceMaster, c: c},
		"hdd": {Name: "hdd", host: HostSecondary, dev: DeviceSlave, c: c},
	}
}

// slot returns this device's current probe state, or an error if
// nothing was found there.
func (b *BlockDevice) slot() (*DeviceSlot, error) {
	slot := b.c.Devices[b.host][b.dev]
	if slot.Kind == KindAbsent {
		return nil, ENODEV
	}
	return slot, nil
}

// Open prepares the device for transfers. For an ATA disk this is a
// no-op; for ATAPI it polls TEST UNIT READY/REQUEST SENSE until the
// medium is ready and then reads its capacity, mirroring test_atapi
// (spec §4.8, §5). dma is the allocator ATAPI's non-data packet
// commands need.
func (b *BlockDevice) Open(dma DMAAllocator) error {
	slot, err := b.slot()
	if err != nil {
		return err
	}
	if slot.Kind == KindATA {
		return nil
	}

	hc := b.c.Hosts[b.host]
	for {
		if TestUnitReady(hc, b.dev, dma) == nil {
			break
		}
		retry, err := RequestSense(hc, b.dev, slot, dma)
		if err != nil {
			return err
		}
		if !retry {
			break
		}
	}

	lastLBA, blockSize, err := ReadCapacity(hc, b.dev, slot, dma)
	if err != nil {
		return err
	}
	slot.LBASectors = lastLBA + 1
	slot.BlockSize = blockSize
	return nil
}

// Info returns the block-device registration record for this device,
// valid only after a successful Open (for ATAPI) or Probe (for ATA).
func (b *BlockDevice) Info() (DeviceInfo, error) {
	slot, err := b.slot()
	if err != nil {
		return DeviceInfo{}, err
	}
	blockSize := sectorSize
	if slot.Kind == KindATAPI && slot.BlockSize != 0 {
		blockSize = int(slot.BlockSize)
	}
	last := uint32(0)
	if slot.LBASectors > 0 {
		last = slot.LBASectors - 1
	}
	return DeviceInfo{Name: b.Name, LastBlock: last, BlockSize: blockSize}, nil
}

// Read transfers count sectors starting at begin into buf.
func (b *BlockDevice) Read(buf []byte, count int, begin uint32) error {
	return b.c.Transfer(b.host, b.dev, DirectionRead, buf, count, begin)
}

// Write transfers count sectors starting at begin from buf.
func (b *BlockDevice) Write(buf []byte, count int, begin uint32) error {
	return b.c.Transfer(b.host, b.dev, DirectionWrite, buf, count, begin)
}

// Ioctl mirrors the original driver's ioctl_hd? handlers, which accept
// any command and always succeed (spec §5 Non-goals exclude a real
// ioctl command set; this keeps the same stub behavior rather than
// inventing one).
func (b *BlockDevice) Ioctl(command int, param interface{}) error {
	return nil
}

// String satisfies fmt.Stringer for diagnostic logging.
func (b *BlockDevice) String() string {
	return fmt.Sprintf("%s(host=%d,dev=%d)", b.Name, b.host, b.dev)
}
