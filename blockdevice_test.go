package pata

import "testing"

func TestNewBlockDevicesMapping(t *testing.T) {
	sc := NewSimulatedController(SimulatedControllerConfig{PrimaryMasterSectors: 1000})
	devs := NewBlockDevices(sc.Controller)

	tests := []struct {
		name     string
		host, dv int
	}{
		{"hda", HostPrimary, DeviceMaster},
		{"hdb", HostPrimary, DeviceSlave},
		{"hdc", HostSecondary, DeviceMaster},
		{"hdd", HostSecondary, DeviceSlave},
	}
	for _, tc := range tests {
		bd, ok := devs[tc.name]
		if !ok {
			t.Fatalf("devs[%q] missing", tc.name)
		}
		if bd.host != tc.host || bd.dev != tc.dv {
			t.Errorf("%s = (host=%d,dev=%d), want (host=%d,dev=%d)", tc.name, bd.host, bd.dev, tc.host, tc.dv)
		}
	}
}

func TestBlockDeviceInfoAndIoctlOnAbsentDevice(t *testing.T) {
	sc := NewSimulatedController(SimulatedControllerConfig{PrimaryMasterSectors: 1000})
	devs := NewBlockDevices(sc.Controller)

	if err := Probe(sc.Controller); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if _, err := devs["hdb"].Info(); err != ENODEV {
		t.Fatalf("Info() on absent hdb = %v, want ENODEV", err)
	}
	if err := devs["hdb"].Ioctl(0, nil); err != nil {
		t.Errorf("Ioctl on absent device = %v, want nil (stub always succeeds)", err)
	}
}

func TestBlockDeviceOpenATAIsNoop(t *testing.T) {
	sc := NewSimulatedController(SimulatedControllerConfig{PrimaryMasterSectors: 1000})
	devs := NewBlockDevices(sc.Controller)

	if err := Probe(sc.Controller); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if err := devs["hda"].Open(&fakeDMAAllocator{}); err != nil {
		t.Fatalf("Open(ATA disk): %v", err)
	}
}

func TestBlockDeviceInfoReflectsProbedGeometry(t *testing.T) {
	sc := NewSimulatedController(SimulatedControllerConfig{PrimaryMasterSectors: 1000})
	devs := NewBlockDevices(sc.Controller)

	if err := Probe(sc.Controller); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	info, err := devs["hda"].Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "hda" {
		t.Errorf("Name = %q, want hda", info.Name)
	}
	if info.LastBlock != 999 {
		t.Errorf("LastBlock = %d, want 999 (1000 sectors)", info.LastBlock)
	}
	if info.BlockSize != sectorSize {
		t.Errorf("BlockSize = %d, want %d", info.BlockSize, sectorSize)
	}
}

func TestBlockDeviceWriteThenReadRoundTrip(t *testing.T) {
	sc := NewSimulatedController(SimulatedControllerConfig{PrimaryMasterSectors: 1000})
	devs := NewBlockDevices(sc.Controller)

	if err := Probe(sc.Controller); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	hda := devs["hda"]
	want := make([]byte, sectorSize)
	for i := range want {
		want[i] = byte(i)
	}
	if err := hda.Write(want, 1, 5); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, sectorSize)
	if err := hda.Read(got, 1, 5); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestBlockDeviceReadRejectsOutOfBounds(t *testing.T) {
	sc := NewSimulatedController(SimulatedControllerConfig{PrimaryMasterSectors: 10})
	devs := NewBlockDevices(sc.Controller)

	if err := Probe(sc.Controller); err != nil {
		t.Fatalf("Probe: %v", err)
	}

	buf := make([]byte, sectorSize*2)
	if err := devs["hda"].Read(buf, 2, 9); err != EINVAL {
		t.Fatalf("Read past end of disk = %v, want EINVAL", err)
	}
}

func TestBlockDeviceStringIncludesPosition(t *testing.T) {
	sc := NewSimulatedController(SimulatedControllerConfig{PrimaryMasterSectors: 1000})
	devs := NewBlockDevices(sc.Controller)

	if got := devs["hdc"].String(); got != "hdc(host=1,dev=0)" {
		t.Errorf("String() = %q, want %q", got, "hdc(host=1,dev=0)")
	}
}
