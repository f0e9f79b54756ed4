// Command patactl probes a simulated IDE bus, optionally loading the
// primary master disk's image from a file, and reads one sector from
// it through the full task-file protocol stack rather than talking to
// real hardware.
package main

import (
	"flag"
	"log"
	"syscall"

	"github.com/dswarbrick/pata"
	"github.com/mdlayher/block"
)

var (
	imageFlag  = flag.String("image", "", "backing disk image to load into the simulated drive (optional)")
	sectorFlag = flag.Uint64("read", 0, "LBA to read and print after probing")
)

func main() {
	flag.Parse()

	sim := pata.NewSimulatedController(pata.SimulatedControllerConfig{
		PrimaryMasterSectors: 16384,
	})

	if *imageFlag != "" {
		dev, err := block.New(*imageFlag, syscall.O_RDONLY)
		if err != nil {
			log.Fatalf("open image: %v", err)
		}
		if err := sim.LoadPrimaryMasterImage(dev); err != nil {
			log.Fatalf("load image: %v", err)
		}
		_ = dev.Close()
	}

	if err := pata.Probe(sim.Controller); err != nil {
		log.Fatalf("probe: %v", err)
	}

	devices := pata.NewBlockDevices(sim.Controller)
	hda := devices["hda"]

	info, err := hda.Info()
	if err != nil {
		log.Fatalf("hda: %v", err)
	}
	log.Printf("hda: %d sectors, %d bytes/sector", info.LastBlock+1, info.BlockSize)

	buf := make([]byte, info.BlockSize)
	if err := hda.Read(buf, 1, uint32(*sectorFlag)); err != nil {
		log.Fatalf("read LBA %d: %v", *sectorFlag, err)
	}
	log.Printf("LBA %d: % x", *sectorFlag, buf[:16])
}
