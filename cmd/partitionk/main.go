package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"partitionk/pkg/batch"
	"partitionk/pkg/config"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "YAML configuration file (flags override it)")
	writeConfig := flag.String("write-config", "", "Write a default configuration file to this path and exit")
	inputDir := flag.String("input", "", "Directory containing input TIFF images")
	outCSV := flag.String("out", "", "Output CSV path (default: k12_unified_<timestamp>.csv in the mask directory)")
	maskDir := flag.String("masks", "", "Directory for mask PNGs and default outputs")
	channels := flag.Int("channels", 0, "Number of channels per stack")
	ch1 := flag.Int("ch1", 0, "Channel of species 1 (1-based)")
	ch2 := flag.Int("ch2", 0, "Channel of species 2 (1-based)")
	proj := flag.String("proj", "", "Z projection mode: None, Max, Mean or Median")
	th1 := flag.String("th1", "", "Threshold method for species 1")
	th2 := flag.String("th2", "", "Threshold method for species 2")
	man1 := flag.Float64("man1", 0, "Manual threshold for species 1")
	man2 := flag.Float64("man2", 0, "Manual threshold for species 2")
	off1 := flag.Float64("off1", 0, "Threshold offset percent for species 1 (-50..50)")
	off2 := flag.Float64("off2", 0, "Threshold offset percent for species 2 (-50..50)")
	dark1 := flag.Bool("dark1", false, "Species 1 objects are darker than background")
	dark2 := flag.Bool("dark2", false, "Species 2 objects are darker than background")
	fill := flag.Bool("fill", false, "Fill holes after thresholding")
	openIter := flag.Int("open", 0, "Open (erode-dilate) iterations")
	closeIter := flag.Int("close", 0, "Close (dilate-erode) iterations")
	unify := flag.String("unify", "", "Unify policy: None, Dilate-merge, Largest-particle, Convex-hull, Bounding-box")
	dilate := flag.Int("dilate", 0, "Dilate-merge iterations")
	minSize := flag.Int("min-size", 0, "Minimum particle size in pixels")
	excludeEdges := flag.Bool("exclude-edges", false, "Exclude particles touching the image border")
	dilute1 := flag.String("dilute1", "", "Dilute region mode for species 1")
	dilute2 := flag.String("dilute2", "", "Dilute region mode for species 2")
	ring := flag.Int("ring", 0, "Ring width in pixels for ring-based dilute modes")
	subBG := flag.Bool("sub-bg", false, "Subtract the global-outside background before measuring")
	overlay := flag.Bool("overlay", false, "Save dense-outline overlay previews")
	flag.Parse()

	// Emit a default configuration file when requested
	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	// Resolve the configuration once: defaults, then the YAML file, then
	// any flags the user actually set
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input.ImageDir = *inputDir
		case "out":
			cfg.Output.CSVPath = *outCSV
		case "masks":
			cfg.Output.MaskDir = *maskDir
		case "channels":
			cfg.Input.Channels = *channels
		case "ch1":
			cfg.Species[0].Channel = *ch1
		case "ch2":
			cfg.Species[1].Channel = *ch2
		case "proj":
			cfg.Input.Projection = *proj
		case "th1":
			cfg.Species[0].Method = *th1
		case "th2":
			cfg.Species[1].Method = *th2
		case "man1":
			cfg.Species[0].ManualThreshold = *man1
		case "man2":
			cfg.Species[1].ManualThreshold = *man2
		case "off1":
			cfg.Species[0].OffsetPercent = *off1
		case "off2":
			cfg.Species[1].OffsetPercent = *off2
		case "dark1":
			cfg.Species[0].BrightObjects = !*dark1
		case "dark2":
			cfg.Species[1].BrightObjects = !*dark2
		case "fill":
			cfg.Segmentation.FillHoles = *fill
		case "open":
			cfg.Segmentation.OpenIterations = *openIter
		case "close":
			cfg.Segmentation.CloseIterations = *closeIter
		case "unify":
			cfg.Unify.Policy = *unify
		case "dilate":
			cfg.Unify.DilateIterations = *dilate
		case "min-size":
			cfg.Unify.MinParticlePx = *minSize
		case "exclude-edges":
			cfg.Unify.ExcludeEdges = *excludeEdges
		case "dilute1":
			cfg.Species[0].DiluteMode = *dilute1
		case "dilute2":
			cfg.Species[1].DiluteMode = *dilute2
		case "ring":
			cfg.Measurement.RingPx = *ring
		case "sub-bg":
			cfg.Measurement.SubtractBackground = *subBG
		case "overlay":
			cfg.Output.SaveOverlay = *overlay
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("PARTITION COEFFICIENT (K) MEASUREMENT FROM PAIRED-CHANNEL FLUORESCENCE IMAGES")
	fmt.Println("================================")
	fmt.Printf("Input directory: %s\n", cfg.Input.ImageDir)
	fmt.Printf("Channels: %d and %d, projection: %s\n",
		cfg.Species[0].Channel, cfg.Species[1].Channel, cfg.Input.Projection)
	fmt.Printf("Threshold methods: %s / %s\n", cfg.Species[0].Method, cfg.Species[1].Method)

	// Run the batch
	startTime := time.Now()
	orchestrator := batch.NewOrchestrator(cfg)
	summary, err := orchestrator.Run()
	if err != nil {
		log.Fatalf("Batch failed: %v", err)
	}
	elapsed := time.Since(startTime)

	fmt.Printf("\nBatch completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("Images processed: %d (%d with errors)\n", summary.Images, summary.Failures)
	fmt.Printf("Output table saved to: %s\n", summary.OutputPath)
}
