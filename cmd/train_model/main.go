package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlfonsoCifuentes/riskmap-vision/damage"
)

// Config holds training configuration
type Config struct {
	TrainingDataDir string
	OutputDir       string
	Neighbors       int
	ValidationFrac  float64
	Seed            int64
	Verbose         bool
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

func main() {
	config := parseFlags()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("=== Damage Classifier Training Pipeline ===\n")
	log.Printf("Training data: %s\n", config.TrainingDataDir)
	log.Printf("Output model: %s\n", config.OutputDir)
	log.Println()

	startTime := time.Now()

	// Step 1: Discover training data structure
	log.Println("Step 1: Discovering training data...")
	subdirs, err := discoverSubdirectories(config.TrainingDataDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to read training directory: %v", err)
	}

	var samples []damage.Sample
	if len(subdirs) == 0 {
		// Flat directory: unlabeled samples, labels come from the heuristic
		log.Println("No class subdirectories found, loading flat directory with heuristic labels")
		samples, err = loadSamples(config.TrainingDataDir, "", config.Verbose)
		if err != nil {
			log.Fatalf("ERROR: Failed to load samples: %v", err)
		}
	} else {
		log.Printf("Found %d classes:\n", len(subdirs))
		for _, dir := range subdirs {
			label := filepath.Base(dir)
			classSamples, loadErr := loadSamples(dir, label, config.Verbose)
			if loadErr != nil {
				log.Printf("WARNING: skipping class %s: %v\n", label, loadErr)
				continue
			}
			log.Printf("  - %s: %d samples\n", label, len(classSamples))
			samples = append(samples, classSamples...)
		}
	}

	if len(samples) == 0 {
		log.Fatalf("ERROR: No training samples found in %s", config.TrainingDataDir)
	}
	log.Printf("Loaded %d samples total\n", len(samples))
	log.Println()

	// Step 2: Train
	log.Println("Step 2: Training classifier...")
	model, err := damage.Train(samples,
		damage.WithNeighbors(config.Neighbors),
		damage.WithValidationFraction(config.ValidationFrac),
		damage.WithSeed(config.Seed),
	)
	if err != nil {
		log.Fatalf("ERROR: Training failed: %v", err)
	}

	log.Printf("Validation accuracy: %.3f\n", model.Metadata.Accuracy)
	for _, class := range model.Metadata.Classes {
		report, ok := model.Metadata.PerClass[class]
		if !ok {
			continue
		}
		log.Printf("  %-14s support=%-4d recall=%.3f\n", class, report.Support, report.Recall)
	}
	if model.Metadata.HeuristicLabels > 0 {
		log.Printf("WARNING: %d samples were labeled heuristically\n", model.Metadata.HeuristicLabels)
	}
	log.Println()

	// Step 3: Save model
	log.Println("Step 3: Saving model to disk...")
	if err := damage.SaveModel(config.OutputDir, model); err != nil {
		log.Fatalf("ERROR: Failed to save model: %v", err)
	}

	log.Printf("Done in %.2fs\n", time.Since(startTime).Seconds())
}

func parseFlags() Config {
	config := Config{}
	flag.StringVar(&config.TrainingDataDir, "data", "training_data", "Directory with one subdirectory per damage class (or a flat directory for heuristic labeling)")
	flag.StringVar(&config.OutputDir, "out", filepath.Join("storage", "damage_model"), "Directory to write the model artifacts to")
	flag.IntVar(&config.Neighbors, "k", damage.DefaultNeighbors, "Number of nearest neighbors")
	flag.Float64Var(&config.ValidationFrac, "val", 0.2, "Fraction of samples held out for validation")
	flag.Int64Var(&config.Seed, "seed", 1, "Shuffle seed for the train/validation split")
	flag.BoolVar(&config.Verbose, "v", false, "Verbose per-file logging")
	flag.Parse()
	return config
}

func discoverSubdirectories(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var subdirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			subdirs = append(subdirs, filepath.Join(root, entry.Name()))
		}
	}
	return subdirs, nil
}

func loadSamples(dir, label string, verbose bool) ([]damage.Sample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var samples []damage.Sample
	for _, entry := range entries {
		if entry.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		img, err := decodeImage(path)
		if err != nil {
			log.Printf("WARNING: failed to decode %s: %v\n", path, err)
			continue
		}
		if verbose {
			log.Printf("  loaded %s\n", path)
		}
		samples = append(samples, damage.Sample{
			ID:    strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Image: img,
			Label: label,
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no decodable images in %s", dir)
	}
	return samples, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
