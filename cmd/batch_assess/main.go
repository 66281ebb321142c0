package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/AlfonsoCifuentes/riskmap-vision/config"
	"github.com/AlfonsoCifuentes/riskmap-vision/damage"
	"github.com/AlfonsoCifuentes/riskmap-vision/imagery"
	"github.com/AlfonsoCifuentes/riskmap-vision/models"
	"github.com/AlfonsoCifuentes/riskmap-vision/pipeline"
	"github.com/AlfonsoCifuentes/riskmap-vision/risk"
	"github.com/AlfonsoCifuentes/riskmap-vision/vision"
)

func main() {
	inputPath := flag.String("in", "", "JSON file with an array of assessment requests")
	outputPath := flag.String("out", "", "File to write the results to (default stdout)")
	workers := flag.Int("workers", 0, "Concurrent workers (default from config)")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	_ = godotenv.Load()
	log.SetFlags(log.Ldate | log.Ltime)

	if *inputPath == "" {
		log.Fatal("ERROR: -in is required")
	}

	data, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to read %s: %v", *inputPath, err)
	}
	var requests []pipeline.Request
	if err := json.Unmarshal(data, &requests); err != nil {
		log.Fatalf("ERROR: Invalid request file: %v", err)
	}
	if len(requests) == 0 {
		log.Fatal("ERROR: Request file contains no requests")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load config: %v", err)
	}
	if *workers <= 0 {
		*workers = cfg.Batch.Workers
	}

	log.Printf("=== Batch Assessment ===\n")
	log.Printf("Requests: %d, workers: %d\n", len(requests), *workers)

	pipe := buildPipeline(cfg)
	started := time.Now()

	results := pipe.AssessBatch(context.Background(), requests, *workers)

	completed, failed := 0, 0
	for i := range results {
		if results[i].RiskLevel == models.RiskUnknown {
			failed++
		} else {
			completed++
		}
	}
	log.Printf("Completed %d, failed %d in %.2fs\n", completed, failed, time.Since(started).Seconds())

	// Highest-risk locations first in the report.
	risk.SortByScore(results)

	out := os.Stdout
	if *outputPath != "" {
		f, err := os.Create(*outputPath)
		if err != nil {
			log.Fatalf("ERROR: Failed to create %s: %v", *outputPath, err)
		}
		defer f.Close()
		out = f
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		log.Fatalf("ERROR: Failed to encode results: %v", err)
	}
}

func buildPipeline(cfg *config.Config) *pipeline.Pipeline {
	secrets := config.LoadSecrets()
	timeout := time.Duration(cfg.Imagery.TimeoutSeconds) * time.Second

	var providers []imagery.Provider
	if secrets.SentinelClientID != "" && secrets.SentinelClientSecret != "" {
		providers = append(providers, imagery.NewSentinelHubProvider(
			cfg.Imagery.SentinelBaseURL, cfg.Imagery.SentinelToken,
			secrets.SentinelClientID, secrets.SentinelClientSecret, timeout, nil))
	}
	if secrets.TileMapAPIKey != "" {
		providers = append(providers, imagery.NewTileMapProvider(cfg.Imagery.TileMapBaseURL, secrets.TileMapAPIKey, timeout))
	}
	providers = append(providers, imagery.NewSyntheticProvider())

	cache, err := imagery.NewDiskCache(cfg.Imagery.CacheDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to create image cache: %v", err)
	}
	client := imagery.NewClient(providers, cache, imagery.WithPerProviderTimeout(timeout))

	classes, err := vision.LoadClassTable(cfg.Vision.ClassTablePath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load class table: %v", err)
	}
	var backend vision.Backend
	if cfg.Vision.ModelPath != "" {
		if onnxBackend, loadErr := vision.LoadONNXBackend(cfg.Vision.ModelPath); loadErr != nil {
			log.Printf("WARNING: detection model unavailable, results will be partial: %v", loadErr)
		} else {
			backend = onnxBackend
		}
	}
	detector := vision.NewDetector(backend, classes, vision.WithMinConfidence(cfg.Vision.MinConfidence))

	model, err := damage.LoadModel(cfg.Damage.ModelDir)
	if err != nil && !errors.Is(err, damage.ErrModelMissing) {
		log.Fatalf("ERROR: Failed to load damage model: %v", err)
	}

	return pipeline.New(client, detector,
		pipeline.WithDamageAssessor(damage.NewAssessor(model)),
		pipeline.WithImageSize(cfg.Imagery.Width, cfg.Imagery.Height),
	)
}
