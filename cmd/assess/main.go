package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/AlfonsoCifuentes/riskmap-vision/config"
	"github.com/AlfonsoCifuentes/riskmap-vision/damage"
	"github.com/AlfonsoCifuentes/riskmap-vision/geo"
	"github.com/AlfonsoCifuentes/riskmap-vision/imagery"
	"github.com/AlfonsoCifuentes/riskmap-vision/pipeline"
	"github.com/AlfonsoCifuentes/riskmap-vision/vision"
)

func main() {
	lat := flag.Float64("lat", 0, "Latitude of the area center")
	lon := flag.Float64("lon", 0, "Longitude of the area center")
	buffer := flag.Float64("buffer", 1000, "Buffer radius around the center in meters")
	contextText := flag.String("context", "", "Optional text context to correlate against")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	timeout := flag.Duration("timeout", 2*time.Minute, "Assessment timeout")
	flag.Parse()

	_ = godotenv.Load()

	if *lat == 0 && *lon == 0 {
		log.Fatal("ERROR: -lat and -lon are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("ERROR: Failed to load config: %v", err)
	}

	pipe := buildPipeline(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	assessment, err := pipe.Assess(ctx, pipeline.Request{
		Center:       geo.Point{Lat: *lat, Lon: *lon},
		BufferMeters: *buffer,
		Context:      *contextText,
	})
	if err != nil {
		log.Fatalf("ERROR: Assessment failed: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(assessment); err != nil {
		log.Fatalf("ERROR: Failed to encode result: %v", err)
	}

	fmt.Fprintf(os.Stderr, "%s: %s (score %.2f, confidence %.2f)\n",
		assessment.ID, assessment.RiskLevel, assessment.VisualRiskScore, assessment.Confidence)
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
			log.Printf("WARNING: detection model unavailable, result will be partial: %v", loadErr)
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
