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

	"github.com/AlfonsoCifuentes/riskmap-vision/damage"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

func main() {
	modelDir := flag.String("model", filepath.Join("storage", "damage_model"), "Directory with the trained model artifacts")
	dataDir := flag.String("data", "eval_data", "Directory with one subdirectory per damage class")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime)
	log.Printf("=== Damage Classifier Evaluation ===\n")

	model, err := damage.LoadModel(*modelDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to load model from %s: %v", *modelDir, err)
	}
	log.Printf("Loaded model: %d samples, training accuracy %.3f\n",
		model.Metadata.Samples, model.Metadata.Accuracy)

	entries, err := os.ReadDir(*dataDir)
	if err != nil {
		log.Fatalf("ERROR: Failed to read eval directory: %v", err)
	}

	confusion := map[string]map[string]int{}
	perClassTotal := map[string]int{}
	perClassCorrect := map[string]int{}
	total, correct := 0, 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := entry.Name()
		classDir := filepath.Join(*dataDir, label)
		files, err := os.ReadDir(classDir)
		if err != nil {
			log.Printf("WARNING: skipping %s: %v\n", classDir, err)
			continue
		}

		for _, file := range files {
			if file.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(file.Name()))] {
				continue
			}
			img, err := decodeImage(filepath.Join(classDir, file.Name()))
			if err != nil {
				log.Printf("WARNING: failed to decode %s: %v\n", file.Name(), err)
				continue
			}

			features := damage.ExtractFeatures(img)
			prediction, err := model.Classifier.Predict(features)
			if err != nil {
				log.Printf("WARNING: prediction failed for %s: %v\n", file.Name(), err)
				continue
			}

			total++
			perClassTotal[label]++
			if confusion[label] == nil {
				confusion[label] = map[string]int{}
			}
			confusion[label][prediction.Label]++
			if prediction.Label == label {
				correct++
				perClassCorrect[label]++
			}
		}
	}

	if total == 0 {
		log.Fatalf("ERROR: No evaluable images found in %s", *dataDir)
	}

	log.Println()
	log.Printf("Overall accuracy: %.3f (%d/%d)\n", float64(correct)/float64(total), correct, total)
	log.Println()
	log.Println("Per-class recall:")
	for _, class := range damage.Classes {
		if perClassTotal[class] == 0 {
			continue
		}
		recall := float64(perClassCorrect[class]) / float64(perClassTotal[class])
		log.Printf("  %-14s %.3f (%d/%d)\n", class, recall, perClassCorrect[class], perClassTotal[class])
	}

	log.Println()
	log.Println("Confusion matrix (rows: truth, columns: predicted):")
	header := fmt.Sprintf("%-16s", "")
	for _, predicted := range damage.Classes {
		header += fmt.Sprintf("%-16s", predicted)
	}
	log.Println(header)
	for _, truth := range damage.Classes {
		if perClassTotal[truth] == 0 {
			continue
		}
		row := fmt.Sprintf("%-16s", truth)
		for _, predicted := range damage.Classes {
			row += fmt.Sprintf("%-16d", confusion[truth][predicted])
		}
		log.Println(row)
	}
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
