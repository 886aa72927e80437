package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"atcserver/internal/app"
	"atcserver/internal/model"
	"atcserver/internal/service"
)

func main() {
	imagesDir := flag.String("images", "images", "Directory containing cattle/buffalo images")
	flag.Parse()

	files, err := os.ReadDir(*imagesDir)
	if err != nil {
		log.Fatalf("Failed to read images directory: %v", err)
	}

	application, err := app.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer application.Close()

	allowed := application.Config()
	predictions := application.Predictions()

	fmt.Printf("Analyzing images from %s\n", *imagesDir)

	processed, skipped, undetected, failed := 0, 0, 0, 0
	for _, file := range files {
		if file.IsDir() || !allowed.IsAllowedFile(file.Name()) {
			skipped++
			continue
		}

		path := filepath.Join(*imagesDir, file.Name())
		rec, err := predictFile(predictions, path)
		switch {
		case errors.Is(err, service.ErrNoDetection):
			fmt.Printf("  %s: no cattle/buffalo detected\n", file.Name())
			undetected++
		case err != nil:
			fmt.Printf("  %s: %v\n", file.Name(), err)
			failed++
		default:
			fmt.Printf("  %s: #%d %s\n", file.Name(), rec.ID, rec.Animal)
			processed++
		}
	}

	fmt.Printf("Processed %d, no detection %d, failed %d, skipped %d\n", processed, undetected, failed, skipped)

	stats, err := application.Results().Stats(context.Background())
	if err != nil {
		log.Printf("Failed to read stats: %v", err)
		return
	}
	fmt.Printf("Store now holds %d results:\n", stats.TotalResults)
	for animal, count := range stats.PerAnimal {
		fmt.Printf("  %s: %d\n", animal, count)
	}
	fmt.Printf("  failed measurements: %d\n", stats.FailedMeasurements)
}

func predictFile(predictions *service.PredictionService, path string) (*model.PredictionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return predictions.Predict(context.Background(), filepath.Base(path), f)
}
