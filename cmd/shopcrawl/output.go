package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/shopcrawl/canonical"
	"github.com/aluiziolira/shopcrawl/models"
	"github.com/aluiziolira/shopcrawl/pipeline"
)

func createWriter(format, filename, runID string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	case "sqlite":
		return pipeline.NewSQLiteWriter(filename, runID)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func newProductKeyer() (*canonical.Canonicalizer, error) {
	keys, err := canonical.New(16384)
	if err != nil {
		return nil, fmt.Errorf("create product keyer: %w", err)
	}
	return keys, nil
}

// failuresPath places the failure log next to the output file.
func failuresPath(outputFile string) string {
	ext := filepath.Ext(outputFile)
	return strings.TrimSuffix(outputFile, ext) + ".failures.json"
}

func writeFailures(path string, failures []models.FailureRecord) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create failures dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(failures, "", "  ")
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write failures: %w", err)
	}
	return nil
}

func printSummary(w io.Writer, report *models.RunReport, rejections map[string]int, outputFile, failuresFile string) {
	separator := "--------------------------------------------------"
	duration := report.EndTime.Sub(report.StartTime)
	stats := report.Stats

	fmt.Fprintln(w, "\n"+separator)
	if report.Cancelled {
		fmt.Fprintln(w, "Crawl cancelled")
	} else {
		fmt.Fprintln(w, "Crawl complete")
	}

	total := stats.TotalProducts()
	fmt.Fprintf(w, "  Total products: %d\n", total)
	for _, platform := range sortedPlatforms(stats.ProductsCollected) {
		fmt.Fprintf(w, "    %-13s %d\n", platform+":", stats.ProductsCollected[platform])
	}

	processed := stats.RequestsSucceeded + stats.RequestsFailed
	successRate := 0.0
	if processed > 0 {
		successRate = float64(stats.RequestsSucceeded) / float64(processed) * 100
	}
	fmt.Fprintf(w, "  Requests:       %d enqueued, %d succeeded, %d failed\n",
		stats.RequestsEnqueued, stats.RequestsSucceeded, stats.RequestsFailed)
	fmt.Fprintf(w, "  Success rate:   %.2f%%\n", successRate)
	fmt.Fprintf(w, "  Retries:        %d\n", stats.Retries)
	if len(stats.FailuresByKind) > 0 {
		fmt.Fprintf(w, "  Failure kinds:  %v\n", stats.FailuresByKind)
	}
	if len(rejections) > 0 {
		fmt.Fprintf(w, "  Rejected:       %v\n", rejections)
	}
	fmt.Fprintf(w, "  Duration:       %v\n", duration.Round(time.Millisecond))
	if duration.Seconds() > 0 {
		fmt.Fprintf(w, "  Products/sec:   %.2f\n", float64(total)/duration.Seconds())
	}
	fmt.Fprintf(w, "  Output file:    %s\n", outputFile)
	if failuresFile != "" {
		fmt.Fprintf(w, "  Failures file:  %s\n", failuresFile)
	}
	fmt.Fprintln(w, separator)
}

func sortedPlatforms(counts map[models.Platform]int) []models.Platform {
	out := make([]models.Platform, 0, len(counts))
	for p := range counts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
