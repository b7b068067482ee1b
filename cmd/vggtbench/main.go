// vggtbench times the external reconstruction endpoint over a sweep of
// batch sizes and prints the results next to the published H100
// reference table.
//
// Usage:
//
//	vggtbench -images examples/kitchen/images -url http://localhost:8080
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ricardoamartinez/vggt/internal/bench"
	"github.com/ricardoamartinez/vggt/internal/infra/vggt"
	"github.com/ricardoamartinez/vggt/pkg/logger"
)

func main() {
	imageDir := flag.String("images", "examples/kitchen/images", "directory of input images")
	baseURL := flag.String("url", "http://localhost:8080", "VGGT serving endpoint")
	runs := flag.Int("runs", 3, "timed runs per case (after one warmup)")
	timeout := flag.Duration("timeout", 5*time.Minute, "per-request timeout")
	caseList := flag.String("cases", "", "comma-separated frame counts (default: paper table)")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	_ = godotenv.Load()

	log, err := logger.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	images, err := listImages(*imageDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cases, err := parseCases(*caseList)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client := vggt.NewClient(vggt.ClientConfig{
		BaseURL:        *baseURL,
		RequestTimeout: *timeout,
	}, log)

	ctx := context.Background()

	info, err := client.Health(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "endpoint not reachable:", err)
		os.Exit(1)
	}
	fmt.Printf("Endpoint: %s\n", *baseURL)
	fmt.Printf("Model: %s  Device: %s  Dtype: %s\n", info.Model, info.Device, info.Dtype)
	fmt.Printf("Images: %d available in %s\n", len(images), *imageDir)
	fmt.Println(strings.Repeat("-", 50))

	runner := bench.NewRunner(client, *runs, log)
	results, err := runner.Run(ctx, images, cases)
	if err != nil {
		fmt.Fprintln(os.Stderr, "benchmark failed:", err)
		os.Exit(1)
	}

	printTable(results)
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image dir: %w", err)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	if len(images) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	return images, nil
}

func parseCases(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var cases []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("bad case %q", part)
		}
		cases = append(cases, n)
	}
	return cases, nil
}

func printTable(results []bench.Case) {
	fmt.Println()
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("BENCHMARK RESULTS SUMMARY")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Print("Input Frames |")
	for _, r := range results {
		fmt.Printf("%6d |", r.NumImages)
	}
	fmt.Println()

	fmt.Print("Time (s)     |")
	for _, r := range results {
		fmt.Printf("%6.2f |", r.MeanSeconds)
	}
	fmt.Println()

	fmt.Print("Stddev (s)   |")
	for _, r := range results {
		fmt.Printf("%6.3f |", r.StddevSeconds)
	}
	fmt.Println()

	fmt.Print("Memory (GB)  |")
	for _, r := range results {
		fmt.Printf("%6.2f |", r.PeakMemoryGB)
	}
	fmt.Println()

	fmt.Println()
	fmt.Println("Reference (H100):")
	fmt.Print("Time (s)     |")
	for _, r := range results {
		if r.PaperSeconds > 0 {
			fmt.Printf("%6.2f |", r.PaperSeconds)
		} else {
			fmt.Print("     - |")
		}
	}
	fmt.Println()
	fmt.Print("Memory (GB)  |")
	for _, r := range results {
		if r.PaperMemoryGB > 0 {
			fmt.Printf("%6.2f |", r.PaperMemoryGB)
		} else {
			fmt.Print("     - |")
		}
	}
	fmt.Println()

	fmt.Println("\nAnalysis:")
	for _, r := range results {
		if r.Slowdown > 0 {
			fmt.Printf("  %d images: %.1fx slower than H100\n", r.NumImages, r.Slowdown)
		}
	}
}
