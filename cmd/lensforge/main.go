// Command lensforge generates strong-lensing image datasets from a YAML
// configuration: it samples lens systems, renders them through the ray-trace
// engine, applies the selection criteria, and writes image artifacts plus
// metadata to the configured stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"lensforge/internal/blob"
	"lensforge/internal/catalog"
	"lensforge/internal/config"
	"lensforge/internal/dataset"
	"lensforge/internal/drizzle"
	"lensforge/internal/pipeline"
	"lensforge/internal/raytrace"
	"lensforge/pkg/popapi"
	"lensforge/plugins/standard"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "generate":
		return runGenerate(args[1:], stderr)
	case "-h", "--help", "help":
		usage(stderr)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: lensforge generate -config <file> [flags]")
}

func runGenerate(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "generation config YAML (required)")
	count := fs.Int("n", 1, "number of accepted images to generate")
	output := fs.String("output", "dataset", "blob key prefix for this run")
	seedOverride := fs.String("seed", "", "override base seed, comma-separated uint32s")
	previewSize := fs.Int("preview-size", 128, "preview PNG edge length (0 disables previews)")
	blobDriver := fs.String("blob-driver", "", "blob driver override: fs|s3|memory")
	catalogDriver := fs.String("catalog-driver", "", "catalog driver override: memory|sqlite|postgres")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *configPath == "" {
		fmt.Fprintln(stderr, "generate: -config is required")
		return 2
	}

	logger := log.New(stderr, "lensforge: ", log.LstdFlags)
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Printf("load config: %v", err)
		return 1
	}
	if *seedOverride != "" {
		seed, err := parseSeed(*seedOverride)
		if err != nil {
			logger.Printf("parse seed: %v", err)
			return 2
		}
		cfg.Pipeline.Seed = seed
	}

	sampler, err := cfg.Sampler()
	if err != nil {
		logger.Printf("build sampler: %v", err)
		return 1
	}
	registry := popapi.NewRegistry()
	if err := standard.New().Register(registry); err != nil {
		logger.Printf("register models: %v", err)
		return 1
	}
	handler, err := pipeline.NewHandler(cfg.Pipeline, sampler, &raytrace.Engine{}, &drizzle.Resampler{}, registry,
		pipeline.WithLogger(logger))
	if err != nil {
		logger.Printf("build pipeline: %v", err)
		return 1
	}

	if *blobDriver != "" {
		os.Setenv("LENSFORGE_BLOB_DRIVER", *blobDriver)
	}
	if *catalogDriver != "" {
		os.Setenv("LENSFORGE_CATALOG_DRIVER", *catalogDriver)
	}
	blobs, err := blob.Open(ctx)
	if err != nil {
		logger.Printf("open blob store: %v", err)
		return 1
	}
	runs, err := catalog.Open(ctx)
	if err != nil {
		logger.Printf("open run catalog: %v", err)
		return 1
	}
	defer func() { _ = runs.Close() }()

	builder, err := dataset.NewBuilder(handler, blobs, runs, dataset.Options{
		Count:       *count,
		Prefix:      *output,
		PreviewSize: *previewSize,
		Fingerprint: cfg.Fingerprint,
	})
	if err != nil {
		logger.Printf("build dataset: %v", err)
		return 1
	}
	summary, err := builder.Run(ctx)
	if err != nil {
		logger.Printf("generate: %v", err)
		return 1
	}
	logger.Printf("generated %d images in %d attempts (config %s)",
		summary.Accepted, summary.Attempts, shortDigest(cfg.Fingerprint))
	return 0
}

func parseSeed(s string) ([]uint32, error) {
	parts := strings.Split(s, ",")
	seed := make([]uint32, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("seed element %q: %w", part, err)
		}
		seed = append(seed, uint32(v))
	}
	return seed, nil
}

func shortDigest(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
