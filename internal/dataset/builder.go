// Package dataset drives the rendering pipeline to produce a training set:
// raw float32 image artifacts, 16-bit preview PNGs, a metadata CSV with a
// fixed union-of-keys header, run-catalog rows, and a closing manifest that
// ties everything to the configuration fingerprint.
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"lensforge/internal/blob"
	"lensforge/internal/catalog"
	"lensforge/pkg/domain"
)

// Drawer is the slice of the pipeline handler the builder drives.
type Drawer interface {
	DrawImage(newSample bool) (domain.DrawResult, error)
}

// Options configures a build run.
type Options struct {
	// Count is the number of accepted images to produce.
	Count int
	// MaxAttempts bounds total draws across rejections. Zero means
	// 100 attempts per requested image.
	MaxAttempts int
	// Prefix namespaces every blob key written by this run.
	Prefix string
	// PreviewSize is the preview PNG edge length. Zero skips previews.
	PreviewSize int
	// Fingerprint is the configuration digest stamped into the manifest.
	Fingerprint string
}

// Summary reports what a build run produced.
type Summary struct {
	Requested  int                         `json:"requested"`
	Accepted   int                         `json:"accepted"`
	Attempts   int                         `json:"attempts"`
	Rejections map[domain.RejectReason]int `json:"rejections,omitempty"`
}

// Builder accumulates artifacts for one dataset.
type Builder struct {
	drawer Drawer
	blobs  blob.Store
	runs   catalog.Store
	opts   Options

	imgW, imgH int
}

// NewBuilder wires a builder. The run catalog is optional; the blob store
// and drawer are not.
func NewBuilder(drawer Drawer, blobs blob.Store, runs catalog.Store, opts Options) (*Builder, error) {
	if drawer == nil || blobs == nil {
		return nil, fmt.Errorf("dataset: drawer and blob store are required")
	}
	if opts.Count <= 0 {
		return nil, fmt.Errorf("dataset: requested count must be positive")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = opts.Count * 100
	}
	return &Builder{drawer: drawer, blobs: blobs, runs: runs, opts: opts}, nil
}

// Run draws until the requested count of accepted images is reached or the
// attempt bound trips, writing artifacts as it goes and the metadata CSV
// and manifest at the end.
func (b *Builder) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Requested: b.opts.Count, Rejections: make(map[domain.RejectReason]int)}
	var records []domain.Record

	for summary.Accepted < b.opts.Count {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if summary.Attempts >= b.opts.MaxAttempts {
			return summary, fmt.Errorf("dataset: attempt bound %d reached with %d of %d accepted",
				b.opts.MaxAttempts, summary.Accepted, b.opts.Count)
		}
		summary.Attempts++

		result, err := b.drawer.DrawImage(true)
		if err != nil {
			return summary, err
		}
		if !result.Accepted() {
			summary.Rejections[result.Rejection.Reason]++
			continue
		}

		index := summary.Accepted
		if err := b.writeImage(ctx, index, result.Image); err != nil {
			return summary, err
		}
		if b.opts.PreviewSize > 0 {
			if err := b.writePreview(ctx, index, result.Image); err != nil {
				return summary, err
			}
		}
		if b.runs != nil {
			seed, _ := result.Metadata["seed"].(string)
			rec := catalog.Record{Index: index, Seed: seed, Metadata: map[string]any(result.Metadata)}
			if err := b.runs.Append(ctx, rec); err != nil {
				return summary, err
			}
		}
		records = append(records, result.Metadata)
		summary.Accepted++
	}

	if err := b.writeCSV(ctx, records); err != nil {
		return summary, err
	}
	if err := b.writeManifest(ctx, summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (b *Builder) key(format string, args ...any) string {
	key := b.opts.Prefix
	if key != "" && key[len(key)-1] != '/' {
		key += "/"
	}
	return key + fmt.Sprintf(format, args...)
}

func (b *Builder) writeImage(ctx context.Context, index int, img *domain.Grid) error {
	b.imgW, b.imgH = img.W, img.H
	payload := encodeRaw(img)
	_, err := b.blobs.Put(ctx, b.key("images/image_%07d.f32", index), bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/octet-stream",
		Metadata: map[string]string{
			"width":  strconv.Itoa(img.W),
			"height": strconv.Itoa(img.H),
			"dtype":  "float32",
		},
	})
	return err
}

func (b *Builder) writePreview(ctx context.Context, index int, img *domain.Grid) error {
	payload, err := encodePreview(img, b.opts.PreviewSize)
	if err != nil {
		return err
	}
	_, err = b.blobs.Put(ctx, b.key("previews/image_%07d.png", index), bytes.NewReader(payload), blob.PutOptions{
		ContentType: "image/png",
	})
	return err
}

// writeCSV emits one row per accepted image under a union-of-keys header;
// records missing a column get NaN.
func (b *Builder) writeCSV(ctx context.Context, records []domain.Record) error {
	keys := unionKeys(records)
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(keys); err != nil {
		return err
	}
	row := make([]string, len(keys))
	for _, rec := range records {
		for i, key := range keys {
			v, ok := rec[key]
			if !ok {
				row[i] = "NaN"
				continue
			}
			row[i] = formatCell(v)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	_, err := b.blobs.Put(ctx, b.key("metadata.csv"), bytes.NewReader(buf.Bytes()), blob.PutOptions{
		ContentType: "text/csv",
	})
	return err
}

type manifest struct {
	Fingerprint string    `json:"config_fingerprint,omitempty"`
	Summary     Summary   `json:"summary"`
	ImageWidth  int       `json:"image_width,omitempty"`
	ImageHeight int       `json:"image_height,omitempty"`
	DType       string    `json:"dtype"`
	CreatedAt   time.Time `json:"created_at"`
}

func (b *Builder) writeManifest(ctx context.Context, summary Summary) error {
	m := manifest{
		Fingerprint: b.opts.Fingerprint,
		Summary:     summary,
		ImageWidth:  b.imgW,
		ImageHeight: b.imgH,
		DType:       "float32",
		CreatedAt:   time.Now().UTC(),
	}
	payload, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	_, err = b.blobs.Put(ctx, b.key("manifest.json"), bytes.NewReader(payload), blob.PutOptions{
		ContentType: "application/json",
	})
	return err
}

func unionKeys(records []domain.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for key := range rec {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func formatCell(v any) string {
	switch tv := v.(type) {
	case float64:
		if math.IsNaN(tv) {
			return "NaN"
		}
		return strconv.FormatFloat(tv, 'g', -1, 64)
	case int:
		return strconv.Itoa(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case string:
		return tv
	default:
		return fmt.Sprintf("%v", tv)
	}
}
