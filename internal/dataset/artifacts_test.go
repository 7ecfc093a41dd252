package dataset

import (
	"bytes"
	"image/png"
	"math"
	"testing"

	"lensforge/pkg/domain"
)

func TestRawRoundTrip(t *testing.T) {
	g := domain.NewGrid(3, 2)
	vals := []float64{0, -1.5, 2.25, 1e6, 1e-30, 0.1}
	copy(g.Data, vals)

	data := encodeRaw(g)
	if len(data) != 4*6 {
		t.Fatalf("payload length %d", len(data))
	}
	back, err := decodeRaw(data, 3, 2)
	if err != nil {
		t.Fatalf("decodeRaw: %v", err)
	}
	for i, want := range vals {
		got := back.Data[i]
		if math.Abs(got-want) > math.Abs(want)*1e-6 {
			t.Fatalf("pixel %d: %v vs %v", i, got, want)
		}
	}

	if _, err := decodeRaw(data, 4, 2); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := decodeRaw(data[:5], 3, 2); err == nil {
		t.Fatal("expected short payload error")
	}
}

func TestEncodePreview(t *testing.T) {
	g := domain.NewGrid(16, 16)
	g.Set(8, 8, 100)
	g.Set(4, 4, 1)
	g.Set(0, 0, -5) // negatives clamp to black

	payload, err := encodePreview(g, 32)
	if err != nil {
		t.Fatalf("encodePreview: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 32 {
		t.Fatalf("preview is %dx%d, want 32x32", bounds.Dx(), bounds.Dy())
	}
	peak, _, _, _ := img.At(16, 16).RGBA()
	corner, _, _, _ := img.At(0, 0).RGBA()
	if peak <= corner {
		t.Fatalf("peak level %d not above background %d", peak, corner)
	}

	// the asinh stretch keeps faint pixels well above the linear level
	faint, _, _, _ := img.At(8, 8).RGBA()
	if faint == 0 {
		t.Fatal("faint source crushed to black")
	}
}

func TestEncodePreviewFlatImage(t *testing.T) {
	g := domain.NewGrid(8, 8)
	payload, err := encodePreview(g, 0)
	if err != nil {
		t.Fatalf("encodePreview: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds().Dx() != 8 {
		t.Fatalf("size-0 preview should keep the native width, got %d", img.Bounds().Dx())
	}
}

func TestGrayLevelClamps(t *testing.T) {
	if grayLevel(-0.5).Y != 0 {
		t.Fatal("negative level must clamp to 0")
	}
	if grayLevel(2).Y != math.MaxUint16 {
		t.Fatal("level above 1 must clamp to full scale")
	}
	mid := grayLevel(0.5).Y
	if mid < math.MaxUint16/2-1 || mid > math.MaxUint16/2+1 {
		t.Fatalf("mid level = %d", mid)
	}
}
