package standard

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"lensforge/pkg/domain"
)

// stampMagic tags stamp files; version bumps on layout changes.
const stampMagic = "LFS1"

// StampPath returns the on-disk location of a catalog stamp.
func StampPath(folder string, index int) string {
	return filepath.Join(folder, fmt.Sprintf("stamp_%06d.stamp", index))
}

// WriteStamp serializes an image stamp: magic, width, height, pixel scale,
// then little-endian float32 pixels.
func WriteStamp(path string, g *domain.Grid, pixelScale float64) error {
	if g == nil || g.W <= 0 || g.H <= 0 {
		return fmt.Errorf("standard: cannot write empty stamp")
	}
	buf := &bytes.Buffer{}
	buf.WriteString(stampMagic)
	header := [2]uint32{uint32(g.W), uint32(g.H)}
	if err := binary.Write(buf, binary.LittleEndian, header[:]); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, pixelScale); err != nil {
		return err
	}
	pixels := make([]uint32, len(g.Data))
	for i, v := range g.Data {
		pixels[i] = math.Float32bits(float32(v))
	}
	if err := binary.Write(buf, binary.LittleEndian, pixels); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// ReadStamp parses a file produced by WriteStamp.
func ReadStamp(path string) (*domain.Grid, float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < len(stampMagic)+16 || string(data[:len(stampMagic)]) != stampMagic {
		return nil, 0, fmt.Errorf("standard: %s is not a stamp file", path)
	}
	r := bytes.NewReader(data[len(stampMagic):])
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, header[:]); err != nil {
		return nil, 0, fmt.Errorf("standard: read stamp header: %w", err)
	}
	var pixelScale float64
	if err := binary.Read(r, binary.LittleEndian, &pixelScale); err != nil {
		return nil, 0, fmt.Errorf("standard: read stamp scale: %w", err)
	}
	w, h := int(header[0]), int(header[1])
	if w <= 0 || h <= 0 || pixelScale <= 0 || r.Len() != w*h*4 {
		return nil, 0, fmt.Errorf("standard: stamp %s payload mismatch", path)
	}
	pixels := make([]uint32, w*h)
	if err := binary.Read(r, binary.LittleEndian, pixels); err != nil {
		return nil, 0, fmt.Errorf("standard: read stamp pixels: %w", err)
	}
	g := domain.NewGrid(w, h)
	for i, bits := range pixels {
		g.Data[i] = float64(math.Float32frombits(bits))
	}
	return g, pixelScale, nil
}
