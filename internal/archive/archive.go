// Package archive packages reconstruction results for upload: a
// manifest describing the run plus one JSON file per inference batch.
package archive

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ricardoamartinez/vggt/internal/domain/port"
)

const (
	ManifestName     = "manifest.json"
	batchNamePattern = "predictions/batch_%04d.json"
)

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) CreateArchive(ctx context.Context, manifest port.ResultManifest, predictions []*port.BatchPrediction, outputPath string) error {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer zipFile.Close()

	zw := zip.NewWriter(zipFile)
	defer zw.Close()

	if err := writeJSONEntry(zw, ManifestName, manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	for i, pred := range predictions {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		name := fmt.Sprintf(batchNamePattern, i)
		if err := writeJSONEntry(zw, name, pred); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	return nil
}

func writeJSONEntry(zw *zip.Writer, name string, v any) error {
	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:   name,
		Method: zip.Deflate,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(entry)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
