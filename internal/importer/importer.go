// Package importer turns downloaded result artifacts into layer files
// ready for the mapping front-end.
package importer

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"eotracker/internal/apperrors"
)

// Importer makes a downloaded result artifact available as a layer and
// returns the path of the imported layer file.
type Importer interface {
	Import(ctx context.Context, artifactPath, jobID, datatype string) (string, error)
}

// payloadExtensions lists recognized layer formats, in preference order.
// Vector payloads win over rasters when an archive carries both.
var payloadExtensions = []string{".gpkg", ".geojson", ".shp", ".tif", ".tiff"}

// Spool imports artifacts by extracting them into a per-job directory
// under a spool root and selecting the layer payload inside.
type Spool struct {
	root   string
	logger *slog.Logger
}

// NewSpool creates a spool importer rooted at dir.
func NewSpool(dir string) *Spool {
	return &Spool{
		root:   dir,
		logger: slog.With("component", "importer"),
	}
}

// Import extracts the artifact for jobID and returns the layer payload
// path. Zip archives are unpacked; bare layer files are copied as-is.
// The artifact file is removed after a successful import.
func (s *Spool) Import(ctx context.Context, artifactPath, jobID, datatype string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Import("import", err)
	}

	dest := filepath.Join(s.root, jobID)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", apperrors.Import("import.mkdir", err)
	}

	var layer string
	var err error
	if strings.EqualFold(filepath.Ext(artifactPath), ".zip") {
		layer, err = s.extract(artifactPath, dest)
	} else {
		layer, err = s.copyPayload(artifactPath, dest)
	}
	if err != nil {
		return "", err
	}

	if err := os.Remove(artifactPath); err != nil {
		s.logger.Warn("Removing artifact after import failed", "path", artifactPath, "error", err)
	}

	s.logger.Info("Result imported", "jobId", jobID, "datatype", datatype, "layer", layer)
	return layer, nil
}

// extract unpacks a zip archive into dest and returns the payload path.
func (s *Spool) extract(archivePath, dest string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", apperrors.Import("import.open", err)
	}
	defer r.Close()

	for _, f := range r.File {
		cleanName := filepath.Clean(f.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return "", apperrors.Import("import.extract", fmt.Errorf("invalid path in archive: %s", f.Name))
		}

		targetPath := filepath.Join(dest, cleanName)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return "", apperrors.Import("import.extract", err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return "", apperrors.Import("import.extract", err)
		}
		if err := extractFile(f, targetPath); err != nil {
			return "", apperrors.Import("import.extract", err)
		}
	}

	layer, ok := findPayload(dest)
	if !ok {
		return "", apperrors.Import("import.select", fmt.Errorf("archive contains no recognized layer file"))
	}
	return layer, nil
}

func extractFile(f *zip.File, targetPath string) error {
	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// copyPayload handles the platform handing back a bare layer file rather
// than an archive.
func (s *Spool) copyPayload(srcPath, dest string) (string, error) {
	if !recognized(srcPath) {
		return "", apperrors.Import("import.select", fmt.Errorf("artifact %q is not a recognized layer file", filepath.Base(srcPath)))
	}

	in, err := os.Open(srcPath)
	if err != nil {
		return "", apperrors.Import("import.open", err)
	}
	defer in.Close()

	targetPath := filepath.Join(dest, filepath.Base(srcPath))
	out, err := os.Create(targetPath)
	if err != nil {
		return "", apperrors.Import("import.copy", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", apperrors.Import("import.copy", err)
	}
	if err := out.Close(); err != nil {
		return "", apperrors.Import("import.copy", err)
	}
	return targetPath, nil
}

// findPayload walks dest and returns the best payload candidate.
func findPayload(dest string) (string, bool) {
	best := len(payloadExtensions)
	var found string
	_ = filepath.WalkDir(dest, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		for i, candidate := range payloadExtensions {
			if ext == candidate && i < best {
				best = i
				found = path
			}
		}
		return nil
	})
	return found, found != ""
}

func recognized(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range payloadExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// Verify Spool implements the Importer contract.
var _ Importer = (*Spool)(nil)
