// Package assets fingerprints local file assets, stages them into a cloud
// assembly and publishes them to S3.
package assets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Fingerprint returns the hex SHA-256 of the file's contents.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("asset %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("asset %s: directories are not supported, package it as a zip", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("asset %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ObjectKey returns the S3 key for an asset: its hash plus the source extension.
func ObjectKey(hash, sourcePath string) string {
	return hash + strings.ToLower(filepath.Ext(sourcePath))
}

// StagedName returns the file name of an asset inside the assembly directory.
func StagedName(hash, sourcePath string) string {
	return "asset." + ObjectKey(hash, sourcePath)
}

// Stage copies the source file into dir under name. An existing staged file
// is left in place since its name already encodes the content hash.
func Stage(sourcePath, dir, name string) error {
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("stage %s: %w", sourcePath, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dir, ".staging-*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", sourcePath, err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("stage %s: %w", sourcePath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("stage %s: %w", sourcePath, err)
	}
	return os.Rename(tmp.Name(), dst)
}
