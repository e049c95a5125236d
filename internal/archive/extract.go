// Package archive extracts downloaded payloads into the extraction scratch
// directory. Plain CSV files bypass extraction and are copied directly.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
	"github.com/sethvargo/go-retry"
)

// Format identifies a supported payload format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatZip      Format = "zip"
	FormatTar      Format = "tar"
	FormatRar      Format = "rar"
	FormatSevenZip Format = "7z"
)

// ParseFormat maps a file extension (with or without leading dot) to a
// Format. Unknown extensions are rejected so bad configuration fails before
// any download happens.
func ParseFormat(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "csv":
		return FormatCSV, nil
	case "zip":
		return FormatZip, nil
	case "tar", "gz", "tgz":
		return FormatTar, nil
	case "rar":
		return FormatRar, nil
	case "7z":
		return FormatSevenZip, nil
	default:
		return "", fmt.Errorf("unsupported archive format %q", ext)
	}
}

// maxAttempts bounds retries around one extraction call. Extraction failures
// are usually transient filesystem or lock errors.
const maxAttempts = 5

// Extract decompresses the archive at path into destDir. CSV payloads are
// copied as-is.
func Extract(path string, format Format, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}

	switch format {
	case FormatCSV:
		return copyFile(path, filepath.Join(destDir, filepath.Base(path)))
	case FormatZip:
		return extractZip(path, destDir)
	case FormatTar:
		return extractTar(path, destDir)
	case FormatRar:
		return extractRar(path, destDir)
	case FormatSevenZip:
		return extractSevenZip(path, destDir)
	default:
		return fmt.Errorf("unsupported archive format %q", format)
	}
}

// ExtractWithRetry runs Extract under a bounded retry policy. A failure on
// the final attempt propagates to the caller.
func ExtractWithRetry(ctx context.Context, path string, format Format, destDir string) error {
	backoff := retry.WithMaxRetries(maxAttempts-1, retry.NewConstant(100*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := Extract(path, format, destDir); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// securePath joins name under destDir and rejects entries escaping it.
func securePath(destDir, name string) (string, error) {
	path := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(path, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return path, nil
}

func extractZip(src, destDir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		path, err := securePath(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		if err := writeEntry(path, rc); err != nil {
			rc.Close()
			return err
		}
		rc.Close()
	}

	return nil
}

func extractTar(src, destDir string) error {
	file, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open tar: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(src, ".gz") || strings.HasSuffix(src, ".tgz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		reader = gz
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		path, err := securePath(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			if err := writeEntry(path, tr); err != nil {
				return err
			}
		}
	}
}

func extractRar(src, destDir string) error {
	rr, err := rardecode.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open rar: %w", err)
	}
	defer rr.Close()

	for {
		hdr, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read rar entry: %w", err)
		}

		path, err := securePath(destDir, hdr.Name)
		if err != nil {
			return err
		}

		if hdr.IsDir {
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := writeEntry(path, rr); err != nil {
			return err
		}
	}
}

func extractSevenZip(src, destDir string) error {
	r, err := sevenzip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open 7z: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		path, err := securePath(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		if err := writeEntry(path, rc); err != nil {
			rc.Close()
			return err
		}
		rc.Close()
	}

	return nil
}

func writeEntry(path string, r io.Reader) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// copyFile copies a plain file into place.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}

	return out.Sync()
}
