package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/animus-labs/wfrunner/internal/domain"
)

// Pack archives the contents of sourceDir into destPath, rewriting the top path
// segment to rootName. The archive is written to a sibling temp file and renamed
// into place, so destPath never holds a partial archive.
func Pack(sourceDir, destPath, rootName string) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("%w: stat source: %w", domain.ErrArchive, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: source %s is not a directory", domain.ErrArchive, sourceDir)
	}
	if rootName == "" || rootName == "." || rootName == ".." {
		return fmt.Errorf("%w: invalid root name %q", domain.ErrArchive, rootName)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("%w: create archive dir: %w", domain.ErrArchive, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".pack-*")
	if err != nil {
		return fmt.Errorf("%w: create temp archive: %w", domain.ErrArchive, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := writeTarGz(tmp, sourceDir, rootName); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: pack %s: %w", domain.ErrArchive, sourceDir, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: chmod archive: %w", domain.ErrArchive, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close archive: %w", domain.ErrArchive, err)
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		return fmt.Errorf("%w: publish archive: %w", domain.ErrArchive, err)
	}
	return nil
}

func writeTarGz(w io.Writer, sourceDir, rootName string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(sourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return err
		}
		name := rootName
		if rel != "." {
			name = path.Join(rootName, filepath.ToSlash(rel))
		}
		return writeEntry(tw, p, name, d)
	})
	if walkErr != nil {
		_ = tw.Close()
		_ = gz.Close()
		return walkErr
	}
	if err := tw.Close(); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}

func writeEntry(tw *tar.Writer, p, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	link := ""
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	}
	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
