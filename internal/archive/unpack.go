package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/animus-labs/wfrunner/internal/domain"
)

var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicBzip2 = []byte("BZh")
	magicUstar = []byte("ustar")
)

const ustarOffset = 257

// Unpack extracts archivePath below destDir and returns the effective content root.
func Unpack(archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %w", domain.ErrArchive, archivePath, err)
	}
	defer f.Close()

	stream, closeStream, err := decompress(bufio.NewReaderSize(f, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrArchive, archivePath, err)
	}
	defer closeStream()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", domain.ErrArchive, destDir, err)
	}
	realDest, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return "", fmt.Errorf("%w: resolve %s: %w", domain.ErrArchive, destDir, err)
	}

	tr := tar.NewReader(stream)
	root := ""
	for i := 0; ; i++ {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: read %s: %w", domain.ErrArchive, archivePath, err)
		}
		if i == 0 {
			root = destDir
			if hdr.Typeflag == tar.TypeDir {
				root = filepath.Join(destDir, filepath.FromSlash(strings.TrimSuffix(hdr.Name, "/")))
			}
		}
		if err := extractEntry(tr, hdr, destDir, realDest); err != nil {
			return "", fmt.Errorf("%w: extract %s: %w", domain.ErrArchive, hdr.Name, err)
		}
	}
	if root == "" {
		return "", fmt.Errorf("%w: %s is empty", domain.ErrArchive, archivePath)
	}
	return root, nil
}

func decompress(r *bufio.Reader) (io.Reader, func(), error) {
	head, err := r.Peek(ustarOffset + len(magicUstar))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	noop := func() {}
	switch {
	case len(head) == 0:
		return nil, nil, errors.New("archive is empty")
	case bytes.HasPrefix(head, magicGzip):
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gz, func() { _ = gz.Close() }, nil
	case bytes.HasPrefix(head, magicZstd):
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	case bytes.HasPrefix(head, magicBzip2):
		return bzip2.NewReader(r), noop, nil
	case len(head) >= ustarOffset+len(magicUstar) && bytes.Equal(head[ustarOffset:], magicUstar):
		return r, noop, nil
	default:
		return nil, nil, errors.New("unsupported archive format")
	}
}

// extractEntry writes one entry below destDir. Symlinks are recreated as-is, but
// no entry is ever written through a link that resolves outside realDest.
func extractEntry(tr *tar.Reader, hdr *tar.Header, destDir, realDest string) error {
	target, err := safeJoin(destDir, hdr.Name)
	if err != nil {
		return err
	}
	switch hdr.Typeflag {
	case tar.TypeDir, tar.TypeReg, tar.TypeSymlink, tar.TypeLink:
		if err := checkResolved(realDest, filepath.Dir(target), hdr.Name); err != nil {
			return err
		}
	}
	switch hdr.Typeflag {
	case tar.TypeDir:
		if err := dropSymlink(target); err != nil {
			return err
		}
		return os.MkdirAll(target, dirMode(hdr))
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := dropSymlink(target); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode).Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	case tar.TypeSymlink:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Symlink(hdr.Linkname, target)
	case tar.TypeLink:
		source, err := safeJoin(destDir, hdr.Linkname)
		if err != nil {
			return err
		}
		if err := checkResolved(realDest, filepath.Dir(source), hdr.Linkname); err != nil {
			return err
		}
		_ = os.Remove(target)
		return os.Link(source, target)
	default:
		return nil
	}
}

func dirMode(hdr *tar.Header) os.FileMode {
	mode := os.FileMode(hdr.Mode).Perm()
	// Directories must stay traversable so later entries can be written below them.
	return mode | 0o700
}

func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !within(destDir, target) {
		return "", fmt.Errorf("entry %q escapes destination", name)
	}
	return target, nil
}

// checkResolved fails when dir, after following symlinks in its existing
// ancestors, lies outside realDest.
func checkResolved(realDest, dir, name string) error {
	rest := ""
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			if !within(realDest, filepath.Join(resolved, rest)) {
				return fmt.Errorf("entry %q escapes destination through a symlink", name)
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return err
		}
		rest = filepath.Join(filepath.Base(dir), rest)
		dir = parent
	}
}

// dropSymlink removes p when it is a symlink so the entry replaces the link
// instead of writing to its target.
func dropSymlink(p string) error {
	info, err := os.Lstat(p)
	if err != nil || info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(p)
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
