// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/exp/mmap"
)

// companionFile is an opened sibling file.
type companionFile interface {
	io.ReaderAt
	io.Closer
	Len() int
}

// companionFS locates and opens the sibling files some formats keep their
// header or pixel data in.
type companionFS interface {
	// readDir returns the names of the regular files in dir.
	readDir(dir string) ([]string, error)
	open(filename string) (companionFile, error)
}

type osCompanionFS struct{}

func (osCompanionFS) readDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (osCompanionFS) open(filename string) (companionFile, error) {
	return mmap.Open(filename)
}

// baseName returns the file name of path without directory and extension.
func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// hasSuffixFold reports whether name ends with one of the given suffixes, ignoring case.
func hasSuffixFold(name string, suffixes ...string) bool {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

func (d *baseDecoder) siblings() ([]string, error) {
	names, err := d.opts.companions.readDir(filepath.Dir(d.path))
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrMissingCompanionFile, filepath.Dir(d.path), err)
	}
	sort.Strings(names)
	return names, nil
}

// findCompanion returns the path of the sibling file with the same base name
// and one of the given extensions, tried in order.
func (d *baseDecoder) findCompanion(exts ...string) (string, error) {
	names, err := d.siblings()
	if err != nil {
		return "", err
	}
	base := baseName(d.path)
	for _, ext := range exts {
		for _, name := range names {
			if strings.EqualFold(name, base+ext) {
				return filepath.Join(filepath.Dir(d.path), name), nil
			}
		}
	}
	return "", fmt.Errorf("%w: no %s file for %s", ErrMissingCompanionFile, strings.Join(exts, "/"), filepath.Base(d.path))
}

// findSibling returns the path of the named file in the same directory,
// matching the name case-insensitively.
func (d *baseDecoder) findSibling(name string) (string, error) {
	names, err := d.siblings()
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if n == name {
			return filepath.Join(filepath.Dir(d.path), n), nil
		}
	}
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return filepath.Join(filepath.Dir(d.path), n), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMissingCompanionFile, name)
}

// openCompanion opens filename; the file is closed when the decoder closes.
func (d *baseDecoder) openCompanion(filename string) (companionFile, error) {
	f, err := d.opts.companions.open(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCompanionFile, err)
	}
	d.addCloser(f)
	return f, nil
}

// readCompanion reads all of the companion header file filename.
func (d *baseDecoder) readCompanion(filename string) ([]byte, error) {
	f, err := d.opts.companions.open(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCompanionFile, err)
	}
	defer f.Close()
	n := int64(f.Len())
	if n > d.opts.LimitTagSize {
		return nil, newBadHeaderErrorf("%s: size %d exceeds max %d", filepath.Base(filename), n, d.opts.LimitTagSize)
	}
	b := make([]byte, n)
	if _, err := f.ReadAt(b, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return b, nil
}

// decodeCompanionTIFF decodes the standalone TIFF file filename.
func (d *baseDecoder) decodeCompanionTIFF(filename string) (*Plane, error) {
	f, err := d.opts.companions.open(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCompanionFile, err)
	}
	defer f.Close()
	return decodeTIFFImage(f, int64(f.Len()), d.opts.LimitPlaneBytes)
}
