package yoloprep

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultImageExts are the image file extensions looked for when none are configured.
var DefaultImageExts = []string{".jpg", ".jpeg", ".png", ".bmp"}

// hasExt reports whether name ends in one of exts, ignoring case. Empty exts matches everything.
func hasExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// filesByExtInDir returns all regular files with one of the file extensions exts found directly in
// directory dirPath, sorted by name. All files are returned if exts is empty.
func filesByExtInDir(dirPath string, exts ...string) ([]string, error) {
	dirInfo, err := os.Stat(dirPath)
	if err != nil || !dirInfo.IsDir() {
		return nil, fmt.Errorf("cannot read directory %q: %v", dirPath, err)
	}
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		log.Printf("Failed to access some files in %q: %v", dirPath, err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		// Must be a regular file or a symlink and have the requested extension.
		mode := e.Type()
		if (!mode.IsRegular() && mode&os.ModeSymlink == 0) || !hasExt(e.Name(), exts) {
			continue
		}
		files = append(files, filepath.Join(dirPath, e.Name()))
	}
	sort.Strings(files)

	return files, nil
}

// baseNoExt returns the file name of path without directory and extension.
func baseNoExt(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// withExt returns the path of the file named like path, with extension ext (including the dot), in
// directory dir.
func withExt(dir, path, ext string) string {
	return filepath.Join(dir, baseNoExt(path)+ext)
}

// readLines returns a slice of lines read from the file at path.
func readLines(path string) (lines []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %q as lines: %v", path, err)
	}

	return lines, nil
}

// fileExists reports whether path exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ensureDirs creates the given directories, including parents. Existing directories are fine.
func ensureDirs(dirs ...string) error {
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return errors.Wrapf(err, "cannot create directory %q", d)
		}
	}
	return nil
}

// sameContent reports whether the files a and b have identical bytes.
func sameContent(a, b string) bool {
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil || ia.Size() != ib.Size() {
		return false
	}
	da, err := os.ReadFile(a)
	if err != nil {
		return false
	}
	db, err := os.ReadFile(b)
	return err == nil && bytes.Equal(da, db)
}

// uniqueStem returns the base name (without extension) under which the files srcs are copied into
// dirs with extensions exts, all matched by position. The first candidate is stem itself, followed
// by stem_dup, stem_dup2, stem_dup3, ...
//
// A candidate is taken if it is in claimed, or if any destination exists with content other than its
// source. Files left by an earlier run are thus reused, while two sources of one run never share a
// destination. The returned name is added to claimed.
func uniqueStem(stem string, srcs, dirs, exts []string, claimed map[string]bool) string {
	key := func(s string) string { return filepath.Join(dirs[0], s) }
	taken := func(s string) bool {
		if claimed[key(s)] {
			return true
		}
		for i, d := range dirs {
			dst := filepath.Join(d, s+exts[i])
			if _, err := os.Stat(dst); err == nil && !sameContent(srcs[i], dst) {
				return true
			}
		}
		return false
	}

	candidate := stem
	if taken(candidate) {
		candidate = stem + "_dup"
		for n := 2; taken(candidate); n++ {
			candidate = fmt.Sprintf("%s_dup%d", stem, n)
		}
	}
	claimed[key(candidate)] = true
	return candidate
}

// copyFile copies the regular file src to dst, overwriting dst.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(out, &err)

	if _, err = io.Copy(out, in); err != nil {
		return errors.Wrapf(err, "failed to copy %q to %q", src, dst)
	}
	return nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
