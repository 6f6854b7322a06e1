package main

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cavaliercoder/go-cpio"
)

// bundle archives the image, each region and the manifest under one
// directory named after the output.
func (pi *packedImage) bundle(built time.Time) (data []byte, err error) {
	var buf bytes.Buffer
	w := cpio.NewWriter(&buf)
	defer func() {
		errclose := w.Close()
		if err == nil {
			err = errclose
		}
		if err == nil {
			data = buf.Bytes()
		}
	}()

	dir := filepath.Base(pi.config.outputStem())
	if err = mkdirCpio(w, dir, 0755, built); err != nil {
		return
	}
	if err = mkfileFromSliceCpio(w, path.Join(dir, filepath.Base(pi.config.Output)),
		0644, built, pi.data); err != nil {
		return
	}
	for _, r := range pi.regions {
		if err = mkfileFromSliceCpio(w, path.Join(dir, r.name),
			0644, built, r.data); err != nil {
			return
		}
	}
	manifest, err := pi.manifest(built)
	if err != nil {
		return
	}
	err = mkfileFromSliceCpio(w, path.Join(dir, manifestName), 0644, built,
		manifest)
	return
}

func mkdirCpio(w *cpio.Writer, name string, perm os.FileMode, mtime time.Time) (err error) {
	logCommand("{archive}mkdir", "-m", fmt.Sprintf("%o", perm), name)
	hdr := &cpio.Header{
		Name:    name,
		Mode:    cpio.ModeDir | cpio.FileMode(perm),
		ModTime: mtime,
	}
	err = w.WriteHeader(hdr)
	return
}

func mkfileFromSliceCpio(w *cpio.Writer, tname string, mode os.FileMode, mtime time.Time, data []byte) (err error) {
	hdr := &cpio.Header{
		Name:    tname,
		Mode:    0100000 | cpio.FileMode(mode),
		ModTime: mtime,
		Size:    int64(len(data)),
	}
	if err = w.WriteHeader(hdr); err != nil {
		return
	}
	if _, err = w.Write(data); err != nil {
		return
	}
	logCommand("{archive}cp", "-", tname)
	return
}
