package pipeline

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

type encoder func(w io.Writer, img image.Image) error

func encoderFor(path string) (encoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return png.Encode, nil
	case ".bmp":
		return bmp.Encode, nil
	case ".tif", ".tiff":
		return func(w io.Writer, img image.Image) error { return tiff.Encode(w, img, nil) }, nil
	}
	return nil, errors.Wrapf(ErrEncode, "no encoder for %q", path)
}

// Save encodes img by path's extension and writes it atomically.
func Save(img image.Image, path string) error {
	enc, err := encoderFor(path)
	if err != nil {
		return err
	}
	return save(img, path, enc)
}

func save(img image.Image, path string, enc encoder) error {
	var buf bytes.Buffer
	err := enc(&buf, img)
	if err != nil {
		return mark(ErrEncode, err, "encode %s", path)
	}

	err = writeFileAtomic(path, buf.Bytes())
	if err != nil {
		return mark(ErrWrite, err, "write %s", path)
	}
	return nil
}

// writeFileAtomic writes data next to path and renames it into place, so path
// is either untouched or complete.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	_, err = f.Write(data)
	if err == nil {
		err = f.Chmod(0o644)
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}

	err = os.Rename(tmp, path)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
