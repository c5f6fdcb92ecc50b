package rvth

import (
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go4.org/readerutil"
)

// isBlockDevice reports whether path names a device node rather than a
// regular file. afero's in-memory filesystem never reports devices; on a
// real OsFs this inspects the Mode() bits.
func isBlockDevice(fs afero.Fs, path string) (bool, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return false, err
	}
	return fi.Mode()&os.ModeDevice != 0, nil
}

// OpenMultiPart opens a sequence of files (an HDD image split across
// several parts, e.g. by a FAT32 destination filesystem) and presents them
// as one size-addressable, strongly-owned File. Parts are concatenated in
// the order given; the caller supplies the ordered path list.
func OpenMultiPart(fs afero.Fs, paths []string) (File, error) {
	if len(paths) == 0 {
		return nil, sysErr("open", errBadFileDescriptor)
	}

	var parts []afero.File
	var sras []readerutil.SizeReaderAt

	closeAll := func(err error) error {
		for _, p := range parts {
			err = multierror.Append(err, p.Close())
		}
		return err
	}

	for _, p := range paths {
		f, err := fs.Open(p)
		if err != nil {
			return nil, sysErr("open", closeAll(err))
		}
		fi, err := f.Stat()
		if err != nil {
			return nil, sysErr("stat", closeAll(err))
		}
		parts = append(parts, f)
		sras = append(sras, io.NewSectionReader(f, 0, fi.Size()))
	}

	rc := int32(1)
	return &fileHandle{
		fs:       fs,
		sra:      readerutil.NewMultiReaderAt(sras...),
		parts:    parts,
		refCount: &rc,
	}, nil
}
