// Package archive reads ZIP archives by walking the end-of-central-directory
// record, the central directory and the per-entry local file headers directly.
//
// Only what release archives need is supported: stored (method 0) and
// deflate (method 8) entries, no ZIP64, no encryption, single disk.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/flate"
)

// Record signatures and fixed sizes from the ZIP application note.
const (
	sigEndOfCentralDir = 0x06054b50
	sigCentralDir      = 0x02014b50
	sigLocalHeader     = 0x04034b50

	eocdSize         = 22
	maxCommentLength = 0xFFFF
	centralDirSize   = 46
	localHeaderSize  = 30

	flagEncrypted = 0x1
	zip64Marker   = 0xFFFFFFFF
)

// Compression methods.
const (
	MethodStored  uint16 = 0
	MethodDeflate uint16 = 8
)

var (
	// ErrFormat is returned for archives that are not valid ZIP files.
	ErrFormat = errors.New("zip: not a valid zip archive")
	// ErrUnsupported is returned for features outside the supported subset.
	ErrUnsupported = errors.New("zip: unsupported feature")
	// ErrChecksum is returned when an entry's CRC-32 does not match.
	ErrChecksum = errors.New("zip: checksum mismatch")
	// ErrUnsafePath is returned for entry names that escape the extraction root.
	ErrUnsafePath = errors.New("zip: entry path escapes extraction root")
)

// Entry describes one central directory record.
type Entry struct {
	Name              string
	CompressedSize    uint32
	UncompressedSize  uint32
	Method            uint16
	LocalHeaderOffset uint32
	CRC32             uint32
	Flags             uint16
	// Mode holds the Unix permission bits from the external attributes, or 0
	// when the archive was not created on a Unix host.
	Mode fs.FileMode
}

// IsDir reports whether the entry is a directory entry.
func (e Entry) IsDir() bool {
	return strings.HasSuffix(e.Name, "/")
}

// endOfCentralDir is the decoded fixed part of the EOCD record.
type endOfCentralDir struct {
	diskNumber       uint16
	centralDirDisk   uint16
	entriesOnDisk    uint16
	totalEntries     uint16
	centralDirSize   uint32
	centralDirOffset uint32
	commentLength    uint16
}

// Reader gives access to the entries of a ZIP archive.
type Reader struct {
	r       io.ReaderAt
	size    int64
	Entries []Entry
}

// NewReader parses the central directory of the archive held in r.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	eocd, err := readEndOfCentralDir(r, size)
	if err != nil {
		return nil, err
	}

	if eocd.diskNumber != 0 || eocd.centralDirDisk != 0 || eocd.entriesOnDisk != eocd.totalEntries {
		return nil, fmt.Errorf("%w: multi-disk archive", ErrUnsupported)
	}
	if eocd.centralDirOffset == zip64Marker || eocd.totalEntries == 0xFFFF {
		return nil, fmt.Errorf("%w: zip64 archive", ErrUnsupported)
	}

	end := int64(eocd.centralDirOffset) + int64(eocd.centralDirSize)
	if end > size {
		return nil, fmt.Errorf("%w: central directory extends past end of file", ErrFormat)
	}

	entries, err := readCentralDir(r, int64(eocd.centralDirOffset), int(eocd.totalEntries), size)
	if err != nil {
		return nil, err
	}

	return &Reader{r: r, size: size, Entries: entries}, nil
}

// readEndOfCentralDir scans backward from the end of the archive for the
// EOCD signature. The record is 22 bytes followed by a comment of up to
// 65535 bytes, so only that tail is searched.
func readEndOfCentralDir(r io.ReaderAt, size int64) (*endOfCentralDir, error) {
	if size < eocdSize {
		return nil, fmt.Errorf("%w: file too small (%d bytes)", ErrFormat, size)
	}

	tailLen := int64(eocdSize + maxCommentLength)
	if tailLen > size {
		tailLen = size
	}
	tailStart := size - tailLen

	tail := make([]byte, tailLen)
	if _, err := r.ReadAt(tail, tailStart); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read archive tail: %w", err)
	}

	for i := len(tail) - eocdSize; i >= 0; i-- {
		if binary.LittleEndian.Uint32(tail[i:]) != sigEndOfCentralDir {
			continue
		}
		rec := tail[i : i+eocdSize]
		eocd := &endOfCentralDir{
			diskNumber:       binary.LittleEndian.Uint16(rec[4:]),
			centralDirDisk:   binary.LittleEndian.Uint16(rec[6:]),
			entriesOnDisk:    binary.LittleEndian.Uint16(rec[8:]),
			totalEntries:     binary.LittleEndian.Uint16(rec[10:]),
			centralDirSize:   binary.LittleEndian.Uint32(rec[12:]),
			centralDirOffset: binary.LittleEndian.Uint32(rec[16:]),
			commentLength:    binary.LittleEndian.Uint16(rec[20:]),
		}
		// A signature inside the comment of another record would claim a
		// comment running past the end of the file.
		if i+eocdSize+int(eocd.commentLength) > len(tail) {
			continue
		}
		return eocd, nil
	}

	return nil, fmt.Errorf("%w: end of central directory record not found", ErrFormat)
}

// readCentralDir decodes count central directory records starting at offset.
func readCentralDir(r io.ReaderAt, offset int64, count int, size int64) ([]Entry, error) {
	entries := make([]Entry, 0, count)
	header := make([]byte, centralDirSize)

	for i := 0; i < count; i++ {
		if offset+centralDirSize > size {
			return nil, fmt.Errorf("%w: truncated central directory at entry %d", ErrFormat, i)
		}
		if _, err := r.ReadAt(header, offset); err != nil {
			return nil, fmt.Errorf("read central directory entry %d: %w", i, err)
		}
		if binary.LittleEndian.Uint32(header) != sigCentralDir {
			return nil, fmt.Errorf("%w: bad central directory signature at offset %d", ErrFormat, offset)
		}

		nameLen := int64(binary.LittleEndian.Uint16(header[28:]))
		extraLen := int64(binary.LittleEndian.Uint16(header[30:]))
		commentLen := int64(binary.LittleEndian.Uint16(header[32:]))
		versionMadeBy := binary.LittleEndian.Uint16(header[4:])
		externalAttrs := binary.LittleEndian.Uint32(header[38:])

		if offset+centralDirSize+nameLen > size {
			return nil, fmt.Errorf("%w: truncated entry name at entry %d", ErrFormat, i)
		}
		name := make([]byte, nameLen)
		if _, err := r.ReadAt(name, offset+centralDirSize); err != nil {
			return nil, fmt.Errorf("read entry name %d: %w", i, err)
		}

		entry := Entry{
			Name:              string(name),
			Flags:             binary.LittleEndian.Uint16(header[8:]),
			Method:            binary.LittleEndian.Uint16(header[10:]),
			CRC32:             binary.LittleEndian.Uint32(header[16:]),
			CompressedSize:    binary.LittleEndian.Uint32(header[20:]),
			UncompressedSize:  binary.LittleEndian.Uint32(header[24:]),
			LocalHeaderOffset: binary.LittleEndian.Uint32(header[42:]),
		}
		// Upper byte of "version made by" is the host system; 3 is Unix.
		if versionMadeBy>>8 == 3 {
			entry.Mode = fs.FileMode(externalAttrs>>16) & fs.ModePerm
		}

		if entry.CompressedSize == zip64Marker || entry.UncompressedSize == zip64Marker ||
			entry.LocalHeaderOffset == zip64Marker {
			return nil, fmt.Errorf("%w: zip64 entry %q", ErrUnsupported, entry.Name)
		}

		entries = append(entries, entry)
		offset += centralDirSize + nameLen + extraLen + commentLen
	}

	return entries, nil
}

// dataOffset reads the local file header of e and returns the offset of
// its compressed data. The local name/extra lengths may differ from the
// central directory copy, so they are read again here.
func (z *Reader) dataOffset(e Entry) (int64, error) {
	off := int64(e.LocalHeaderOffset)
	if off+localHeaderSize > z.size {
		return 0, fmt.Errorf("%w: local header for %q past end of file", ErrFormat, e.Name)
	}

	header := make([]byte, localHeaderSize)
	if _, err := z.r.ReadAt(header, off); err != nil {
		return 0, fmt.Errorf("read local header for %q: %w", e.Name, err)
	}
	if binary.LittleEndian.Uint32(header) != sigLocalHeader {
		return 0, fmt.Errorf("%w: bad local header signature for %q", ErrFormat, e.Name)
	}

	nameLen := int64(binary.LittleEndian.Uint16(header[26:]))
	extraLen := int64(binary.LittleEndian.Uint16(header[28:]))
	start := off + localHeaderSize + nameLen + extraLen
	if start+int64(e.CompressedSize) > z.size {
		return 0, fmt.Errorf("%w: data for %q past end of file", ErrFormat, e.Name)
	}
	return start, nil
}

// Open returns a reader for the decompressed contents of e. The CRC-32 is
// verified when the returned reader reaches EOF.
func (z *Reader) Open(e Entry) (io.ReadCloser, error) {
	if e.Flags&flagEncrypted != 0 {
		return nil, fmt.Errorf("%w: encrypted entry %q", ErrUnsupported, e.Name)
	}

	start, err := z.dataOffset(e)
	if err != nil {
		return nil, err
	}
	raw := io.NewSectionReader(z.r, start, int64(e.CompressedSize))

	var rc io.ReadCloser
	switch e.Method {
	case MethodStored:
		rc = io.NopCloser(raw)
	case MethodDeflate:
		rc = flate.NewReader(raw)
	default:
		return nil, fmt.Errorf("%w: compression method %d for %q", ErrUnsupported, e.Method, e.Name)
	}

	return &checksumReader{
		rc:   rc,
		hash: crc32.NewIEEE(),
		want: e.CRC32,
		size: int64(e.UncompressedSize),
		name: e.Name,
	}, nil
}

// checksumReader verifies size and CRC-32 once the underlying stream ends.
type checksumReader struct {
	rc   io.ReadCloser
	hash hash.Hash32
	want uint32
	size int64
	read int64
	name string
}

func (c *checksumReader) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	c.hash.Write(p[:n])
	c.read += int64(n)
	if c.read > c.size {
		return n, fmt.Errorf("%w: %q is larger than declared", ErrFormat, c.name)
	}
	if errors.Is(err, io.EOF) {
		if c.read != c.size {
			return n, fmt.Errorf("%w: %q is %d bytes, expected %d", ErrFormat, c.name, c.read, c.size)
		}
		if c.hash.Sum32() != c.want {
			return n, fmt.Errorf("%w: %q", ErrChecksum, c.name)
		}
	}
	return n, err
}

func (c *checksumReader) Close() error {
	return c.rc.Close()
}

// ExtractAll writes every entry under destDir, creating parent directories
// as needed.
func (z *Reader) ExtractAll(destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}
	root := filepath.Clean(destDir)

	for _, e := range z.Entries {
		target, err := safeJoin(root, e.Name)
		if err != nil {
			return err
		}

		if e.IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("create directory %s: %w", target, err)
			}
			continue
		}

		if err := z.extractFile(e, target); err != nil {
			return err
		}
	}

	return nil
}

func (z *Reader) extractFile(e Entry, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir for %s: %w", target, err)
	}

	mode := e.Mode
	if mode == 0 {
		mode = 0644
	}

	src, err := z.Open(e)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("write file %s: %w", target, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close file %s: %w", target, err)
	}
	return nil
}

// safeJoin joins name under root and rejects absolute names and any name
// that resolves outside root.
func safeJoin(root, name string) (string, error) {
	clean := filepath.FromSlash(strings.TrimSuffix(name, "/"))
	if clean == "" || filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	target := filepath.Join(root, clean)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return target, nil
}

// ExtractFile opens the archive at path and extracts it into destDir.
func ExtractFile(path, destDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	z, err := NewReader(f, info.Size())
	if err != nil {
		return err
	}
	return z.ExtractAll(destDir)
}
