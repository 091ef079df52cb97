package pmtiles

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrTileNotFound is returned when an archive has no tile at the address.
var ErrTileNotFound = errors.New("tile does not exist")

// maxDirectoryDepth bounds leaf directory recursion on corrupt archives.
const maxDirectoryDepth = 4

// Reader serves tiles out of a PMTiles archive.
type Reader struct {
	r      io.ReaderAt
	closer io.Closer
	header HeaderV3
	root   []EntryV3

	mu     sync.Mutex
	leaves map[uint64][]EntryV3
}

// Open opens the archive at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header and root directory from r.
func NewReader(r io.ReaderAt) (*Reader, error) {
	buf := make([]byte, HeaderV3LenBytes)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := DeserializeHeader(buf)
	if err != nil {
		return nil, err
	}
	if header.SpecVersion != 3 {
		return nil, fmt.Errorf("pmtiles: unsupported spec version %d", header.SpecVersion)
	}

	root, err := readDirectory(r, header, header.RootOffset, header.RootLength)
	if err != nil {
		return nil, fmt.Errorf("reading root directory: %w", err)
	}
	return &Reader{r: r, header: header, root: root, leaves: make(map[uint64][]EntryV3)}, nil
}

// Header returns the archive header.
func (rd *Reader) Header() HeaderV3 {
	return rd.header
}

// Metadata returns the decoded JSON metadata.
func (rd *Reader) Metadata() (map[string]any, error) {
	buf := make([]byte, rd.header.MetadataLength)
	if _, err := rd.r.ReadAt(buf, int64(rd.header.MetadataOffset)); err != nil {
		return nil, err
	}
	return DeserializeMetadata(buf, rd.header.InternalCompression)
}

// Tile returns the stored bytes for z/x/y, still compressed with
// Header().TileCompression.
func (rd *Reader) Tile(z uint8, x, y uint32) ([]byte, error) {
	if z < rd.header.MinZoom || z > rd.header.MaxZoom {
		return nil, ErrTileNotFound
	}
	id := ZxyToID(z, x, y)
	dir := rd.root
	for depth := 0; depth < maxDirectoryDepth; depth++ {
		entry, ok := FindTile(dir, id)
		if !ok {
			return nil, ErrTileNotFound
		}
		if entry.RunLength > 0 {
			buf := make([]byte, entry.Length)
			if _, err := rd.r.ReadAt(buf, int64(rd.header.TileDataOffset+entry.Offset)); err != nil {
				return nil, err
			}
			return buf, nil
		}
		leaf, err := rd.leaf(entry)
		if err != nil {
			return nil, err
		}
		dir = leaf
	}
	return nil, ErrTileNotFound
}

// Close closes the underlying file, if the reader opened one.
func (rd *Reader) Close() error {
	if rd.closer != nil {
		return rd.closer.Close()
	}
	return nil
}

func (rd *Reader) leaf(entry EntryV3) ([]EntryV3, error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	offset := rd.header.LeafDirectoryOffset + entry.Offset
	if dir, ok := rd.leaves[offset]; ok {
		return dir, nil
	}
	dir, err := readDirectory(rd.r, rd.header, offset, uint64(entry.Length))
	if err != nil {
		return nil, fmt.Errorf("reading leaf directory: %w", err)
	}
	rd.leaves[offset] = dir
	return dir, nil
}

func readDirectory(r io.ReaderAt, header HeaderV3, offset, length uint64) ([]EntryV3, error) {
	buf := make([]byte, length)
	if _, err := r.ReadAt(buf, int64(offset)); err != nil {
		return nil, err
	}
	return DeserializeEntries(buf, header.InternalCompression)
}
