package pmtiles

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Tile is one tile to be written into an archive.
type Tile struct {
	Z    uint8
	X, Y uint32
	Data []byte
}

// WriteOptions describe the archive being written.
type WriteOptions struct {
	TileType        TileType
	TileCompression Compression
	MinZoom         uint8
	MaxZoom         uint8
	// Bounds as [minLon, minLat, maxLon, maxLat]; zero means whole world.
	Bounds   [4]float64
	Metadata map[string]any
}

// WriteFile writes tiles to a single-directory PMTiles archive at path.
// Identical tile contents are stored once.
func WriteFile(path string, tiles []Tile, opts WriteOptions) error {
	if len(tiles) == 0 {
		return errors.New("no tiles to write")
	}

	type tileEntry struct {
		id   uint64
		data []byte
	}
	sorted := make([]tileEntry, len(tiles))
	for i, t := range tiles {
		sorted[i] = tileEntry{id: ZxyToID(t.Z, t.X, t.Y), data: t.Data}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].id < sorted[j].id })

	var entries []EntryV3
	var tileData bytes.Buffer
	offsets := make(map[string]uint64)
	for _, te := range sorted {
		offset, seen := offsets[string(te.data)]
		if !seen {
			offset = uint64(tileData.Len())
			offsets[string(te.data)] = offset
			tileData.Write(te.data)
		}
		if n := len(entries); n > 0 && entries[n-1].Offset == offset &&
			entries[n-1].TileID+uint64(entries[n-1].RunLength) == te.id {
			entries[n-1].RunLength++
			continue
		}
		entries = append(entries, EntryV3{
			TileID:    te.id,
			Offset:    offset,
			Length:    uint32(len(te.data)),
			RunLength: 1,
		})
	}

	metadata := map[string]any{
		"minzoom": opts.MinZoom,
		"maxzoom": opts.MaxZoom,
	}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	metadataBytes, err := SerializeMetadata(metadata, Gzip)
	if err != nil {
		return fmt.Errorf("serializing metadata: %w", err)
	}
	rootDirBytes, err := SerializeEntries(entries, Gzip)
	if err != nil {
		return fmt.Errorf("serializing directory: %w", err)
	}

	bounds := opts.Bounds
	if bounds == [4]float64{} {
		bounds = [4]float64{-180, -85.05112878, 180, 85.05112878}
	}

	rootDirOffset := uint64(HeaderV3LenBytes)
	metadataOffset := rootDirOffset + uint64(len(rootDirBytes))
	tileDataOffset := metadataOffset + uint64(len(metadataBytes))

	header := HeaderV3{
		SpecVersion:         3,
		RootOffset:          rootDirOffset,
		RootLength:          uint64(len(rootDirBytes)),
		MetadataOffset:      metadataOffset,
		MetadataLength:      uint64(len(metadataBytes)),
		TileDataOffset:      tileDataOffset,
		TileDataLength:      uint64(tileData.Len()),
		AddressedTilesCount: uint64(len(sorted)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(offsets)),
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     opts.TileCompression,
		TileType:            opts.TileType,
		MinZoom:             opts.MinZoom,
		MaxZoom:             opts.MaxZoom,
		MinLonE7:            int32(bounds[0] * 1e7),
		MinLatE7:            int32(bounds[1] * 1e7),
		MaxLonE7:            int32(bounds[2] * 1e7),
		MaxLatE7:            int32(bounds[3] * 1e7),
		CenterZoom:          opts.MinZoom,
		CenterLonE7:         int32((bounds[0] + bounds[2]) / 2 * 1e7),
		CenterLatE7:         int32((bounds[1] + bounds[3]) / 2 * 1e7),
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, part := range [][]byte{SerializeHeader(header), rootDirBytes, metadataBytes, tileData.Bytes()} {
		if _, err := f.Write(part); err != nil {
			return err
		}
	}
	return f.Close()
}
