package forma

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/formaproject/forma/cursor"
	"github.com/formaproject/forma/model"
	"github.com/formaproject/forma/schema"
)

// Container layout, all integers little-endian:
//
//	magic            "FRMA"
//	containerVersion u8
//	compression      u8
//	formatVersion    u32 (packed, see schema.ParseVersion)
//	userVersion      u32
//	blockCount       u32
//	typeCount        u16, then typeCount x { nameLen u16, name bytes }
//	blockCount       x typeIndex u16
//	rootCount        u32, then rootCount x blockIndex u32
//	payload          framed per cursor.Compress
//
// The payload holds the blocks in write order; the type table lists names
// in first-use order.

var containerMagic = []byte("FRMA")

const containerVersion = 1

// Load parses a container against the given schema. Dangling links inside
// the payload do not fail the load; they are available from
// Graph().Conditions().
func Load(s *schema.Schema, data []byte, opts ...Option) (*Format, error) {
	cur := cursor.New(data)

	magic, err := cur.ReadBytes(len(containerMagic))
	if err != nil {
		return nil, containerErr(0, err)
	}
	if !bytes.Equal(magic, containerMagic) {
		return nil, fmt.Errorf("%w: got %q", ErrBadMagic, magic)
	}
	cv, err := cur.ReadUint(1, false)
	if err != nil {
		return nil, containerErr(cur.Tell(), err)
	}
	if cv != containerVersion {
		return nil, fmt.Errorf("%w: container version %d", ErrCorruptContainer, cv)
	}
	comp, err := cur.ReadUint(1, false)
	if err != nil {
		return nil, containerErr(cur.Tell(), err)
	}
	version, err := cur.ReadUint(4, false)
	if err != nil {
		return nil, containerErr(cur.Tell(), err)
	}
	userVersion, err := cur.ReadUint(4, false)
	if err != nil {
		return nil, containerErr(cur.Tell(), err)
	}

	f, err := New(s, uint32(version), uint32(userVersion), opts...)
	if err != nil {
		return nil, err
	}
	f.compression = cursor.Compression(comp)

	blockCount, err := cur.ReadUint(4, false)
	if err != nil {
		return nil, containerErr(cur.Tell(), err)
	}
	typeCount, err := cur.ReadUint(2, false)
	if err != nil {
		return nil, containerErr(cur.Tell(), err)
	}
	typeNames := make([]string, typeCount)
	for i := range typeNames {
		n, err := cur.ReadUint(2, false)
		if err != nil {
			return nil, containerErr(cur.Tell(), err)
		}
		name, err := cur.ReadBytes(int(n))
		if err != nil {
			return nil, containerErr(cur.Tell(), err)
		}
		typeNames[i] = string(name)
	}

	blockTypes := make([]string, blockCount)
	for i := range blockTypes {
		idx, err := cur.ReadUint(2, false)
		if err != nil {
			return nil, containerErr(cur.Tell(), err)
		}
		if idx >= typeCount {
			return nil, fmt.Errorf("%w: block %d has type index %d of %d",
				ErrCorruptContainer, i, idx, typeCount)
		}
		blockTypes[i] = typeNames[idx]
	}

	rootCount, err := cur.ReadUint(4, false)
	if err != nil {
		return nil, containerErr(cur.Tell(), err)
	}
	rootIndices := make([]uint32, rootCount)
	for i := range rootIndices {
		idx, err := cur.ReadUint(4, false)
		if err != nil {
			return nil, containerErr(cur.Tell(), err)
		}
		if idx >= blockCount {
			return nil, fmt.Errorf("%w: root %d points at block %d of %d",
				ErrCorruptContainer, i, idx, blockCount)
		}
		rootIndices[i] = uint32(idx)
	}

	payloadStart := cur.Tell()
	frame, err := cur.ReadBytes(cur.Remaining())
	if err != nil {
		return nil, containerErr(payloadStart, err)
	}
	payload, err := cursor.Decompress(frame, f.compression)
	if err != nil {
		return nil, containerErr(payloadStart, err)
	}

	pc := cursor.New(payload)
	if err := f.graph.ReadBlocks(pc, blockTypes); err != nil {
		return nil, err
	}
	if rem := pc.Remaining(); rem != 0 {
		return nil, fmt.Errorf("%w: %d trailing payload bytes", ErrCorruptContainer, rem)
	}

	roots := make([]*model.Block, 0, len(rootIndices))
	for _, idx := range rootIndices {
		b, err := f.graph.Block(int(idx))
		if err != nil {
			return nil, err
		}
		roots = append(roots, b)
	}
	f.graph.SetRoots(roots...)

	if conds := f.graph.Conditions(); len(conds) > 0 {
		f.logger.Warn("recovered from link defects", slog.Int("conditions", len(conds)))
	}
	return f, nil
}

// Save serializes the graph into a container. Only blocks reachable from
// the roots, plus explicitly retained ones, are written.
func (f *Format) Save() ([]byte, error) {
	payload := cursor.NewWriter()
	order, err := f.graph.WriteBlocks(payload)
	if err != nil {
		return nil, err
	}

	typeIndex := make(map[string]int)
	var typeNames []string
	blockTypes := make([]int, len(order))
	for i, b := range order {
		idx, ok := typeIndex[b.TypeName]
		if !ok {
			idx = len(typeNames)
			typeIndex[b.TypeName] = idx
			typeNames = append(typeNames, b.TypeName)
		}
		blockTypes[i] = idx
	}
	if len(typeNames) > 0xffff {
		return nil, fmt.Errorf("%w: %d block types", ErrCorruptContainer, len(typeNames))
	}

	out := cursor.NewWriter()
	if err := out.WriteBytes(containerMagic); err != nil {
		return nil, err
	}
	if err := out.WriteUint(containerVersion, 1, false); err != nil {
		return nil, err
	}
	if err := out.WriteUint(uint64(f.compression), 1, false); err != nil {
		return nil, err
	}
	if err := out.WriteUint(uint64(f.Version()), 4, false); err != nil {
		return nil, err
	}
	if err := out.WriteUint(uint64(f.UserVersion()), 4, false); err != nil {
		return nil, err
	}
	if err := out.WriteUint(uint64(len(order)), 4, false); err != nil {
		return nil, err
	}
	if err := out.WriteUint(uint64(len(typeNames)), 2, false); err != nil {
		return nil, err
	}
	for _, name := range typeNames {
		if err := out.WriteUint(uint64(len(name)), 2, false); err != nil {
			return nil, err
		}
		if err := out.WriteBytes([]byte(name)); err != nil {
			return nil, err
		}
	}
	for _, idx := range blockTypes {
		if err := out.WriteUint(uint64(idx), 2, false); err != nil {
			return nil, err
		}
	}

	var rootIndices []int64
	for _, r := range f.graph.Roots() {
		if r.WriteIndex >= 0 {
			rootIndices = append(rootIndices, r.WriteIndex)
		}
	}
	if err := out.WriteUint(uint64(len(rootIndices)), 4, false); err != nil {
		return nil, err
	}
	for _, idx := range rootIndices {
		if err := out.WriteUint(uint64(idx), 4, false); err != nil {
			return nil, err
		}
	}

	frame, err := cursor.Compress(payload.Bytes(), f.compression)
	if err != nil {
		return nil, err
	}
	if err := out.WriteBytes(frame); err != nil {
		return nil, err
	}

	f.logger.Debug("container written",
		slog.Int("blocks", len(order)),
		slog.Int("types", len(typeNames)),
		slog.String("compression", f.compression.String()),
	)
	return out.Bytes(), nil
}
