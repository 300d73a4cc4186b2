package tiffio

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/image/tiff/lzw"

	"github.com/kirillkom/hdimage/internal/core/imaging"
)

var (
	ErrNotTIFF     = errors.New("tiffio: not a TIFF file")
	ErrUnsupported = errors.New("tiffio: unsupported TIFF feature")
	ErrCorrupt     = errors.New("tiffio: corrupt TIFF data")
	ErrTooLarge    = errors.New("tiffio: image exceeds the element limit")
)

const (
	defaultMaxPages    = 1 << 16
	defaultMaxElements = 1 << 27
)

// Decoder reads every page of a TIFF file into one dense array. The array
// shape is taken from a shaped or ImageJ ImageDescription when present and
// consistent with the page data; otherwise pages stack along a leading axis.
//
// MaxElements bounds the total sample count a file may declare.
type Decoder struct {
	MaxPages    int
	MaxElements int
}

func NewDecoder() *Decoder {
	return &Decoder{MaxPages: defaultMaxPages, MaxElements: defaultMaxElements}
}

func (d *Decoder) Decode(r io.Reader) (imaging.Array, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return imaging.Array{}, fmt.Errorf("read tiff: %w", err)
	}
	maxPages := d.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	maxElements := d.MaxElements
	if maxElements <= 0 {
		maxElements = defaultMaxElements
	}

	bo, pages, err := parseFile(buf, maxPages)
	if err != nil {
		return imaging.Array{}, err
	}
	first := pages[0]
	dtype, err := first.dtype()
	if err != nil {
		return imaging.Array{}, err
	}

	pageLen, err := elementCount(maxElements, first.width, first.height, first.samples)
	if err != nil {
		return imaging.Array{}, err
	}
	if _, err := elementCount(maxElements, pageLen, len(pages)); err != nil {
		return imaging.Array{}, err
	}
	for i, p := range pages {
		if p.width != first.width || p.height != first.height || p.samples != first.samples ||
			p.bits != first.bits || p.sampleFormat != first.sampleFormat {
			return imaging.Array{}, fmt.Errorf("%w: page %d differs from page 0 in size or sample layout", ErrUnsupported, i)
		}
		if err := p.validate(len(buf), pageLen*dtype.Size()); err != nil {
			return imaging.Array{}, fmt.Errorf("page %d: %w", i, err)
		}
	}

	var data []float64
	for i, p := range pages {
		vals, err := p.decode(buf, bo, dtype)
		if err != nil {
			return imaging.Array{}, fmt.Errorf("page %d: %w", i, err)
		}
		data = append(data, vals...)
	}

	shape := resolveShape(first, len(pages), len(data))
	return imaging.Array{DType: dtype, Shape: shape, Data: data}, nil
}

// elementCount multiplies declared dimensions and fails as soon as the
// product exceeds limit.
func elementCount(limit int, dims ...int) (int, error) {
	n := 1
	for _, d := range dims {
		if d <= 0 {
			return 0, fmt.Errorf("%w: dimension %d", ErrCorrupt, d)
		}
		if n > limit/d {
			return 0, fmt.Errorf("%w: more than %d samples declared", ErrTooLarge, limit)
		}
		n *= d
	}
	return n, nil
}

type page struct {
	width, height int
	bits          int
	samples       int
	compression   int
	predictor     int
	planar        int
	sampleFormat  int
	rowsPerStrip  int
	stripOffsets  []uint64
	stripCounts   []uint64
	description   string
	tiled         bool
}

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagImageDesc       = 270
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagSampleFormat    = 339

	compNone     = 1
	compLZW      = 5
	compDeflate  = 8
	compPackBits = 32773
	compDeflateO = 32946

	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

var typeSizes = map[uint16]uint64{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8, 16: 8,
}

func parseFile(buf []byte, maxPages int) (binary.ByteOrder, []page, error) {
	if len(buf) < 8 {
		return nil, nil, ErrNotTIFF
	}
	var bo binary.ByteOrder
	switch string(buf[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, nil, ErrNotTIFF
	}
	switch bo.Uint16(buf[2:4]) {
	case 42:
	case 43:
		return nil, nil, fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return nil, nil, ErrNotTIFF
	}

	var pages []page
	seen := make(map[uint64]bool)
	offset := uint64(bo.Uint32(buf[4:8]))
	for offset != 0 {
		if seen[offset] {
			return nil, nil, fmt.Errorf("%w: IFD loop at offset %d", ErrCorrupt, offset)
		}
		seen[offset] = true
		if len(pages) >= maxPages {
			return nil, nil, fmt.Errorf("%w: more than %d pages", ErrUnsupported, maxPages)
		}
		p, next, err := parseIFD(buf, bo, offset)
		if err != nil {
			return nil, nil, err
		}
		pages = append(pages, p)
		offset = next
	}
	if len(pages) == 0 {
		return nil, nil, fmt.Errorf("%w: no pages", ErrCorrupt)
	}
	return bo, pages, nil
}

func parseIFD(buf []byte, bo binary.ByteOrder, offset uint64) (page, uint64, error) {
	if offset+2 > uint64(len(buf)) {
		return page{}, 0, fmt.Errorf("%w: IFD offset %d beyond file", ErrCorrupt, offset)
	}
	n := uint64(bo.Uint16(buf[offset:]))
	end := offset + 2 + n*12
	if end+4 > uint64(len(buf)) {
		return page{}, 0, fmt.Errorf("%w: truncated IFD at %d", ErrCorrupt, offset)
	}

	p := page{
		bits:         1,
		samples:      1,
		compression:  compNone,
		predictor:    1,
		planar:       1,
		sampleFormat: sampleUint,
	}
	for i := uint64(0); i < n; i++ {
		entry := buf[offset+2+i*12 : offset+2+(i+1)*12]
		tag := bo.Uint16(entry[0:2])
		raw, typ, err := entryData(buf, bo, entry)
		if err != nil {
			return page{}, 0, fmt.Errorf("tag %d: %w", tag, err)
		}
		switch tag {
		case tagImageDesc:
			p.description = string(bytes.TrimRight(raw, "\x00"))
			continue
		case tagTileWidth:
			p.tiled = true
			continue
		}
		vals := entryUints(raw, typ, bo)
		if len(vals) == 0 {
			continue
		}
		switch tag {
		case tagImageWidth:
			p.width = int(vals[0])
		case tagImageLength:
			p.height = int(vals[0])
		case tagBitsPerSample:
			p.bits = int(vals[0])
			for _, b := range vals[1:] {
				if int(b) != p.bits {
					return page{}, 0, fmt.Errorf("%w: mixed bits per sample", ErrUnsupported)
				}
			}
		case tagCompression:
			p.compression = int(vals[0])
		case tagSamplesPerPixel:
			p.samples = int(vals[0])
		case tagRowsPerStrip:
			p.rowsPerStrip = int(vals[0])
		case tagStripOffsets:
			p.stripOffsets = vals
		case tagStripByteCounts:
			p.stripCounts = vals
		case tagPlanarConfig:
			p.planar = int(vals[0])
		case tagPredictor:
			p.predictor = int(vals[0])
		case tagSampleFormat:
			p.sampleFormat = int(vals[0])
		}
	}
	if p.width <= 0 || p.height <= 0 {
		return page{}, 0, fmt.Errorf("%w: missing image dimensions", ErrCorrupt)
	}
	if p.samples <= 0 {
		return page{}, 0, fmt.Errorf("%w: samples per pixel %d", ErrCorrupt, p.samples)
	}
	if p.rowsPerStrip <= 0 || p.rowsPerStrip > p.height {
		p.rowsPerStrip = p.height
	}
	return p, uint64(bo.Uint32(buf[end:])), nil
}

func entryData(buf []byte, bo binary.ByteOrder, entry []byte) ([]byte, uint16, error) {
	typ := bo.Uint16(entry[2:4])
	count := uint64(bo.Uint32(entry[4:8]))
	size, ok := typeSizes[typ]
	if !ok {
		return nil, typ, nil
	}
	total := size * count
	if total <= 4 {
		return entry[8 : 8+total], typ, nil
	}
	off := uint64(bo.Uint32(entry[8:12]))
	if off+total > uint64(len(buf)) {
		return nil, typ, fmt.Errorf("%w: value at %d beyond file", ErrCorrupt, off)
	}
	return buf[off : off+total], typ, nil
}

func entryUints(raw []byte, typ uint16, bo binary.ByteOrder) []uint64 {
	var out []uint64
	switch typ {
	case 1, 7:
		for _, b := range raw {
			out = append(out, uint64(b))
		}
	case 3:
		for i := 0; i+2 <= len(raw); i += 2 {
			out = append(out, uint64(bo.Uint16(raw[i:])))
		}
	case 4:
		for i := 0; i+4 <= len(raw); i += 4 {
			out = append(out, uint64(bo.Uint32(raw[i:])))
		}
	case 16:
		for i := 0; i+8 <= len(raw); i += 8 {
			out = append(out, bo.Uint64(raw[i:]))
		}
	}
	return out
}

func (p page) dtype() (imaging.DType, error) {
	switch {
	case p.sampleFormat == sampleUint && p.bits == 8:
		return imaging.Uint8, nil
	case p.sampleFormat == sampleInt && p.bits == 8:
		return imaging.Int8, nil
	case p.sampleFormat == sampleUint && p.bits == 16:
		return imaging.Uint16, nil
	case p.sampleFormat == sampleInt && p.bits == 16:
		return imaging.Int16, nil
	case p.sampleFormat == sampleUint && p.bits == 32:
		return imaging.Uint32, nil
	case p.sampleFormat == sampleInt && p.bits == 32:
		return imaging.Int32, nil
	case p.sampleFormat == sampleFloat && p.bits == 32:
		return imaging.Float32, nil
	case p.sampleFormat == sampleFloat && p.bits == 64:
		return imaging.Float64, nil
	default:
		return imaging.DTypeInvalid, fmt.Errorf("%w: %d-bit samples with sample format %d", ErrUnsupported, p.bits, p.sampleFormat)
	}
}

// validate checks the strip layout against the file before any page buffer
// is allocated. Uncompressed strips must hold the whole page.
func (p page) validate(fileLen, want int) error {
	if p.tiled {
		return fmt.Errorf("%w: tiled pages", ErrUnsupported)
	}
	if len(p.stripOffsets) == 0 || len(p.stripOffsets) != len(p.stripCounts) {
		return fmt.Errorf("%w: strip offsets/byte counts mismatch", ErrCorrupt)
	}
	if p.planar != 1 && p.planar != 2 {
		return fmt.Errorf("%w: planar configuration %d", ErrUnsupported, p.planar)
	}
	if p.predictor == 2 && p.sampleFormat == sampleFloat {
		return fmt.Errorf("%w: horizontal predictor on floating-point samples", ErrUnsupported)
	}
	var stored uint64
	for i, off := range p.stripOffsets {
		n := p.stripCounts[i]
		if off > uint64(fileLen) || n > uint64(fileLen)-off {
			return fmt.Errorf("%w: strip %d beyond file", ErrCorrupt, i)
		}
		stored += n
	}
	if p.compression == compNone && stored < uint64(want) {
		return fmt.Errorf("%w: page stores %d bytes, want %d", ErrCorrupt, stored, want)
	}
	return nil
}

// decode returns the page's samples in (sample, row, column) order. The page
// must have passed validate.
func (p page) decode(buf []byte, bo binary.ByteOrder, dtype imaging.DType) ([]float64, error) {
	bps := dtype.Size()
	want := p.width * p.height * p.samples * bps
	var raw []byte
	for i, off := range p.stripOffsets {
		if len(raw) >= want {
			break
		}
		n := p.stripCounts[i]
		strip, err := decompress(buf[off:off+n], p.compression, want-len(raw))
		if err != nil {
			return nil, fmt.Errorf("strip %d: %w", i, err)
		}
		raw = append(raw, strip...)
	}
	if len(raw) < want {
		return nil, fmt.Errorf("%w: page holds %d bytes, want %d", ErrCorrupt, len(raw), want)
	}

	stride := p.samples
	rowLen := p.width * p.samples
	if p.planar == 2 {
		stride, rowLen = 1, p.width
	}
	if err := undoPredictor(raw, bo, p.predictor, bps, stride, rowLen); err != nil {
		return nil, err
	}

	vals := samplesToFloat(raw, bo, dtype)
	if p.samples == 1 || p.planar == 2 {
		return vals, nil
	}
	plane := p.width * p.height
	out := make([]float64, len(vals))
	for px := 0; px < plane; px++ {
		for s := 0; s < p.samples; s++ {
			out[s*plane+px] = vals[px*p.samples+s]
		}
	}
	return out, nil
}

// decompress inflates one strip, stopping after limit bytes.
func decompress(data []byte, compression, limit int) ([]byte, error) {
	switch compression {
	case compNone:
		return data[:min(len(data), limit)], nil
	case compLZW:
		rc := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer rc.Close()
		return io.ReadAll(io.LimitReader(rc, int64(limit)))
	case compDeflate, compDeflateO:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: deflate: %v", ErrCorrupt, err)
		}
		defer zr.Close()
		return io.ReadAll(io.LimitReader(zr, int64(limit)))
	case compPackBits:
		return unpackBits(data, limit)
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, compression)
	}
}

func unpackBits(data []byte, limit int) ([]byte, error) {
	var out []byte
	for i := 0; i < len(data) && len(out) < limit; {
		n := int(int8(data[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(data) {
				return nil, fmt.Errorf("%w: packbits literal run", ErrCorrupt)
			}
			out = append(out, data[i:i+n+1]...)
			i += n + 1
		case n != -128:
			if i >= len(data) {
				return nil, fmt.Errorf("%w: packbits repeat run", ErrCorrupt)
			}
			for j := 0; j < 1-n; j++ {
				out = append(out, data[i])
			}
			i++
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// undoPredictor reverses horizontal differencing in place.
func undoPredictor(raw []byte, bo binary.ByteOrder, predictor, bps, stride, rowLen int) error {
	switch predictor {
	case 1:
		return nil
	case 2:
	default:
		return fmt.Errorf("%w: predictor %d", ErrUnsupported, predictor)
	}

	rowBytes := rowLen * bps
	for start := 0; start+rowBytes <= len(raw); start += rowBytes {
		row := raw[start : start+rowBytes]
		for i := stride; i < rowLen; i++ {
			cur, prev := row[i*bps:], row[(i-stride)*bps:]
			switch bps {
			case 1:
				cur[0] += prev[0]
			case 2:
				bo.PutUint16(cur, bo.Uint16(cur)+bo.Uint16(prev))
			case 4:
				bo.PutUint32(cur, bo.Uint32(cur)+bo.Uint32(prev))
			default:
				return fmt.Errorf("%w: predictor with %d-byte samples", ErrUnsupported, bps)
			}
		}
	}
	return nil
}

func samplesToFloat(raw []byte, bo binary.ByteOrder, dtype imaging.DType) []float64 {
	bps := dtype.Size()
	out := make([]float64, len(raw)/bps)
	for i := range out {
		b := raw[i*bps:]
		switch dtype {
		case imaging.Uint8:
			out[i] = float64(b[0])
		case imaging.Int8:
			out[i] = float64(int8(b[0]))
		case imaging.Uint16:
			out[i] = float64(bo.Uint16(b))
		case imaging.Int16:
			out[i] = float64(int16(bo.Uint16(b)))
		case imaging.Uint32:
			out[i] = float64(bo.Uint32(b))
		case imaging.Int32:
			out[i] = float64(int32(bo.Uint32(b)))
		case imaging.Float32:
			out[i] = float64(math.Float32frombits(bo.Uint32(b)))
		case imaging.Float64:
			out[i] = math.Float64frombits(bo.Uint64(b))
		}
	}
	return out
}
