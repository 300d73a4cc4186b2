package tiffio

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"sort"

	"golang.org/x/image/tiff"

	"github.com/kirillkom/hdimage/internal/core/domain"
	"github.com/kirillkom/hdimage/internal/core/imaging"
)

type Options struct {
	Deflate bool
}

// Encode writes arr as a little-endian multi-page TIFF, one page per
// trailing (height, width) plane, with the full shape stored as a JSON
// ImageDescription on the first page.
func Encode(w io.Writer, arr imaging.Array, opts *Options) error {
	if arr.Rank() < 2 {
		return domain.NewError(domain.ErrInvalidDimensionality, "cannot encode rank %d array", arr.Rank())
	}
	if !arr.DType.Valid() {
		return domain.NewError(domain.ErrInvalidInput, "invalid dtype")
	}
	height, width := arr.Shape[arr.Rank()-2], arr.Shape[arr.Rank()-1]
	planeLen := height * width
	if planeLen == 0 || len(arr.Data)%planeLen != 0 {
		return domain.NewError(domain.ErrInvalidInput, "data length %d does not fit shape %v", len(arr.Data), arr.Shape)
	}
	deflate := opts != nil && opts.Deflate

	desc, err := json.Marshal(struct {
		Shape []int `json:"shape"`
	}{arr.Shape})
	if err != nil {
		return err
	}
	desc = append(desc, 0)

	bo := binary.LittleEndian
	var out bytes.Buffer
	out.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})

	pages := len(arr.Data) / planeLen
	offsets := make([]uint32, pages)
	counts := make([]uint32, pages)
	for i := 0; i < pages; i++ {
		raw := floatToSamples(arr.Data[i*planeLen:(i+1)*planeLen], arr.DType, bo)
		if deflate {
			var zb bytes.Buffer
			zw := zlib.NewWriter(&zb)
			if _, err := zw.Write(raw); err != nil {
				return err
			}
			if err := zw.Close(); err != nil {
				return err
			}
			raw = zb.Bytes()
		}
		offsets[i] = uint32(out.Len())
		counts[i] = uint32(len(raw))
		out.Write(raw)
		if out.Len()%2 == 1 {
			out.WriteByte(0)
		}
	}

	descOffset := uint32(out.Len())
	out.Write(desc)
	if out.Len()%2 == 1 {
		out.WriteByte(0)
	}

	compression := uint32(compNone)
	if deflate {
		compression = compDeflate
	}
	format := uint32(sampleUint)
	switch arr.DType {
	case imaging.Int8, imaging.Int16, imaging.Int32:
		format = sampleInt
	case imaging.Float32, imaging.Float64:
		format = sampleFloat
	}

	prevNext := uint32(4)
	for i := 0; i < pages; i++ {
		entries := []ifdEntry{
			{tagImageWidth, 4, 1, uint32(width)},
			{tagImageLength, 4, 1, uint32(height)},
			{tagBitsPerSample, 3, 1, uint32(arr.DType.Size() * 8)},
			{tagCompression, 3, 1, compression},
			{262, 3, 1, 1},
			{tagStripOffsets, 4, 1, offsets[i]},
			{tagSamplesPerPixel, 3, 1, 1},
			{tagRowsPerStrip, 4, 1, uint32(height)},
			{tagStripByteCounts, 4, 1, counts[i]},
			{tagPlanarConfig, 3, 1, 1},
			{tagSampleFormat, 3, 1, format},
		}
		if i == 0 {
			entries = append(entries, ifdEntry{tagImageDesc, 2, uint32(len(desc)), descOffset})
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].tag < entries[b].tag })

		ifdOffset := uint32(out.Len())
		bo.PutUint32(out.Bytes()[prevNext:], ifdOffset)

		var tmp [12]byte
		bo.PutUint16(tmp[:2], uint16(len(entries)))
		out.Write(tmp[:2])
		for _, e := range entries {
			bo.PutUint16(tmp[0:], e.tag)
			bo.PutUint16(tmp[2:], e.typ)
			bo.PutUint32(tmp[4:], e.count)
			bo.PutUint32(tmp[8:], 0)
			if e.typ == 3 {
				bo.PutUint16(tmp[8:], uint16(e.value))
			} else {
				bo.PutUint32(tmp[8:], e.value)
			}
			out.Write(tmp[:])
		}
		prevNext = uint32(out.Len())
		out.Write([]byte{0, 0, 0, 0})
	}

	_, err = w.Write(out.Bytes())
	return err
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value uint32
}

// EncodePlane writes one slice as a single-page TIFF. 8- and 16-bit
// unsigned planes go through the standard grayscale encoder; other sample
// types keep their native representation.
func EncodePlane(w io.Writer, p imaging.Plane, opts *Options) error {
	compression := tiff.Uncompressed
	if opts != nil && opts.Deflate {
		compression = tiff.Deflate
	}
	rect := image.Rect(0, 0, p.Width, p.Height)
	switch p.DType {
	case imaging.Uint8:
		img := image.NewGray(rect)
		for i, v := range p.Data {
			img.Pix[i] = uint8(v)
		}
		return tiff.Encode(w, img, &tiff.Options{Compression: compression})
	case imaging.Uint16:
		img := image.NewGray16(rect)
		for i, v := range p.Data {
			u := uint16(v)
			img.Pix[2*i] = uint8(u >> 8)
			img.Pix[2*i+1] = uint8(u)
		}
		return tiff.Encode(w, img, &tiff.Options{Compression: compression})
	default:
		arr := imaging.Array{DType: p.DType, Shape: []int{p.Height, p.Width}, Data: p.Data}
		if err := Encode(w, arr, opts); err != nil {
			return fmt.Errorf("encode %s plane: %w", p.DType, err)
		}
		return nil
	}
}

func floatToSamples(vals []float64, dtype imaging.DType, bo binary.ByteOrder) []byte {
	bps := dtype.Size()
	out := make([]byte, len(vals)*bps)
	for i, v := range vals {
		b := out[i*bps:]
		switch dtype {
		case imaging.Uint8:
			b[0] = uint8(v)
		case imaging.Int8:
			b[0] = uint8(int8(v))
		case imaging.Uint16:
			bo.PutUint16(b, uint16(v))
		case imaging.Int16:
			bo.PutUint16(b, uint16(int16(v)))
		case imaging.Uint32:
			bo.PutUint32(b, uint32(v))
		case imaging.Int32:
			bo.PutUint32(b, uint32(int32(v)))
		case imaging.Float32:
			bo.PutUint32(b, math.Float32bits(float32(v)))
		case imaging.Float64:
			bo.PutUint64(b, math.Float64bits(v))
		}
	}
	return out
}
