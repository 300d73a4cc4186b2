package tiffio

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"image"
	"math"
	"slices"
	"testing"

	"golang.org/x/image/tiff"

	"github.com/kirillkom/hdimage/internal/core/imaging"
)

func sampleArray(dtype imaging.DType, shape ...int) imaging.Array {
	n := 1
	for _, s := range shape {
		n *= s
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i % 200)
		if dtype == imaging.Int16 || dtype == imaging.Float32 {
			data[i] -= 100
		}
	}
	return imaging.Array{DType: dtype, Shape: shape, Data: data}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		arr  imaging.Array
		opts *Options
	}{
		{name: "uint8 5d", arr: sampleArray(imaging.Uint8, 2, 3, 4, 5, 6)},
		{name: "uint16 deflate", arr: sampleArray(imaging.Uint16, 3, 7, 9), opts: &Options{Deflate: true}},
		{name: "int16 4d", arr: sampleArray(imaging.Int16, 2, 2, 5, 5)},
		{name: "float32 plane", arr: sampleArray(imaging.Float32, 8, 3)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, tc.arr, tc.opts); err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := NewDecoder().Decode(&buf)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.DType != tc.arr.DType {
				t.Fatalf("expected dtype %s, got %s", tc.arr.DType, got.DType)
			}
			if !slices.Equal(got.Shape, tc.arr.Shape) {
				t.Fatalf("expected shape %v, got %v", tc.arr.Shape, got.Shape)
			}
			if !slices.Equal(got.Data, tc.arr.Data) {
				t.Fatalf("decoded samples differ")
			}
		})
	}
}

func TestDecodeStandardGrayscale(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 3))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 10)
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := NewDecoder().Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DType != imaging.Uint8 || !slices.Equal(got.Shape, []int{3, 4}) {
		t.Fatalf("unexpected %s %v", got.DType, got.Shape)
	}
	for i, v := range got.Data {
		if v != float64(i*10) {
			t.Fatalf("pixel %d: expected %d, got %v", i, i*10, v)
		}
	}
}

func TestEncodePlaneGray16(t *testing.T) {
	p := imaging.Plane{DType: imaging.Uint16, Height: 2, Width: 3, Data: []float64{0, 1, 256, 1000, 40000, 65535}}
	var buf bytes.Buffer
	if err := EncodePlane(&buf, p, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}

	img, err := tiff.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("standard decode: %v", err)
	}
	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("expected *image.Gray16, got %T", img)
	}
	if gray.Gray16At(2, 1).Y != 65535 || gray.Gray16At(2, 0).Y != 256 {
		t.Fatalf("unexpected pixel values")
	}

	got, err := NewDecoder().Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !slices.Equal(got.Data, p.Data) {
		t.Fatalf("expected %v, got %v", p.Data, got.Data)
	}
}

func TestEncodePlaneFloatKeepsSampleType(t *testing.T) {
	p := imaging.Plane{DType: imaging.Float64, Height: 1, Width: 3, Data: []float64{-1.5, 0, 3.25}}
	var buf bytes.Buffer
	if err := EncodePlane(&buf, p, &Options{Deflate: true}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := NewDecoder().Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DType != imaging.Float64 || !slices.Equal(got.Data, p.Data) {
		t.Fatalf("unexpected %s %v", got.DType, got.Data)
	}
}

func TestDecodeRejects(t *testing.T) {
	if _, err := NewDecoder().Decode(bytes.NewReader([]byte("not a tiff at all"))); !errors.Is(err, ErrNotTIFF) {
		t.Fatalf("expected ErrNotTIFF, got %v", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, sampleArray(imaging.Uint8, 2, 4, 4), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw := buf.Bytes()
	// point the first IFD back at itself through its next-IFD field
	first := binary.LittleEndian.Uint32(raw[4:])
	n := binary.LittleEndian.Uint16(raw[first:])
	binary.LittleEndian.PutUint32(raw[first+2+uint32(n)*12:], first)
	if _, err := NewDecoder().Decode(bytes.NewReader(raw)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for IFD loop, got %v", err)
	}

	if _, err := NewDecoder().Decode(bytes.NewReader(buf.Bytes()[:len(buf.Bytes())/2])); err == nil {
		t.Fatalf("expected truncated file to fail")
	}
}

func TestDecodeMaxPages(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleArray(imaging.Uint8, 5, 2, 2), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	d := &Decoder{MaxPages: 3}
	if _, err := d.Decode(&buf); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestUnpackBits(t *testing.T) {
	in := []byte{0xFE, 0xAA, 0x02, 0x80, 0x00, 0x2A, 0xFD, 0xAA, 0x03, 0x80, 0x00, 0x2A, 0x22, 0xF7, 0xAA}
	want := []byte{
		0xAA, 0xAA, 0xAA, 0x80, 0x00, 0x2A, 0xAA, 0xAA, 0xAA, 0xAA, 0x80, 0x00, 0x2A, 0x22,
		0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA,
	}
	got, err := unpackBits(in, 1<<20)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %x, got %x", want, got)
	}
	if _, err := unpackBits([]byte{0x05, 0x01}, 1<<20); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
	if got, err := unpackBits(in, 5); err != nil || len(got) != 5 {
		t.Fatalf("expected output capped at 5 bytes, got %d (%v)", len(got), err)
	}
}

func TestUndoHorizontalPredictor(t *testing.T) {
	raw := []byte{10, 1, 1, 1, 20, 2, 2, 2}
	if err := undoPredictor(raw, binary.LittleEndian, 2, 1, 1, 4); err != nil {
		t.Fatalf("predictor: %v", err)
	}
	if !bytes.Equal(raw, []byte{10, 11, 12, 13, 20, 22, 24, 26}) {
		t.Fatalf("unexpected rows %v", raw)
	}

	raw16 := make([]byte, 6)
	binary.LittleEndian.PutUint16(raw16[0:], 1000)
	binary.LittleEndian.PutUint16(raw16[2:], 5)
	binary.LittleEndian.PutUint16(raw16[4:], 65535)
	if err := undoPredictor(raw16, binary.LittleEndian, 2, 2, 1, 3); err != nil {
		t.Fatalf("predictor: %v", err)
	}
	if v := binary.LittleEndian.Uint16(raw16[4:]); v != 1004 {
		t.Fatalf("expected wrapped sum 1004, got %d", v)
	}

	if err := undoPredictor(raw, binary.LittleEndian, 3, 1, 1, 4); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestResolveShape(t *testing.T) {
	cases := []struct {
		name  string
		p     page
		pages int
		want  []int
	}{
		{
			name:  "single page",
			p:     page{width: 8, height: 6, samples: 1, planar: 1},
			pages: 1,
			want:  []int{6, 8},
		},
		{
			name:  "stacked pages",
			p:     page{width: 8, height: 6, samples: 1, planar: 1},
			pages: 4,
			want:  []int{4, 6, 8},
		},
		{
			name:  "rgb pages",
			p:     page{width: 8, height: 6, samples: 3, planar: 1},
			pages: 2,
			want:  []int{2, 3, 6, 8},
		},
		{
			name:  "json shape",
			p:     page{width: 8, height: 6, samples: 1, planar: 1, description: `{"shape": [2, 3, 6, 8]}`},
			pages: 6,
			want:  []int{2, 3, 6, 8},
		},
		{
			name:  "json shape with trailing samples",
			p:     page{width: 8, height: 6, samples: 3, planar: 1, description: `{"shape": [2, 6, 8, 3]}`},
			pages: 2,
			want:  []int{2, 3, 6, 8},
		},
		{
			name:  "json shape inconsistent with data",
			p:     page{width: 8, height: 6, samples: 1, planar: 1, description: `{"shape": [5, 6, 8]}`},
			pages: 4,
			want:  []int{4, 6, 8},
		},
		{
			name:  "imagej hyperstack",
			p:     page{width: 8, height: 6, samples: 1, planar: 1, description: "ImageJ=1.11a\nimages=6\nslices=3\nframes=2\nhyperstack=true\n"},
			pages: 6,
			want:  []int{2, 3, 1, 6, 8},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total := tc.pages * tc.p.samples * tc.p.width * tc.p.height
			if got := resolveShape(tc.p, tc.pages, total); !slices.Equal(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

type rawEntry struct {
	tag, typ uint16
	value    uint32
}

// rawTIFF writes a little-endian file with one IFD of single-valued entries
// followed by payload. The StripOffsets entry is pointed at the payload.
func rawTIFF(entries []rawEntry, payload []byte) []byte {
	ifdLen := 2 + len(entries)*12 + 4
	dataOffset := uint32(8 + ifdLen)
	buf := make([]byte, 8+ifdLen)
	copy(buf, "II")
	binary.LittleEndian.PutUint16(buf[2:], 42)
	binary.LittleEndian.PutUint32(buf[4:], 8)
	binary.LittleEndian.PutUint16(buf[8:], uint16(len(entries)))
	for i, e := range entries {
		at := buf[10+i*12:]
		binary.LittleEndian.PutUint16(at[0:], e.tag)
		binary.LittleEndian.PutUint16(at[2:], e.typ)
		binary.LittleEndian.PutUint32(at[4:], 1)
		v := e.value
		if e.tag == tagStripOffsets {
			v = dataOffset
		}
		if e.typ == 3 {
			binary.LittleEndian.PutUint16(at[8:], uint16(v))
		} else {
			binary.LittleEndian.PutUint32(at[8:], v)
		}
	}
	return append(buf, payload...)
}

func grayEntries(width, height, compression uint32, stripBytes int) []rawEntry {
	return []rawEntry{
		{tag: tagImageWidth, typ: 4, value: width},
		{tag: tagImageLength, typ: 4, value: height},
		{tag: tagBitsPerSample, typ: 3, value: 8},
		{tag: tagCompression, typ: 3, value: compression},
		{tag: tagStripOffsets, typ: 4},
		{tag: tagSamplesPerPixel, typ: 3, value: 1},
		{tag: tagRowsPerStrip, typ: 4, value: height},
		{tag: tagStripByteCounts, typ: 4, value: uint32(stripBytes)},
	}
}

func TestDecodeRejectsOversizedDeclarations(t *testing.T) {
	var deflated bytes.Buffer
	zw := zlib.NewWriter(&deflated)
	_, _ = zw.Write(make([]byte, 16))
	_ = zw.Close()

	cases := []struct {
		name string
		file []byte
		want error
	}{
		{
			name: "dimensions beyond element limit",
			file: rawTIFF(grayEntries(1<<20, 1<<20, compNone, 1), []byte{0}),
			want: ErrTooLarge,
		},
		{
			name: "uncompressed strip shorter than page",
			file: rawTIFF(grayEntries(4096, 4096, compNone, 1), []byte{0}),
			want: ErrCorrupt,
		},
		{
			name: "deflate strip shorter than page",
			file: rawTIFF(grayEntries(4096, 4096, compDeflate, deflated.Len()), deflated.Bytes()),
			want: ErrCorrupt,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewDecoder().Decode(bytes.NewReader(tc.file)); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeHonoursMaxElements(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, sampleArray(imaging.Uint8, 3, 4, 4), nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	d := &Decoder{MaxElements: 40}
	if _, err := d.Decode(bytes.NewReader(buf.Bytes())); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	d.MaxElements = 48
	if _, err := d.Decode(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("expected exact fit to decode, got %v", err)
	}
}

func TestDecodeRejectsHorizontalPredictorOnFloats(t *testing.T) {
	entries := []rawEntry{
		{tag: tagImageWidth, typ: 4, value: 2},
		{tag: tagImageLength, typ: 4, value: 1},
		{tag: tagBitsPerSample, typ: 3, value: 32},
		{tag: tagCompression, typ: 3, value: compNone},
		{tag: tagStripOffsets, typ: 4},
		{tag: tagSamplesPerPixel, typ: 3, value: 1},
		{tag: tagRowsPerStrip, typ: 4, value: 1},
		{tag: tagStripByteCounts, typ: 4, value: 8},
		{tag: tagPredictor, typ: 3, value: 2},
		{tag: tagSampleFormat, typ: 3, value: sampleFloat},
	}
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(payload[4:], math.Float32bits(2.5))

	if _, err := NewDecoder().Decode(bytes.NewReader(rawTIFF(entries, payload))); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	entries[8].value = 1
	got, err := NewDecoder().Decode(bytes.NewReader(rawTIFF(entries, payload)))
	if err != nil {
		t.Fatalf("decode without predictor: %v", err)
	}
	if got.DType != imaging.Float32 || !slices.Equal(got.Data, []float64{1.5, 2.5}) {
		t.Fatalf("unexpected %s %v", got.DType, got.Data)
	}
}
