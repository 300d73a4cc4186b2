package tiffio

import (
	"bufio"
	"encoding/json"
	"strconv"
	"strings"
)

// resolveShape picks the array shape for decoded data laid out as
// (page, sample, row, column).
func resolveShape(first page, pages, total int) []int {
	if shape := describedShape(first); shape != nil && product(shape) == total {
		return shape
	}
	shape := make([]int, 0, 4)
	if pages > 1 {
		shape = append(shape, pages)
	}
	if first.samples > 1 {
		shape = append(shape, first.samples)
	}
	return append(shape, first.height, first.width)
}

func describedShape(p page) []int {
	desc := strings.TrimSpace(p.description)
	switch {
	case strings.HasPrefix(desc, "{"):
		return jsonShape(desc, p)
	case strings.HasPrefix(desc, "ImageJ="):
		if p.samples > 1 {
			return nil
		}
		return imageJShape(desc, p)
	default:
		return nil
	}
}

func jsonShape(desc string, p page) []int {
	var meta struct {
		Shape []int `json:"shape"`
	}
	if err := json.Unmarshal([]byte(desc), &meta); err != nil || len(meta.Shape) < 2 {
		return nil
	}
	shape := meta.Shape
	n := len(shape)
	// interleaved samples are described as a trailing axis
	if p.samples > 1 && p.planar == 1 && n >= 3 &&
		shape[n-1] == p.samples && shape[n-3] == p.height && shape[n-2] == p.width {
		out := append([]int(nil), shape[:n-3]...)
		return append(out, p.samples, p.height, p.width)
	}
	return shape
}

// imageJShape reads hyperstack counts and always yields the full
// (frames, slices, channels, height, width) shape so that positions keep
// their axis meaning.
func imageJShape(desc string, p page) []int {
	counts := map[string]int{"frames": 1, "slices": 1, "channels": 1}
	sc := bufio.NewScanner(strings.NewReader(desc))
	found := false
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		if _, tracked := counts[key]; !tracked {
			continue
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return nil
		}
		counts[key] = n
		found = true
	}
	if !found {
		return nil
	}
	return []int{counts["frames"], counts["slices"], counts["channels"], p.height, p.width}
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		if s <= 0 {
			return -1
		}
		n *= s
	}
	return n
}
