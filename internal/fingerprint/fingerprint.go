package fingerprint

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned (wrapped) when image bytes cannot be decoded.
var ErrDecode = errors.New("cannot decode image")

const (
	dctSize  = 32 // pHash works on a 32x32 grayscale thumbnail
	lowFreq  = 8  // top-left 8x8 block of DCT coefficients
	hashBits = 64
)

// HashResult contains computed perceptual hashes for an image.
type HashResult struct {
	PHash     string `json:"phash"` // 64-bit perceptual hash as hex string
	DHash     string `json:"dhash"` // 64-bit difference hash as hex string
	PHashBits uint64 `json:"-"`
	DHashBits uint64 `json:"-"`
}

// ComputeHashes decodes image bytes and computes both pHash and dHash.
func ComputeHashes(imageData []byte) (*HashResult, error) {
	img, err := Decode(imageData)
	if err != nil {
		return nil, err
	}
	return HashImage(img), nil
}

// Decode decodes image bytes in any registered format.
func Decode(imageData []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image bounds", ErrDecode)
	}
	return img, nil
}

// HashImage computes pHash and dHash for an already decoded image.
func HashImage(img image.Image) *HashResult {
	p := computePHash(img)
	d := computeDHash(img)
	return &HashResult{
		PHash:     fmt.Sprintf("%016x", p),
		DHash:     fmt.Sprintf("%016x", d),
		PHashBits: p,
		DHashBits: d,
	}
}

// HammingDistance computes the Hamming distance between two 64-bit hashes.
func HammingDistance(hash1, hash2 uint64) int {
	return bits.OnesCount64(hash1 ^ hash2)
}

// Similar returns true if two hashes are within the given threshold.
// The duplicate gate uses 30; 5-10 is typical for exact re-encodes.
func Similar(hash1, hash2 uint64, threshold int) bool {
	return HammingDistance(hash1, hash2) <= threshold
}

// computePHash computes a 64-bit perceptual hash from the low frequencies of a
// 32x32 DCT, excluding the DC term.
func computePHash(img image.Image) uint64 {
	gray := grayMatrix(img, dctSize, dctSize)
	coeffs := dct2D(gray)

	values := make([]float64, 0, hashBits)
	for u := range lowFreq {
		for v := range lowFreq {
			if u == 0 && v == 0 {
				continue
			}
			values = append(values, coeffs[u][v])
		}
	}
	// 63 AC terms; the 64th bit comes from the next coefficient on row 0.
	values = append(values, coeffs[0][lowFreq])

	median := computeMedian(values)
	var hash uint64
	for i, v := range values {
		if v > median {
			hash |= 1 << (hashBits - 1 - i)
		}
	}
	return hash
}

// computeDHash computes a 64-bit difference hash over a 9x8 thumbnail.
func computeDHash(img image.Image) uint64 {
	gray := grayMatrix(img, 9, 8)

	var hash uint64
	bit := hashBits - 1
	for y := range 8 {
		for x := range 8 {
			if gray[y][x] > gray[y][x+1] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// grayMatrix scales img to width x height and returns luma values indexed [y][x].
func grayMatrix(img image.Image, width, height int) [][]float64 {
	dst := image.NewGray(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	out := make([][]float64, height)
	for y := range height {
		out[y] = make([]float64, width)
		for x := range width {
			out[y][x] = float64(dst.GrayAt(x, y).Y)
		}
	}
	return out
}

// dct2D computes a separable DCT-II of a square matrix (rows, then columns).
func dct2D(m [][]float64) [][]float64 {
	n := len(m)
	table := cosTable(n)

	rows := make([][]float64, n)
	for y := range n {
		rows[y] = dct1D(m[y], table)
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	col := make([]float64, n)
	for x := range n {
		for y := range n {
			col[y] = rows[y][x]
		}
		transformed := dct1D(col, table)
		for u := range n {
			out[u][x] = transformed[u]
		}
	}
	return out
}

func dct1D(in []float64, table [][]float64) []float64 {
	out := make([]float64, len(in))
	for u := range in {
		var sum float64
		for x, v := range in {
			sum += v * table[u][x]
		}
		out[u] = sum
	}
	return out
}

func cosTable(n int) [][]float64 {
	t := make([][]float64, n)
	for u := range n {
		t[u] = make([]float64, n)
		for x := range n {
			t[u][x] = math.Cos(math.Pi * float64(u) * (2*float64(x) + 1) / (2 * float64(n)))
		}
	}
	return t
}

// computeMedian returns the median value from a slice.
func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// ResizeImage fits an image within maxSize while keeping aspect ratio and
// returns JPEG-encoded bytes. Images already small enough are re-encoded as-is.
func ResizeImage(img image.Image, maxSize int) ([]byte, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	dst := img
	if width > maxSize || height > maxSize {
		var newWidth, newHeight int
		if width > height {
			newWidth = maxSize
			newHeight = max(1, int(float64(height)*float64(maxSize)/float64(width)))
		} else {
			newHeight = maxSize
			newWidth = max(1, int(float64(width)*float64(maxSize)/float64(height)))
		}
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		dst = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
