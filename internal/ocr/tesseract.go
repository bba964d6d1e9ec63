package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	defaultTesseractCmd = "tesseract"
	// page segmentation mode 6: assume a single uniform block of text
	defaultTesseractPSM = 6
)

// TesseractExtractor runs the tesseract CLI. The image is piped through stdin
// so no temporary files are written.
type TesseractExtractor struct {
	command string
	psm     int
}

// NewTesseractExtractor creates an extractor that runs the given tesseract
// binary (default "tesseract" from PATH).
func NewTesseractExtractor(command string) *TesseractExtractor {
	if command == "" {
		command = defaultTesseractCmd
	}
	return &TesseractExtractor{command: command, psm: defaultTesseractPSM}
}

// Name returns the extractor name.
func (t *TesseractExtractor) Name() string {
	return "tesseract"
}

// ExtractText runs tesseract on the image.
func (t *TesseractExtractor) ExtractText(ctx context.Context, imageData []byte, lang string) (string, error) {
	if len(imageData) == 0 {
		return "", errors.New("empty image data")
	}
	args := []string{"stdin", "stdout", "--psm", strconv.Itoa(t.psm)}
	if lang != "" {
		args = append(args, "-l", lang)
	}

	cmd := exec.CommandContext(ctx, t.command, args...)
	cmd.Stdin = bytes.NewReader(imageData)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
