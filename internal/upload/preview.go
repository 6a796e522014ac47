package upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
)

// sniffLen is how many leading bytes content-type detection needs.
const sniffLen = 512

// sniffMediaType detects a file's media type from its leading bytes. The
// file extension is not trusted — validation runs against actual content.
func sniffMediaType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, sniffLen)

	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", err
	}

	return http.DetectContentType(buf[:n]), nil
}

// derivePreview renders a file as a base64 data URL, the renderable
// encoding the presentation layer displays without touching the original
// file handle again.
func derivePreview(ctx context.Context, path, mediaType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
