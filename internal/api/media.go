package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/wppbridge/internal/wa"
)

// saveMedia writes data under dir with a generated name that keeps the
// original extension, and returns that name.
func saveMedia(dir, original string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filepath.Base(original)))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
		return "", fmt.Errorf("write media: %w", err)
	}
	return name, nil
}

func kindFromMIME(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return wa.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return wa.MediaVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return wa.MediaAudio
	default:
		return wa.MediaDocument
	}
}
