package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/xxxsen/quizpack/internal/model"
)

type MediaClass string

const (
	MediaImage MediaClass = "image"
	MediaAudio MediaClass = "audio"
	MediaVideo MediaClass = "video"
)

var mediaExts = map[string]MediaClass{
	".png":  MediaImage,
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".gif":  MediaImage,
	".bmp":  MediaImage,
	".webp": MediaImage,
	".svg":  MediaImage,
	".mp3":  MediaAudio,
	".ogg":  MediaAudio,
	".wav":  MediaAudio,
	".m4a":  MediaAudio,
	".mp4":  MediaVideo,
	".webm": MediaVideo,
	".mov":  MediaVideo,
}

// ClassifyMedia reports the media class of a file name, false when the
// extension is not on the allow-list.
func ClassifyMedia(name string) (MediaClass, bool) {
	class, ok := mediaExts[strings.ToLower(filepath.Ext(name))]
	return class, ok
}

// writeMedia stores data in workDir under a generated name.
func writeMedia(workDir, origName string, data []byte) (model.Image, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return model.Image{}, fmt.Errorf("create work dir: %w", err)
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(origName))
	full := filepath.Join(workDir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return model.Image{}, fmt.Errorf("write media: %w", err)
	}
	return model.Image{
		Name:        name,
		Path:        full,
		ContentType: mimetype.Detect(data).String(),
	}, nil
}
