package usecase

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

var extensionKinds = map[string]domain.DocumentKind{
	".jpg":  domain.DocumentImage,
	".jpeg": domain.DocumentImage,
	".png":  domain.DocumentImage,
	".webp": domain.DocumentImage,
	".txt":  domain.DocumentText,
	".pdf":  domain.DocumentPDF,
}

var contentTypeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"text/plain":      ".txt",
	"application/pdf": ".pdf",
}

var extensionMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// RouteDocument maps a file extension to its handling strategy. Unknown or missing
// extensions are rejected rather than guessed.
func RouteDocument(ext string) (domain.DocumentKind, error) {
	normalized := normalizeExtension(ext)
	kind, ok := extensionKinds[normalized]
	if !ok {
		label := normalized
		if label == "" {
			label = "(none)"
		}
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFileType, label)
	}
	return kind, nil
}

// DocumentExtension picks the routing extension from the file URL path, falling back
// to the first content type that maps to an allow-listed extension.
func DocumentExtension(fileURL string, contentTypes ...string) string {
	if ext := urlExtension(fileURL); ext != "" {
		return ext
	}
	for _, contentType := range contentTypes {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(contentType))
		if err != nil {
			continue
		}
		if ext, ok := contentTypeExtensions[strings.ToLower(mediaType)]; ok {
			return ext
		}
	}
	return ""
}

func imageMimeType(ext string) string {
	if mimeType, ok := extensionMimeTypes[normalizeExtension(ext)]; ok {
		return mimeType
	}
	return "image/jpeg"
}

func urlExtension(fileURL string) string {
	raw := strings.TrimSpace(fileURL)
	if raw == "" {
		return ""
	}
	p := raw
	if parsed, err := url.Parse(raw); err == nil {
		p = parsed.Path
	}
	return normalizeExtension(path.Ext(p))
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
