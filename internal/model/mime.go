package model

import "strings"

// MIMEOctetStream is the fallback content type for unknown payloads.
const MIMEOctetStream = "application/octet-stream"

var imageTypes = map[string]struct{}{
	"image/jpeg":    {},
	"image/png":     {},
	"image/gif":     {},
	"image/webp":    {},
	"image/bmp":     {},
	"image/tiff":    {},
	"image/heic":    {},
	"image/heif":    {},
	"image/svg+xml": {},
}

var mimeExtensions = map[string]string{
	"image/jpeg":         ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"image/webp":         ".webp",
	"image/bmp":          ".bmp",
	"image/tiff":         ".tiff",
	"image/heic":         ".heic",
	"image/heif":         ".heif",
	"image/svg+xml":      ".svg",
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain":      ".txt",
	"text/csv":        ".csv",
	"application/rtf": ".rtf",
}

// NormalizeMIME strips parameters such as charset and lowercases the type.
func NormalizeMIME(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.TrimSpace(strings.ToLower(mimeType))
}

// IsImageMIME reports whether mimeType is a recognised image type.
func IsImageMIME(mimeType string) bool {
	_, ok := imageTypes[NormalizeMIME(mimeType)]
	return ok
}

// ExtFromMIME returns the preferred file extension for a MIME type, or "".
func ExtFromMIME(mimeType string) string {
	return mimeExtensions[NormalizeMIME(mimeType)]
}

// MatchesMIME reports whether mimeType matches any pattern. Patterns may use
// a trailing wildcard such as "image/*".
func MatchesMIME(mimeType string, patterns []string) bool {
	mt := NormalizeMIME(mimeType)
	for _, p := range patterns {
		p = NormalizeMIME(p)
		if p == mt || p == "*/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, "/*"); ok && strings.HasPrefix(mt, prefix+"/") {
			return true
		}
	}
	return false
}
