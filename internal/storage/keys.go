package storage

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"docvault/internal/model"
)

var pathSegmentRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

// sanitizePathSegment strips traversal sequences and unsafe characters.
func sanitizePathSegment(segment string) string {
	segment = strings.Trim(segment, " /\\")
	segment = strings.ReplaceAll(segment, "..", "")
	segment = pathSegmentRegex.ReplaceAllString(segment, "_")
	return url.PathEscape(segment)
}

// NewKey builds a storage key for a new document.
// Format: {owner-kind}s/{owner-id}/{uuid}{ext}
// Both backends share this builder so a key never depends on where it lands.
func NewKey(owner model.Owner, fileName, mimeType string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext != "" {
		ext = "." + sanitizePathSegment(strings.TrimPrefix(ext, "."))
	}
	if ext == "." || ext == "" {
		ext = model.ExtFromMIME(mimeType)
	}
	if ext == "" {
		ext = ".bin"
	}

	return strings.Join([]string{
		string(owner.Kind) + "s",
		sanitizePathSegment(owner.ID),
		uuid.NewString() + ext,
	}, "/")
}

// validateKey rejects keys that are empty, absolute or contain traversal.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
