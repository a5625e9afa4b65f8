// Package attachment turns encoded file payloads into files on disk.
package attachment

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vincent-petithory/dataurl"

	"extranef/internal/nef"
)

// ErrInvalidPayload is returned for payloads that are not data URLs.
var ErrInvalidPayload = errors.New("invalid encoded payload")

// Fallback names used when sanitizing leaves nothing.
const (
	DefaultName         = "sem-nome"
	DefaultEmployeeName = "Funcionario"
	DefaultFileName     = "certificate"
)

// Payload is a decoded data URL.
type Payload struct {
	MediaType string
	Data      []byte
}

// ParsePayload decodes a data URL of the form
// "data:<media-type>[;base64],<body>". Unpadded base64 bodies are accepted.
func ParsePayload(encoded string) (*Payload, error) {
	du, err := dataurl.DecodeString(padBase64(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &Payload{MediaType: strings.ToLower(du.ContentType()), Data: du.Data}, nil
}

// padBase64 restores the trailing '=' that some encoders drop from a base64
// body. Other inputs are returned unchanged.
func padBase64(s string) string {
	comma := strings.Index(s, ",")
	if comma < 0 || !strings.HasSuffix(strings.ToLower(s[:comma]), ";base64") {
		return s
	}
	if rem := (len(s) - comma - 1) % 4; rem != 0 {
		return s + strings.Repeat("=", 4-rem)
	}
	return s
}

// MimeType maps a payload media type onto the types the pipeline uploads
// with: pdf, png and jpeg, or application/octet-stream.
func MimeType(mediaType string) string {
	switch {
	case strings.Contains(mediaType, "application/pdf"):
		return "application/pdf"
	case strings.Contains(mediaType, "image/png"):
		return "image/png"
	case strings.Contains(mediaType, "image/jpeg"), strings.Contains(mediaType, "image/jpg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension, dot included, for a media type.
func Extension(mediaType string) string {
	switch MimeType(mediaType) {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}

var (
	illegalChars = regexp.MustCompile(`[<>:"/\\|?*]+`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// SanitizeName strips characters that are illegal in file names, trims and
// collapses whitespace. Empty results, "." and ".." become DefaultName.
func SanitizeName(name string) string {
	s := illegalChars.ReplaceAllString(name, "")
	s = controlChars.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" || s == "." || s == ".." {
		return DefaultName
	}
	return s
}

// FolderName is the sanitized per-employee folder name.
func FolderName(employeeName string) string {
	if strings.TrimSpace(employeeName) == "" {
		employeeName = DefaultEmployeeName
	}
	return SanitizeName(employeeName)
}

// BuildFileName returns "<ts>-<recordID>-<base><ext>". The extension comes
// from originalName when it has one, otherwise from mediaType. An empty
// recordID is replaced by the millisecond timestamp.
func BuildFileName(ts time.Time, recordID, originalName, mediaType string) string {
	if strings.TrimSpace(originalName) == "" {
		originalName = DefaultFileName
	}
	orig := SanitizeName(originalName)
	ext := filepath.Ext(orig)
	base := strings.TrimSuffix(orig, ext)
	if ext == "" || ext == "." {
		ext = Extension(mediaType)
	}
	if base == "" {
		base = DefaultFileName
	}

	id := illegalChars.ReplaceAllString(recordID, "")
	if id == "" {
		id = strconv.FormatInt(ts.UnixMilli(), 10)
	}
	return fmt.Sprintf("%s-%s-%s%s", nef.FileTimestamp(ts), id, base, ext)
}
