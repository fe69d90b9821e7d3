package documents

import (
	"net/http"
	"path/filepath"
	"strings"
	"unicode"
)

const maxFilenameLength = 100

// allowedTypes maps each accepted extension to its canonical content type.
var allowedTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// ContentTypeFor returns the content type served for a stored filename.
func ContentTypeFor(filename string) string {
	if ct, ok := allowedTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// SanitizeFilename keeps letters, digits, dash, underscore and space from the
// base name, caps it at 100 characters and re-attaches the lower-cased extension.
func SanitizeFilename(name string) (string, string) {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.TrimSuffix(name, filepath.Ext(name))

	var b strings.Builder
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == ' ' {
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	if safe == "" {
		safe = "document"
	}
	if runes := []rune(safe); len(runes) > maxFilenameLength {
		safe = string(runes[:maxFilenameLength])
	}
	return safe + ext, ext
}

// contentMatches checks the declared content type against the extension and,
// for formats with a reliable signature, against the sniffed bytes.
func contentMatches(ext, declared string, head []byte) bool {
	expected, ok := allowedTypes[ext]
	if !ok {
		return false
	}

	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != expected {
		return false
	}

	switch ext {
	case ".pdf", ".png", ".jpg", ".jpeg":
		return http.DetectContentType(head) == expected
	default:
		return true
	}
}

func signedKey(key string) string {
	return strings.TrimSuffix(key, filepath.Ext(key)) + "_signed.pdf"
}
