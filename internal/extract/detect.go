package extract

import (
	"path/filepath"
	"strings"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".gif":  "image/gif",
}

var textExtensions = map[string]string{
	".txt":  "text/plain",
	".md":   "text/plain",
	".csv":  "text/plain",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "application/rtf",
	".html": "text/html",
	".htm":  "text/html",
	".xml":  "text/xml",
}

// Detect classifies an upload as image or text from its content, falling
// back to the file extension when the content is inconclusive.
func Detect(data []byte, filename string) (domain.DocumentCategory, string) {
	ext := strings.ToLower(filepath.Ext(filename))
	detected := mimetype.Detect(data)
	mime := detected.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}

	if strings.HasPrefix(mime, "image/") {
		return domain.DocumentImage, mime
	}
	if m, ok := imageExtensions[ext]; ok {
		return domain.DocumentImage, m
	}

	// Office formats sniff as zip or generic OLE; the extension is more precise.
	if m, ok := textExtensions[ext]; ok && (isGeneric(mime) || detected.Is("application/zip")) {
		return domain.DocumentText, m
	}
	return domain.DocumentText, mime
}

func isGeneric(mime string) bool {
	switch mime {
	case "", "application/octet-stream", "text/plain", "application/x-ole-storage":
		return true
	}
	return false
}

// IsPlainText reports whether mime can be read without conversion
func IsPlainText(mime string) bool {
	return mime == "text/plain" || mime == "text/csv" || mime == "text/markdown"
}
