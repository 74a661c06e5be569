package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/Rrens/med-analyzer/internal/security"
	"github.com/rs/zerolog/log"
)

// ErrUnsupported is returned for document types no converter handles
var ErrUnsupported = errors.New("unsupported document type")

// Convertible reports whether a converter exists for mime
func Convertible(mime string) bool {
	switch mime {
	case "application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.oasis.opendocument.text",
		"application/rtf", "text/rtf",
		"text/html", "text/xml", "application/xml":
		return true
	}
	return false
}

// Cache stores extracted text by content digest
type Cache interface {
	Get(ctx context.Context, digest string) (string, bool, error)
	Set(ctx context.Context, digest, text string) error
}

// Extractor converts uploaded documents to plain text
type Extractor struct {
	cache       Cache
	readability bool
}

// NewExtractor creates an extractor; cache may be nil
func NewExtractor(cache Cache, readability bool) *Extractor {
	return &Extractor{cache: cache, readability: readability}
}

// Digest returns the hex sha256 of data
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Extract returns sanitized text for data of the given mime type
func (e *Extractor) Extract(ctx context.Context, data []byte, mime string) (string, error) {
	digest := Digest(data)

	if e.cache != nil {
		text, ok, err := e.cache.Get(ctx, digest)
		if err != nil {
			log.Warn().Err(err).Msg("Extraction cache read failed")
		} else if ok {
			log.Debug().Str("digest", digest).Msg("Extraction cache hit")
			return text, nil
		}
	}

	raw, err := e.convert(ctx, data, mime)
	if err != nil {
		return "", err
	}
	text := security.SanitizeText(raw)

	if e.cache != nil && text != "" {
		if err := e.cache.Set(ctx, digest, text); err != nil {
			log.Warn().Err(err).Msg("Extraction cache write failed")
		}
	}

	return text, nil
}

func (e *Extractor) convert(ctx context.Context, data []byte, mime string) (string, error) {
	if IsPlainText(mime) {
		if !utf8.Valid(data) {
			return string(bytes.ToValidUTF8(data, []byte("�"))), nil
		}
		return string(data), nil
	}
	if !Convertible(mime) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mime)
	}

	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		res, err := docconv.Convert(bytes.NewReader(data), mime, e.readability)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{body: res.Body}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", mime, r.err)
		}
		return r.body, nil
	}
}
