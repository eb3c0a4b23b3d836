// Package intake turns an uploaded file into editable script text.
package intake

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joelkehle/objection-desk/internal/metrics"
)

const MaxUploadBytes = 20 * 1024 * 1024

const (
	KindRich = "rich"
	KindPDF  = "pdf"
	KindText = "text"
)

var (
	ErrEmptyUpload = eris.New("uploaded file is empty")
	ErrTooLarge    = eris.New("uploaded file is too large")
	ErrNotText     = eris.New("file is not valid UTF-8 text")
	ErrNoText      = eris.New("no extractable text found")
)

// richExtensions are sent whole to the backend for conversion.
var richExtensions = map[string]bool{
	".docx": true,
	".doc":  true,
	".odt":  true,
	".rtf":  true,
}

// Converter extracts script text from a rich document.
type Converter interface {
	ConvertDocument(ctx context.Context, filename string, content []byte) (string, error)
}

type Document struct {
	Text   string `json:"text"`
	Kind   string `json:"kind"`
	Method string `json:"method"`
	Cached bool   `json:"cached"`
}

type Intake struct {
	conv    Converter
	cache   *gocache.Cache
	metrics *metrics.Metrics
}

// New builds an Intake. A ttl of zero disables the conversion cache.
func New(conv Converter, ttl time.Duration, m *metrics.Metrics) *Intake {
	in := &Intake{conv: conv, metrics: m}
	if ttl > 0 {
		in.cache = gocache.New(ttl, 2*ttl)
	}
	return in
}

func Kind(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case richExtensions[ext]:
		return KindRich
	case ext == ".pdf":
		return KindPDF
	default:
		return KindText
	}
}

// Accept extracts the working text for one upload. Rich documents go to the
// converter, PDFs are read locally and everything else is taken as text.
func (in *Intake) Accept(ctx context.Context, filename string, content []byte) (Document, error) {
	if len(content) == 0 {
		return Document{}, ErrEmptyUpload
	}
	if len(content) > MaxUploadBytes {
		return Document{}, eris.Wrapf(ErrTooLarge, "%d bytes", len(content))
	}
	kind := Kind(filename)
	if kind == KindText {
		text, err := plainText(content)
		if err != nil {
			return Document{}, err
		}
		in.metrics.RecordIntake(kind, false)
		return Document{Text: text, Kind: kind, Method: "direct"}, nil
	}

	key := cacheKey(kind, content)
	if in.cache != nil {
		if v, ok := in.cache.Get(key); ok {
			doc := v.(Document)
			doc.Cached = true
			in.metrics.RecordIntake(kind, true)
			return doc, nil
		}
	}

	var (
		doc Document
		err error
	)
	switch kind {
	case KindRich:
		if in.conv == nil {
			return Document{}, eris.New("no document converter configured")
		}
		var text string
		text, err = in.conv.ConvertDocument(ctx, filename, content)
		doc = Document{Text: text, Kind: kind, Method: "backend"}
	case KindPDF:
		doc, err = extractPDF(ctx, content)
	}
	if err != nil {
		zap.L().Warn("upload conversion failed",
			zap.String("filename", filepath.Base(filename)),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return Document{}, err
	}
	if in.cache != nil {
		in.cache.SetDefault(key, doc)
	}
	in.metrics.RecordIntake(kind, false)
	return doc, nil
}

func plainText(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(content) {
		return "", ErrNotText
	}
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyUpload
	}
	return text, nil
}

func cacheKey(kind string, content []byte) string {
	sum := sha256.Sum256(content)
	return kind + ":" + hex.EncodeToString(sum[:])
}
