package intake

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// extractPDF reads the text layer in-process and falls back to pdftotext
// when the library cannot parse the file.
func extractPDF(ctx context.Context, content []byte) (Document, error) {
	text, err := readPDF(content)
	if err == nil && strings.TrimSpace(text) != "" {
		return Document{Text: strings.TrimSpace(text), Kind: KindPDF, Method: "ledongthuc/pdf"}, nil
	}
	if err != nil {
		zap.L().Debug("pdf library extraction failed", zap.Error(err))
	}

	if text, err := runPdfToText(ctx, content); err == nil && strings.TrimSpace(text) != "" {
		return Document{Text: strings.TrimSpace(text), Kind: KindPDF, Method: "pdftotext"}, nil
	}
	return Document{}, ErrNoText
}

func readPDF(content []byte) (text string, err error) {
	// The parser panics on some malformed xref tables.
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("parse pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", eris.Wrap(err, "open pdf")
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", eris.Wrap(err, "read pdf text")
	}
	blob, err := io.ReadAll(plain)
	if err != nil {
		return "", eris.Wrap(err, "read pdf text")
	}
	return string(blob), nil
}

func runPdfToText(ctx context.Context, content []byte) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(content)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
