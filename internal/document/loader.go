// Package document extracts plain text from uploaded PDF files.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

var (
	// ErrDocumentParse is returned when the input is not a readable PDF.
	ErrDocumentParse = errors.New("document parse error")
	// ErrNoText is returned for PDFs that parse but carry no extractable text,
	// such as scanned images.
	ErrNoText = errors.New("document contains no extractable text")
)

type Document struct {
	Name   string `json:"name"`
	Text   string `json:"-"`
	Pages  int    `json:"pages"`
	Tokens int    `json:"tokens"`
}

// TokenCounter estimates how many model tokens a text occupies.
type TokenCounter interface {
	CountTokens(text string) int
}

type Loader struct {
	counter TokenCounter
	logger  *zap.Logger
}

// NewLoader returns a Loader. counter may be nil, in which case token
// estimates are reported as zero.
func NewLoader(counter TokenCounter, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{counter: counter, logger: logger}
}

// Load extracts the text of every page in page order. Pages are joined with
// a newline.
func (l *Loader) Load(name string, data []byte) (*Document, error) {
	pages, err := extractPages(data)
	if err != nil {
		l.logger.Warn("Failed to parse document",
			zap.String("name", name),
			zap.Int("size", len(data)),
			zap.Error(err))
		return nil, err
	}

	text := strings.Join(pages, "\n")
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}

	doc := &Document{
		Name:  name,
		Text:  text,
		Pages: len(pages),
	}
	if l.counter != nil {
		doc.Tokens = l.counter.CountTokens(text)
	}

	l.logger.Info("Extracted document text",
		zap.String("name", name),
		zap.Int("pages", doc.Pages),
		zap.Int("chars", len(text)),
		zap.Int("tokens", doc.Tokens))
	return doc, nil
}

// extractPages recovers from panics inside the PDF parser, which happen on
// some truncated or corrupt files.
func extractPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", ErrDocumentParse, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentParse, err)
	}

	n := reader.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			// still a page; it just has nothing to extract
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrDocumentParse, i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
