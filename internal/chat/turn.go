// Package chat implements one chat turn and the document load policy over a
// session's state.
package chat

import (
	"context"
	"errors"

	"github.com/RichardoC/rfp-chat/internal/document"
	"github.com/RichardoC/rfp-chat/internal/llm"
	"github.com/RichardoC/rfp-chat/internal/models"
)

const (
	NoticeMissingCredential = "Missing Google Gemini API Key."
	NoticeMissingDocument   = "Please upload a PDF document first."
)

// ErrDocumentLoaded is returned when a session already holds document text.
var ErrDocumentLoaded = errors.New("document already loaded")

// Answerer produces an answer for a question about contextText.
type Answerer interface {
	Answer(ctx context.Context, credential, contextText, question string) llm.Result
}

// Turn is what a single chat message produced.
type Turn struct {
	Appended []models.Message
	Notice   string
	Result   *llm.Result
}

// Ask runs one turn against sess. The user message is always appended; an
// assistant message is appended only when both a credential and a document
// are present. Earlier messages are never sent to the model.
func Ask(ctx context.Context, sess *models.Session, credential, question string, answerer Answerer) Turn {
	var turn Turn

	userMsg := models.Message{SessionID: sess.ID, Role: models.RoleUser, Content: question}
	sess.Messages = append(sess.Messages, userMsg)
	turn.Appended = append(turn.Appended, userMsg)

	switch {
	case credential == "":
		turn.Notice = NoticeMissingCredential
		return turn
	case !sess.HasDocument():
		turn.Notice = NoticeMissingDocument
		return turn
	}

	res := answerer.Answer(ctx, credential, sess.DocumentText, question)
	turn.Result = &res

	reply := models.Message{SessionID: sess.ID, Role: models.RoleAssistant, Content: res.Display()}
	sess.Messages = append(sess.Messages, reply)
	turn.Appended = append(turn.Appended, reply)
	return turn
}

// Extractor turns raw upload bytes into a document.
type Extractor interface {
	Load(name string, data []byte) (*document.Document, error)
}

// LoadDocument stores the extracted text of data in sess. If sess already
// has document text it returns ErrDocumentLoaded without parsing. On any
// error sess is left unchanged.
func LoadDocument(sess *models.Session, name string, data []byte, extractor Extractor) (*document.Document, error) {
	if sess.HasDocument() {
		return nil, ErrDocumentLoaded
	}

	doc, err := extractor.Load(name, data)
	if err != nil {
		return nil, err
	}

	sess.DocumentName = doc.Name
	sess.DocumentText = doc.Text
	sess.DocumentPages = doc.Pages
	sess.DocumentTokens = doc.Tokens
	return doc, nil
}

// ClearDocument forgets the loaded document so another one can be uploaded.
// Chat history is kept.
func ClearDocument(sess *models.Session) {
	sess.DocumentName = ""
	sess.DocumentText = ""
	sess.DocumentPages = 0
	sess.DocumentTokens = 0
}
