package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"

	DefaultModel = "gemini-2.5-flash"
)

// ModelFactory builds a model client authorized by credential.
type ModelFactory func(ctx context.Context, credential string) (llms.Model, error)

// Reason classifies why an answer could not be produced.
type Reason string

const (
	ReasonClient     Reason = "client"     // the model client could not be built
	ReasonGeneration Reason = "generation" // the provider rejected or failed the request
	ReasonCanceled   Reason = "canceled"
)

type Failure struct {
	Reason Reason
	Err    error
}

func (f *Failure) Error() string {
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Result carries either the model's text or the reason it failed.
type Result struct {
	Text    string
	Failure *Failure
}

func (r Result) OK() bool {
	return r.Failure == nil
}

// Display renders the result for the chat transcript.
func (r Result) Display() string {
	if r.Failure != nil {
		return "Error: " + r.Failure.Error()
	}
	return r.Text
}

// Service holds no per-credential state: a client is built for each turn
// and released when the turn ends.
type Service struct {
	factory ModelFactory
	logger  *zap.Logger
}

func New(factory ModelFactory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		factory: factory,
		logger:  logger,
	}
}

// NewFactory returns a ModelFactory for the named provider. baseURL is only
// used by the openai provider.
func NewFactory(provider, model, baseURL string) (ModelFactory, error) {
	if model == "" {
		model = DefaultModel
	}

	switch provider {
	case ProviderGoogleAI, "":
		return func(ctx context.Context, credential string) (llms.Model, error) {
			return googleai.New(ctx,
				googleai.WithAPIKey(credential),
				googleai.WithDefaultModel(model),
			)
		}, nil
	case ProviderOpenAI:
		return func(ctx context.Context, credential string) (llms.Model, error) {
			opts := []openai.Option{
				openai.WithToken(credential),
				openai.WithModel(model),
			}
			if baseURL != "" {
				opts = append(opts, openai.WithBaseURL(baseURL))
			}
			return openai.New(opts...)
		}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// BuildPrompt embeds the document text and the question verbatim.
func BuildPrompt(contextText, question string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert Proposal Writer. Use the context below to answer the user's question.\n")
	sb.WriteString("CONTEXT: ")
	sb.WriteString(contextText)
	sb.WriteString("\nQUESTION: ")
	sb.WriteString(question)
	return sb.String()
}

// Answer submits one prompt built from contextText and question. Failures are
// returned inside the Result rather than as an error so the caller can show
// them in the transcript.
func (s *Service) Answer(ctx context.Context, credential, contextText, question string) Result {
	model, err := s.factory(ctx, credential)
	if err != nil {
		s.logger.Error("Failed to initialize model client", zap.Error(err))
		return Result{Failure: &Failure{Reason: ReasonClient, Err: err}}
	}
	defer s.release(model)

	prompt := BuildPrompt(contextText, question)
	s.logger.Debug("Submitting prompt",
		zap.Int("promptChars", len(prompt)),
		zap.Int("questionChars", len(question)))

	completion, err := llms.GenerateFromSinglePrompt(ctx, model, prompt)
	if err != nil {
		reason := ReasonGeneration
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonCanceled
		}
		s.logger.Warn("Failed to generate completion",
			zap.String("reason", string(reason)),
			zap.Error(err))
		return Result{Failure: &Failure{Reason: reason, Err: err}}
	}

	return Result{Text: completion}
}

// release closes clients that hold connections open.
func (s *Service) release(model llms.Model) {
	closer, ok := model.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		s.logger.Debug("Failed to close model client", zap.Error(err))
	}
}
