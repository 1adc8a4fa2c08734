package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/RichardoC/rfp-chat/internal/config"
	"github.com/RichardoC/rfp-chat/internal/document"
	"github.com/RichardoC/rfp-chat/internal/llm"
	"go.uber.org/zap"
)

// Answers a single question about a PDF from the command line.
func main() {
	pdfPath := flag.String("pdf", "", "path to the RFP PDF")
	question := flag.String("q", "", "question to ask about the document")
	provider := flag.String("provider", llm.ProviderGoogleAI, "model provider (googleai or openai)")
	model := flag.String("model", llm.DefaultModel, "model name")
	baseURL := flag.String("base-url", "", "base URL for the openai provider")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if *pdfPath == "" || *question == "" {
		flag.Usage()
		os.Exit(2)
	}

	apiKey := os.Getenv(config.SecretKeyName)
	if apiKey == "" {
		logger.Fatal("Missing Google Gemini API Key.", zap.String("env", config.SecretKeyName))
	}

	data, err := os.ReadFile(*pdfPath)
	if err != nil {
		logger.Fatal("failed to read document", zap.Error(err))
	}

	loader := document.NewLoader(document.NewTiktokenCounter(logger), logger)
	doc, err := loader.Load(*pdfPath, data)
	if err != nil {
		logger.Fatal("failed to extract document text", zap.Error(err))
	}

	factory, err := llm.NewFactory(*provider, *model, *baseURL)
	if err != nil {
		logger.Fatal("failed to initialize model", zap.Error(err))
	}

	res := llm.New(factory, logger).Answer(context.Background(), apiKey, doc.Text, *question)
	fmt.Println(res.Display())
	if !res.OK() {
		os.Exit(1)
	}
}
