package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/generative-ai-go/genai"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/scribeline/meter_api/shared"
)

const (
	defaultTransformModel = "gemini-1.5-flash-latest"

	markdownSystemInstruction = "You are a technical writer. Rewrite the provided transcript or notes as a clean, " +
		"well structured Markdown document. Preserve every fact; do not invent content. " +
		"Use headings, lists and code blocks where they help readability."

	prepSystemInstruction = "You are a technical writer preparing a pre-session briefing document. " +
		"Rewrite the provided material as a structured preparation document in Markdown: " +
		"objectives first, then the material itself organized into sections, then open questions. " +
		"Preserve every fact; do not invent content."

	pasSystemInstruction = "You are a technical writer producing a post-session summary. " +
		"Rewrite the provided material as a Markdown summary: decisions made, action items with owners " +
		"where stated, and the discussion condensed into sections. Preserve every fact; do not invent content."

	tldrInstruction = "Finish the document with a '## TL;DR' section of at most five bullet points."
)

// TransformService turns raw transcripts and notes into styled Markdown
// documents through Gemini. Without GEMINI_API_KEY the service starts but
// every Transform call fails, so the quota is never spent on requests
// that cannot complete.
type TransformService struct {
	appContext.DefaultService

	apiKey    string
	modelName string

	client *genai.Client

	generateFn func(ctx context.Context, system, prompt string) (string, error)
}

const TRANSFORM_SVC = "transform_svc"

func (svc TransformService) Id() string {
	return TRANSFORM_SVC
}

func (svc *TransformService) Configure(ctx *appContext.Context) error {
	svc.apiKey = os.Getenv("GEMINI_API_KEY")

	svc.modelName = os.Getenv("GEMINI_MODEL")
	if svc.modelName == "" {
		svc.modelName = defaultTransformModel
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *TransformService) Start() error {
	if svc.apiKey == "" {
		log.Warn("GEMINI_API_KEY not set, document transformation disabled")
		return nil
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(svc.apiKey))
	if err != nil {
		return fmt.Errorf("failed to create GenAI client: %v", err)
	}

	svc.client = client
	svc.generateFn = svc.generate
	return nil
}

func (svc *TransformService) Shutdown() {
	if svc.client != nil {
		if err := svc.client.Close(); err != nil {
			log.WithError(err).Warn("Error closing GenAI client")
		}
	}
}

func (svc *TransformService) Enabled() bool {
	return svc.generateFn != nil
}

// Transform rewrites content as a Markdown document in the requested
// style.
func (svc *TransformService) Transform(ctx context.Context, style, content string, includeTLDR bool) (string, error) {
	if svc.generateFn == nil {
		return "", shared.NewInternalError(nil, "Document transformation is not configured")
	}

	var system string
	switch style {
	case shared.StylePrep:
		system = prepSystemInstruction
	case shared.StylePas:
		system = pasSystemInstruction
	case shared.StyleMarkdown:
		system = markdownSystemInstruction
	default:
		return "", shared.NewBadRequestError(nil, fmt.Sprintf("unknown style: %s", style))
	}
	if includeTLDR {
		system = system + " " + tldrInstruction
	}

	markdown, err := svc.generateFn(ctx, system, content)
	if err != nil {
		return "", shared.NewInternalError(err, "Document transformation failed")
	}
	return markdown, nil
}

func (svc *TransformService) generate(ctx context.Context, system, prompt string) (string, error) {
	model := svc.client.GenerativeModel(svc.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned an empty response")
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.WriteString(string(txt))
		}
	}

	if out.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text parts")
	}
	return out.String(), nil
}
