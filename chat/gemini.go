// Package chat generates analyst-facing situation summaries for completed
// assessments through the Gemini API. The summarizer is optional: without
// an API key the pipeline simply omits the summary text.
package chat

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"github.com/AlfonsoCifuentes/riskmap-vision/models"
)

const summaryModel = "gemini-2.5-flash"

const systemPrompt = `You are an imagery analysis assistant summarizing automated visual risk assessments of satellite imagery.
Given the structured findings of one assessment, write a short situation summary for a human analyst:
- Lead with the overall risk level and what drives it.
- Mention notable detections, heuristic findings and damage classification.
- Flag uncertainty when confidence is low or the assessment is partial.
Keep it factual and under 120 words. Never invent findings that are not in the input.`

type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient builds a summarizer from the GEMINI_API_KEY environment
// variable.
func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %v", err)
	}

	return &GeminiClient{client: client}, nil
}

// Summarize produces the situation summary text for one assessment.
func (g *GeminiClient) Summarize(ctx context.Context, assessment *models.RiskAssessment) (string, error) {
	systemInstruction := genai.NewContentFromText(systemPrompt, genai.RoleModel)
	userContent := genai.NewContentFromText(describeAssessment(assessment), genai.RoleUser)

	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Temperature:       genai.Ptr(float32(0.3)),
		TopP:              genai.Ptr(float32(0.8)),
		TopK:              genai.Ptr(float32(40)),
		MaxOutputTokens:   int32(220),
	}

	resp, err := g.client.Models.GenerateContent(ctx, summaryModel, []*genai.Content{userContent}, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %v", err)
	}

	text := strings.ReplaceAll(resp.Text(), "*", "")
	return strings.TrimSpace(text), nil
}

// describeAssessment flattens the structured record into the prompt input.
func describeAssessment(a *models.RiskAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk level: %s (score %.1f/10, confidence %.2f)\n", a.RiskLevel, a.VisualRiskScore, a.Confidence)
	if a.Partial {
		b.WriteString("Assessment is PARTIAL: the object detection model was unavailable.\n")
	}
	if a.Latitude != nil && a.Longitude != nil {
		fmt.Fprintf(&b, "Location: %.5f, %.5f\n", *a.Latitude, *a.Longitude)
	}
	fmt.Fprintf(&b, "Image source: %s (%.0f m/px)\n", a.ImageSource, a.ResolutionMPx)

	if len(a.Detections) > 0 {
		fmt.Fprintf(&b, "Detections (%d): ", len(a.Detections))
		for i, det := range a.Detections {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%.2f)", det.Class, det.Confidence)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "Object summary: %d military, %d civilian, %d infrastructure, threat %s\n",
			a.ObjectSummary.MilitaryObjects, a.ObjectSummary.CivilianObjects,
			a.ObjectSummary.Infrastructure, a.ObjectSummary.ThreatLevel)
	} else {
		b.WriteString("No object detections.\n")
	}

	for _, finding := range a.PatternFindings {
		if finding.Detected {
			fmt.Fprintf(&b, "Pattern %s: %s (contribution %.1f)\n",
				finding.Detector, finding.Description, finding.RiskContribution)
		}
	}
	if a.Damage != nil && a.Damage.ModelAvailable {
		fmt.Fprintf(&b, "Damage classification: %s (confidence %.2f), combined level %s\n",
			a.Damage.Class, a.Damage.Confidence, a.Damage.CombinedLevel)
	}
	if a.ContextBonus > 0 {
		fmt.Fprintf(&b, "Context correlation bonus: %.2f\n", a.ContextBonus)
	}
	return b.String()
}
