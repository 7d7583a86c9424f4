// Package analyze enriches catalog projects through an OpenAI-compatible
// chat completion endpoint. The endpoint may be a hosted API or a local
// inference server; only the base URL differs.
package analyze

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/elonfeng/ghhub/internal/store"
	"github.com/elonfeng/ghhub/pkg/github"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Analyzer generates project metadata, summaries and tutorials.
type Analyzer struct {
	client        openai.Client
	analyzerModel string
	classifyModel string
	visionModel   string
}

// New creates an Analyzer. analyzerModel is used for long-form content,
// classifyModel for fast structured answers, visionModel for screenshots.
func New(baseURL, apiKey, analyzerModel, classifyModel, visionModel string) *Analyzer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Analyzer{
		client:        openai.NewClient(opts...),
		analyzerModel: analyzerModel,
		classifyModel: classifyModel,
		visionModel:   visionModel,
	}
}

// AnalyzeProject produces structured metadata for a project. Callers should
// fall back to DefaultAnalysis on error so a bad response never aborts a
// batch.
func (a *Analyzer) AnalyzeProject(ctx context.Context, p *github.Project, readme string) (store.Analysis, error) {
	prompt := fmt.Sprintf(`Analyze the following GitHub open source project and answer in JSON.

%s

Return exactly this JSON shape (valid JSON, nothing else):
{
    "summary": "one precise sentence: what it does + core technique + unique strength",
    "tech_stack": ["core technologies, e.g. LangChain, FastAPI, ChromaDB"],
    "use_cases": ["concrete use case 1", "use case 2", "use case 3"],
    "difficulty": 1-5,
    "quick_start": "the shortest command sequence to get it running"
}`, projectContext(p, readme, 3000))

	content, err := a.complete(ctx, a.classifyModel, prompt, 0.3, 1000)
	if err != nil {
		return store.Analysis{}, err
	}

	var analysis store.Analysis
	if err := json.Unmarshal([]byte(ExtractJSON(content)), &analysis); err != nil {
		return store.Analysis{}, fmt.Errorf("parse analysis for %s: %w", p.Name, err)
	}
	if analysis.Summary == "" {
		return store.Analysis{}, fmt.Errorf("empty analysis for %s", p.Name)
	}
	return analysis, nil
}

// DefaultAnalysis is the fallback when the model is unavailable or returned
// garbage.
func DefaultAnalysis(p *github.Project) store.Analysis {
	language := p.Language
	if language == "" {
		language = "Unknown"
	}
	summary := p.Description
	if summary == "" {
		summary = "No description available"
	}
	return store.Analysis{
		Summary:    summary,
		TechStack:  []string{language},
		UseCases:   []string{"General development"},
		Difficulty: 3,
		QuickStart: "git clone " + p.URL,
	}
}

// RAGSummary produces a dense retrieval-oriented summary of the project.
func (a *Analyzer) RAGSummary(ctx context.Context, p *github.Project, readme string) (string, error) {
	prompt := fmt.Sprintf(`Write a dense, retrieval-oriented summary of this GitHub project.
A search engine will match user questions against it, so pack in functionality,
architecture keywords, dependency names and the ideal use case ("Ideal for...").
Mention one limitation. Plain text, no markdown, at most 150 words.

%s`, projectContext(p, readme, 2000))

	content, err := a.complete(ctx, a.classifyModel, prompt, 0.3, 300)
	if err != nil {
		return "", fmt.Errorf("rag summary for %s: %w", p.Name, err)
	}
	return strings.TrimSpace(content), nil
}

// Tutorial produces a long-form architecture-focused tutorial in markdown.
// visualSummary is optional screenshot analysis output.
func (a *Analyzer) Tutorial(ctx context.Context, p *github.Project, readme, visualSummary string) (string, error) {
	info := projectContext(p, readme, 4000)
	if visualSummary != "" {
		info += "\n\nUI analysis of a screenshot:\n" + visualSummary
	}

	prompt := fmt.Sprintf(`You are a senior software architect writing for experienced
developers. Skip basic concept explanations and analyze this project's unique value
and implementation details. Output markdown directly with no preamble.

%s

Cover, as sections: core value and differentiation; technical highlights worth
learning from; architecture (modules, data flow, design patterns); a deep look at
the stack and why it was chosen; installation with annotated commands; a complete
usage example with expected output; performance characteristics and scaling; how to
extend it; at least five common pitfalls with fixes; what to learn next.`, info)

	content, err := a.complete(ctx, a.analyzerModel, prompt, 0.7, 3000)
	if err != nil {
		return "", fmt.Errorf("tutorial for %s: %w", p.Name, err)
	}
	return content, nil
}

// Classify picks the best-fitting category ID for a project.
func (a *Analyzer) Classify(ctx context.Context, p *github.Project, categories []string) (string, error) {
	prompt := fmt.Sprintf(`Which category fits this project best?

Project: %s
Description: %s
Language: %s
Topics: %s

Available categories: %s

Answer with exactly one category name, nothing else.`,
		p.Name, p.Description, p.Language,
		strings.Join(p.Topics, ", "), strings.Join(categories, ", "))

	content, err := a.complete(ctx, a.classifyModel, prompt, 0.1, 50)
	if err != nil {
		return "", fmt.Errorf("classify %s: %w", p.Name, err)
	}
	answer := strings.TrimSpace(content)
	for _, c := range categories {
		if strings.EqualFold(answer, c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("classify %s: model answered %q", p.Name, answer)
}

// VisionSummary runs the vision model over a project screenshot and returns a
// short description of the visible UI and text.
func (a *Analyzer) VisionSummary(ctx context.Context, p *github.Project, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("read screenshot %s: %w", imagePath, err)
	}
	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)

	prompt := fmt.Sprintf(`This is a screenshot of the GitHub project %q (%s).
Extract the key visible text and describe the main UI modules, any visible
technology keywords, and what the application appears to do. One short paragraph.`,
		p.Name, p.Description)

	response, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.visionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							{
								OfText: &openai.ChatCompletionContentPartTextParam{Text: prompt},
							},
							{
								OfImageURL: &openai.ChatCompletionContentPartImageParam{
									ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: dataURI},
								},
							},
						},
					},
				},
			},
		},
		MaxTokens: openai.Int(500),
	})
	if err != nil {
		return "", fmt.Errorf("vision analysis for %s: %w", p.Name, err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("vision analysis for %s: empty response", p.Name)
	}
	return response.Choices[0].Message.Content, nil
}

func (a *Analyzer) complete(ctx context.Context, model, prompt string, temperature float64, maxTokens int64) (string, error) {
	response, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxTokens),
	})
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return response.Choices[0].Message.Content, nil
}

// ExtractJSON strips markdown code fences that chat models tend to wrap
// around JSON answers.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "```json"); i >= 0 {
		content = content[i+len("```json"):]
		if j := strings.Index(content, "```"); j >= 0 {
			content = content[:j]
		}
	} else if i := strings.Index(content, "```"); i >= 0 {
		content = content[i+len("```"):]
		if j := strings.Index(content, "```"); j >= 0 {
			content = content[:j]
		}
	}
	return strings.TrimSpace(content)
}

func projectContext(p *github.Project, readme string, readmeLimit int) string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "Project: %s\nFull name: %s\nDescription: %s\nLanguage: %s\nStars: %d\nTopics: %s",
		p.Name, p.FullName, p.Description, p.Language, p.Stars, strings.Join(p.Topics, ", "))
	if readme != "" {
		if len(readme) > readmeLimit {
			readme = readme[:readmeLimit]
		}
		fmt.Fprintf(b, "\n\nREADME excerpt:\n%s", readme)
	}
	return b.String()
}
