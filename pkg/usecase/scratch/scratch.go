package scratch

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/adapter"
	"google.golang.org/genai"
)

//go:embed prompt/scratch.md
var scratchPromptRaw string

var scratchPromptTmpl = template.Must(template.New("scratch").Parse(scratchPromptRaw))

// Generator writes the first-step nudge attached to a reminder
type Generator struct {
	gemini adapter.Gemini
}

func New(gemini adapter.Gemini) *Generator {
	return &Generator{gemini: gemini}
}

// Generate returns one to three sentences on how to start the task summarized by summary
func (g *Generator) Generate(ctx context.Context, summary string) (string, error) {
	var buf bytes.Buffer
	if err := scratchPromptTmpl.Execute(&buf, map[string]any{
		"Summary": summary,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute scratch prompt template")
	}

	contents := []*genai.Content{
		genai.NewContentFromText(buf.String(), genai.RoleUser),
	}
	resp, err := g.gemini.GenerateContent(ctx, contents, &genai.GenerateContentConfig{})
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate scratch", goerr.V("summary", summary))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", goerr.New("empty scratch generated", goerr.V("summary", summary))
	}
	return text, nil
}
