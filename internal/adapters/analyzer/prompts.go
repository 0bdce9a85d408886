package analyzer

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/target/policy-analysis-api/internal/domain/model"
)

//go:embed prompts
var embeddedPrompts embed.FS

const (
	extractionPromptFile = "extraction.md"
	analysisPromptFile   = "analysis.tmpl"
	industriesFile       = "industries.yaml"
)

type industryCriteria struct {
	Focus         []string `yaml:"focus"`
	MinimumLimits []string `yaml:"minimum_limits"`
	WaitingPeriod string   `yaml:"waiting_period"`
	RedFlags      []string `yaml:"red_flags"`
}

func (c industryCriteria) render(industry string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## INDUSTRY CRITERIA: %s\n", strings.ToUpper(industry))
	writeList := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n**%s:**\n", title)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	writeList("Heightened scrutiny", c.Focus)
	writeList("Minimum recommended limits", c.MinimumLimits)
	if c.WaitingPeriod != "" {
		fmt.Fprintf(&b, "\n**BI waiting period:** %s\n", c.WaitingPeriod)
	}
	writeList("Sector red flags", c.RedFlags)
	return b.String()
}

// Prompts holds the system prompts for both analysis phases.
type Prompts struct {
	extraction string
	analysis   *template.Template
	industries map[string]industryCriteria
}

// LoadPrompts reads prompts from dir, or from the embedded set when dir is empty.
func LoadPrompts(dir string) (*Prompts, error) {
	if dir == "" {
		sub, err := fs.Sub(embeddedPrompts, "prompts")
		if err != nil {
			return nil, fmt.Errorf("open embedded prompts: %w", err)
		}
		return ParsePrompts(sub)
	}
	return ParsePrompts(os.DirFS(dir))
}

// ParsePrompts reads the prompt set from fsys.
func ParsePrompts(fsys fs.FS) (*Prompts, error) {
	extraction, err := fs.ReadFile(fsys, extractionPromptFile)
	if err != nil {
		return nil, fmt.Errorf("read extraction prompt: %w", err)
	}
	tmpl, err := template.New(analysisPromptFile).Option("missingkey=error").ParseFS(fsys, analysisPromptFile)
	if err != nil {
		return nil, fmt.Errorf("parse analysis prompt: %w", err)
	}
	raw, err := fs.ReadFile(fsys, industriesFile)
	if err != nil {
		return nil, fmt.Errorf("read industry criteria: %w", err)
	}
	industries := map[string]industryCriteria{}
	if err := yaml.Unmarshal(raw, &industries); err != nil {
		return nil, fmt.Errorf("parse industry criteria: %w", err)
	}
	if _, ok := industries[model.DefaultClientIndustry]; !ok {
		return nil, fmt.Errorf("industry criteria missing %q", model.DefaultClientIndustry)
	}

	return &Prompts{
		extraction: strings.TrimSpace(string(extraction)),
		analysis:   tmpl,
		industries: industries,
	}, nil
}

// Extraction returns the structured extraction system prompt.
func (p *Prompts) Extraction() string { return p.extraction }

// Analysis returns the scoring system prompt for the given industry.
func (p *Prompts) Analysis(industry string, renewal bool) (string, error) {
	criteria, ok := p.industries[industry]
	if !ok {
		industry = model.DefaultClientIndustry
		criteria = p.industries[industry]
	}

	var b strings.Builder
	err := p.analysis.Execute(&b, struct {
		Industry         string
		IndustryCriteria string
		Renewal          bool
	}{
		Industry:         industry,
		IndustryCriteria: criteria.render(industry),
		Renewal:          renewal,
	})
	if err != nil {
		return "", fmt.Errorf("render analysis prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}
