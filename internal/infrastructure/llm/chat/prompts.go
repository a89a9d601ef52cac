package chat

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/health-ai-service/internal/core/domain"
)

//go:embed prompts.yaml
var defaultPrompts []byte

type Prompts struct {
	Extraction           string `yaml:"extraction"`
	ExtractionUserPrefix string `yaml:"extraction_user_prefix"`
	RecommendationSystem string `yaml:"recommendation_system"`
	Recommendation       string `yaml:"recommendation"`
	ChatSystem           string `yaml:"chat_system"`
	ChatFallback         string `yaml:"chat_fallback"`

	recommendation *template.Template
}

// LoadPrompts parses the embedded prompt set and overlays non-empty keys from path.
func LoadPrompts(path string) (Prompts, error) {
	var prompts Prompts
	if err := yaml.Unmarshal(defaultPrompts, &prompts); err != nil {
		return Prompts{}, fmt.Errorf("parse default prompts: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Prompts{}, fmt.Errorf("read prompts file: %w", err)
		}
		var override Prompts
		if err := yaml.Unmarshal(raw, &override); err != nil {
			return Prompts{}, fmt.Errorf("parse prompts file %s: %w", path, err)
		}
		prompts.merge(override)
	}

	tmpl, err := template.New("recommendation").Option("missingkey=error").Parse(prompts.Recommendation)
	if err != nil {
		return Prompts{}, fmt.Errorf("parse recommendation prompt: %w", err)
	}
	prompts.recommendation = tmpl
	return prompts, nil
}

func (p *Prompts) merge(o Prompts) {
	if strings.TrimSpace(o.Extraction) != "" {
		p.Extraction = o.Extraction
	}
	if o.ExtractionUserPrefix != "" {
		p.ExtractionUserPrefix = o.ExtractionUserPrefix
	}
	if strings.TrimSpace(o.RecommendationSystem) != "" {
		p.RecommendationSystem = o.RecommendationSystem
	}
	if strings.TrimSpace(o.Recommendation) != "" {
		p.Recommendation = o.Recommendation
	}
	if strings.TrimSpace(o.ChatSystem) != "" {
		p.ChatSystem = o.ChatSystem
	}
	if strings.TrimSpace(o.ChatFallback) != "" {
		p.ChatFallback = o.ChatFallback
	}
}

func (p Prompts) buildRecommendation(data domain.HealthData, candidates []domain.Candidate, max int) (string, error) {
	healthJSON, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal health data: %w", err)
	}
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		return "", fmt.Errorf("marshal candidates: %w", err)
	}

	var b strings.Builder
	err = p.recommendation.Execute(&b, struct {
		HealthData string
		Candidates string
		Max        int
	}{
		HealthData: string(healthJSON),
		Candidates: string(candidatesJSON),
		Max:        max,
	})
	if err != nil {
		return "", fmt.Errorf("render recommendation prompt: %w", err)
	}
	return b.String(), nil
}
