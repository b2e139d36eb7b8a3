// Package prompts renders the embedded text templates: chat prompts sent to
// the model and the bodies of files the agent writes into a node.
package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/core-nexus/utopian/embedded"
	"github.com/core-nexus/utopian/internal/trust"
)

// Node file templates.
const (
	GoalsReadme       = "goals_readme.md.tmpl"
	StatusReport      = "status_report.md.tmpl"
	TopicOverview     = "topic_overview.md.tmpl"
	TopicPresentation = "topic_presentation.md.tmpl"
	TopicScript       = "topic_script.md.tmpl"
	TopicReport       = "topic_report.md.tmpl"
	SlideDeck         = "slide_deck.md.tmpl"
	ToolReport        = "tool_report.md.tmpl"
)

// Chat and image prompts.
const (
	System    = "system.md.tmpl"
	Plan      = "plan.md.tmpl"
	Research  = "research.md.tmpl"
	Trust     = "trust.md.tmpl"
	Discovery = "discovery.md.tmpl"
	Synthesis = "synthesis.md.tmpl"
	Media     = "media.md.tmpl"
	Image     = "image.md.tmpl"
)

var templates = template.Must(
	template.New("").Funcs(templateFuncs()).ParseFS(embedded.FS, "templates/*.tmpl", "prompts/*.tmpl"),
)

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
		"yaml": yamlValue,
	}
}

// yamlValue renders s as a YAML scalar, quoted when the plain form would not
// parse back to s.
func yamlValue(s string) (string, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

// Render executes the named template with data.
func Render(name string, data any) (string, error) {
	t := templates.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// SystemPrompt returns the agent's system prompt.
func SystemPrompt() string {
	s, err := Render(System, nil)
	if err != nil {
		// The system prompt takes no data; failure means a broken build.
		panic(err)
	}
	return strings.TrimSpace(s)
}

// ReportData fills StatusReport.
type ReportData struct {
	Date                 string
	Version              string
	FoundationsPreserved bool
}

// TopicData fills the topic file templates.
type TopicData struct {
	Title       string
	Description string
	Date        string
}

// PlanData fills Plan.
type PlanData struct {
	Root    string
	Context string
}

// PhaseData fills the generation loop prompts. Only the fields a prompt uses
// need to be set.
type PhaseData struct {
	Iteration int
	Slug      string
	Body      string
	Topics    []string
	Known     []trust.Node
}

// ImageData fills Image.
type ImageData struct {
	Title string
	Index int
}

// DeckData fills SlideDeck.
type DeckData struct {
	Title   string
	Bullets []string
}

// ToolReportData fills ToolReport.
type ToolReportData struct {
	Title string
	Body  string
}
