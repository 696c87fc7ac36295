package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// DefaultChartMarkup is shown until the first plot instruction succeeds
const DefaultChartMarkup = `<|{transformed_data}|chart|type=lines|x=ORDERDATE|y=SALES|layout={"xaxis": { "title": "temps" }}|>`

// chartPattern is the structural check applied to assembled chart markup
var chartPattern = regexp.MustCompile(`<.*\|chart\|.*>`)

// Extractor is a generation loop tuned to one kind of snippet
type Extractor struct {
	Name        string
	Terminator  string
	Ceiling     int
	PostProcess func(text string) (string, error)
}

// Extraction is the result of running an extractor
type Extraction struct {
	Code       string
	Generation *Generation
}

// Run generates from prompt and post-processes the accumulated text
func (e Extractor) Run(ctx context.Context, provider CompletionProvider, prompt string, logger *zap.Logger) (*Extraction, error) {
	gen, err := GenerateUntil(ctx, provider, GenerateSpec{
		Name:       e.Name,
		Prompt:     prompt,
		Terminator: ContainsTerminator(e.Terminator),
		Ceiling:    e.Ceiling,
	}, logger)
	if err != nil {
		return nil, err
	}

	out := &Extraction{Code: gen.Text, Generation: gen}
	if e.PostProcess != nil {
		code, err := e.PostProcess(gen.Text)
		if err != nil {
			return out, err
		}
		out.Code = code
	}
	return out, nil
}

// ChartExtractor yields the inner text of the first generated markup tag
func ChartExtractor(ceiling int) Extractor {
	return Extractor{Name: "chart", Terminator: ">", Ceiling: ceiling, PostProcess: chartInner}
}

// LayoutExtractor yields a closed layout object
func LayoutExtractor(ceiling int) Extractor {
	return Extractor{Name: "layout", Terminator: "}", Ceiling: ceiling, PostProcess: closeLayout}
}

// TransformExtractor yields a single-line transform expression
func TransformExtractor(ceiling int) Extractor {
	return Extractor{Name: "transform", Terminator: "\n", Ceiling: ceiling, PostProcess: normalizeTransform}
}

// chartInner returns the text after the first '<' up to the next '<' or '>'
func chartInner(text string) (string, error) {
	start := strings.Index(text, "<")
	if start < 0 {
		return "", fmt.Errorf("%w: no markup in %q", ErrGenerationInvalid, truncate(text, 80))
	}
	inner := text[start+1:]
	if end := strings.IndexAny(inner, "<>"); end >= 0 {
		inner = inner[:end]
	}
	return inner, nil
}

// closeLayout drops the fragment after the last '}' and closes the object
func closeLayout(text string) (string, error) {
	parts := strings.Split(text, "}")
	parts = parts[:len(parts)-1]
	return strings.Join(parts, "}") + "}", nil
}

// normalizeTransform keeps the first line and resets the index after a groupby
func normalizeTransform(text string) (string, error) {
	code, _, _ := strings.Cut(text, "\n")
	code = strings.TrimSpace(code)
	if strings.Contains(code, "groupby") && !strings.Contains(code, "reset_index") {
		code += ".reset_index()"
	}
	return code, nil
}

// AssembleChart combines the chart tag and layout and validates the result
func AssembleChart(inner, layout string) (string, error) {
	markup := "<" + inner + "layout=" + layout + "|>"
	if !chartPattern.MatchString(markup) {
		return "", fmt.Errorf("%w: %s", ErrGenerationInvalid, markup)
	}
	return markup, nil
}
