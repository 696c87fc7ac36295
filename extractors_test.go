package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChartInner(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"complete tag", "<|{transformed_data}|chart|type=bar|>", "|{transformed_data}|chart|type=bar|"},
		{"leading noise", "here: <|{d}|chart|> and more", "|{d}|chart|"},
		{"stops at second open", "<|{d}|chart|<other>", "|{d}|chart|"},
		{"unterminated", "<|{d}|chart|type=", "|{d}|chart|type="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chartInner(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := chartInner("no markup here")
	assert.ErrorIs(t, err, ErrGenerationInvalid)
}

func TestCloseLayout(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{`{"title": "x"}`, `{"title": "x"}`},
		{`{"xaxis": {"title": "t"}} and then`, `{"xaxis": {"title": "t"}}`},
		{`{"a": 1}}`, `{"a": 1}}`},
		{`no braces`, `}`},
	}
	for _, tt := range tests {
		got, err := closeLayout(tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.text)
	}
}

func TestNormalizeTransform(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"  data.head(3)\nprint(x)", "data.head(3)"},
		{"transformed_data.groupby('COUNTRY').sum()\n", "transformed_data.groupby('COUNTRY').sum().reset_index()"},
		{"data.groupby('A').sum().reset_index()", "data.groupby('A').sum().reset_index()"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := normalizeTransform(tt.text)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestAssembleChart(t *testing.T) {
	markup, err := AssembleChart("|{transformed_data}|chart|type=bar|x=COUNTRY|", `{"title": "Sales"}`)
	require.NoError(t, err)
	assert.Equal(t, `<|{transformed_data}|chart|type=bar|x=COUNTRY|layout={"title": "Sales"}|>`, markup)

	_, err = AssembleChart("|{transformed_data}|table|", "{}")
	assert.ErrorIs(t, err, ErrGenerationInvalid)

	assert.True(t, chartPattern.MatchString(DefaultChartMarkup))
}

func TestChartExtractorRun(t *testing.T) {
	p := newScripted("<|{transformed_data}|chart", "|type=pie|values=SALES|>\n<|next|>")
	ext, err := ChartExtractor(10).Run(context.Background(), p, "ctx\n", nil)
	require.NoError(t, err)

	assert.Equal(t, "|{transformed_data}|chart|type=pie|values=SALES|", ext.Code)
	assert.Equal(t, 2, ext.Generation.Calls)
	assert.True(t, ext.Generation.Terminated)
}

func TestChartExtractorWithoutMarkup(t *testing.T) {
	p := &scriptedProvider{fallback: "plain words"}
	ext, err := ChartExtractor(2).Run(context.Background(), p, "ctx\n", nil)
	assert.ErrorIs(t, err, ErrGenerationInvalid)
	require.NotNil(t, ext)
	assert.Equal(t, 2, ext.Generation.Calls)
}

func TestLayoutExtractorRun(t *testing.T) {
	p := newScripted(`{"xaxis": {"title"`, `: "Month"}} trailing`)
	ext, err := LayoutExtractor(5).Run(context.Background(), p, "ctx\n", nil)
	require.NoError(t, err)
	assert.Equal(t, `{"xaxis": {"title": "Month"}}`, ext.Code)
}

func TestPrompts(t *testing.T) {
	prompt := TransformPrompt("Sum SALES by COUNTRY")
	assert.True(t, strings.HasPrefix(prompt, "def transform(transformed_data: pd.DataFrame) -> pd.DataFrame:\n"))
	assert.Contains(t, prompt, "  # Sum SALES by COUNTRY\n")
	assert.True(t, strings.HasSuffix(prompt, "  return "))

	assert.Equal(t, "examples\nPlot SALES\n", ChartPrompt("examples", "Plot SALES"))
	assert.Equal(t, "layouts\nPlot SALES\n", LayoutPrompt("layouts", "Plot SALES"))
}
