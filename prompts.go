package main

import "fmt"

// transformPromptTemplate frames the instruction as a function body the model completes
const transformPromptTemplate = `def transform(transformed_data: pd.DataFrame) -> pd.DataFrame:
  # %s
  return `

// ChartPrompt builds the prompt for the chart markup extractor
func ChartPrompt(chartContext, instruction string) string {
	return chartContext + "\n" + instruction + "\n"
}

// LayoutPrompt builds the prompt for the layout object extractor
func LayoutPrompt(layoutContext, instruction string) string {
	return layoutContext + "\n" + instruction + "\n"
}

// TransformPrompt builds the prompt for the data-transform extractor
func TransformPrompt(instruction string) string {
	return fmt.Sprintf(transformPromptTemplate, instruction)
}
