package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"regexp"
	"strings"
)

// ExamplePair is one few-shot example: an instruction and the code answering it
type ExamplePair struct {
	Instruction string
	Code        string
}

// PlaceholderColumns are the tokens in example code replaced with real column names
var PlaceholderColumns = []string{"Sales", "Revenue", "Date", "Usage", "Energy"}

var placeholderPattern = regexp.MustCompile(`Sales|Revenue|Date|Usage|Energy`)

// LoadExamples reads a ';'-separated example corpus with instruction and code columns
func LoadExamples(path string) ([]ExamplePair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ReadExamples(f)
}

// ReadExamples parses an example corpus from r
func ReadExamples(r io.Reader) ([]ExamplePair, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("parse corpus: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}

	instrIdx, codeIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "instruction":
			instrIdx = i
		case "code":
			codeIdx = i
		}
	}
	if instrIdx < 0 || codeIdx < 0 {
		return nil, fmt.Errorf("parse corpus: header needs instruction and code columns, got %v", header)
	}

	var examples []ExamplePair
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse corpus: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if len(rec) < len(header) {
			return nil, fmt.Errorf("parse corpus: line %d: expected %d fields, got %d", line, len(header), len(rec))
		}
		examples = append(examples, ExamplePair{
			Instruction: rec[instrIdx],
			Code:        rec[codeIdx],
		})
	}
	return examples, nil
}

// BuildPromptContext renders the examples as one few-shot prompt, replacing
// every placeholder occurrence with an independently drawn column name
func BuildPromptContext(examples []ExamplePair, columns []string, rng *rand.Rand) (string, error) {
	if len(columns) == 0 {
		return "", fmt.Errorf("build prompt context: dataset has no columns")
	}

	pick := func(string) string {
		return columns[rng.IntN(len(columns))]
	}

	var sb strings.Builder
	for _, ex := range examples {
		example := ex.Instruction + "\n" + ex.Code + "\n"
		sb.WriteString(placeholderPattern.ReplaceAllStringFunc(example, pick))
	}
	return sb.String(), nil
}
