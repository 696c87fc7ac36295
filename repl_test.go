package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runREPL(t *testing.T, s *Session, cfg *Config, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	r := NewREPL(s, cfg, nil, strings.NewReader(strings.Join(lines, "\n")+"\n"), &out)
	require.NoError(t, r.Run(context.Background()))
	return out.String()
}

func TestREPLSession(t *testing.T) {
	p := newScripted(
		"groupby('COUNTRY')['SALES'].sum()\n",
		"<|{transformed_data}|chart|type=bar|x=COUNTRY|y=SALES|>",
		`{"title": "Sales"}`,
	)
	journal, err := OpenJournal("")
	require.NoError(t, err)
	defer func() { _ = journal.Close() }()

	s, ws := newTestSession(t, p, SessionOptions{Journal: journal})
	out := runREPL(t, s, ws.Config,
		"Sum SALES by COUNTRY",
		"/show 2",
		"/plot Bar chart of SALES by COUNTRY",
		"/chart",
		"/usage",
		"/history",
		"/reset",
		"/chart",
		"/quit",
		"never reached",
	)

	assert.Contains(t, out, "10 rows loaded, completions via Scripted")
	assert.Contains(t, out, "USA")
	assert.Contains(t, out, "2 of 4 rows shown")
	assert.Contains(t, out, `layout={"title": "Sales"}`)
	assert.Contains(t, out, "Completion calls: 3")
	assert.Contains(t, out, "Budget:           unlimited")
	assert.Contains(t, out, "groupby('COUNTRY')['SALES'].sum().reset_index()")
	assert.Contains(t, out, "Data reset (10 rows)")
	assert.Contains(t, out, "No chart.")
	assert.Contains(t, out, "Goodbye!")
	assert.Equal(t, 3, p.calls())
}

func TestREPLCommandErrors(t *testing.T) {
	p := newScripted("data['NOPE'].sum()\n")
	s, ws := newTestSession(t, p, SessionOptions{})
	out := runREPL(t, s, ws.Config,
		"/data",
		"/plot",
		"/foo",
		"/history",
		"/data Sum NOPE",
	)

	assert.Contains(t, out, "/data <instruction>")
	assert.Contains(t, out, "/plot <instruction>")
	assert.Contains(t, out, "Unknown command: /foo")
	assert.Contains(t, out, "No history yet.")
	assert.Contains(t, out, "Error with code data['NOPE'].sum()")
	assert.Contains(t, out, "Goodbye!", "end of input ends the loop")
}

func TestREPLConfig(t *testing.T) {
	s, ws := newTestSession(t, newScripted(), SessionOptions{})
	ws.Config.GuardURL = "http://guard:8000"
	ws.Config.MaxCalls = 40

	out := runREPL(t, s, ws.Config, "/config", "/show original")
	assert.Contains(t, out, "Current Configuration:")
	assert.Contains(t, out, "Backend:  Hugging Face")
	assert.Contains(t, out, "Call budget: 40 per session")
	assert.Contains(t, out, "Guard:    http://guard:8000")
	assert.Contains(t, out, "ORDERNUMBER")
}
