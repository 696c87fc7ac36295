package main

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrame(t *testing.T) {
	f := loadSample(t)

	assert.Equal(t, []string{"ORDERNUMBER", "QUANTITYORDERED", "SALES", "ORDERDATE", "STATUS", "PRODUCTLINE", "COUNTRY", "DEALSIZE"}, f.Columns)
	require.Equal(t, 10, f.Len())

	// sorted by ORDERDATE
	first := f.Rows[0]
	assert.Equal(t, 10100.0, first[0])
	assert.Equal(t, time.Date(2003, 1, 6, 0, 0, 0, 0, time.UTC), first[3])
	assert.Equal(t, "USA", first[6])

	dates, err := f.Column("ORDERDATE")
	require.NoError(t, err)
	for i := 1; i < len(dates); i++ {
		assert.False(t, dates[i].(time.Time).Before(dates[i-1].(time.Time)), "row %d out of order", i)
	}

	sales, err := f.Column("SALES")
	require.NoError(t, err)
	nils := 0
	for _, v := range sales {
		if v == nil {
			nils++
		}
	}
	assert.Equal(t, 1, nils)
}

func TestReadFrameEncoding(t *testing.T) {
	src := "NAME,VAL\nCaf\xe9,1\n"

	f, err := ReadFrame(strings.NewReader(src), FrameOptions{Encoding: "iso-8859-1"})
	require.NoError(t, err)
	assert.Equal(t, "Café", f.Rows[0][0])

	f, err = ReadFrame(strings.NewReader(src), FrameOptions{Encoding: "windows-1252"})
	require.NoError(t, err)
	assert.Equal(t, "Café", f.Rows[0][0])

	_, err = ReadFrame(strings.NewReader(src), FrameOptions{Encoding: "ebcdic"})
	assert.Error(t, err)
}

func TestReadFrameErrors(t *testing.T) {
	_, err := ReadFrame(strings.NewReader(""), FrameOptions{})
	assert.Error(t, err)

	_, err = ReadFrame(strings.NewReader("A,B\n1,2\n"), FrameOptions{DateColumn: "WHEN"})
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = ReadFrame(strings.NewReader("WHEN\nyesterday\n"), FrameOptions{DateColumn: "WHEN"})
	assert.ErrorContains(t, err, "line 2")
}

func TestReadFrameMixedColumnStaysText(t *testing.T) {
	f, err := ReadFrame(strings.NewReader("CODE,N\n10,1\nS10,2\n,3\n"), FrameOptions{Separator: ','})
	require.NoError(t, err)
	assert.Equal(t, []any{"10", 1.0}, f.Rows[0])
	assert.Equal(t, []any{"S10", 2.0}, f.Rows[1])
	assert.Equal(t, []any{nil, 3.0}, f.Rows[2])
}

func TestFrameCloneIsIndependent(t *testing.T) {
	f := loadSample(t)
	before := f.Clone()

	c := f.Clone()
	c.Rows[0][0] = "changed"
	c.Columns[0] = "RENAMED"
	c.Rows = c.Rows[:1]

	if diff := cmp.Diff(before, f); diff != "" {
		t.Errorf("original changed through clone (-want +got):\n%s", diff)
	}
}

func TestFrameColumnMissing(t *testing.T) {
	_, err := loadSample(t).Column("NOPE")
	assert.ErrorIs(t, err, ErrColumnNotFound)
}

func TestCell(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{2871.0, "2871"},
		{2765.9, "2765.9"},
		{true, "True"},
		{time.Date(2003, 2, 24, 0, 0, 0, 0, time.UTC), "2003-02-24"},
		{time.Date(2003, 2, 24, 13, 5, 0, 0, time.UTC), "2003-02-24 13:05:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Cell(tt.in))
	}
}

func TestCompareValues(t *testing.T) {
	c, ok := compareValues(1.0, 2.0)
	assert.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = compareValues(nil, 2.0)
	assert.True(t, ok)
	assert.Equal(t, 1, c, "nil sorts last")

	_, ok = compareValues("a", 1.0)
	assert.False(t, ok)
}

func TestStringRows(t *testing.T) {
	f := loadSample(t)
	rows := f.StringRows(2)
	require.Len(t, rows, 2)
	assert.Equal(t, "10100", rows[0][0])
	assert.Equal(t, "2003-01-06", rows[0][3])
	assert.Len(t, f.StringRows(0), 10)
}
