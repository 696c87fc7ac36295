package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTransform(t *testing.T, code string, working, original *Frame) *Frame {
	t.Helper()
	f, err := ApplyTransform(code, working, original)
	require.NoError(t, err, "code %q", code)
	return f
}

func columnValues(t *testing.T, f *Frame, name string) []any {
	t.Helper()
	values, err := f.Column(name)
	require.NoError(t, err)
	return values
}

func TestApplyTransformGroupBySum(t *testing.T) {
	data := loadSample(t)
	f := mustTransform(t, "transformed_data.groupby('COUNTRY')['SALES'].sum().reset_index()", data, data)

	assert.Equal(t, []string{"COUNTRY", "SALES"}, f.Columns)
	assert.Equal(t, []any{"France", "Norway", "Spain", "USA"}, columnValues(t, f, "COUNTRY"))

	sums := columnValues(t, f, "SALES")
	assert.InDelta(t, 9148.01, sums[0], 1e-6)
	assert.InDelta(t, 3479.76, sums[1], 1e-6, "missing SALES is skipped")
	assert.InDelta(t, 2168.54, sums[2], 1e-6)
	assert.InDelta(t, 13726.19, sums[3], 1e-6)
}

func TestApplyTransformImplicitRoot(t *testing.T) {
	data := loadSample(t)

	f := mustTransform(t, "groupby('COUNTRY').size().reset_index()", data, data)
	assert.Equal(t, []string{"COUNTRY", "size"}, f.Columns)
	assert.Equal(t, []any{3.0, 2.0, 1.0, 4.0}, columnValues(t, f, "size"))

	f = mustTransform(t, ".head(3)", data, data)
	assert.Equal(t, 3, f.Len())
}

func TestApplyTransformRoots(t *testing.T) {
	original := loadSample(t)
	working := mustTransform(t, "data.head(2)", original, original)

	assert.Equal(t, 2, mustTransform(t, "transformed_data", working, original).Len())
	assert.Equal(t, 2, mustTransform(t, "df.copy()", working, original).Len())
	assert.Equal(t, 10, mustTransform(t, "data", working, original).Len())
}

func TestApplyTransformFilters(t *testing.T) {
	data := loadSample(t)
	tests := []struct {
		code string
		rows int
	}{
		{"data[data['COUNTRY'] == 'France']", 3},
		{"data[(data['COUNTRY'] == 'USA') & (data['SALES'] > 3000)]", 2},
		{"data[(data['COUNTRY'] == 'Spain') | (data['COUNTRY'] == 'Norway')]", 3},
		{"data[~(data['COUNTRY'] == 'USA')]", 6},
		{"data[3000 < data['SALES']]", 4},
		{"data[data['SALES'] > 0]", 9},
		{"data[data['SALES'] != None]", 10},
		{"data[data['ORDERDATE'] >= '2003-11-01']", 3},
		{"data[data['ORDERDATE'] < '2003-03']", 2},
		{"data[data['PRODUCTLINE'].str.contains('cars', case=False)]", 5},
		{"data[data['PRODUCTLINE'].str.startswith('Classic')]", 3},
		{"data[data['COUNTRY'].isin(['Spain', 'Norway'])]", 3},
		{"data[data['QUANTITYORDERED'].between(30, 41)]", 4},
		{"data.loc[data['DEALSIZE'] == 'Large']", 1},
		{"data.dropna(subset=['SALES'])", 9},
		{"data.drop_duplicates(subset=['COUNTRY'])", 4},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			f := mustTransform(t, tt.code, data, data)
			assert.Equal(t, tt.rows, f.Len())
			assert.Equal(t, data.Columns, f.Columns)
		})
	}
}

func TestApplyTransformSortAndSlice(t *testing.T) {
	data := loadSample(t)

	f := mustTransform(t, "data.sort_values(by='SALES', ascending=False).head(2)", data, data)
	assert.Equal(t, []any{5205.27, 3884.34}, columnValues(t, f, "SALES"))

	f = mustTransform(t, "data.sort_values('SALES').tail(1)", data, data)
	assert.Equal(t, []any{nil}, columnValues(t, f, "SALES"), "missing values sort last")

	f = mustTransform(t, "data.nsmallest(2, 'SALES')", data, data)
	assert.Equal(t, []any{1903.22, 2168.54}, columnValues(t, f, "SALES"))

	f = mustTransform(t, "data.sort_values(by=['COUNTRY', 'SALES'], ascending=[True, False])[['COUNTRY', 'SALES']].head(3)", data, data)
	assert.Equal(t, [][]any{{"France", 3884.34}, {"France", 2765.9}, {"France", 2497.77}}, f.Rows)
}

func TestApplyTransformColumns(t *testing.T) {
	data := loadSample(t)

	f := mustTransform(t, "data[['COUNTRY', 'SALES']]", data, data)
	assert.Equal(t, []string{"COUNTRY", "SALES"}, f.Columns)

	f = mustTransform(t, "data.rename(columns={'SALES': 'REVENUE'})", data, data)
	assert.Contains(t, f.Columns, "REVENUE")
	assert.NotContains(t, f.Columns, "SALES")

	f = mustTransform(t, "data.drop(columns=['STATUS', 'DEALSIZE'])", data, data)
	assert.Len(t, f.Columns, 6)

	f = mustTransform(t, "data.drop('STATUS', axis=1)", data, data)
	assert.NotContains(t, f.Columns, "STATUS")
}

func TestApplyTransformSeries(t *testing.T) {
	data := loadSample(t)

	f := mustTransform(t, "data['COUNTRY'].value_counts()", data, data)
	assert.Equal(t, []string{"COUNTRY", "count"}, f.Columns)
	assert.Equal(t, []any{"USA", 4.0}, f.Rows[0])
	assert.Equal(t, []any{"Spain", 1.0}, f.Rows[3])

	f = mustTransform(t, "data['SALES'].sum()", data, data)
	assert.Equal(t, []string{"value"}, f.Columns)
	assert.InDelta(t, 28522.50, f.Rows[0][0], 1e-6)

	f = mustTransform(t, "data['SALES'].count()", data, data)
	assert.Equal(t, 9.0, f.Rows[0][0])

	f = mustTransform(t, "data['COUNTRY'].unique()", data, data)
	assert.Equal(t, 4, f.Len())

	f = mustTransform(t, "data['COUNTRY'].str.upper().to_frame('C')", data, data)
	assert.Equal(t, []string{"C"}, f.Columns)
	assert.Equal(t, "USA", f.Rows[0][0])
}

func TestApplyTransformFrameAggregates(t *testing.T) {
	data := loadSample(t)

	f := mustTransform(t, "data[['SALES', 'COUNTRY']].max()", data, data)
	assert.Equal(t, []string{"SALES", "COUNTRY"}, f.Columns)
	assert.Equal(t, []any{5205.27, "USA"}, f.Rows[0])

	f = mustTransform(t, "data[['SALES', 'COUNTRY']].sum()", data, data)
	assert.Equal(t, []string{"SALES"}, f.Columns, "sum keeps numeric columns only")

	f = mustTransform(t, "data.groupby(['COUNTRY', 'DEALSIZE']).agg('count')", data, data)
	assert.Equal(t, "COUNTRY", f.Columns[0])
	assert.Equal(t, "DEALSIZE", f.Columns[1])
	assert.Equal(t, []any{"France", "Medium"}, f.Rows[0][:2])

	f = mustTransform(t, "data.groupby('DEALSIZE').SALES.mean()", data, data)
	assert.Equal(t, []string{"DEALSIZE", "SALES"}, f.Columns)
	assert.Equal(t, []any{"Large", nil}, f.Rows[0])
}

func TestApplyTransformErrors(t *testing.T) {
	data := loadSample(t)
	tests := []struct {
		code string
		want error
	}{
		{"", ErrUnsupportedExpression},
		{"data['SALES'] > 1", ErrUnsupportedExpression},
		{"data.groupby('COUNTRY')", ErrUnsupportedExpression},
		{"data['NOPE']", ErrColumnNotFound},
		{"data.groupby('NOPE').sum()", ErrColumnNotFound},
		{"data.sort_values('NOPE')", ErrColumnNotFound},
		{"__import__('os').system('ls')", ErrUnsupportedExpression},
		{"data.to_csv('out.csv')", ErrUnsupportedExpression},
		{"data[data['COUNTRY'] > 3]", ErrUnsupportedExpression},
		{"data[data['COUNTRY'] & data['SALES']]", ErrUnsupportedExpression},
		{"data.head(1.5)", ErrUnsupportedExpression},
		{"data.head(1e20)", ErrUnsupportedExpression},
		{"data['SALES'].tail(-100000000000)", ErrUnsupportedExpression},
		{"data.nlargest(3000000000, 'SALES')", ErrUnsupportedExpression},
		{"data.drop('STATUS')", ErrUnsupportedExpression},
		{"data.rename({'SALES': 'X'})", ErrUnsupportedExpression},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			_, err := ApplyTransform(tt.code, data, data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApplyTransformLeavesInputsUntouched(t *testing.T) {
	original := loadSample(t)
	working := original.Clone()
	wantOriginal, wantWorking := original.Clone(), working.Clone()

	for _, code := range []string{
		"transformed_data.rename(columns={'SALES': 'X'})",
		"transformed_data.sort_values('SALES')",
		"data.drop(columns=['STATUS'])",
		"transformed_data['COUNTRY'].str.lower()",
		"data.NOPE",
	} {
		_, _ = ApplyTransform(code, working, original)
	}

	if diff := cmp.Diff(wantOriginal, original); diff != "" {
		t.Errorf("original changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantWorking, working); diff != "" {
		t.Errorf("working changed (-want +got):\n%s", diff)
	}
}
