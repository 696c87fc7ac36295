package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpr(t *testing.T) {
	root := &Name{Name: "transformed_data"}
	tests := []struct {
		name string
		src  string
		want Expr
	}{
		{
			name: "groupby chain",
			src:  "transformed_data.groupby('COUNTRY')['SALES'].sum()",
			want: &CallExpr{Fn: &Attr{
				X: &IndexExpr{
					X: &CallExpr{
						Fn:   &Attr{X: root, Name: "groupby"},
						Args: []Expr{&Literal{Value: "COUNTRY"}},
					},
					Index: []Expr{&Literal{Value: "SALES"}},
				},
				Name: "sum",
			}},
		},
		{
			name: "keyword arguments",
			src:  `transformed_data.sort_values(by="SALES", ascending=False)`,
			want: &CallExpr{
				Fn: &Attr{X: root, Name: "sort_values"},
				Kwargs: []Kwarg{
					{Name: "by", Value: &Literal{Value: "SALES"}},
					{Name: "ascending", Value: &Literal{Value: false}},
				},
			},
		},
		{
			name: "mask with parentheses",
			src:  "(transformed_data['A'] > 1) & ~(transformed_data['B'] == None)",
			want: &BinaryExpr{
				Op: "&",
				X:  &BinaryExpr{Op: ">", X: &IndexExpr{X: root, Index: []Expr{&Literal{Value: "A"}}}, Y: &Literal{Value: 1.0}},
				Y: &UnaryExpr{Op: "~", X: &BinaryExpr{
					Op: "==",
					X:  &IndexExpr{X: root, Index: []Expr{&Literal{Value: "B"}}},
					Y:  &Literal{Value: nil},
				}},
			},
		},
		{
			name: "negative number folds",
			src:  "-2.5e1",
			want: &Literal{Value: -25.0},
		},
		{
			name: "adjacent strings",
			src:  `'ab' "cd"`,
			want: &Literal{Value: "abcd"},
		},
		{
			name: "list and dict",
			src:  "[1, 'x', {'a': True}]",
			want: &ListExpr{Elems: []Expr{
				&Literal{Value: 1.0},
				&Literal{Value: "x"},
				&DictExpr{Keys: []Expr{&Literal{Value: "a"}}, Values: []Expr{&Literal{Value: true}}},
			}},
		},
		{
			name: "loc with two keys",
			src:  "data.loc[data['A'] > 0, ['B']]",
			want: &IndexExpr{
				X: &Attr{X: &Name{Name: "data"}, Name: "loc"},
				Index: []Expr{
					&BinaryExpr{Op: ">", X: &IndexExpr{X: &Name{Name: "data"}, Index: []Expr{&Literal{Value: "A"}}}, Y: &Literal{Value: 0.0}},
					&ListExpr{Elems: []Expr{&Literal{Value: "B"}}},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExpr(tt.src)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseExpr(%q) mismatch (-want +got):\n%s", tt.src, diff)
			}
		})
	}
}

func TestParseExprErrors(t *testing.T) {
	for _, src := range []string{
		"",
		"data[",
		"data.groupby('A'",
		"data @ 2",
		"data.f(a=1, 2)",
		"'unterminated",
		"data.",
		"data) extra",
		"data; import os",
	} {
		_, err := ParseExpr(src)
		assert.ErrorIs(t, err, ErrUnsupportedExpression, "source %q", src)
	}
}
