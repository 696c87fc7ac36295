package main

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Series is one named column of values. Mask marks boolean series produced
// by comparisons, which only make sense as row selectors.
type Series struct {
	Name   string
	Values []any
	Mask   bool
}

// grouped is the result of groupby before aggregation
type grouped struct {
	frame    *Frame
	keys     []string
	selected []string // nil selects every non-key column
}

type locIndexer struct{ frame *Frame }

type strAccessor struct{ series *Series }

// callArgs are the evaluated arguments of a method call
type callArgs struct {
	pos []any
	kw  map[string]any
}

func (a callArgs) get(i int, name string) (any, bool) {
	if v, ok := a.kw[name]; ok {
		return v, true
	}
	if i >= 0 && i < len(a.pos) {
		return a.pos[i], true
	}
	return nil, false
}

// interpreter evaluates a parsed expression against the session frames
type interpreter struct {
	working  *Frame
	original *Frame
}

var rootNames = map[string]bool{"transformed_data": true, "data": true, "df": true}

var leadingIdent = regexp.MustCompile(`^[A-Za-z_]\w*`)

// ApplyTransform evaluates a generated transform expression and returns the
// resulting frame. Neither input frame is modified.
func ApplyTransform(code string, working, original *Frame) (*Frame, error) {
	src := strings.TrimSpace(code)
	if src == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrUnsupportedExpression)
	}
	// A bare method chain applies to the working frame
	if strings.HasPrefix(src, ".") {
		src = "transformed_data" + src
	} else if id := leadingIdent.FindString(src); id != "" && !rootNames[id] {
		src = "transformed_data." + src
	}

	expr, err := ParseExpr(src)
	if err != nil {
		return nil, err
	}

	in := &interpreter{working: working, original: original}
	v, err := in.eval(expr)
	if err != nil {
		return nil, err
	}
	return toFrame(v)
}

// toFrame coerces an evaluation result to a frame
func toFrame(v any) (*Frame, error) {
	switch x := v.(type) {
	case *Frame:
		return x, nil
	case *Series:
		if x.Mask {
			return nil, fmt.Errorf("%w: boolean mask must be used to select rows", ErrUnsupportedExpression)
		}
		return seriesFrame(x), nil
	case *grouped:
		return nil, fmt.Errorf("%w: groupby result must be aggregated", ErrUnsupportedExpression)
	case *locIndexer, *strAccessor, []any, map[string]any:
		return nil, fmt.Errorf("%w: result is not tabular", ErrUnsupportedExpression)
	default:
		return &Frame{Columns: []string{"value"}, Rows: [][]any{{x}}}, nil
	}
}

func seriesFrame(s *Series) *Frame {
	name := s.Name
	if name == "" {
		name = "value"
	}
	f := &Frame{Columns: []string{name}, Rows: make([][]any, len(s.Values))}
	for i, v := range s.Values {
		f.Rows[i] = []any{v}
	}
	return f
}

func (in *interpreter) eval(e Expr) (any, error) {
	switch n := e.(type) {
	case *Literal:
		return n.Value, nil

	case *Name:
		switch n.Name {
		case "transformed_data", "df":
			return in.working, nil
		case "data":
			return in.original, nil
		}
		return nil, fmt.Errorf("%w: unknown name %s", ErrUnsupportedExpression, n.Name)

	case *ListExpr:
		out := make([]any, len(n.Elems))
		for i, el := range n.Elems {
			v, err := in.eval(el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *DictExpr:
		out := make(map[string]any, len(n.Keys))
		for i := range n.Keys {
			k, err := in.eval(n.Keys[i])
			if err != nil {
				return nil, err
			}
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("%w: dict keys must be strings", ErrUnsupportedExpression)
			}
			v, err := in.eval(n.Values[i])
			if err != nil {
				return nil, err
			}
			out[ks] = v
		}
		return out, nil

	case *Attr:
		x, err := in.eval(n.X)
		if err != nil {
			return nil, err
		}
		return attribute(x, n.Name)

	case *IndexExpr:
		x, err := in.eval(n.X)
		if err != nil {
			return nil, err
		}
		idx := make([]any, len(n.Index))
		for i, e := range n.Index {
			if idx[i], err = in.eval(e); err != nil {
				return nil, err
			}
		}
		return subscript(x, idx)

	case *CallExpr:
		attr, ok := n.Fn.(*Attr)
		if !ok {
			return nil, fmt.Errorf("%w: only method calls are allowed", ErrUnsupportedExpression)
		}
		recv, err := in.eval(attr.X)
		if err != nil {
			return nil, err
		}
		args := callArgs{pos: make([]any, len(n.Args)), kw: make(map[string]any, len(n.Kwargs))}
		for i, a := range n.Args {
			if args.pos[i], err = in.eval(a); err != nil {
				return nil, err
			}
		}
		for _, kw := range n.Kwargs {
			if args.kw[kw.Name], err = in.eval(kw.Value); err != nil {
				return nil, err
			}
		}
		return call(recv, attr.Name, args)

	case *UnaryExpr:
		x, err := in.eval(n.X)
		if err != nil {
			return nil, err
		}
		return unary(n.Op, x)

	case *BinaryExpr:
		x, err := in.eval(n.X)
		if err != nil {
			return nil, err
		}
		y, err := in.eval(n.Y)
		if err != nil {
			return nil, err
		}
		return binary(n.Op, x, y)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedExpression, e)
}

func attribute(x any, name string) (any, error) {
	switch v := x.(type) {
	case *Frame:
		if name == "loc" {
			return &locIndexer{frame: v}, nil
		}
		return v.series(name)
	case *Series:
		if name == "str" {
			return &strAccessor{series: v}, nil
		}
	case *grouped:
		if v.frame.ColumnIndex(name) >= 0 {
			return v.selectColumns([]string{name})
		}
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return nil, fmt.Errorf("%w: attribute %s on %s", ErrUnsupportedExpression, name, kindName(x))
}

func subscript(x any, idx []any) (any, error) {
	switch v := x.(type) {
	case *Frame:
		if len(idx) != 1 {
			return nil, fmt.Errorf("%w: frame subscript takes one key", ErrUnsupportedExpression)
		}
		return v.index(idx[0])

	case *locIndexer:
		rows, err := v.frame.index(idx[0])
		if err != nil {
			return nil, err
		}
		if len(idx) == 1 {
			return rows, nil
		}
		if len(idx) != 2 {
			return nil, fmt.Errorf("%w: loc takes rows and columns", ErrUnsupportedExpression)
		}
		f, ok := rows.(*Frame)
		if !ok {
			return nil, fmt.Errorf("%w: loc rows must be a boolean mask", ErrUnsupportedExpression)
		}
		return f.index(idx[1])

	case *grouped:
		if len(idx) != 1 {
			return nil, fmt.Errorf("%w: groupby subscript takes one key", ErrUnsupportedExpression)
		}
		cols, err := columnList(idx[0])
		if err != nil {
			return nil, err
		}
		return v.selectColumns(cols)
	}
	return nil, fmt.Errorf("%w: subscript on %s", ErrUnsupportedExpression, kindName(x))
}

func call(recv any, method string, args callArgs) (any, error) {
	switch v := recv.(type) {
	case *Frame:
		return v.call(method, args)
	case *Series:
		return v.call(method, args)
	case *grouped:
		return v.call(method, args)
	case *strAccessor:
		return v.call(method, args)
	}
	return nil, fmt.Errorf("%w: %s() on %s", ErrUnsupportedExpression, method, kindName(recv))
}

func kindName(x any) string {
	switch x.(type) {
	case *Frame:
		return "frame"
	case *Series:
		return "series"
	case *grouped:
		return "groupby"
	case *locIndexer:
		return "loc"
	case *strAccessor:
		return "str"
	case nil:
		return "None"
	default:
		return fmt.Sprintf("%T", x)
	}
}

// Frame operations

func (f *Frame) series(name string) (*Series, error) {
	values, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	return &Series{Name: name, Values: values}, nil
}

func (f *Frame) index(key any) (any, error) {
	switch k := key.(type) {
	case string:
		return f.series(k)
	case []any:
		cols, err := columnList(k)
		if err != nil {
			return nil, err
		}
		return f.selectColumns(cols)
	case *Series:
		return f.filter(k)
	}
	return nil, fmt.Errorf("%w: frame subscript with %s", ErrUnsupportedExpression, kindName(key))
}

func (f *Frame) selectColumns(cols []string) (*Frame, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		if idx[i] = f.ColumnIndex(c); idx[i] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, c)
		}
	}
	out := &Frame{Columns: append([]string{}, cols...), Rows: make([][]any, len(f.Rows))}
	for r, row := range f.Rows {
		nr := make([]any, len(idx))
		for i, j := range idx {
			nr[i] = row[j]
		}
		out.Rows[r] = nr
	}
	return out, nil
}

func (f *Frame) filter(mask *Series) (*Frame, error) {
	if len(mask.Values) != len(f.Rows) {
		return nil, fmt.Errorf("%w: mask length %d does not match %d rows", ErrUnsupportedExpression, len(mask.Values), len(f.Rows))
	}
	out := &Frame{Columns: append([]string{}, f.Columns...)}
	for i, m := range mask.Values {
		b, ok := m.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: row selector must be boolean", ErrUnsupportedExpression)
		}
		if b {
			out.Rows = append(out.Rows, append([]any(nil), f.Rows[i]...))
		}
	}
	return out, nil
}

func (f *Frame) withRows(order []int) *Frame {
	out := &Frame{Columns: append([]string{}, f.Columns...), Rows: make([][]any, len(order))}
	for i, r := range order {
		out.Rows[i] = append([]any(nil), f.Rows[r]...)
	}
	return out
}

func (f *Frame) call(method string, args callArgs) (any, error) {
	switch method {
	case "groupby":
		by, ok := args.get(0, "by")
		if !ok {
			return nil, fmt.Errorf("%w: groupby needs a column", ErrUnsupportedExpression)
		}
		keys, err := columnList(by)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if f.ColumnIndex(k) < 0 {
				return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, k)
			}
		}
		return &grouped{frame: f, keys: keys}, nil

	case "sort_values":
		by, ok := args.get(0, "by")
		if !ok {
			return nil, fmt.Errorf("%w: sort_values needs by", ErrUnsupportedExpression)
		}
		cols, err := columnList(by)
		if err != nil {
			return nil, err
		}
		asc, err := ascendingFlags(args, len(cols))
		if err != nil {
			return nil, err
		}
		return f.sortBy(cols, asc)

	case "head", "tail":
		n, err := intArg(args, 0, "n", 5)
		if err != nil {
			return nil, err
		}
		return f.withRows(sliceRange(len(f.Rows), n, method == "tail")), nil

	case "nlargest", "nsmallest":
		n, err := intArg(args, 0, "n", 5)
		if err != nil {
			return nil, err
		}
		by, ok := args.get(1, "columns")
		if !ok {
			return nil, fmt.Errorf("%w: %s needs columns", ErrUnsupportedExpression, method)
		}
		cols, err := columnList(by)
		if err != nil {
			return nil, err
		}
		asc := make([]bool, len(cols))
		for i := range asc {
			asc[i] = method == "nsmallest"
		}
		sorted, err := f.sortBy(cols, asc)
		if err != nil {
			return nil, err
		}
		return sorted.withRows(sliceRange(len(sorted.Rows), n, false)), nil

	case "drop_duplicates":
		cols := f.Columns
		if subset, ok := args.get(0, "subset"); ok && subset != nil {
			var err error
			if cols, err = columnList(subset); err != nil {
				return nil, err
			}
		}
		return f.dropDuplicates(cols)

	case "drop":
		target, ok := args.kw["columns"]
		if !ok {
			target, ok = args.get(0, "labels")
			axis, _ := args.get(-1, "axis")
			if axis != float64(1) && axis != "columns" {
				return nil, fmt.Errorf("%w: drop supports columns only", ErrUnsupportedExpression)
			}
		}
		if !ok {
			return nil, fmt.Errorf("%w: drop needs columns", ErrUnsupportedExpression)
		}
		cols, err := columnList(target)
		if err != nil {
			return nil, err
		}
		var keep []string
		for _, c := range f.Columns {
			if indexOf(cols, c) < 0 {
				keep = append(keep, c)
			}
		}
		for _, c := range cols {
			if f.ColumnIndex(c) < 0 {
				return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, c)
			}
		}
		return f.selectColumns(keep)

	case "rename":
		v, _ := args.get(-1, "columns")
		mapping, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: rename needs columns={...}", ErrUnsupportedExpression)
		}
		out := f.Clone()
		for i, c := range out.Columns {
			if nv, ok := mapping[c]; ok {
				s, ok := nv.(string)
				if !ok {
					return nil, fmt.Errorf("%w: new column names must be strings", ErrUnsupportedExpression)
				}
				out.Columns[i] = s
			}
		}
		return out, nil

	case "dropna":
		cols := f.Columns
		if subset, ok := args.get(-1, "subset"); ok && subset != nil {
			var err error
			if cols, err = columnList(subset); err != nil {
				return nil, err
			}
		}
		idx := make([]int, len(cols))
		for i, c := range cols {
			if idx[i] = f.ColumnIndex(c); idx[i] < 0 {
				return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, c)
			}
		}
		var order []int
	rows:
		for r, row := range f.Rows {
			for _, j := range idx {
				if row[j] == nil {
					continue rows
				}
			}
			order = append(order, r)
		}
		return f.withRows(order), nil

	case "reset_index", "copy":
		return f, nil

	case "sum", "mean", "median", "min", "max", "count", "nunique":
		return f.aggregate(method)
	}
	return nil, fmt.Errorf("%w: frame method %s", ErrUnsupportedExpression, method)
}

func (f *Frame) sortBy(cols []string, asc []bool) (*Frame, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		if idx[i] = f.ColumnIndex(c); idx[i] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, c)
		}
	}
	order := make([]int, len(f.Rows))
	for i := range order {
		order[i] = i
	}
	var cmpErr error
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := f.Rows[order[a]], f.Rows[order[b]]
		for k, j := range idx {
			// missing values go last in either direction
			if ra[j] == nil || rb[j] == nil {
				if (ra[j] == nil) != (rb[j] == nil) {
					return rb[j] == nil
				}
				continue
			}
			c, ok := compareValues(ra[j], rb[j])
			if !ok {
				cmpErr = fmt.Errorf("%w: column %s mixes incomparable values", ErrUnsupportedExpression, cols[k])
				return false
			}
			if c != 0 {
				return (c < 0) == asc[k]
			}
		}
		return false
	})
	if cmpErr != nil {
		return nil, cmpErr
	}
	return f.withRows(order), nil
}

func (f *Frame) dropDuplicates(cols []string) (*Frame, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		if idx[i] = f.ColumnIndex(c); idx[i] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, c)
		}
	}
	seen := make(map[string]bool)
	var order []int
	for r, row := range f.Rows {
		k := rowKey(row, idx)
		if seen[k] {
			continue
		}
		seen[k] = true
		order = append(order, r)
	}
	return f.withRows(order), nil
}

// aggregate reduces every eligible column to one value in a one-row frame
func (f *Frame) aggregate(method string) (*Frame, error) {
	out := &Frame{}
	var row []any
	for j, c := range f.Columns {
		values := make([]any, len(f.Rows))
		for i, r := range f.Rows {
			values[i] = r[j]
		}
		if numericOnly(method) && !isNumericValues(values) {
			continue
		}
		v, err := reduce(method, values)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		out.Columns = append(out.Columns, c)
		row = append(row, v)
	}
	out.Rows = [][]any{row}
	return out, nil
}

// Series operations

func (s *Series) call(method string, args callArgs) (any, error) {
	switch method {
	case "sum", "mean", "median", "min", "max", "count", "nunique":
		return reduce(method, s.Values)

	case "isin":
		v, _ := args.get(0, "values")
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: isin needs a list", ErrUnsupportedExpression)
		}
		out := s.mask()
		for i, x := range s.Values {
			hit := false
			for _, y := range list {
				if c, ok := compareCoerced(x, y); ok && c == 0 {
					hit = true
					break
				}
			}
			out.Values[i] = hit
		}
		return out, nil

	case "between":
		lo, ok1 := args.get(0, "left")
		hi, ok2 := args.get(1, "right")
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("%w: between needs two bounds", ErrUnsupportedExpression)
		}
		out := s.mask()
		for i, x := range s.Values {
			c1, ok1 := compareCoerced(x, lo)
			c2, ok2 := compareCoerced(x, hi)
			out.Values[i] = x != nil && ok1 && ok2 && c1 >= 0 && c2 <= 0
		}
		return out, nil

	case "value_counts":
		return s.valueCounts(), nil

	case "sort_values":
		asc, err := ascendingFlags(args, 1)
		if err != nil {
			return nil, err
		}
		f, err := seriesFrame(s).sortBy([]string{seriesFrame(s).Columns[0]}, asc)
		if err != nil {
			return nil, err
		}
		return frameSeries(f, s), nil

	case "head", "tail":
		n, err := intArg(args, 0, "n", 5)
		if err != nil {
			return nil, err
		}
		return frameSeries(seriesFrame(s).withRows(sliceRange(len(s.Values), n, method == "tail")), s), nil

	case "nlargest", "nsmallest":
		n, err := intArg(args, 0, "n", 5)
		if err != nil {
			return nil, err
		}
		f := seriesFrame(s)
		sorted, err := f.sortBy(f.Columns, []bool{method == "nsmallest"})
		if err != nil {
			return nil, err
		}
		return frameSeries(sorted.withRows(sliceRange(len(s.Values), n, false)), s), nil

	case "unique":
		f, err := seriesFrame(s).dropDuplicates([]string{seriesFrame(s).Columns[0]})
		if err != nil {
			return nil, err
		}
		return frameSeries(f, s), nil

	case "reset_index", "copy":
		return s, nil

	case "to_frame":
		f := seriesFrame(s)
		if name, ok := args.get(0, "name"); ok {
			n, ok := name.(string)
			if !ok {
				return nil, fmt.Errorf("%w: to_frame name must be a string", ErrUnsupportedExpression)
			}
			f.Columns[0] = n
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: series method %s", ErrUnsupportedExpression, method)
}

func frameSeries(f *Frame, like *Series) *Series {
	out := &Series{Name: like.Name, Mask: like.Mask, Values: make([]any, len(f.Rows))}
	for i, r := range f.Rows {
		out.Values[i] = r[0]
	}
	return out
}

func (s *Series) mask() *Series {
	return &Series{Name: s.Name, Values: make([]any, len(s.Values)), Mask: true}
}

func (s *Series) valueCounts() *Frame {
	counts := make(map[string]int)
	first := make(map[string]any)
	var order []string
	for _, v := range s.Values {
		if v == nil {
			continue
		}
		k := valueKey(v)
		if _, ok := counts[k]; !ok {
			order = append(order, k)
			first[k] = v
		}
		counts[k]++
	}
	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]] > counts[order[b]]
	})
	name := s.Name
	if name == "" {
		name = "value"
	}
	f := &Frame{Columns: []string{name, "count"}}
	for _, k := range order {
		f.Rows = append(f.Rows, []any{first[k], float64(counts[k])})
	}
	return f
}

func (a *strAccessor) call(method string, args callArgs) (any, error) {
	s := a.series
	switch method {
	case "contains":
		p, _ := args.get(0, "pat")
		pat, ok := p.(string)
		if !ok {
			return nil, fmt.Errorf("%w: str.contains needs a string pattern", ErrUnsupportedExpression)
		}
		caseSensitive := true
		if v, ok := args.get(1, "case"); ok {
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: case must be True or False", ErrUnsupportedExpression)
			}
			caseSensitive = b
		}
		useRegex := true
		if v, ok := args.kw["regex"].(bool); ok {
			useRegex = v
		}
		if !useRegex {
			pat = regexp.QuoteMeta(pat)
		}
		if !caseSensitive {
			pat = "(?i)" + pat
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern: %v", ErrUnsupportedExpression, err)
		}
		out := s.mask()
		for i, v := range s.Values {
			str, ok := v.(string)
			out.Values[i] = ok && re.MatchString(str)
		}
		return out, nil

	case "startswith", "endswith":
		p, _ := args.get(0, "pat")
		pat, ok := p.(string)
		if !ok {
			return nil, fmt.Errorf("%w: str.%s needs a string", ErrUnsupportedExpression, method)
		}
		out := s.mask()
		for i, v := range s.Values {
			str, ok := v.(string)
			if method == "startswith" {
				out.Values[i] = ok && strings.HasPrefix(str, pat)
			} else {
				out.Values[i] = ok && strings.HasSuffix(str, pat)
			}
		}
		return out, nil

	case "lower", "upper", "strip":
		out := &Series{Name: s.Name, Values: make([]any, len(s.Values))}
		for i, v := range s.Values {
			str, ok := v.(string)
			if !ok {
				out.Values[i] = v
				continue
			}
			switch method {
			case "lower":
				out.Values[i] = strings.ToLower(str)
			case "upper":
				out.Values[i] = strings.ToUpper(str)
			default:
				out.Values[i] = strings.TrimSpace(str)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: str method %s", ErrUnsupportedExpression, method)
}

// Grouped operations

func (g *grouped) selectColumns(cols []string) (*grouped, error) {
	for _, c := range cols {
		if g.frame.ColumnIndex(c) < 0 {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, c)
		}
	}
	return &grouped{frame: g.frame, keys: g.keys, selected: append([]string{}, cols...)}, nil
}

func (g *grouped) call(method string, args callArgs) (any, error) {
	switch method {
	case "sum", "mean", "median", "min", "max", "count", "nunique", "size":
		return g.aggregate(method)
	case "agg", "aggregate":
		name, ok := args.get(0, "func")
		m, isStr := name.(string)
		if !ok || !isStr {
			return nil, fmt.Errorf("%w: agg needs a function name", ErrUnsupportedExpression)
		}
		if !isReduction(m) {
			return nil, fmt.Errorf("%w: agg function %s", ErrUnsupportedExpression, m)
		}
		return g.aggregate(m)
	}
	return nil, fmt.Errorf("%w: groupby method %s", ErrUnsupportedExpression, method)
}

// aggregate reduces each group to one row: keys first, then aggregated columns
func (g *grouped) aggregate(method string) (*Frame, error) {
	f := g.frame
	keyIdx := make([]int, len(g.keys))
	for i, k := range g.keys {
		keyIdx[i] = f.ColumnIndex(k)
	}

	valueCols := g.selected
	if valueCols == nil {
		for _, c := range f.Columns {
			if indexOf(g.keys, c) >= 0 {
				continue
			}
			if numericOnly(method) {
				vals, _ := f.Column(c)
				if !isNumericValues(vals) {
					continue
				}
			}
			valueCols = append(valueCols, c)
		}
	}
	valIdx := make([]int, len(valueCols))
	for i, c := range valueCols {
		valIdx[i] = f.ColumnIndex(c)
	}

	groups := make(map[string][]int)
	var order []string
	keyRows := make(map[string][]any)
	for r, row := range f.Rows {
		skip := false
		for _, j := range keyIdx {
			if row[j] == nil {
				skip = true
			}
		}
		if skip {
			continue
		}
		k := rowKey(row, keyIdx)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
			kr := make([]any, len(keyIdx))
			for i, j := range keyIdx {
				kr[i] = row[j]
			}
			keyRows[k] = kr
		}
		groups[k] = append(groups[k], r)
	}

	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keyRows[order[a]], keyRows[order[b]]
		for i := range ka {
			if c, ok := compareValues(ka[i], kb[i]); ok && c != 0 {
				return c < 0
			}
		}
		return false
	})

	out := &Frame{Columns: append([]string{}, g.keys...)}
	if method == "size" {
		out.Columns = append(out.Columns, "size")
	} else {
		out.Columns = append(out.Columns, valueCols...)
	}

	for _, k := range order {
		row := append([]any{}, keyRows[k]...)
		members := groups[k]
		if method == "size" {
			row = append(row, float64(len(members)))
		} else {
			for i, j := range valIdx {
				values := make([]any, len(members))
				for m, r := range members {
					values[m] = f.Rows[r][j]
				}
				v, err := reduce(method, values)
				if err != nil {
					return nil, fmt.Errorf("column %s: %w", valueCols[i], err)
				}
				row = append(row, v)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// Element-wise operators

func unary(op string, x any) (any, error) {
	s, ok := x.(*Series)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedExpression, op, kindName(x))
	}
	out := &Series{Name: s.Name, Values: make([]any, len(s.Values)), Mask: op == "~"}
	for i, v := range s.Values {
		switch {
		case op == "~":
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: ~ needs a boolean series", ErrUnsupportedExpression)
			}
			out.Values[i] = !b
		case v == nil:
			out.Values[i] = nil
		default:
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: unary minus needs a numeric series", ErrUnsupportedExpression)
			}
			out.Values[i] = -f
		}
	}
	return out, nil
}

func binary(op string, x, y any) (any, error) {
	sx, xs := x.(*Series)
	sy, ys := y.(*Series)
	if !xs && !ys {
		return nil, fmt.Errorf("%w: %s needs a column operand", ErrUnsupportedExpression, op)
	}
	if !xs {
		// literal on the left: mirror the comparison
		sx, y = sy, x
		ys = false
		op = mirrorOp(op)
	}
	if ys && len(sx.Values) != len(sy.Values) {
		return nil, fmt.Errorf("%w: series lengths differ", ErrUnsupportedExpression)
	}

	out := sx.mask()
	for i, a := range sx.Values {
		b := y
		if ys {
			b = sy.Values[i]
		}
		switch op {
		case "&", "|":
			ab, ok1 := a.(bool)
			bb, ok2 := b.(bool)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("%w: %s needs boolean operands", ErrUnsupportedExpression, op)
			}
			if op == "&" {
				out.Values[i] = ab && bb
			} else {
				out.Values[i] = ab || bb
			}
		default:
			if a == nil || b == nil {
				out.Values[i] = op == "!="
				continue
			}
			c, ok := compareCoerced(a, b)
			if !ok {
				if op == "==" || op == "!=" {
					out.Values[i] = op == "!="
					continue
				}
				return nil, fmt.Errorf("%w: cannot compare %s with %s", ErrUnsupportedExpression, Cell(a), Cell(b))
			}
			out.Values[i] = compareResult(op, c)
		}
	}
	return out, nil
}

func mirrorOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	}
	return op
}

func compareResult(op string, c int) bool {
	switch op {
	case "==":
		return c == 0
	case "!=":
		return c != 0
	case "<":
		return c < 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	default:
		return c >= 0
	}
}

var partialDateLayouts = []string{"2006-01", "2006", "01/2006"}

// compareCoerced compares cell values, parsing strings compared with datetimes
func compareCoerced(a, b any) (int, bool) {
	if t, ok := a.(time.Time); ok {
		if s, ok := b.(string); ok {
			ts, err := coerceDate(s)
			if err != nil {
				return 0, false
			}
			return t.Compare(ts), true
		}
	}
	if s, ok := a.(string); ok {
		if t, ok := b.(time.Time); ok {
			ts, err := coerceDate(s)
			if err != nil {
				return 0, false
			}
			return ts.Compare(t), true
		}
	}
	return compareValues(a, b)
}

func coerceDate(s string) (time.Time, error) {
	if ts, err := parseDate(s); err == nil {
		return ts, nil
	}
	for _, layout := range partialDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// Reductions

func isReduction(method string) bool {
	switch method {
	case "sum", "mean", "median", "min", "max", "count", "nunique", "size":
		return true
	}
	return false
}

func numericOnly(method string) bool {
	return method == "sum" || method == "mean" || method == "median"
}

func isNumericValues(values []any) bool {
	seen := false
	for _, v := range values {
		if v == nil {
			continue
		}
		if _, ok := v.(float64); !ok {
			return false
		}
		seen = true
	}
	return seen
}

// reduce aggregates values, skipping missing ones
func reduce(method string, values []any) (any, error) {
	var present []any
	for _, v := range values {
		if v != nil {
			present = append(present, v)
		}
	}

	switch method {
	case "count":
		return float64(len(present)), nil

	case "size":
		return float64(len(values)), nil

	case "nunique":
		seen := make(map[string]bool)
		for _, v := range present {
			seen[valueKey(v)] = true
		}
		return float64(len(seen)), nil

	case "min", "max":
		if len(present) == 0 {
			return nil, nil
		}
		best := present[0]
		for _, v := range present[1:] {
			c, ok := compareValues(v, best)
			if !ok {
				return nil, fmt.Errorf("%w: %s over mixed values", ErrUnsupportedExpression, method)
			}
			if (method == "min" && c < 0) || (method == "max" && c > 0) {
				best = v
			}
		}
		return best, nil

	case "sum", "mean", "median":
		nums := make([]float64, len(present))
		for i, v := range present {
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("%w: %s of non-numeric value %q", ErrUnsupportedExpression, method, Cell(v))
			}
			nums[i] = f
		}
		switch method {
		case "sum":
			total := 0.0
			for _, f := range nums {
				total += f
			}
			return total, nil
		case "mean":
			if len(nums) == 0 {
				return nil, nil
			}
			total := 0.0
			for _, f := range nums {
				total += f
			}
			return total / float64(len(nums)), nil
		default:
			if len(nums) == 0 {
				return nil, nil
			}
			sort.Float64s(nums)
			mid := len(nums) / 2
			if len(nums)%2 == 1 {
				return nums[mid], nil
			}
			return (nums[mid-1] + nums[mid]) / 2, nil
		}
	}
	return nil, fmt.Errorf("%w: aggregation %s", ErrUnsupportedExpression, method)
}

// Argument helpers

func columnList(v any) ([]string, error) {
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []any:
		out := make([]string, len(x))
		for i, el := range x {
			s, ok := el.(string)
			if !ok {
				return nil, fmt.Errorf("%w: column names must be strings", ErrUnsupportedExpression)
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected column name or list, got %s", ErrUnsupportedExpression, kindName(v))
}

func ascendingFlags(args callArgs, n int) ([]bool, error) {
	flags := make([]bool, n)
	for i := range flags {
		flags[i] = true
	}
	v, ok := args.kw["ascending"]
	if !ok {
		return flags, nil
	}
	switch x := v.(type) {
	case bool:
		for i := range flags {
			flags[i] = x
		}
	case []any:
		if len(x) != n {
			return nil, fmt.Errorf("%w: ascending length must match by", ErrUnsupportedExpression)
		}
		for i, el := range x {
			b, ok := el.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: ascending must be booleans", ErrUnsupportedExpression)
			}
			flags[i] = b
		}
	default:
		return nil, fmt.Errorf("%w: ascending must be a boolean", ErrUnsupportedExpression)
	}
	return flags, nil
}

func intArg(args callArgs, i int, name string, def int) (int, error) {
	v, ok := args.get(i, name)
	if !ok {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrUnsupportedExpression, name)
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s out of range", ErrUnsupportedExpression, name)
	}
	return int(f), nil
}

// sliceRange returns the row positions of head(n) or tail(n)
func sliceRange(total, n int, fromEnd bool) []int {
	if n < 0 {
		n = total + n
		if n < 0 {
			n = 0
		}
	}
	if n > total {
		n = total
	}
	start := 0
	if fromEnd {
		start = total - n
	}
	out := make([]int, n)
	for i := range out {
		out[i] = start + i
	}
	return out
}

func valueKey(v any) string {
	return fmt.Sprintf("%T:%s", v, Cell(v))
}

func rowKey(row []any, idx []int) string {
	var sb strings.Builder
	for _, j := range idx {
		sb.WriteString(valueKey(row[j]))
		sb.WriteByte(0)
	}
	return sb.String()
}
