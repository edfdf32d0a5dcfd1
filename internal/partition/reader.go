package partition

import (
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/guttosm/b3lake/internal/schema"
)

// Canonical partition key names.
const (
	KeyDate   = schema.ColTradeDate
	KeyTicker = schema.ColTicker
)

var keyAliases = map[string]string{
	"dt":             KeyDate,
	"date":           KeyDate,
	"trade_date":     KeyDate,
	"data_pregao":    KeyDate,
	"ticker":         KeyTicker,
	"acao":           KeyTicker,
	"acao_negociada": KeyTicker,
}

// ParsePartitions extracts key=value path segments, mapping known aliases to
// canonical key names. Unknown keys are ignored. The last occurrence wins.
func ParsePartitions(path string) map[string]string {
	out := make(map[string]string)
	segs := strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool { return r == '/' })
	for _, seg := range segs {
		k, v, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		if canon, known := keyAliases[strings.ToLower(strings.TrimSpace(k))]; known {
			out[canon] = v
		}
	}
	return out
}

// FindFiles lists every *.parquet file under root, sorted by path.
// Temp files from unfinished writes are not listed.
func FindFiles(root string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("dataset root %s: %w", root, err)
	}
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".parquet") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Filter selects partition files by key values and an inclusive date range.
// Empty fields do not filter.
type Filter struct {
	Dates   []string
	Tickers []string
	Start   string
	End     string
}

// FilterFiles keeps the files whose partition keys match f.
//
// Explicit value sets require the key to be present in the path. The date
// range compares keys as strings, so it relies on zero-padded ISO dates; files
// without a date key pass the range check.
func FilterFiles(files []string, f Filter) []string {
	dates := toSet(f.Dates)
	tickers := toSet(f.Tickers)
	var out []string
	for _, p := range files {
		parts := ParsePartitions(p)
		day, hasDay := parts[KeyDate]
		if dates != nil {
			if _, ok := dates[day]; !hasDay || !ok {
				continue
			}
		}
		if tickers != nil {
			if _, ok := tickers[parts[KeyTicker]]; !ok {
				continue
			}
		}
		if hasDay {
			if f.Start != "" && day < f.Start {
				continue
			}
			if f.End != "" && day > f.End {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func toSet(vals []string) map[string]struct{} {
	if len(vals) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}
	return s
}

// Frame is a combined table read from partition files.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// Reader loads partition files into a Frame.
type Reader struct {
	Log zerolog.Logger
	// MaxFiles caps how many files are read; 0 reads all.
	MaxFiles int
}

// ReadFiles reads and concatenates files in order.
//
// Columns present in some files but not others are null where absent. Partition
// keys found in a file's path are injected as columns when the file itself has no
// such column; an injected trade_date is a UTC midnight time.Time. A non-empty
// columns list projects the result onto those names. Files that cannot be read
// are logged and skipped.
func (r *Reader) ReadFiles(files []string, columns []string) (*Frame, error) {
	if r.MaxFiles > 0 && len(files) > r.MaxFiles {
		files = files[:r.MaxFiles]
	}
	fr := &Frame{}
	pos := make(map[string]int)
	addCol := func(name string) int {
		if i, ok := pos[name]; ok {
			return i
		}
		pos[name] = len(fr.Columns)
		fr.Columns = append(fr.Columns, name)
		for i := range fr.Rows {
			fr.Rows[i] = append(fr.Rows[i], nil)
		}
		return pos[name]
	}

	for _, p := range files {
		cols, rows, err := readFile(p)
		if err != nil {
			r.Log.Warn().Str("path", p).Err(err).Msg("skipping unreadable partition file")
			continue
		}
		idx := make([]int, len(cols))
		for i, c := range cols {
			idx[i] = addCol(c)
		}
		type injected struct {
			at  int
			val any
		}
		var inject []injected
		parts := ParsePartitions(p)
		for _, k := range []string{KeyDate, KeyTicker} {
			v, ok := parts[k]
			if !ok || contains(cols, k) {
				continue
			}
			inject = append(inject, injected{at: addCol(k), val: keyValue(k, v)})
		}
		for _, src := range rows {
			row := make([]any, len(fr.Columns))
			for i, v := range src {
				row[idx[i]] = v
			}
			for _, in := range inject {
				row[in.at] = in.val
			}
			fr.Rows = append(fr.Rows, row)
		}
	}

	if len(columns) > 0 {
		return fr.Project(columns), nil
	}
	return fr, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func keyValue(key, v string) any {
	if key == KeyDate {
		if t, err := time.Parse(schema.DayLayout, v); err == nil {
			return t
		}
	}
	return v
}

// readFile decodes a Parquet file generically, column by leaf column.
func readFile(path string) ([]string, [][]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, nil, err
	}

	sch := pf.Schema()
	paths := sch.Columns()
	cols := make([]string, len(paths))
	leaves := make([]parquet.LeafColumn, len(paths))
	for i, p := range paths {
		cols[i] = strings.Join(p, ".")
		leaf, ok := sch.Lookup(p...)
		if !ok {
			return nil, nil, fmt.Errorf("column %s not found in schema", cols[i])
		}
		leaves[i] = leaf
	}
	byIndex := make(map[int]int, len(leaves))
	for i, l := range leaves {
		byIndex[l.ColumnIndex] = i
	}

	var out [][]any
	buf := make([]parquet.Row, 256)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				rec := make([]any, len(cols))
				for _, v := range row {
					i, ok := byIndex[v.Column()]
					if !ok {
						continue
					}
					rec[i] = decodeValue(leaves[i].Node, v)
				}
				out = append(out, rec)
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = rows.Close()
				return nil, nil, err
			}
		}
		if err := rows.Close(); err != nil {
			return nil, nil, err
		}
	}
	return cols, out, nil
}

func decodeValue(node parquet.Node, v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	lt := node.Type().LogicalType()
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		if lt != nil && lt.Date != nil {
			return time.Unix(int64(v.Int32())*86400, 0).UTC()
		}
		return int64(v.Int32())
	case parquet.Int64:
		if lt != nil && lt.Timestamp != nil {
			return decodeTimestamp(v.Int64(), lt.Timestamp.Unit.Micros != nil, lt.Timestamp.Unit.Nanos != nil)
		}
		return v.Int64()
	case parquet.Int96:
		return fmt.Sprint(v.Int96())
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	default:
		return string(v.ByteArray())
	}
}

func decodeTimestamp(n int64, micros, nanos bool) time.Time {
	switch {
	case nanos:
		return time.Unix(0, n).UTC()
	case micros:
		return time.UnixMicro(n).UTC()
	default:
		return time.UnixMilli(n).UTC()
	}
}

// Project returns a frame holding only the named columns, in that order.
// Unknown names produce all-null columns.
func (fr *Frame) Project(columns []string) *Frame {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = -1
		for j, have := range fr.Columns {
			if have == c {
				idx[i] = j
				break
			}
		}
	}
	out := &Frame{Columns: append([]string(nil), columns...), Rows: make([][]any, len(fr.Rows))}
	for r, row := range fr.Rows {
		nr := make([]any, len(columns))
		for i, j := range idx {
			if j >= 0 {
				nr[i] = row[j]
			}
		}
		out.Rows[r] = nr
	}
	return out
}

// Len reports the number of rows.
func (fr *Frame) Len() int {
	if fr == nil {
		return 0
	}
	return len(fr.Rows)
}

// Head returns the first n rows as a new frame.
func (fr *Frame) Head(n int) *Frame {
	if n < 0 || n > len(fr.Rows) {
		n = len(fr.Rows)
	}
	return &Frame{Columns: fr.Columns, Rows: fr.Rows[:n]}
}

// Col returns the position of a column or -1.
func (fr *Frame) Col(name string) int {
	for i, c := range fr.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Canonical maps the frame to schema rows. Missing or mistyped cells become
// null prices, zero volume or an invalid timestamp.
func (fr *Frame) Canonical() []schema.Row {
	ci := make(map[string]int, len(schema.Columns))
	for _, c := range schema.Columns {
		ci[c] = fr.Col(c)
	}
	cell := func(row []any, name string) any {
		if i := ci[name]; i >= 0 {
			return row[i]
		}
		return nil
	}
	out := make([]schema.Row, 0, len(fr.Rows))
	for _, row := range fr.Rows {
		r := schema.Row{
			Open:     cellFloat(cell(row, schema.ColOpen)),
			High:     cellFloat(cell(row, schema.ColHigh)),
			Low:      cellFloat(cell(row, schema.ColLow)),
			Close:    cellFloat(cell(row, schema.ColClose)),
			AdjClose: cellFloat(cell(row, schema.ColAdjClose)),
		}
		if t, ok := cell(row, schema.ColTradeDate).(time.Time); ok {
			r.TradeDate, r.Valid = t.UTC(), true
		}
		switch v := cell(row, schema.ColTicker).(type) {
		case string:
			r.Ticker = v
		case nil:
		default:
			r.Ticker = fmt.Sprint(v)
		}
		switch v := cell(row, schema.ColVolume).(type) {
		case int64:
			r.Volume = v
		case float64:
			if !math.IsNaN(v) {
				r.Volume = int64(v)
			}
		}
		out = append(out, r)
	}
	return out
}

func cellFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		return math.NaN()
	}
}

// Stats counts rows per day and per ticker.
type Stats struct {
	Rows     int
	ByDay    map[string]int
	ByTicker map[string]int
}

// Stats summarizes the frame. Rows without a usable trade_date count under "".
func (fr *Frame) Stats() Stats {
	s := Stats{Rows: fr.Len(), ByDay: map[string]int{}, ByTicker: map[string]int{}}
	di, ti := fr.Col(KeyDate), fr.Col(KeyTicker)
	for _, row := range fr.Rows {
		day := ""
		if di >= 0 {
			switch v := row[di].(type) {
			case time.Time:
				day = v.UTC().Format(schema.DayLayout)
			case string:
				day = v
			}
		}
		s.ByDay[day]++
		if ti >= 0 {
			s.ByTicker[fmt.Sprint(row[ti])]++
		}
	}
	return s
}

// SortedKeys returns map keys in ascending order.
func SortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteCSV writes the frame with a header row. Nulls are empty cells and
// timestamps use millisecond precision.
func (fr *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fr.Columns); err != nil {
		return err
	}
	rec := make([]string, len(fr.Columns))
	for _, row := range fr.Rows {
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes the frame as aligned text columns for terminal output.
func (fr *Frame) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(fr.Columns, "\t")); err != nil {
		return err
	}
	rec := make([]string, len(fr.Columns))
	for _, row := range fr.Rows {
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if _, err := fmt.Fprintln(tw, strings.Join(rec, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// SortBy orders rows in place by the named columns, ascending. Unknown columns
// are ignored and nulls sort first.
func (fr *Frame) SortBy(columns ...string) {
	var idx []int
	for _, c := range columns {
		if i := fr.Col(c); i >= 0 {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(fr.Rows, func(a, b int) bool {
		for _, i := range idx {
			if c := compareCells(fr.Rows[a][i], fr.Rows[b][i]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

func compareCells(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case int64:
		if y, ok := b.(int64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(formatCell(a), formatCell(b))
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05.000")
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
