package database

import (
	"strconv"
	"strings"
)

// Where accumulates AND-ed SQL conditions with positional arguments. Clauses
// are written with '?' placeholders which are renumbered to $n.
type Where struct {
	clauses []string
	args    []interface{}
}

// Add appends clause; each '?' consumes one value from args.
func (w *Where) Add(clause string, args ...interface{}) *Where {
	var b strings.Builder
	i := 0
	for _, r := range clause {
		if r == '?' && i < len(args) {
			w.args = append(w.args, args[i])
			b.WriteString("$" + strconv.Itoa(len(w.args)))
			i++
			continue
		}
		b.WriteRune(r)
	}
	w.clauses = append(w.clauses, b.String())
	return w
}

// SQL renders " WHERE a AND b", or "" when empty.
func (w *Where) SQL() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// Args returns the collected arguments.
func (w *Where) Args() []interface{} {
	return w.args
}

// Next returns the placeholder for one more argument appended after the
// conditions, and records the value.
func (w *Where) Next(v interface{}) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

// Like wraps s for a contains-match with ILIKE, escaping wildcards.
func Like(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// Clone returns an independent copy that can be extended without touching w.
func (w *Where) Clone() *Where {
	return &Where{
		clauses: append([]string(nil), w.clauses...),
		args:    append([]interface{}(nil), w.args...),
	}
}
