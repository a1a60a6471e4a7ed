package analytics

import (
	"strings"
	"text/template"
	"time"

	"github.com/platinummonkey/countstat/pkg/storage"
)

type timeParam int

const (
	paramStart timeParam = iota
	paramEnd
)

// pullQuery is a rendered pull statement plus the order its bound
// timestamps appear in.
type pullQuery struct {
	sql    string
	params []timeParam
}

func (q *pullQuery) args(start, end time.Time) []interface{} {
	args := make([]interface{}, len(q.params))
	for i, p := range q.params {
		if p == paramStart {
			args[i] = start.UTC()
		} else {
			args[i] = end.UTC()
		}
	}
	return args
}

// templateData is the closed set of values a pull template can read.
type templateData struct {
	Property      string
	Subgroup      string
	GroupByClause string
}

func subgroupExpr(g *GroupBy) string {
	if g == nil {
		return "''"
	}
	col := g.Table + "." + g.Column
	switch g.Type {
	case BoolSubgroup:
		return "CASE WHEN " + col + " THEN 'true' ELSE 'false' END"
	case IntSubgroup:
		return "CAST(" + col + " AS TEXT)"
	default:
		return col
	}
}

func renderPullQuery(property, text string, groupBy *GroupBy, dialect storage.Dialect) (*pullQuery, error) {
	if strings.TrimSpace(text) == "" {
		return nil, invalidStat("%s: pull stat has an empty query", property)
	}

	q := &pullQuery{}
	positions := make(map[timeParam]int, 2)
	bind := func(p timeParam) string {
		n, ok := positions[p]
		if !ok {
			q.params = append(q.params, p)
			n = len(q.params)
			positions[p] = n
		}
		return dialect.TimestampParam(n)
	}

	tmpl, err := template.New(property).
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"timeStart": func() string { return bind(paramStart) },
			"timeEnd":   func() string { return bind(paramEnd) },
		}).
		Parse(text)
	if err != nil {
		return nil, invalidStat("%s: parse query template: %v", property, err)
	}

	data := templateData{
		Property: property,
		Subgroup: subgroupExpr(groupBy),
	}
	if groupBy != nil {
		data.GroupByClause = ", " + groupBy.String()
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return nil, invalidStat("%s: render query template: %v", property, err)
	}
	if _, ok := positions[paramEnd]; !ok {
		return nil, invalidStat("%s: query never binds {{timeEnd}}", property)
	}
	q.sql = b.String()
	return q, nil
}
