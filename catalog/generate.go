package catalog

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/asaidimu/go-quarry/core/query"
	"github.com/dave/jennifer/jen"
)

const (
	queryPkg  = "github.com/asaidimu/go-quarry/core/query"
	schemaPkg = "github.com/asaidimu/go-quarry/core/schema"
)

var operationConstants = map[query.Operation]string{
	query.OperationSelect:     "OperationSelect",
	query.OperationCount:      "OperationCount",
	query.OperationInsert:     "OperationInsert",
	query.OperationUpdate:     "OperationUpdate",
	query.OperationDelete:     "OperationDelete",
	query.OperationPagination: "OperationPagination",
}

// GenerateGo writes a Go source file declaring one *query.QueryResult
// variable per entry and a Queries map keyed by entry name.
func (c *Catalog) GenerateGo(w io.Writer, pkg string) error {
	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by quarry. DO NOT EDIT.")
	f.ImportName(queryPkg, "query")
	f.ImportName(schemaPkg, "schema")

	f.Comment("Dialect is the dialect the statements were compiled for.")
	f.Const().Id("Dialect").Op("=").Lit(c.Dialect)

	ids := make(map[string]string, len(c.Entries))
	used := map[string]string{"Dialect": "", "Queries": ""}
	for _, e := range c.Entries {
		id, err := exportedName(e.Name)
		if err != nil {
			return err
		}
		if other, ok := used[id]; ok {
			if other == "" {
				return fmt.Errorf("query %q collides with the reserved identifier %s", e.Name, id)
			}
			return fmt.Errorf("queries %q and %q both map to %s", other, e.Name, id)
		}
		used[id] = e.Name
		ids[e.Name] = id

		value, err := resultValue(e.Result)
		if err != nil {
			return fmt.Errorf("query %s: %w", e.Name, err)
		}
		f.Commentf("%s is the compiled %s statement %q.", id, e.Result.Operation, e.Name)
		f.Var().Id(id).Op("=").Op("&").Qual(queryPkg, "QueryResult").Values(value)
	}

	f.Comment("Queries maps statement names to their compiled form.")
	f.Var().Id("Queries").Op("=").Map(jen.String()).Op("*").Qual(queryPkg, "QueryResult").Values(jen.DictFunc(func(d jen.Dict) {
		for name, id := range ids {
			d[jen.Lit(name)] = jen.Id(id)
		}
	}))

	if err := f.Render(w); err != nil {
		return fmt.Errorf("failed to render catalog source: %w", err)
	}
	return nil
}

func resultValue(r *query.QueryResult) (jen.Dict, error) {
	if r == nil {
		return nil, fmt.Errorf("missing compiled result")
	}
	op := jen.Qual(queryPkg, "Operation").Call(jen.Lit(string(r.Operation)))
	if name, ok := operationConstants[r.Operation]; ok {
		op = jen.Qual(queryPkg, name)
	}

	fields := jen.Dict{
		jen.Id("ID"):        jen.Lit(r.ID),
		jen.Id("Dialect"):   jen.Lit(r.Dialect),
		jen.Id("Operation"): op,
		jen.Id("Query"):     jen.Lit(r.Query),
	}
	if r.Entity != "" {
		fields[jen.Id("Entity")] = jen.Lit(r.Entity)
	}
	if r.NamedParameters {
		fields[jen.Id("NamedParameters")] = jen.True()
	}
	if r.RawQuery != "" {
		fields[jen.Id("RawQuery")] = jen.Lit(r.RawQuery)
	}
	if len(r.JoinPaths) > 0 {
		fields[jen.Id("JoinPaths")] = jen.Index().String().ValuesFunc(func(g *jen.Group) {
			for _, p := range r.JoinPaths {
				g.Lit(p)
			}
		})
	}
	if len(r.Bindings) > 0 {
		bindings := make([]jen.Code, 0, len(r.Bindings))
		for _, b := range r.Bindings {
			v, err := bindingValue(b)
			if err != nil {
				return nil, fmt.Errorf("binding %s: %w", b.Name, err)
			}
			bindings = append(bindings, jen.Values(v))
		}
		fields[jen.Id("Bindings")] = jen.Index().Qual(queryPkg, "ParameterBinding").Values(bindings...)
	}
	return fields, nil
}

func bindingValue(b query.ParameterBinding) (jen.Dict, error) {
	fields := jen.Dict{
		jen.Id("Name"):     jen.Lit(b.Name),
		jen.Id("Position"): jen.Lit(b.Position),
	}
	str := func(key, v string) {
		if v != "" {
			fields[jen.Id(key)] = jen.Lit(v)
		}
	}
	str("PropertyPath", b.PropertyPath)
	str("Column", b.Column)
	str("ArgumentName", b.ArgumentName)
	str("ArgumentPath", b.ArgumentPath)

	if b.DataType != "" {
		fields[jen.Id("DataType")] = jen.Qual(schemaPkg, "DataType").Call(jen.Lit(string(b.DataType)))
	}
	if b.Pattern != query.LikeNone {
		fields[jen.Id("Pattern")] = jen.Qual(queryPkg, "LikePattern").Call(jen.Lit(string(b.Pattern)))
	}
	if b.AutoPopulated != "" {
		fields[jen.Id("AutoPopulated")] = jen.Qual(schemaPkg, "AutoPopulated").Call(jen.Lit(string(b.AutoPopulated)))
	}
	if b.NextVersion {
		fields[jen.Id("NextVersion")] = jen.True()
	}
	if b.Expansion != nil {
		fields[jen.Id("Expansion")] = jen.Op("&").Qual(queryPkg, "Expansion").Values(jen.Dict{
			jen.Id("Prefix"): jen.Lit(b.Expansion.Prefix),
			jen.Id("Empty"):  jen.Lit(b.Expansion.Empty),
		})
	}
	if b.HasValue {
		v, err := literal(b.Value)
		if err != nil {
			return nil, err
		}
		fields[jen.Id("Value")] = v
		fields[jen.Id("HasValue")] = jen.True()
	}
	return fields, nil
}

// literal renders a bound literal value. jen.Lit panics on types it cannot
// render, so only the scalar types a compiled literal can hold pass through.
func literal(v any) (jen.Code, error) {
	switch x := v.(type) {
	case nil:
		return jen.Nil(), nil
	case bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return jen.Lit(x), nil
	case []byte:
		return jen.Index().Byte().Call(jen.Lit(string(x))), nil
	case time.Time:
		return jen.Qual("time", "Unix").Call(jen.Lit(x.Unix()), jen.Lit(int64(x.Nanosecond()))).Dot("UTC").Call(), nil
	}
	return nil, fmt.Errorf("cannot render literal of type %T", v)
}

// exportedName turns a query name such as "find_by_title" or "findByTitle"
// into an exported Go identifier.
func exportedName(name string) (string, error) {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	id := b.String()
	if id == "" {
		return "", fmt.Errorf("query name %q has no identifier characters", name)
	}
	if unicode.IsDigit([]rune(id)[0]) {
		id = "Query" + id
	}
	return id, nil
}
