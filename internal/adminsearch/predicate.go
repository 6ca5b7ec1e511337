package adminsearch

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// RelationSpec declares a joinable relation a search field path may walk.
// The join SQL must alias the joined table to the relation name so field
// paths like "reporter.email" resolve to "reporter"."email".
type RelationSpec struct {
	Join string
	// Multi marks relations that can yield several rows per parent, which
	// makes unaggregated search results contain duplicates.
	Multi bool
}

// IPSearchConfig enables IP search on a list. TargetType scopes the activity
// log join to the entity kind, Actions is the allow-list of action codes an
// IP match may come from.
type IPSearchConfig struct {
	TargetType string
	Actions    []int
}

// ListConfig describes how one admin listing is searched. It replaces the
// original's subclass-and-override customization with plain data handed to
// Apply.
type ListConfig struct {
	// Table is the parent table the listing selects from.
	Table string
	// SearchFields are column specs, optionally prefixed with a lookup
	// sigil (^ starts-with, = exact, @ contains) or dotted through a
	// declared relation. A trailing ".<lookup>" segment forces a lookup.
	SearchFields []string
	// IDField is the column bulk numeric searches match against. Defaults
	// to the parent table's id.
	IDField          string
	NumericThreshold int
	Relations        map[string]RelationSpec
	IPSearch         *IPSearchConfig
}

type lookupOp string

const (
	opExact       lookupOp = "exact"
	opIExact      lookupOp = "iexact"
	opStartsWith  lookupOp = "startswith"
	opIStartsWith lookupOp = "istartswith"
	opContains    lookupOp = "contains"
	opIContains   lookupOp = "icontains"
	opGte         lookupOp = "gte"
	opLte         lookupOp = "lte"
)

var lookupSuffixes = map[string]lookupOp{
	string(opExact):       opExact,
	string(opIExact):      opIExact,
	string(opStartsWith):  opStartsWith,
	string(opIStartsWith): opIStartsWith,
	string(opContains):    opContains,
	string(opIContains):   opIContains,
	string(opGte):         opGte,
	string(opLte):         opLte,
}

type fieldLookup struct {
	column   string
	op       lookupOp
	relation string
}

func (cfg ListConfig) idField() string {
	if cfg.IDField != "" {
		return cfg.IDField
	}
	return cfg.Table + ".id"
}

func (cfg ListConfig) numericThreshold() int {
	if cfg.NumericThreshold > 0 {
		return cfg.NumericThreshold
	}
	return DefaultNumericThreshold
}

// Validate resolves every configured search field. A broken field spec is an
// operator mistake and should fail at route registration, not per request.
func (cfg ListConfig) Validate() error {
	if cfg.Table == "" {
		return fmt.Errorf("adminsearch: list config has no table")
	}
	for _, field := range cfg.SearchFields {
		if _, err := cfg.resolveField(field); err != nil {
			return err
		}
	}
	return nil
}

func (cfg ListConfig) resolveField(spec string) (fieldLookup, error) {
	op := opIContains
	switch {
	case strings.HasPrefix(spec, "^"):
		return cfg.sigilLookup(spec[1:], opIStartsWith)
	case strings.HasPrefix(spec, "="):
		return cfg.sigilLookup(spec[1:], opIExact)
	case strings.HasPrefix(spec, "@"):
		return cfg.sigilLookup(spec[1:], opIContains)
	}

	parts := strings.Split(spec, ".")
	if forced, ok := lookupSuffixes[parts[len(parts)-1]]; ok && len(parts) > 1 {
		op = forced
		parts = parts[:len(parts)-1]
	}

	if len(parts) == 1 {
		if parts[0] == "" {
			return fieldLookup{}, fmt.Errorf("adminsearch: empty search field")
		}
		return fieldLookup{column: cfg.Table + "." + parts[0], op: op}, nil
	}

	relation := strings.Join(parts[:len(parts)-1], ".")
	if _, ok := cfg.Relations[relation]; !ok {
		return fieldLookup{}, fmt.Errorf("adminsearch: unknown relation %q in search field %q", relation, spec)
	}
	// The relation alias is its last path segment.
	alias := parts[len(parts)-2]
	return fieldLookup{column: alias + "." + parts[len(parts)-1], op: op, relation: relation}, nil
}

func (cfg ListConfig) sigilLookup(name string, op lookupOp) (fieldLookup, error) {
	if name == "" {
		return fieldLookup{}, fmt.Errorf("adminsearch: empty search field after sigil")
	}
	if strings.Contains(name, ".") {
		return fieldLookup{}, fmt.Errorf("adminsearch: sigil lookups only apply to direct fields, got %q", name)
	}
	return fieldLookup{column: cfg.Table + "." + name, op: op}, nil
}

// Apply narrows query according to a classification and reports whether the
// result rows may contain duplicates. An empty classification leaves the
// query untouched except for the IP display aggregation, which is always
// added for IP-enabled lists so listings can show known addresses per row.
func Apply(query *gorm.DB, cfg ListConfig, cls Classification) (*gorm.DB, bool) {
	mayHaveDuplicates := false
	if cfg.IPSearch != nil {
		query, mayHaveDuplicates = withRelatedIPs(query, cfg, cls)
		if cls.Kind == KindIP {
			return query, mayHaveDuplicates
		}
	}

	switch cls.Kind {
	case KindNone, KindIP:
		return query, mayHaveDuplicates
	case KindNumericIDs:
		return query.Where(cfg.idField()+" IN ?", cls.IDs), mayHaveDuplicates
	}

	if len(cfg.SearchFields) == 0 {
		return query, mayHaveDuplicates
	}

	lookups := make([]fieldLookup, 0, len(cfg.SearchFields))
	joined := make(map[string]struct{})
	for _, field := range cfg.SearchFields {
		lookup, err := cfg.resolveField(field)
		if err != nil {
			// Validate() catches this at registration; skip defensively.
			continue
		}
		lookups = append(lookups, lookup)
		if lookup.relation == "" {
			continue
		}
		spec := cfg.Relations[lookup.relation]
		if _, done := joined[lookup.relation]; !done {
			joined[lookup.relation] = struct{}{}
			query = query.Joins(spec.Join)
		}
		mayHaveDuplicates = mayHaveDuplicates || spec.Multi
	}
	if len(lookups) == 0 {
		return query, mayHaveDuplicates
	}

	var (
		clauses []string
		args    []any
	)
	for _, term := range cls.Terms {
		conds := make([]string, 0, len(lookups))
		for _, lookup := range lookups {
			cond, arg := lookup.condition(term)
			conds = append(conds, cond)
			args = append(args, arg)
		}
		clauses = append(clauses, "("+strings.Join(conds, " OR ")+")")
	}

	joiner := " AND "
	if cls.JoinOR {
		joiner = " OR "
	}
	return query.Where(strings.Join(clauses, joiner), args...), mayHaveDuplicates
}

func (l fieldLookup) condition(term string) (string, any) {
	switch l.op {
	case opExact:
		return l.column + " = ?", term
	case opIExact:
		return "LOWER(" + l.column + ") = LOWER(?)", term
	case opStartsWith:
		return l.column + " LIKE ?", term + "%"
	case opIStartsWith:
		return "LOWER(" + l.column + ") LIKE LOWER(?)", term + "%"
	case opContains:
		return l.column + " LIKE ?", "%" + term + "%"
	case opGte:
		return l.column + " >= ?", term
	case opLte:
		return l.column + " <= ?", term
	default:
		return "LOWER(" + l.column + ") LIKE LOWER(?)", "%" + term + "%"
	}
}
