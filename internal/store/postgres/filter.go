package postgres

import (
	"fmt"
	"strings"

	"github.com/gosuda/audittrail/internal/domain"
)

// whereBuilder accumulates AND-ed predicates with positional arguments.
type whereBuilder struct {
	conds []string
	args  []any
}

// add appends cond, whose single %d verb receives the argument position.
func (w *whereBuilder) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) contains(column, needle string) {
	w.add(column+` LIKE $%d ESCAPE '\'`, "%"+escapeLike(needle)+"%")
}

func (w *whereBuilder) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// buildFilter translates f into a WHERE clause.
func buildFilter(f domain.EntryFilter) *whereBuilder {
	w := &whereBuilder{}
	if f.ID != nil {
		w.add("id = $%d", *f.ID)
	}
	if f.EntityType != "" {
		w.add("entity_type = $%d", f.EntityType)
	}
	if f.EntityKey != "" {
		w.contains("entity_key", f.EntityKey)
	}
	if f.ActorID != nil {
		w.add("actor_id = $%d", *f.ActorID)
	}
	if f.ActorIP != "" {
		w.contains("actor_ip", f.ActorIP)
	}
	if f.Remark != "" {
		w.contains("remark", f.Remark)
	}
	if f.Kind != "" {
		w.add("kind = $%d", string(f.Kind))
	}
	if f.HappenedAt != nil {
		w.add("happened_at = $%d", *f.HappenedAt)
	}
	if f.Since != nil {
		w.add("happened_at >= $%d", f.Since.Unix())
	}
	if f.Until != nil {
		w.add("happened_at <= $%d", f.Until.Unix())
	}
	return w
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`) //nolint:gochecknoglobals // stateless replacer

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
