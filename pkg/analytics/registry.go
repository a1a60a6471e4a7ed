package analytics

import (
	"fmt"
	"sort"
	"time"
)

// Registry is an immutable catalog of count stats keyed by property.
type Registry struct {
	stats      map[string]*CountStat
	properties []string
}

// NewRegistry validates the stats and builds a catalog. Duplicate
// properties and dependencies on unregistered stats are rejected, as are
// dependencies of dependent stats.
func NewRegistry(stats ...*CountStat) (*Registry, error) {
	r := &Registry{stats: make(map[string]*CountStat, len(stats))}
	for _, s := range stats {
		if s == nil {
			return nil, invalidStat("nil stat in registry")
		}
		if _, dup := r.stats[s.Property]; dup {
			return nil, invalidStat("duplicate property %q", s.Property)
		}
		r.stats[s.Property] = s
		r.properties = append(r.properties, s.Property)
	}
	for _, s := range stats {
		for _, dep := range s.Dependencies {
			d, ok := r.stats[dep]
			if !ok {
				return nil, invalidStat("%s depends on unregistered %q", s.Property, dep)
			}
			if d.IsDependent() {
				return nil, invalidStat("%s depends on %s, which is itself dependent", s.Property, dep)
			}
		}
	}
	sort.Strings(r.properties)
	return r, nil
}

// MustNewRegistry is NewRegistry for static catalogs.
func MustNewRegistry(stats ...*CountStat) *Registry {
	r, err := NewRegistry(stats...)
	if err != nil {
		panic(err)
	}
	return r
}

// Get looks up a stat by property.
func (r *Registry) Get(property string) (*CountStat, error) {
	s, ok := r.stats[property]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProperty, property)
	}
	return s, nil
}

// Stats returns all stats ordered by property.
func (r *Registry) Stats() []*CountStat {
	out := make([]*CountStat, 0, len(r.properties))
	for _, p := range r.properties {
		out = append(out, r.stats[p])
	}
	return out
}

// Properties returns the registered property names in sorted order.
func (r *Registry) Properties() []string {
	return append([]string(nil), r.properties...)
}

// Subset returns a registry holding the named stats plus everything they
// depend on.
func (r *Registry) Subset(properties ...string) (*Registry, error) {
	seen := make(map[string]bool)
	var stats []*CountStat
	var add func(string) error
	add = func(p string) error {
		if seen[p] {
			return nil
		}
		s, err := r.Get(p)
		if err != nil {
			return err
		}
		seen[p] = true
		for _, dep := range s.Dependencies {
			if err := add(dep); err != nil {
				return err
			}
		}
		stats = append(stats, s)
		return nil
	}
	for _, p := range properties {
		if err := add(p); err != nil {
			return nil, err
		}
	}
	return NewRegistry(stats...)
}

func mustStat(s *CountStat, err error) *CountStat {
	if err != nil {
		panic(err)
	}
	return s
}

var defaultRegistry = MustNewRegistry(
	mustStat(NewPullStat("messages_sent:is_bot:hour", UserScope, countMessageByUserQuery,
		&GroupBy{Table: "users", Column: "is_bot", Type: BoolSubgroup}, Hour)),
	mustStat(NewCustomPullStat("messages_sent:message_type:day", UserScope, countMessagesByType, Day)),
	mustStat(NewPullStat("messages_sent:client:day", UserScope, countMessageByUserQuery,
		&GroupBy{Table: "messages", Column: "sending_client_id", Type: IntSubgroup}, Day)),
	mustStat(NewPullStat("messages_in_stream:is_bot:day", StreamScope, countMessageByStreamQuery,
		&GroupBy{Table: "users", Column: "is_bot", Type: BoolSubgroup}, Day)),

	mustStat(NewPullStat("active_users:is_bot:day", RealmScope, countUserByRealmQuery,
		&GroupBy{Table: "users", Column: "is_bot", Type: BoolSubgroup}, Day, WithInterval(Gauge))),
	mustStat(NewPullStat("active_users_audit:is_bot:day", UserScope, checkRealmAuditLogByUserQuery,
		&GroupBy{Table: "users", Column: "is_bot", Type: BoolSubgroup}, Day)),
	mustStat(NewLoggingStat("active_users_log:is_bot:day", RealmScope, Day)),
	mustStat(NewPullStat("15day_actives::day", UserScope, checkActivityIntervalByUserQuery,
		nil, Day, WithInterval(15*24*time.Hour-15*time.Minute))),
	mustStat(NewCustomPullStat("minutes_active::day", UserScope, sumMinutesActive, Day)),
	mustStat(NewPullStat("realm_active_humans::day", RealmScope, countRealmActiveHumansQuery,
		nil, Day, WithDependencies("active_users_audit:is_bot:day", "15day_actives::day"))),

	mustStat(NewLoggingStat("invites_sent::day", RealmScope, Day)),
	mustStat(NewLoggingStat("messages_read::hour", UserScope, Hour)),
)

// DefaultRegistry returns the built-in catalog of stats.
func DefaultRegistry() *Registry {
	return defaultRegistry
}
