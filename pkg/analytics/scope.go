package analytics

import "fmt"

// Scope tags the four count tables. Every table shares the columns
// (property, subgroup, end_time, value) and differs only in its key.
type Scope int

const (
	UserScope Scope = iota + 1
	StreamScope
	RealmScope
	InstallationScope
)

// AllScopes lists the count tables from the finest scope to the coarsest.
func AllScopes() []Scope {
	return []Scope{UserScope, StreamScope, RealmScope, InstallationScope}
}

func (s Scope) String() string {
	switch s {
	case UserScope:
		return "UserCount"
	case StreamScope:
		return "StreamCount"
	case RealmScope:
		return "RealmCount"
	case InstallationScope:
		return "InstallationCount"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Valid reports whether s names one of the four count tables.
func (s Scope) Valid() bool {
	return s >= UserScope && s <= InstallationScope
}

// Table returns the name of the SQL table holding rows of this scope.
func (s Scope) Table() string {
	switch s {
	case UserScope:
		return "analytics_usercount"
	case StreamScope:
		return "analytics_streamcount"
	case RealmScope:
		return "analytics_realmcount"
	case InstallationScope:
		return "analytics_installationcount"
	default:
		return ""
	}
}

// KeyColumns returns the scope key columns in insertion order.
func (s Scope) KeyColumns() []string {
	switch s {
	case UserScope:
		return []string{"user_id", "realm_id"}
	case StreamScope:
		return []string{"stream_id", "realm_id"}
	case RealmScope:
		return []string{"realm_id"}
	default:
		return nil
	}
}

// uniqueColumns is the conflict target of the table's unique index.
func (s Scope) uniqueColumns() []string {
	switch s {
	case UserScope:
		return []string{"user_id", "property", "subgroup", "end_time"}
	case StreamScope:
		return []string{"stream_id", "property", "subgroup", "end_time"}
	case RealmScope:
		return []string{"realm_id", "property", "subgroup", "end_time"}
	default:
		return []string{"property", "subgroup", "end_time"}
	}
}

// ScopeKey identifies the entity a logging increment is recorded against.
type ScopeKey interface {
	Scope() Scope
	keyValues() []interface{}
}

// UserKey addresses a UserCount row.
type UserKey struct {
	UserID  int64
	RealmID int64
}

func (k UserKey) Scope() Scope             { return UserScope }
func (k UserKey) keyValues() []interface{} { return []interface{}{k.UserID, k.RealmID} }

// StreamKey addresses a StreamCount row.
type StreamKey struct {
	StreamID int64
	RealmID  int64
}

func (k StreamKey) Scope() Scope             { return StreamScope }
func (k StreamKey) keyValues() []interface{} { return []interface{}{k.StreamID, k.RealmID} }

// RealmKey addresses a RealmCount row.
type RealmKey struct {
	RealmID int64
}

func (k RealmKey) Scope() Scope             { return RealmScope }
func (k RealmKey) keyValues() []interface{} { return []interface{}{k.RealmID} }

// InstallationKey addresses an InstallationCount row.
type InstallationKey struct{}

func (k InstallationKey) Scope() Scope             { return InstallationScope }
func (k InstallationKey) keyValues() []interface{} { return nil }
