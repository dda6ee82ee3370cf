package models

// Location is a teaching site. The roster ordering returned by the
// repository (name, then id) is the canonical ordering used whenever a
// deterministic tie-break between locations is needed.
type Location struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Initials string `db:"initials" json:"initials"`
	Color    string `db:"color" json:"color"`
}
