package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// ParseOrderings parses a comma separated ordering param (ex: "domain,-created_at").
// A leading "-" means descending.
func ParseOrderings(param string) []DBOrdering {
	var orderings []DBOrdering
	for _, field := range strings.Split(param, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		orderings = append(orderings, DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}

// FilterOrderings drops orderings on fields that are not in allowed.
// Orderings end up in raw SQL, never let unknown fields through.
func FilterOrderings(orderings []DBOrdering, allowed ...string) []DBOrdering {
	filtered := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		for _, fld := range allowed {
			if ord.Field == fld {
				filtered = append(filtered, ord)
				break
			}
		}
	}
	return filtered
}
