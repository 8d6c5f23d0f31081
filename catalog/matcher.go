package catalog

import "strings"

// Match reports whether eventType matches a dispatch pattern.
//
//	"user.created" exact
//	"user.*"       one segment wildcard (user.created, user.deleted)
//	"*"            everything
func Match(pattern, eventType string) bool {
	if pattern == "*" || pattern == eventType {
		return true
	}

	for {
		p, pRest, pMore := strings.Cut(pattern, ".")
		e, eRest, eMore := strings.Cut(eventType, ".")
		if p != "*" && p != e {
			return false
		}
		if pMore != eMore {
			return false
		}
		if !pMore {
			return true
		}
		pattern, eventType = pRest, eRest
	}
}
