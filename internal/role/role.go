// Package role names the three conversation participants.
package role

// Role identifies a conversation participant.
type Role string

const (
	Writer Role = "Writer"
	Reader Role = "Reader"
	Expert Role = "Expert"
)

// All returns the known roles in routing priority order.
func All() []Role {
	return []Role{Writer, Reader, Expert}
}

// Names returns All as plain strings.
func Names() []string {
	roles := All()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case Writer, Reader, Expert:
		return true
	}
	return false
}

// Fallback returns the speaker to use when r tries to address itself.
// Writer and Reader alternate; anyone else hands back to the Writer.
func Fallback(r Role) Role {
	switch r {
	case Writer:
		return Reader
	case Reader:
		return Writer
	default:
		return Writer
	}
}
