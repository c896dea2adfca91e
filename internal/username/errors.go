package username

import "fmt"

// Reason identifies why a proposed username was rejected.
type Reason int

const (
	_ Reason = iota
	// ReasonLength - the name is shorter than MinLength or longer than MaxLength.
	ReasonLength
	// ReasonBannedCharacter - the name contains one of BannedCharacters.
	ReasonBannedCharacter
	// ReasonTaken - the name is already held by an active client.
	ReasonTaken
)

// String returns the rejection text sent back to the client.
func (r Reason) String() string {
	switch r {
	case ReasonLength:
		return fmt.Sprintf("Username must be between %d and %d characters long", MinLength, MaxLength)
	case ReasonBannedCharacter:
		return "Username must not contain any of these characters: @ # : ` ' \""
	case ReasonTaken:
		return "Username already taken - please pick another"
	default:
		return "Username rejected"
	}
}

// ValidationError is returned when a username is refused. The session that
// proposed it stays open so the client can try another name.
type ValidationError struct {
	Name   string
	Reason Reason
}

func (e *ValidationError) Error() string {
	return e.Reason.String()
}

// RegistryError wraps a failure of the backing Store.
type RegistryError struct {
	Op   string
	Name string
	Err  error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("username registry: %s %q: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the store error.
func (e *RegistryError) Unwrap() error {
	return e.Err
}
