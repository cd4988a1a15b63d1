package domain

// KeyPrefix namespaces all styledex keys in the store.
const KeyPrefix = "styledex:"

// Direction partitions a user's corpus by who wrote the email.
// Sent mail is the user's own voice; received mail is their correspondents'.
type Direction string

const (
	// DirectionSent holds emails the user wrote.
	DirectionSent Direction = "sent"
	// DirectionReceived holds emails the user received.
	DirectionReceived Direction = "received"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionSent || d == DirectionReceived
}

// ParseDirection converts a string into a Direction.
func ParseDirection(s string) (Direction, error) {
	d := Direction(s)
	if !d.Valid() {
		return "", ErrInvalidDirection
	}
	return d, nil
}
