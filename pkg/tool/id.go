package tool

import "github.com/google/uuid"

// GenerateUUIDV7 returns a time-ordered UUID, used as the primary key for
// every row this service creates so inserts stay index-friendly.
func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}
