package model

import "time"

// User is a person talking to the assistant on one channel. Users are created
// implicitly on their first inbound message and never deleted.
type User struct {
	Address Address

	// Memory is an append-only, newline-delimited note about the person
	Memory string

	// FirstTaskSent is set once the first created task has triggered the
	// preview reminder
	FirstTaskSent bool

	CreatedAt time.Time
}

// AppendMemory returns the memory note with note added as a new line
func (u *User) AppendMemory(note string) string {
	if u == nil || u.Memory == "" {
		return note
	}
	return u.Memory + "\n" + note
}
