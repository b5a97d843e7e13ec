package core

import "time"

// DatabaseProfile is a named, persisted set of connection parameters.
// Name is the unique key and never changes; renames are remove+create.
type DatabaseProfile struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Credentials []byte    `json:"-" yaml:"-"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy of the profile.
func (p *DatabaseProfile) Clone() *DatabaseProfile {
	if p == nil {
		return nil
	}
	c := *p
	if p.Credentials != nil {
		c.Credentials = append([]byte(nil), p.Credentials...)
	}
	return &c
}

// ProfilePatch holds the editable fields of a profile.
// Nil fields are left unchanged.
type ProfilePatch struct {
	Description *string
	Credentials []byte
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Description == nil && p.Credentials == nil
}
