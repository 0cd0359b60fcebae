package model

import "encoding/json"

const redacted = "[REDACTED]"

// AccessCredential is the caller's catalog bearer token. It only travels as a
// call parameter; every printing or encoding path yields a placeholder.
type AccessCredential string

func (c AccessCredential) String() string { return redacted }

func (c AccessCredential) GoString() string { return redacted }

func (c AccessCredential) MarshalJSON() ([]byte, error) {
	return json.Marshal(redacted)
}

// Reveal returns the raw token for the Authorization header.
func (c AccessCredential) Reveal() string { return string(c) }

func (c AccessCredential) IsEmpty() bool { return c == "" }
