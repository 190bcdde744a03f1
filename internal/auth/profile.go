package auth

import (
	"github.com/tidwall/gjson"
)

// Profile is the opaque user profile returned by the gateway. Fields are
// read with gjson paths so the client does not pin the server's schema.
type Profile []byte

// Valid reports whether p holds a JSON object.
func (p Profile) Valid() bool {
	return len(p) > 0 && gjson.ValidBytes(p) && gjson.ParseBytes(p).IsObject()
}

// Get returns the value at path.
func (p Profile) Get(path string) gjson.Result {
	return gjson.GetBytes(p, path)
}

func (p Profile) UserName() string { return p.Get("userName").String() }
func (p Profile) Name() string     { return p.Get("name").String() }
func (p Profile) Avatar() string   { return p.Get("avatar").String() }

// DisplayName prefers userName and falls back to name.
func (p Profile) DisplayName() string {
	if n := p.UserName(); n != "" {
		return n
	}
	return p.Name()
}

// MarshalJSON keeps the profile verbatim when it is embedded in other records.
func (p Profile) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores a copy of data.
func (p *Profile) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], data...)
	return nil
}
