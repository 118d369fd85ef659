package server

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// A TokenDecoder validates and decodes the API keys passed to the server. If
// the given token is not valid, for whatever reason, the user "" with a role of
// RoleUnknown is returned. An error is returned only if there is some kind of
// error doing the lookup and the ultimate status of the token is unknown.
type TokenDecoder interface {
	TokenDecode(token string) (user string, role Role, err error)
}

// Role is what a user may do. Each role includes the ones before it.
type Role int

const (
	RoleUnknown Role = iota
	RoleRead         // see jobs and their events
	RoleWrite        // submit jobs
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleRead:
		return "read"
	case RoleWrite:
		return "write"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

func atoRole(s string) Role {
	switch strings.ToLower(s) {
	case "read":
		return RoleRead
	case "write":
		return RoleWrite
	case "admin":
		return RoleAdmin
	default:
		return RoleUnknown
	}
}

// NewNobodyDecoder creates a TokenDecoder that for every possible token
// returns a user named "nobody" with the Admin role.
func NewNobodyDecoder() TokenDecoder {
	return nobodyDecoder{}
}

type nobodyDecoder struct{}

func (nobodyDecoder) TokenDecode(token string) (string, Role, error) {
	return "nobody", RoleAdmin, nil
}

// NewListDecoder returns a TokenDecoder backed by the list of users read
// from r. Each line of r has the form
//
//	<user name>  <role>  <token>
//
// with the fields separated by spaces or tabs. The role is one of "Read",
// "Write" or "Admin" (case insensitive). Empty lines and lines beginning with
// a hash '#' are skipped, as are lines with the wrong number of fields.
// If a token appears more than once the last entry wins.
func NewListDecoder(r io.Reader) (TokenDecoder, error) {
	users := make(listDecoder)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		pieces := strings.Fields(scanner.Text())
		if len(pieces) != 3 || pieces[0][0] == '#' {
			continue
		}
		users[pieces[2]] = userEntry{
			user: pieces[0],
			role: atoRole(pieces[1]),
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// NewListDecoderFile reads the token list in the file fname.
func NewListDecoderFile(fname string) (TokenDecoder, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewListDecoder(f)
}

// NewListDecoderString reads the token list in data.
func NewListDecoderString(data string) (TokenDecoder, error) {
	return NewListDecoder(strings.NewReader(data))
}

type userEntry struct {
	user string
	role Role
}

// listDecoder maps tokens to users.
type listDecoder map[string]userEntry

func (ld listDecoder) TokenDecode(token string) (string, Role, error) {
	u, ok := ld[token]
	if !ok || token == "" {
		return "", RoleUnknown, nil
	}
	return u.user, u.role, nil
}
