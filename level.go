package tenantdb

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tenantdb/tenantdb/kit/platform/errors"
)

// Level is the privilege level of a credential. Levels form a total order.
type Level int

const (
	// LevelKey is held by anonymous callers and API keys.
	LevelKey Level = iota
	LevelUser
	LevelOperator
	LevelAdmin
	LevelSuperAdmin
	// LevelSuperdog is held by platform operators living in the root tenant.
	LevelSuperdog
)

var levelNames = [...]string{
	LevelKey:        "KEY",
	LevelUser:       "USER",
	LevelOperator:   "OPERATOR",
	LevelAdmin:      "ADMIN",
	LevelSuperAdmin: "SUPER_ADMIN",
	LevelSuperdog:   "SUPERDOG",
}

// Levels lists every level from lowest to highest.
func Levels() []Level {
	return []Level{LevelKey, LevelUser, LevelOperator, LevelAdmin, LevelSuperAdmin, LevelSuperdog}
}

// ParseLevel returns the level named s. Names are case insensitive.
func ParseLevel(s string) (Level, error) {
	for i, n := range levelNames {
		if strings.EqualFold(n, s) {
			return Level(i), nil
		}
	}
	return 0, &errors.Error{
		Code: errors.EInvalid,
		Msg:  fmt.Sprintf("invalid credential level %q", s),
	}
}

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= LevelKey && l <= LevelSuperdog
}

// AtLeast reports whether l is equal to or above other.
func (l Level) AtLeast(other Level) bool {
	return l >= other
}

// Role returns the implicit role name carried by credentials of this level.
func (l Level) Role() string {
	return strings.ToLower(strings.ReplaceAll(l.String(), "_", ""))
}

// LevelOfRole returns the level implying role, if any.
func LevelOfRole(role string) (Level, bool) {
	for _, l := range Levels() {
		if l.Role() == role {
			return l, true
		}
	}
	return 0, false
}

// MarshalJSON encodes the level as its name.
func (l Level) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid level %d", int(l))
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name.
func (l *Level) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = lvl
	return nil
}
