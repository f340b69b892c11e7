package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// GroupRefKind tells a real sub-group apart from the singleton group of an
// unaffiliated participant.
type GroupRefKind string

const (
	GroupRefReal    GroupRefKind = "real"
	GroupRefVirtual GroupRefKind = "virtual"
)

// GroupRef identifies a party in group-aware settlement. For a real group ID
// is the group id; for a virtual group it is the lone participant's id.
type GroupRef struct {
	Kind GroupRefKind `json:"kind"`
	ID   int64        `json:"id"`
}

func RealGroup(groupID int64) GroupRef {
	return GroupRef{Kind: GroupRefReal, ID: groupID}
}

func VirtualGroup(participantID int64) GroupRef {
	return GroupRef{Kind: GroupRefVirtual, ID: participantID}
}

func (r GroupRef) IsVirtual() bool {
	return r.Kind == GroupRefVirtual
}

// Less orders real groups before virtual ones, then by ascending id.
func (r GroupRef) Less(other GroupRef) bool {
	if r.Kind != other.Kind {
		return r.Kind == GroupRefReal
	}
	return r.ID < other.ID
}

// String renders the stored form: "g:<id>" or "p:<id>".
func (r GroupRef) String() string {
	if r.IsVirtual() {
		return "p:" + strconv.FormatInt(r.ID, 10)
	}
	return "g:" + strconv.FormatInt(r.ID, 10)
}

// ParseGroupRef is the inverse of String.
func ParseGroupRef(s string) (GroupRef, error) {
	prefix, raw, ok := strings.Cut(s, ":")
	if !ok {
		return GroupRef{}, fmt.Errorf("malformed group ref %q", s)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return GroupRef{}, fmt.Errorf("malformed group ref %q: %w", s, err)
	}
	switch prefix {
	case "g":
		return RealGroup(id), nil
	case "p":
		return VirtualGroup(id), nil
	default:
		return GroupRef{}, fmt.Errorf("unknown group ref kind %q", prefix)
	}
}

// UnmarshalJSON rejects kinds other than real and virtual.
func (r *GroupRef) UnmarshalJSON(data []byte) error {
	type plain GroupRef
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	switch decoded.Kind {
	case GroupRefReal, GroupRefVirtual:
	default:
		return fmt.Errorf("unknown group ref kind %q", decoded.Kind)
	}
	*r = GroupRef(decoded)
	return nil
}

// Value implements driver.Valuer.
func (r GroupRef) Value() (driver.Value, error) {
	return r.String(), nil
}

// Scan implements sql.Scanner.
func (r *GroupRef) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("cannot scan %T into GroupRef", src)
	}
	ref, err := ParseGroupRef(s)
	if err != nil {
		return err
	}
	*r = ref
	return nil
}

// Balance is a participant's position within an event.
type Balance struct {
	ParticipantID int64           `json:"participant_id"`
	GrossPaid     decimal.Decimal `json:"gross_paid"`
	GrossOwed     decimal.Decimal `json:"gross_owed"`
	Net           decimal.Decimal `json:"net"`
}

// GroupBalance is the same position accumulated at group level.
type GroupBalance struct {
	Group     GroupRef        `json:"group"`
	Label     string          `json:"label"`
	GrossPaid decimal.Decimal `json:"gross_paid"`
	GrossOwed decimal.Decimal `json:"gross_owed"`
	Net       decimal.Decimal `json:"net"`
}

// BalanceChange is the before/after net of one participant around an
// expense mutation.
type BalanceChange struct {
	ParticipantID int64           `json:"participant_id"`
	Before        decimal.Decimal `json:"before"`
	After         decimal.Decimal `json:"after"`
}
