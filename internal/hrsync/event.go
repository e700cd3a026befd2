// Package hrsync consumes identity events published by the remote human
// resources system and reconciles the local User mirror against them. The
// pipeline is decode -> scope filter -> engine apply, driven by the Listener;
// all storage access goes through session-per-attempt retries.
package hrsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind enumerates the operations the origin system can announce. The
// enterprise kinds are recognized but deliberately not applied; see
// Engine.Apply.
type EventKind string

const (
	EventUserCreated EventKind = "USER_CREATED"
	EventUserUpdated EventKind = "USER_UPDATED"
	EventUserDeleted EventKind = "USER_DELETED"
	EventUserLogin   EventKind = "USER_LOGIN"

	EventEnterpriseCreated EventKind = "ENTERPRISE_CREATED"
	EventEnterpriseUpdated EventKind = "ENTERPRISE_UPDATED"
	EventEnterpriseDeleted EventKind = "ENTERPRISE_DELETED"
)

// ErrMalformed marks payloads that can never be applied: invalid JSON, missing
// required keys, unparsable timestamps, or data that does not match the shape
// the event kind demands. The listener logs and acknowledges these.
var ErrMalformed = errors.New("malformed event message")

// RoleRef, ScopeRef, and EnterpriseRef are the denormalized sub-objects
// embedded in user snapshots. They reference rows the origin system owns.
type RoleRef struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Hierarchy int    `json:"hierarchy"`
}

type ScopeRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type EnterpriseRef struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	AccountableEmail string `json:"accountable_email"`
	ActivityType     string `json:"activity_type"`
}

// UserSnapshot is a full user representation: the data payload of a create
// event, and the embedded "user" object on update events.
type UserSnapshot struct {
	ID           int64          `json:"id"`
	Username     string         `json:"username"`
	Email        string         `json:"email"`
	FullName     *string        `json:"full_name"`
	CreatedAt    *isoTime       `json:"created_at"`
	EnterpriseID int64          `json:"enterprise_id"`
	Role         *RoleRef       `json:"role"`
	Scope        *ScopeRef      `json:"scope"`
	Enterprise   *EnterpriseRef `json:"enterprise"`
}

// UserPatch is the data payload of an update event. Pointer fields distinguish
// "absent" from zero values so presence checks stay explicit.
type UserPatch struct {
	ID           int64   `json:"id"`
	EnterpriseID int64   `json:"enterprise_id"`
	Username     *string `json:"username"`
	Email        *string `json:"email"`
	FullName     *string `json:"full_name"`
	RoleID       *int64  `json:"role_id"`
	RoleName     *string `json:"role_name"`
	ScopeID      *int64  `json:"scope_id"`
	ScopeName    *string `json:"scope_name"`
}

// UserRef is the data payload of a delete event.
type UserRef struct {
	ID           int64 `json:"id"`
	EnterpriseID int64 `json:"enterprise_id"`
}

// UpdateEvent is one decoded unit of work. Exactly one of Create, Patch, or
// Delete is set for user events; enterprise events carry no decoded payload.
// Immutable after Decode.
type UpdateEvent struct {
	Kind        EventKind
	EventScope  string
	UpdateScope string
	Origin      string
	StartDate   time.Time

	Create   *UserSnapshot
	Patch    *UserPatch
	Delete   *UserRef
	FullUser *UserSnapshot
}

type wireEvent struct {
	Event       *string         `json:"event"`
	EventScope  *string         `json:"event_scope"`
	UpdateScope *string         `json:"update_scope"`
	Data        json.RawMessage `json:"data"`
	User        json.RawMessage `json:"user"`
	StartDate   *string         `json:"start_date"`
	Origin      *string         `json:"origin"`
}

// Decode parses a raw message body into a typed event. Any failure is wrapped
// in ErrMalformed; Decode never panics and performs no I/O.
func Decode(raw []byte) (*UpdateEvent, error) {
	var wire wireEvent
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var missing []string
	for key, present := range map[string]bool{
		"event":       wire.Event != nil,
		"event_scope": wire.EventScope != nil,
		"data":        wire.Data != nil,
		"origin":      wire.Origin != nil,
		"start_date":  wire.StartDate != nil,
	} {
		if !present {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing keys %s", ErrMalformed, strings.Join(missing, ", "))
	}

	startDate, err := parseTimestamp(*wire.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date: %v", ErrMalformed, err)
	}

	ev := &UpdateEvent{
		Kind:       EventKind(*wire.Event),
		EventScope: *wire.EventScope,
		Origin:     *wire.Origin,
		StartDate:  startDate,
	}
	if wire.UpdateScope != nil {
		ev.UpdateScope = *wire.UpdateScope
	}

	switch ev.Kind {
	case EventUserCreated:
		var snap UserSnapshot
		if err := json.Unmarshal(wire.Data, &snap); err != nil {
			return nil, fmt.Errorf("%w: user snapshot: %v", ErrMalformed, err)
		}
		ev.Create = &snap
	case EventUserUpdated:
		var patch UserPatch
		if err := json.Unmarshal(wire.Data, &patch); err != nil {
			return nil, fmt.Errorf("%w: user patch: %v", ErrMalformed, err)
		}
		ev.Patch = &patch
		if wire.User != nil {
			var full UserSnapshot
			if err := json.Unmarshal(wire.User, &full); err != nil {
				return nil, fmt.Errorf("%w: embedded user: %v", ErrMalformed, err)
			}
			ev.FullUser = &full
		}
	case EventUserDeleted:
		var ref UserRef
		if err := json.Unmarshal(wire.Data, &ref); err != nil {
			return nil, fmt.Errorf("%w: user reference: %v", ErrMalformed, err)
		}
		ev.Delete = &ref
	default:
		// Enterprise and unrecognized kinds keep their payload undecoded; the
		// filter or engine decides what to do with them.
	}

	return ev, nil
}

// isoTime accepts the origin system's ISO-8601 timestamps, with or without a
// zone offset.
type isoTime time.Time

func (t *isoTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := parseTimestamp(s)
	if err != nil {
		return err
	}
	*t = isoTime(parsed)
	return nil
}

func (t *isoTime) Time() time.Time {
	if t == nil {
		return time.Time{}
	}
	return time.Time(*t)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}
