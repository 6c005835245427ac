package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TargetKind names who an assignment grants visibility to.
type TargetKind string

const (
	TargetUser      TargetKind = "user"
	TargetClient    TargetKind = "client"
	TargetBroadcast TargetKind = "broadcast"
)

// AssignmentTarget is exactly one of a profile, a client or everyone.
type AssignmentTarget struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
}

// UserTarget targets a single profile.
func UserTarget(id string) AssignmentTarget { return AssignmentTarget{Kind: TargetUser, ID: id} }

// ClientTarget targets every profile of a client.
func ClientTarget(id string) AssignmentTarget { return AssignmentTarget{Kind: TargetClient, ID: id} }

// BroadcastTarget targets everyone.
func BroadcastTarget() AssignmentTarget { return AssignmentTarget{Kind: TargetBroadcast} }

// Validate checks the target is well formed. Broadcast is only valid where allowBroadcast is set.
func (t AssignmentTarget) Validate(allowBroadcast bool) error {
	switch t.Kind {
	case TargetUser, TargetClient:
		if t.ID == "" {
			return fmt.Errorf("%s target requires an id", t.Kind)
		}
		return nil
	case TargetBroadcast:
		if !allowBroadcast {
			return fmt.Errorf("broadcast target not allowed here")
		}
		if t.ID != "" {
			return fmt.Errorf("broadcast target must not carry an id")
		}
		return nil
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
}

// Columns maps the target onto the nullable assigned_to_user / assigned_to_client pair.
func (t AssignmentTarget) Columns() (user, client *string) {
	id := t.ID
	switch t.Kind {
	case TargetUser:
		return &id, nil
	case TargetClient:
		return nil, &id
	}
	return nil, nil
}

// TargetFromColumns rebuilds a target from its SQL columns, rejecting rows with both set.
func TargetFromColumns(user, client *string) (AssignmentTarget, error) {
	switch {
	case user != nil && client != nil:
		return AssignmentTarget{}, fmt.Errorf("assignment has both user and client targets")
	case user != nil:
		return UserTarget(*user), nil
	case client != nil:
		return ClientTarget(*client), nil
	default:
		return BroadcastTarget(), nil
	}
}

// Matches reports whether the target grants visibility to actor.
func (t AssignmentTarget) Matches(actor Actor) bool {
	switch t.Kind {
	case TargetBroadcast:
		return true
	case TargetUser:
		return t.ID == actor.ID
	case TargetClient:
		return actor.HasClient() && t.ID == actor.ClientID
	}
	return false
}

// FileAssignment grants a target visibility of a file. Assignments are immutable.
type FileAssignment struct {
	ID         string           `json:"id"`
	FileID     string           `json:"file_id"`
	Target     AssignmentTarget `json:"target"`
	AssignedBy string           `json:"assigned_by"`
	CreatedAt  time.Time        `json:"created_at"`
}

// BulkFailure describes one item that a best-effort batch could not process.
type BulkFailure struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BulkResult reports the outcome of a best-effort batch.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// Succeed records id as processed.
func (r *BulkResult) Succeed(id string) {
	r.Succeeded = append(r.Succeeded, id)
}

// Fail records id as failed with the given error code and message.
func (r *BulkResult) Fail(id, code, message string) {
	r.Failed = append(r.Failed, BulkFailure{ID: id, Code: code, Message: message})
}

// MarshalJSON never emits null slices.
func (r BulkResult) MarshalJSON() ([]byte, error) {
	type alias BulkResult
	out := alias(r)
	if out.Succeeded == nil {
		out.Succeeded = []string{}
	}
	if out.Failed == nil {
		out.Failed = []BulkFailure{}
	}
	return json.Marshal(out)
}
