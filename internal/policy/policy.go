// Package policy holds the portal's authorization rule table. Services consult it before every
// read or write; the same table is served to the web client as permission hints.
package policy

import (
	"sort"

	"github.com/noah-isme/client-portal-api/internal/models"
)

// Permission is a capability token.
type Permission string

const (
	ManageClients        Permission = "clients:manage"
	ManageUsers          Permission = "users:manage"
	ManageOwnUsers       Permission = "users:manage_own"
	ManageAllFiles       Permission = "files:manage_all"
	UploadFiles          Permission = "files:upload"
	AssignFiles          Permission = "files:assign"
	ViewAssignedFiles    Permission = "files:view_assigned"
	MessageAnyone        Permission = "messages:send_any"
	MessageOwnUsers      Permission = "messages:send_own_users"
	MessageAdmin         Permission = "messages:send_admin"
	MessageClientManager Permission = "messages:send_client_manager"
	BroadcastToOwnClient Permission = "messages:broadcast_own_client"
	ManageNews           Permission = "news:manage"
	ViewNews             Permission = "news:view"
	ViewSystemStats      Permission = "stats:view"
	ViewErrorLog         Permission = "errors:view"
	ExportAccessReports  Permission = "reports:file_access"
)

var rules = map[models.Role][]Permission{
	models.RoleAdmin: {
		ManageClients, ManageUsers, ManageAllFiles, UploadFiles, AssignFiles,
		MessageAnyone, ManageNews, ViewNews, ViewSystemStats, ViewErrorLog, ExportAccessReports,
	},
	models.RoleClient: {
		ManageOwnUsers, UploadFiles, AssignFiles, ViewAssignedFiles,
		MessageOwnUsers, MessageAdmin, BroadcastToOwnClient, ViewNews,
	},
	models.RoleUser: {
		ViewAssignedFiles, MessageAdmin, MessageClientManager, ViewNews,
	},
}

// Permissions returns the sorted permission tokens granted to role.
func Permissions(role models.Role) []Permission {
	granted := append([]Permission(nil), rules[role]...)
	sort.Slice(granted, func(i, j int) bool { return granted[i] < granted[j] })
	return granted
}

// Has reports whether role carries perm.
func Has(role models.Role, perm Permission) bool {
	for _, p := range rules[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Hints is the permission view handed to the web client for the given actor.
func Hints(actor models.Actor) map[string]interface{} {
	return map[string]interface{}{
		"role":        actor.Role,
		"client_id":   actor.ClientID,
		"permissions": Permissions(actor.Role),
	}
}

// CanMessage reports whether actor may send a message to target. Self is always excluded.
func CanMessage(actor models.Actor, target *models.Profile) bool {
	if target == nil || target.ID == actor.ID {
		return false
	}
	if Has(actor.Role, MessageAnyone) {
		return true
	}
	if target.Role == models.RoleAdmin {
		return Has(actor.Role, MessageAdmin)
	}
	if !actor.HasClient() || target.ClientRef() != actor.ClientID {
		return false
	}
	switch target.Role {
	case models.RoleUser:
		return Has(actor.Role, MessageOwnUsers)
	case models.RoleClient:
		return Has(actor.Role, MessageClientManager)
	}
	return false
}

// CanViewFile reports whether actor sees file given its assignments.
func CanViewFile(actor models.Actor, file *models.File, assignments []models.FileAssignment) bool {
	if file == nil {
		return false
	}
	if Has(actor.Role, ManageAllFiles) || file.UploadedBy == actor.ID {
		return true
	}
	if !Has(actor.Role, ViewAssignedFiles) {
		return false
	}
	for _, a := range assignments {
		if a.FileID != file.ID || a.Target.Kind == models.TargetBroadcast {
			continue
		}
		if a.Target.Matches(actor) {
			return true
		}
	}
	return false
}

// CanDeleteFile allows the uploader or an admin.
func CanDeleteFile(actor models.Actor, file *models.File) bool {
	return file != nil && (Has(actor.Role, ManageAllFiles) || file.UploadedBy == actor.ID)
}

// CanAssignFile reports whether actor may grant target visibility of a file it can see.
// For user targets, targetProfile must be the target's profile.
func CanAssignFile(actor models.Actor, target models.AssignmentTarget, targetProfile *models.Profile) bool {
	if !Has(actor.Role, AssignFiles) || target.Validate(false) != nil {
		return false
	}
	if Has(actor.Role, ManageAllFiles) {
		return true
	}
	if !actor.HasClient() {
		return false
	}
	switch target.Kind {
	case models.TargetClient:
		return target.ID == actor.ClientID
	case models.TargetUser:
		return targetProfile != nil &&
			targetProfile.ID == target.ID &&
			targetProfile.Role == models.RoleUser &&
			targetProfile.ClientRef() == actor.ClientID
	}
	return false
}

// CanUnassign allows the assigner or an admin to remove an assignment.
func CanUnassign(actor models.Actor, assignedBy string) bool {
	return Has(actor.Role, ManageAllFiles) || assignedBy == actor.ID
}

// CanViewNews reports whether actor sees a news item given its assignments.
func CanViewNews(actor models.Actor, assignments []models.NewsAssignment) bool {
	if Has(actor.Role, ManageNews) {
		return true
	}
	if !Has(actor.Role, ViewNews) {
		return false
	}
	for _, a := range assignments {
		if a.Target.Matches(actor) {
			return true
		}
	}
	return false
}

// CanManageProfile reports whether actor may administer target (role, client, activation).
func CanManageProfile(actor models.Actor, target *models.Profile) bool {
	if target == nil {
		return false
	}
	if Has(actor.Role, ManageUsers) {
		return true
	}
	return Has(actor.Role, ManageOwnUsers) &&
		actor.HasClient() &&
		target.Role == models.RoleUser &&
		target.ClientRef() == actor.ClientID
}

// CanReadMessage allows the sender or the recipient.
func CanReadMessage(actor models.Actor, msg *models.Message) bool {
	return msg != nil && (msg.SenderID == actor.ID || msg.RecipientID == actor.ID)
}

// CanMarkRead allows only the recipient.
func CanMarkRead(actor models.Actor, msg *models.Message) bool {
	return msg != nil && msg.RecipientID == actor.ID
}

// CanDeleteMessage allows the sender or the recipient.
func CanDeleteMessage(actor models.Actor, msg *models.Message) bool {
	return CanReadMessage(actor, msg)
}
