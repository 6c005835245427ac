package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/client-portal-api/internal/models"
)

func strPtr(s string) *string { return &s }

var (
	admin     = models.Actor{ID: "admin-1", Role: models.RoleAdmin}
	managerC1 = models.Actor{ID: "mgr-1", Role: models.RoleClient, ClientID: "c-1"}
	userC1    = models.Actor{ID: "user-1", Role: models.RoleUser, ClientID: "c-1"}
	userC1b   = models.Actor{ID: "user-1b", Role: models.RoleUser, ClientID: "c-1"}
	userC2    = models.Actor{ID: "user-2", Role: models.RoleUser, ClientID: "c-2"}
	orphan    = models.Actor{ID: "user-3", Role: models.RoleUser}

	adminProfile    = &models.Profile{ID: "admin-1", Role: models.RoleAdmin}
	managerProfile  = &models.Profile{ID: "mgr-1", Role: models.RoleClient, ClientID: strPtr("c-1")}
	userC1Profile   = &models.Profile{ID: "user-1", Role: models.RoleUser, ClientID: strPtr("c-1")}
	userC1bProfile  = &models.Profile{ID: "user-1b", Role: models.RoleUser, ClientID: strPtr("c-1")}
	userC2Profile   = &models.Profile{ID: "user-2", Role: models.RoleUser, ClientID: strPtr("c-2")}
	managerC2Profil = &models.Profile{ID: "mgr-2", Role: models.RoleClient, ClientID: strPtr("c-2")}
)

func TestRuleTable(t *testing.T) {
	assert.True(t, Has(models.RoleAdmin, ManageClients))
	assert.True(t, Has(models.RoleAdmin, ViewSystemStats))
	assert.False(t, Has(models.RoleClient, ManageClients))
	assert.True(t, Has(models.RoleClient, ManageOwnUsers))
	assert.False(t, Has(models.RoleUser, UploadFiles))
	assert.True(t, Has(models.RoleUser, ViewAssignedFiles))
	assert.Empty(t, Permissions(models.Role("ghost")))

	perms := Permissions(models.RoleUser)
	assert.Equal(t, []Permission{MessageAdmin, MessageClientManager, ViewAssignedFiles, ViewNews}, perms)
}

func TestCanMessage(t *testing.T) {
	cases := []struct {
		name   string
		actor  models.Actor
		target *models.Profile
		want   bool
	}{
		{"admin to anyone", admin, userC2Profile, true},
		{"admin never self", admin, adminProfile, false},
		{"client to admin", managerC1, adminProfile, true},
		{"client to own user", managerC1, userC1Profile, true},
		{"client to other client's user", managerC1, userC2Profile, false},
		{"client to other manager", managerC1, managerC2Profil, false},
		{"user to admin", userC1, adminProfile, true},
		{"user to own manager", userC1, managerProfile, true},
		{"user to other manager", userC1, managerC2Profil, false},
		{"user to peer user", userC1, userC1bProfile, false},
		{"user self", userC1, userC1Profile, false},
		{"orphan to admin", orphan, adminProfile, true},
		{"orphan to manager", orphan, managerProfile, false},
		{"nil target", admin, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanMessage(tc.actor, tc.target))
		})
	}
}

// fileFixtures is shared with the repository visibility tests through the same expectations.
func fileFixtures() (map[string]*models.File, []models.FileAssignment) {
	files := map[string]*models.File{
		"to-client-1": {ID: "to-client-1", UploadedBy: "admin-1"},
		"to-user-1":   {ID: "to-user-1", UploadedBy: "admin-1"},
		"to-client-2": {ID: "to-client-2", UploadedBy: "admin-1"},
		"by-manager":  {ID: "by-manager", UploadedBy: "mgr-1"},
		"unassigned":  {ID: "unassigned", UploadedBy: "admin-1"},
	}
	assignments := []models.FileAssignment{
		{ID: "a1", FileID: "to-client-1", Target: models.ClientTarget("c-1")},
		{ID: "a2", FileID: "to-user-1", Target: models.UserTarget("user-1")},
		{ID: "a3", FileID: "to-client-2", Target: models.ClientTarget("c-2")},
	}
	return files, assignments
}

func TestCanViewFile(t *testing.T) {
	files, assignments := fileFixtures()
	cases := []struct {
		actor models.Actor
		file  string
		want  bool
	}{
		{admin, "unassigned", true},
		{admin, "to-client-2", true},
		{userC1, "to-client-1", true},
		{userC1, "to-user-1", true},
		{userC1, "to-client-2", false},
		{userC1, "by-manager", false},
		{userC1b, "to-client-1", true},
		{userC1b, "to-user-1", false},
		{userC2, "to-client-1", false},
		{userC2, "to-client-2", true},
		{managerC1, "to-client-1", true},
		{managerC1, "by-manager", true},
		{managerC1, "to-user-1", false},
		{orphan, "to-client-1", false},
		{orphan, "unassigned", false},
	}
	for _, tc := range cases {
		t.Run(tc.actor.ID+"/"+tc.file, func(t *testing.T) {
			assert.Equal(t, tc.want, CanViewFile(tc.actor, files[tc.file], assignments))
		})
	}
}

func TestCanAssignFile(t *testing.T) {
	assert.True(t, CanAssignFile(admin, models.ClientTarget("c-2"), nil))
	assert.True(t, CanAssignFile(managerC1, models.ClientTarget("c-1"), nil))
	assert.False(t, CanAssignFile(managerC1, models.ClientTarget("c-2"), nil))
	assert.True(t, CanAssignFile(managerC1, models.UserTarget("user-1"), userC1Profile))
	assert.False(t, CanAssignFile(managerC1, models.UserTarget("user-2"), userC2Profile))
	assert.False(t, CanAssignFile(managerC1, models.UserTarget("user-1"), nil))
	assert.False(t, CanAssignFile(userC1, models.UserTarget("user-1b"), userC1bProfile))
	assert.False(t, CanAssignFile(admin, models.BroadcastTarget(), nil))
}

func TestCanViewNews(t *testing.T) {
	broadcast := []models.NewsAssignment{{NewsID: "n", Target: models.BroadcastTarget()}}
	toClient1 := []models.NewsAssignment{{NewsID: "n", Target: models.ClientTarget("c-1")}}
	toUser2 := []models.NewsAssignment{{NewsID: "n", Target: models.UserTarget("user-2")}}

	assert.True(t, CanViewNews(orphan, broadcast))
	assert.True(t, CanViewNews(userC1, toClient1))
	assert.False(t, CanViewNews(userC2, toClient1))
	assert.False(t, CanViewNews(orphan, toClient1))
	assert.True(t, CanViewNews(userC2, toUser2))
	assert.False(t, CanViewNews(userC1, toUser2))
	assert.False(t, CanViewNews(userC1, nil))
	assert.True(t, CanViewNews(admin, nil))
}

func TestCanManageProfile(t *testing.T) {
	assert.True(t, CanManageProfile(admin, userC2Profile))
	assert.True(t, CanManageProfile(managerC1, userC1Profile))
	assert.False(t, CanManageProfile(managerC1, userC2Profile))
	assert.False(t, CanManageProfile(managerC1, managerProfile))
	assert.False(t, CanManageProfile(userC1, userC1bProfile))
}

func TestMessageOwnership(t *testing.T) {
	msg := &models.Message{SenderID: "user-1", RecipientID: "admin-1"}
	assert.True(t, CanMarkRead(admin, msg))
	assert.False(t, CanMarkRead(userC1, msg))
	assert.True(t, CanDeleteMessage(userC1, msg))
	assert.False(t, CanReadMessage(userC2, msg))
}

func TestHints(t *testing.T) {
	hints := Hints(managerC1)
	assert.Equal(t, models.RoleClient, hints["role"])
	assert.Contains(t, hints["permissions"], BroadcastToOwnClient)
}
