package devserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/buildflow/site-client/internal/auth"
	"github.com/buildflow/site-client/internal/domain"
)

// account is a seeded credential the stub backend accepts.
type account struct {
	user         domain.User
	passwordHash string
}

// SeedPassword is the password every seeded account accepts.
const SeedPassword = "buildflow"

// seedAccounts returns one account per role. IDs are stable across restarts
// so persisted client sessions keep resolving.
func seedAccounts(bcryptCost int) (map[string]*account, error) {
	hash, err := auth.HashPassword(SeedPassword, bcryptCost)
	if err != nil {
		return nil, err
	}

	seeds := []domain.User{
		{ID: "usr-homeowner-1", Username: "hanna.homeowner", Email: "homeowner@example.test", Role: domain.RoleHomeowner, IsEmailVerified: true},
		{ID: "usr-contractor-1", Username: "carl.contractor", Email: "contractor@example.test", Role: domain.RoleContractor, IsEmailVerified: true},
		{ID: "usr-supervisor-1", Username: "sam.supervisor", Email: "supervisor@example.test", Role: domain.RoleSupervisor, IsEmailVerified: true},
		{ID: "usr-admin-1", Username: "ada.admin", Email: "admin@example.test", Role: domain.RoleAdmin, IsEmailVerified: true},
	}

	accounts := make(map[string]*account, len(seeds))
	for _, user := range seeds {
		accounts[user.Email] = &account{user: user, passwordHash: hash}
	}
	return accounts, nil
}

// historyFor fabricates the notification history the real backend would
// return from GET /notification. Reference ids are stable so repeated polls
// merge idempotently in the client cache.
func historyFor(user domain.User) []domain.NotificationEvent {
	now := time.Now().UTC()
	return []domain.NotificationEvent{
		{
			ID:          uuid.NewString(),
			Type:        domain.NotificationSystem,
			Title:       "Welcome to BuildFlow",
			Message:     "Your " + auth.DisplayNameFor(user.Role) + " workspace is ready.",
			CreatedAt:   now.Add(-48 * time.Hour),
			ReferenceID: "welcome-" + user.ID,
		},
		{
			ID:          uuid.NewString(),
			Type:        domain.NotificationProjectUpdate,
			Title:       "Site survey completed",
			Message:     "The survey report for Maple St was uploaded.",
			CreatedAt:   now.Add(-2 * time.Hour),
			ReferenceID: "prj-maple-survey",
			ProjectID:   "prj-maple",
		},
	}
}
