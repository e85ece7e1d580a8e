package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/gamepay/internal/domain/model"
)

func TestRegistrationRepo_ListRegistrationsRankOrder(t *testing.T) {
	db := setupTestDB(t)
	f := newFixture(t, db)
	repo := NewRegistrationRepo(db)
	ctx := context.Background()

	alice := f.user("alice")
	bob := f.user("bob")
	event := f.event(2)

	late := f.register(event.ID, alice.ID, "", 10)
	tieA := f.register(event.ID, bob.ID, "", 5)
	tieB := f.register(event.ID, alice.ID, "carol", 5)

	regs, err := repo.ListRegistrations(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, regs, 3)
	assert.Equal(t, tieA.ID, regs[0].ID)
	assert.Equal(t, tieB.ID, regs[1].ID, "equal created_at breaks ties by insertion id")
	assert.Equal(t, late.ID, regs[2].ID)
	assert.True(t, regs[1].IsGuest())
}

func TestRegistrationRepo_GetEventNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRegistrationRepo(db)

	_, err := repo.GetEvent(context.Background(), 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRegistrationRepo_DeleteRegistrations(t *testing.T) {
	db := setupTestDB(t)
	f := newFixture(t, db)
	repo := NewRegistrationRepo(db)
	ctx := context.Background()

	alice := f.user("alice")
	event := f.event(1)
	r1 := f.register(event.ID, alice.ID, "", 1)
	r2 := f.register(event.ID, alice.ID, "dave", 2)

	n, err := repo.DeleteRegistrations(ctx, []int64{r2.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	regs, err := repo.ListRegistrations(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, r1.ID, regs[0].ID)

	n, err = repo.DeleteRegistrations(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRegistrationRepo_SetRegistrationPaidSettles(t *testing.T) {
	db := setupTestDB(t)
	f := newFixture(t, db)
	repo := NewRegistrationRepo(db)
	ctx := context.Background()

	alice := f.user("alice")
	bob := f.user("bob")
	event := f.event(2)
	r1 := f.register(event.ID, alice.ID, "", 1)
	r2 := f.register(event.ID, bob.ID, "", 2)
	f.register(event.ID, bob.ID, "waitlisted guest", 3)

	got, err := repo.SetRegistrationPaid(ctx, r1.ID, true)
	require.NoError(t, err)
	assert.False(t, got.Settled)

	got, err = repo.SetRegistrationPaid(ctx, r2.ID, true)
	require.NoError(t, err)
	assert.True(t, got.Settled, "waitlisted registrations do not block settlement")
}

func TestRegistrationRepo_UnpayClearsSettled(t *testing.T) {
	db := setupTestDB(t)
	f := newFixture(t, db)
	repo := NewRegistrationRepo(db)
	ctx := context.Background()

	alice := f.user("alice")
	event := f.event(1)
	r1 := f.register(event.ID, alice.ID, "", 1)

	got, err := repo.SetRegistrationPaid(ctx, r1.ID, true)
	require.NoError(t, err)
	require.True(t, got.Settled)

	got, err = repo.SetRegistrationPaid(ctx, r1.ID, false)
	require.NoError(t, err)
	assert.False(t, got.Settled)

	stored, err := repo.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.False(t, stored.Settled)
}

func TestRegistrationRepo_SetRegistrationPaidNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRegistrationRepo(db)

	_, err := repo.SetRegistrationPaid(context.Background(), 12345, true)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUserRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, model.User{Name: "erin", Phone: "+31612345678"})
	require.NoError(t, err)

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "erin", got.Name)
	assert.True(t, got.IsPhoneOnly())

	_, err = repo.Get(ctx, created.ID+1)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
