package customer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	guests []Guest
	err    error
}

func (f *fakeRepo) CreateGuest(_ context.Context, g *Guest) error {
	if f.err != nil {
		return f.err
	}
	f.guests = append(f.guests, *g)
	return nil
}

func (f *fakeRepo) GetGuest(_ context.Context, id string) (*Guest, error) {
	for _, g := range f.guests {
		if g.ID == id {
			return &g, nil
		}
	}
	return nil, ErrNotFound
}

func sampleAddress() Address {
	return Address{
		FirstName: "Ana", LastName: "Pérez", Address1: "Calle 1",
		City: "Cape Town", PostalCode: "8001", Country: "ZA",
		Email: "  Ana@Example.com ",
	}
}

func TestResolveAuthenticatedUser(t *testing.T) {
	repo := &fakeRepo{}
	ref, err := Resolve(context.Background(), repo, "u-1", "token@example.com", sampleAddress())
	require.NoError(t, err)
	require.NotNil(t, ref.UserID)
	assert.Equal(t, "u-1", *ref.UserID)
	assert.Nil(t, ref.GuestID)
	assert.Equal(t, "ana@example.com", ref.Email)
	assert.Empty(t, repo.guests, "no guest row for authenticated checkout")
}

func TestResolveUserFallsBackToTokenEmail(t *testing.T) {
	addr := sampleAddress()
	addr.Email = ""
	ref, err := Resolve(context.Background(), &fakeRepo{}, "u-1", "Token@Example.com", addr)
	require.NoError(t, err)
	assert.Equal(t, "token@example.com", ref.Email)
}

func TestResolveGuestIsNeverDeduplicated(t *testing.T) {
	repo := &fakeRepo{}
	first, err := Resolve(context.Background(), repo, "", "", sampleAddress())
	require.NoError(t, err)
	second, err := Resolve(context.Background(), repo, "", "", sampleAddress())
	require.NoError(t, err)

	require.NotNil(t, first.GuestID)
	require.NotNil(t, second.GuestID)
	assert.NotEqual(t, *first.GuestID, *second.GuestID)
	assert.Len(t, repo.guests, 2)
	assert.Equal(t, "ana@example.com", repo.guests[0].Email)
	assert.Equal(t, "Ana", repo.guests[1].FirstName)
}

func TestResolveGuestRequiresEmail(t *testing.T) {
	addr := sampleAddress()
	addr.Email = " "
	_, err := Resolve(context.Background(), &fakeRepo{}, "", "", addr)
	assert.ErrorIs(t, err, ErrMissingEmail)
}

func TestResolvePropagatesRepoError(t *testing.T) {
	boom := errors.New("db down")
	_, err := Resolve(context.Background(), &fakeRepo{err: boom}, "", "", sampleAddress())
	assert.ErrorIs(t, err, boom)
}
