package client

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestClassifyCreateError(t *testing.T) {
	identity := &pgconn.PgError{Code: "23505", ConstraintName: "clients_identity_key"}
	require.ErrorIs(t, classifyCreateError(identity), ErrAlreadyExists)

	code := &pgconn.PgError{Code: "23505", ConstraintName: "clients_client_id_key"}
	require.ErrorIs(t, classifyCreateError(code), errCodeTaken)

	plain := errors.New("connection reset")
	require.ErrorIs(t, classifyCreateError(plain), plain)
}

// Two registrations of different identities can read the same maximum code
// and insert the same IM number; the loser must re-mint on a fresh snapshot
// instead of persisting a duplicate.
func TestCreateRemintsWhenCodeTaken(t *testing.T) {
	calls := 0
	created, err := mintWithRetry(func() (Client, error) {
		calls++
		if calls == 1 {
			return Client{}, errCodeTaken
		}
		return Client{ClientID: FormatClientID(6)}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, "IM006", created.ClientID)
}

func TestCreateStopsRemintingAfterBudget(t *testing.T) {
	calls := 0
	_, err := mintWithRetry(func() (Client, error) {
		calls++
		return Client{}, errCodeTaken
	})
	require.Error(t, err)
	require.ErrorIs(t, err, errCodeTaken)
	require.Equal(t, mintAttempts, calls)
}

func TestCreateDoesNotRetryIdentityDuplicates(t *testing.T) {
	calls := 0
	_, err := mintWithRetry(func() (Client, error) {
		calls++
		return Client{}, ErrAlreadyExists
	})
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, 1, calls)
}
