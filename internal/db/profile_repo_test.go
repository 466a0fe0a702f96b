package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"edgealtar/internal/types"
)

func strPtr(s string) *string { return &s }

func profileRow(userID, level, subID, kind string, lastEvent *time.Time) []any {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var sub, k any
	if subID != "" {
		sub = strPtr(subID)
	}
	if kind != "" {
		k = strPtr(kind)
	}
	return []any{
		userID,
		strPtr("witch@example.com"),
		level,
		strPtr("cus_123"),
		sub,
		k,
		nil,
		lastEvent,
		created,
		created,
	}
}

func TestProfileRepository_GetByUserID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"user-1"}).
		Return(&mockRow{values: profileRow("user-1", "premium", "sub_1", "monthly", nil)})

	p, err := repo.GetByUserID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, types.AccessPremium, p.AccessLevel)
	assert.Equal(t, "sub_1", p.StripeSubscriptionID)
	assert.Equal(t, types.SubscriptionMonthly, p.SubscriptionType)
	assert.Equal(t, "cus_123", p.StripeCustomerID)
	assert.Nil(t, p.CancelAt)
	db.AssertExpectations(t)
}

func TestProfileRepository_GetByUserID_NullableColumns(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{values: profileRow("user-2", "free", "", "", nil)})

	p, err := repo.GetByUserID(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Equal(t, types.AccessFree, p.AccessLevel)
	assert.Empty(t, p.StripeSubscriptionID)
	assert.Empty(t, p.SubscriptionType)
}

func TestProfileRepository_GetByUserID_Errors(t *testing.T) {
	tests := []struct {
		name     string
		scanErr  error
		wantCode types.ErrorCode
	}{
		{"not found", pgx.ErrNoRows, types.ErrCodeNotFoundProfile},
		{"db failure", errors.New("connection refused"), types.ErrCodeInternalDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewProfileRepository(db, nil)
			db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
				Return(&mockRow{scanErr: tt.scanErr})

			_, err := repo.GetByUserID(context.Background(), "user-1")
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestProfileRepository_EnsureProfile(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db, nil)

	db.On("QueryRow", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return containsAll(sql, "INSERT INTO profiles", "ON CONFLICT (user_id)", "RETURNING")
	}), []any{"user-new", "new@example.com"}).
		Return(&mockRow{values: profileRow("user-new", "free", "", "", nil)})

	p, err := repo.EnsureProfile(context.Background(), "user-new", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, types.AccessFree, p.AccessLevel)
	db.AssertExpectations(t)
}

func TestProfileRepository_GrantPremium(t *testing.T) {
	eventAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	grant := types.PremiumGrant{
		UserID:               "user-1",
		Email:                "witch@example.com",
		StripeCustomerID:     "cus_1",
		StripeSubscriptionID: "sub_1",
		Kind:                 types.SubscriptionMonthly,
		EventID:              "evt_1",
		EventAt:              eventAt,
	}

	tests := []struct {
		name        string
		tag         string
		execErr     error
		wantApplied bool
		wantCode    types.ErrorCode
	}{
		{"applied", "INSERT 0 1", nil, true, ""},
		{"stale or replayed event is a no-op", "INSERT 0 0", nil, false, ""},
		{"db failure", "", errors.New("connection reset"), false, types.ErrCodeInternalDB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewProfileRepository(db, nil)

			db.On("Exec", mock.Anything,
				mock.MatchedBy(func(sql string) bool {
					return containsAll(sql,
						"ON CONFLICT (user_id) DO UPDATE",
						"last_event_at <= EXCLUDED.last_event_at",
						"profiles.last_event_id IS DISTINCT FROM EXCLUDED.last_event_id",
						"'lifetime'",
					)
				}),
				[]any{"user-1", "witch@example.com", "cus_1", "sub_1", "monthly", "evt_1", eventAt},
			).Return(pgconn.NewCommandTag(tt.tag), tt.execErr)

			applied, err := repo.GrantPremium(context.Background(), grant)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, types.HasCode(err, tt.wantCode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, applied)
			db.AssertExpectations(t)
		})
	}
}

func TestProfileRepository_RevokeBySubscription(t *testing.T) {
	eventAt := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewProfileRepository(db, nil)
		db.On("QueryRow", mock.Anything,
			mock.MatchedBy(func(sql string) bool {
				return containsAll(sql, "WHERE stripe_subscription_id = $1", "IS DISTINCT FROM 'lifetime'", "RETURNING user_id")
			}),
			[]any{"sub_1", eventAt},
		).Return(&mockRow{values: []any{"user-1"}})

		userID, err := repo.RevokeBySubscription(context.Background(), "sub_1", eventAt)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
		db.AssertExpectations(t)
	})

	t.Run("no matching profile", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewProfileRepository(db, nil)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: pgx.ErrNoRows})

		userID, err := repo.RevokeBySubscription(context.Background(), "sub_unknown", eventAt)
		require.NoError(t, err)
		assert.Empty(t, userID)
	})

	t.Run("db failure is infrastructure", func(t *testing.T) {
		db := new(mockDBTX)
		repo := NewProfileRepository(db, nil)
		db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
			Return(&mockRow{scanErr: errors.New("too many connections")})

		_, err := repo.RevokeBySubscription(context.Background(), "sub_1", eventAt)
		require.Error(t, err)
		assert.True(t, types.IsInfrastructure(err))
	})
}

func TestProfileRepository_MarkCancelScheduled(t *testing.T) {
	cancelAt := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	db := new(mockDBTX)
	repo := NewProfileRepository(db, nil)
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"user-1", cancelAt}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()
	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), []any{"ghost", cancelAt}).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil).Once()

	require.NoError(t, repo.MarkCancelScheduled(context.Background(), "user-1", cancelAt))

	err := repo.MarkCancelScheduled(context.Background(), "ghost", cancelAt)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundProfile))
	db.AssertExpectations(t)
}

func TestProfileRepository_ListActiveSubscriptions(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db, nil)

	rows := newMockRows([][]any{
		profileRow("user-a", "premium", "sub_a", "monthly", nil),
		profileRow("user-b", "premium", "sub_b", "annual", nil),
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), []any{"", 100}).Return(rows, nil)

	profiles, err := repo.ListActiveSubscriptions(context.Background(), "", 100)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "sub_b", profiles[1].StripeSubscriptionID)
	assert.Equal(t, types.SubscriptionAnnual, profiles[1].SubscriptionType)
	assert.True(t, rows.closed)
}

func TestProfileRepository_ListActiveSubscriptions_IterationError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewProfileRepository(db, nil)

	rows := newMockRows(nil)
	rows.errVal = errors.New("network blip")
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.ListActiveSubscriptions(context.Background(), "user-a", 10)
	require.Error(t, err)
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}
