package auth

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicalq/backend/internal/api"
)

func userRow(mockPool pgxmock.PgxPoolIface, u *User) *pgxmock.Rows {
	return mockPool.NewRows([]string{
		"id", "firebase_uid", "name", "email", "role", "specialization", "license_number",
		"medical_council_registration", "is_verified", "is_active", "profile_picture",
		"last_login_at", "created_at", "updated_at",
	}).AddRow(
		u.ID, u.FirebaseUID, u.Name, u.Email, u.Role, u.Specialization, u.LicenseNumber,
		u.MedicalCouncilRegistration, u.IsVerified, u.IsActive, u.ProfilePicture,
		u.LastLoginAt, u.CreatedAt, u.UpdatedAt,
	)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresUserRepo) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool, NewPostgresUserRepo(mockPool, slog.Default())
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts and returns the record", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		in := &User{
			FirebaseUID: "uid-1",
			Name:        "Maria",
			Email:       "maria@example.com",
			Role:        RolePatient,
			IsVerified:  true,
			IsActive:    true,
		}
		out := *in
		out.ID = uuid.New()
		out.CreatedAt = time.Now()
		out.UpdatedAt = out.CreatedAt

		mockPool.ExpectQuery(`INSERT INTO users`).
			WithArgs("uid-1", "Maria", "maria@example.com", RolePatient,
				(*string)(nil), (*string)(nil), (*string)(nil),
				true, true, (*string)(nil)).
			WillReturnRows(userRow(mockPool, &out))

		created, err := repo.CreateUser(ctx, in)
		assert.NoError(t, err)
		assert.Equal(t, out.ID, created.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("doctor record without credentials never reaches the database", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		_, err := repo.CreateUser(ctx, &User{
			FirebaseUID: "uid-2",
			Name:        "Dr. Silva",
			Email:       "silva@example.com",
			Role:        RoleDoctor,
			IsActive:    true,
		})
		assert.ErrorIs(t, err, api.ErrBadRequest)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("doctor credentials are stripped from patient rows", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		in := &User{
			FirebaseUID:    "uid-3",
			Name:           "Maria",
			Email:          "maria@example.com",
			Role:           RolePatient,
			Specialization: strp("Cardiology"),
			IsVerified:     true,
			IsActive:       true,
		}
		out := *in
		out.ID = uuid.New()
		out.Specialization = nil

		mockPool.ExpectQuery(`INSERT INTO users`).
			WithArgs("uid-3", "Maria", "maria@example.com", RolePatient,
				(*string)(nil), (*string)(nil), (*string)(nil),
				true, true, (*string)(nil)).
			WillReturnRows(userRow(mockPool, &out))

		created, err := repo.CreateUser(ctx, in)
		assert.NoError(t, err)
		assert.Nil(t, created.Specialization)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("unique violation maps to conflict", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		mockPool.ExpectQuery(`INSERT INTO users`).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower_idx"})

		_, err := repo.CreateUser(ctx, &User{
			FirebaseUID: "uid-4",
			Name:        "Maria",
			Email:       "maria@example.com",
			Role:        RolePatient,
			IsActive:    true,
		})
		assert.ErrorIs(t, err, api.ErrConflict)
	})
}

func TestGetUserByEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("matches case-insensitively", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		u := &User{ID: uuid.New(), Email: "maria@example.com", Name: "Maria", Role: RolePatient, IsActive: true}
		mockPool.ExpectQuery(`lower\(email\) = lower\(\$1\)`).
			WithArgs("Maria@Example.COM").
			WillReturnRows(userRow(mockPool, u))

		got, err := repo.GetUserByEmail(ctx, "Maria@Example.COM")
		assert.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("missing row maps to not found", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		mockPool.ExpectQuery(`lower\(email\) = lower\(\$1\)`).
			WithArgs("ghost@example.com").
			WillReturnRows(mockPool.NewRows([]string{"id"}))

		_, err := repo.GetUserByEmail(ctx, "ghost@example.com")
		assert.ErrorIs(t, err, api.ErrNotFound)
	})
}

func TestSetDoctorVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("updates a doctor row", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		id := uuid.New()
		u := &User{ID: id, Role: RoleDoctor, IsVerified: true, IsActive: true,
			Specialization: strp("Cardiology"), LicenseNumber: strp("CRM-1"),
			MedicalCouncilRegistration: strp("MCR-1")}
		mockPool.ExpectQuery(`role = 'doctor'`).
			WithArgs(id, true).
			WillReturnRows(userRow(mockPool, u))

		got, err := repo.SetDoctorVerification(ctx, id, true)
		assert.NoError(t, err)
		assert.True(t, got.IsVerified)
	})

	t.Run("non-doctor row maps to not found", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		id := uuid.New()
		mockPool.ExpectQuery(`role = 'doctor'`).
			WithArgs(id, true).
			WillReturnRows(mockPool.NewRows([]string{"id"}))

		_, err := repo.SetDoctorVerification(ctx, id, true)
		assert.ErrorIs(t, err, api.ErrNotFound)
	})
}

func TestSoftDeleteUser(t *testing.T) {
	ctx := context.Background()

	t.Run("mangles the email and deactivates", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		id := uuid.New()
		mockPool.ExpectExec(`email = 'deleted:' \|\| id::text \|\| ':' \|\| email`).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.SoftDeleteUser(ctx, id))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("already deleted maps to not found", func(t *testing.T) {
		mockPool, repo := newMockRepo(t)

		id := uuid.New()
		mockPool.ExpectExec(`UPDATE users`).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, repo.SoftDeleteUser(ctx, id), api.ErrNotFound)
	})
}

func TestUpdateLastLogin(t *testing.T) {
	mockPool, repo := newMockRepo(t)

	id := uuid.New()
	mockPool.ExpectExec(`UPDATE users SET last_login_at = now\(\)`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.UpdateLastLogin(context.Background(), id))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
