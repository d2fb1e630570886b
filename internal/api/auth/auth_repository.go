package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/medicalq/backend/app/observability/metrics"
	"github.com/medicalq/backend/internal/api"
)

var _ UserRepo = (*PostgresUserRepo)(nil)

// PGXPool is the subset of pgxpool.Pool the repository needs; pgxmock
// satisfies it in tests.
type PGXPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UpdateProfileParams are the mutable profile columns; nil leaves a column
// unchanged.
type UpdateProfileParams struct {
	Name           *string
	Specialization *string
	ProfilePicture *string
}

// UserRepo is the user record store contract.
type UserRepo interface {
	// CreateUser inserts a new record, re-checking the doctor-credentials
	// invariant before the write. Returns api.ErrConflict on a duplicate
	// email or identity reference.
	CreateUser(ctx context.Context, user *User) (*User, error)
	// GetUserByEmail matches case-insensitively, across active and
	// soft-deleted-but-unmangled records.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error)
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) (*User, error)
	// SetDoctorVerification flips is_verified for a doctor record only;
	// returns api.ErrNotFound when the row is not a doctor.
	SetDoctorVerification(ctx context.Context, userID uuid.UUID, verified bool) (*User, error)
	// SoftDeleteUser deactivates the record and mangles the email with a
	// uniqueness-preserving prefix so the address can be registered again.
	SoftDeleteUser(ctx context.Context, userID uuid.UUID) error
}

const userColumns = `id, firebase_uid, name, email, role, specialization, license_number,
	       medical_council_registration, is_verified, is_active, profile_picture,
	       last_login_at, created_at, updated_at`

type PostgresUserRepo struct {
	logger  *slog.Logger
	db      PGXPool
	metrics *metrics.AppMetrics
}

func NewPostgresUserRepo(db PGXPool, logger *slog.Logger) *PostgresUserRepo {
	return &PostgresUserRepo{
		logger:  logger,
		db:      db,
		metrics: metrics.Get(),
	}
}

var tracer = otel.Tracer("github.com/medicalq/backend/internal/api/auth")

// observe records the query duration for one repository operation.
func (r *PostgresUserRepo) observe(ctx context.Context, op string, start time.Time) {
	r.metrics.DbQueryDurationSeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("operation", op)))
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.FirebaseUID, &u.Name, &u.Email, &u.Role,
		&u.Specialization, &u.LicenseNumber, &u.MedicalCouncilRegistration,
		&u.IsVerified, &u.IsActive, &u.ProfilePicture,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresUserRepo) CreateUser(ctx context.Context, user *User) (*User, error) {
	ctx, span := tracer.Start(ctx, "CreateUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()
	defer r.observe(ctx, "CreateUser", time.Now())

	// Pre-save invariant check, independent of the HTTP-boundary validation
	// and of the database constraint.
	if err := user.Validate(); err != nil {
		span.SetStatus(codes.Error, "invalid user record")
		return nil, fmt.Errorf("%w: %s", api.ErrBadRequest, err)
	}

	// Doctor credentials never leak onto non-doctor rows.
	if user.Role != RoleDoctor {
		user.Specialization = nil
		user.LicenseNumber = nil
		user.MedicalCouncilRegistration = nil
	}

	query := `
		INSERT INTO users (firebase_uid, name, email, role, specialization,
		                   license_number, medical_council_registration,
		                   is_verified, is_active, profile_picture)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query,
		user.FirebaseUID, user.Name, user.Email, user.Role,
		user.Specialization, user.LicenseNumber, user.MedicalCouncilRegistration,
		user.IsVerified, user.IsActive, user.ProfilePicture,
	)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			span.SetStatus(codes.Error, "unique violation")
			return nil, fmt.Errorf("%w: email already registered", api.ErrConflict)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return nil, fmt.Errorf("create user: %w", err)
	}

	span.SetAttributes(attribute.String("user.id", created.ID.String()))
	return created, nil
}

func (r *PostgresUserRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	ctx, span := tracer.Start(ctx, "GetUserByEmail", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()
	defer r.observe(ctx, "GetUserByEmail", time.Now())

	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	user, err := scanUser(r.db.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no user with that email", api.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*User, error) {
	ctx, span := tracer.Start(ctx, "GetUserByFirebaseUID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()
	defer r.observe(ctx, "GetUserByFirebaseUID", time.Now())

	query := `SELECT ` + userColumns + ` FROM users WHERE firebase_uid = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, firebaseUID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no user for identity reference", api.ErrNotFound)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("get user by identity reference: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (*User, error) {
	ctx, span := tracer.Start(ctx, "GetUserByID", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()
	defer r.observe(ctx, "GetUserByID", time.Now())

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no user with id %s", api.ErrNotFound, userID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "UpdateLastLogin")
	defer span.End()
	defer r.observe(ctx, "UpdateLastLogin", time.Now())

	tag, err := r.db.Exec(ctx,
		`UPDATE users SET last_login_at = now(), updated_at = now() WHERE id = $1`,
		userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no user with id %s", api.ErrNotFound, userID)
	}
	return nil
}

func (r *PostgresUserRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) (*User, error) {
	ctx, span := tracer.Start(ctx, "UpdateProfile", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()
	defer r.observe(ctx, "UpdateProfile", time.Now())

	query := `
		UPDATE users
		SET name            = COALESCE($2, name),
		    specialization  = COALESCE($3, specialization),
		    profile_picture = COALESCE($4, profile_picture),
		    updated_at      = now()
		WHERE id = $1 AND is_active
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, userID, params.Name, params.Specialization, params.ProfilePicture))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active user with id %s", api.ErrNotFound, userID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) SetDoctorVerification(ctx context.Context, userID uuid.UUID, verified bool) (*User, error) {
	ctx, span := tracer.Start(ctx, "SetDoctorVerification", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()
	defer r.observe(ctx, "SetDoctorVerification", time.Now())

	// Role guard lives in the statement itself: no other write path can flip
	// is_verified for a non-doctor row through this repository.
	query := `
		UPDATE users SET is_verified = $2, updated_at = now()
		WHERE id = $1 AND role = 'doctor'
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query, userID, verified))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no doctor with id %s", api.ErrNotFound, userID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return nil, fmt.Errorf("set doctor verification: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) SoftDeleteUser(ctx context.Context, userID uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "SoftDeleteUser", trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.sql.table", "users"),
	))
	defer span.End()
	defer r.observe(ctx, "SoftDeleteUser", time.Now())

	// The id prefix keeps the mangled address unique so the original email
	// can be reused by a fresh registration.
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET is_active = FALSE,
		     email = 'deleted:' || id::text || ':' || email,
		     updated_at = now()
		 WHERE id = $1 AND is_active`,
		userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return fmt.Errorf("soft delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no active user with id %s", api.ErrNotFound, userID)
	}
	return nil
}
