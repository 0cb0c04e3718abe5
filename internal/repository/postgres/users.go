package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/core/port"
	"github.com/arklim/wearable-stream-broker/internal/repository"
)

// UserRepository implements port.UserStore for PostgreSQL. Location
// subscriptions and the derived effective rate are keyed by user, not
// session, so they survive reconnects.
type UserRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     time.Now,
	}
}

// LocationSubscriptions returns the per-app location rates recorded for a user.
func (r *UserRepository) LocationSubscriptions(ctx context.Context, userID string) (map[string]domain.RateTier, error) {
	sql, args, err := r.builder.Select("package_name", "rate").
		From("broker.location_subscriptions").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select location subscriptions sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select location subscriptions: %w", err)
	}
	defer rows.Close()

	subscriptions := make(map[string]domain.RateTier)
	for rows.Next() {
		var packageName, rate string
		if err := rows.Scan(&packageName, &rate); err != nil {
			return nil, fmt.Errorf("scan location subscription: %w", err)
		}
		subscriptions[packageName] = domain.RateTier(rate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate location subscriptions: %w", err)
	}

	return subscriptions, nil
}

// SetLocationSubscription upserts the rate one app requests for a user.
func (r *UserRepository) SetLocationSubscription(ctx context.Context, userID, packageName string, rate domain.RateTier) error {
	sql, args, err := r.builder.Insert("broker.location_subscriptions").
		Columns("user_id", "package_name", "rate", "updated_at").
		Values(userID, packageName, string(rate), r.now().UTC()).
		Suffix("ON CONFLICT (user_id, package_name) DO UPDATE SET rate = EXCLUDED.rate, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert location subscription sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert location subscription: %w", err)
	}

	return nil
}

// RemoveLocationSubscription deletes an app's location rate record.
// Returns repository.ErrNotFound when no record existed.
func (r *UserRepository) RemoveLocationSubscription(ctx context.Context, userID, packageName string) error {
	sql, args, err := r.builder.Delete("broker.location_subscriptions").
		Where(squirrel.Eq{"user_id": userID, "package_name": packageName}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete location subscription sql: %w", err)
	}

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("delete location subscription: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// EffectiveRate returns the persisted effective tier for a user.
// Returns repository.ErrNotFound when none has been recorded yet.
func (r *UserRepository) EffectiveRate(ctx context.Context, userID string) (domain.RateTier, error) {
	sql, args, err := r.builder.Select("effective_rate").
		From("broker.user_location_state").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select effective rate sql: %w", err)
	}

	var rate string
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&rate); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("select effective rate: %w", err)
	}

	return domain.RateTier(rate), nil
}

// SetEffectiveRate upserts the effective tier for a user.
func (r *UserRepository) SetEffectiveRate(ctx context.Context, userID string, rate domain.RateTier) error {
	sql, args, err := r.builder.Insert("broker.user_location_state").
		Columns("user_id", "effective_rate", "updated_at").
		Values(userID, string(rate), r.now().UTC()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET effective_rate = EXCLUDED.effective_rate, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert effective rate sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert effective rate: %w", err)
	}

	return nil
}

// LastLocation returns the most recent position fix recorded for a user.
// Returns repository.ErrNotFound when none has been recorded.
func (r *UserRepository) LastLocation(ctx context.Context, userID string) (*domain.LocationSample, error) {
	sql, args, err := r.builder.Select("lat", "lng", "accuracy", "correlation_id", "recorded_at").
		From("broker.last_locations").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select last location sql: %w", err)
	}

	var (
		sample        domain.LocationSample
		correlationID *string
	)
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&sample.Lat, &sample.Lng, &sample.Accuracy, &correlationID, &sample.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select last location: %w", err)
	}

	if correlationID != nil {
		sample.CorrelationID = *correlationID
	}

	return &sample, nil
}

// SetLastLocation upserts the most recent position fix for a user.
func (r *UserRepository) SetLastLocation(ctx context.Context, userID string, sample domain.LocationSample) error {
	var correlationID *string
	if sample.CorrelationID != "" {
		correlationID = &sample.CorrelationID
	}

	sql, args, err := r.builder.Insert("broker.last_locations").
		Columns("user_id", "lat", "lng", "accuracy", "correlation_id", "recorded_at").
		Values(userID, sample.Lat, sample.Lng, sample.Accuracy, correlationID, sample.Timestamp.UTC()).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET lat = EXCLUDED.lat, lng = EXCLUDED.lng, accuracy = EXCLUDED.accuracy, correlation_id = EXCLUDED.correlation_id, recorded_at = EXCLUDED.recorded_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert last location sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert last location: %w", err)
	}

	return nil
}

var _ port.UserStore = (*UserRepository)(nil)
