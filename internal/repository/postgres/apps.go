package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/core/port"
	"github.com/arklim/wearable-stream-broker/internal/repository"
)

// AppRepository implements port.AppDirectory for PostgreSQL.
type AppRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewAppRepository constructs an AppRepository.
func NewAppRepository(pool *pgxpool.Pool) *AppRepository {
	return &AppRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetApp loads a registered app and its permission grants by package name.
func (r *AppRepository) GetApp(ctx context.Context, packageName string) (*domain.App, error) {
	sql, args, err := r.builder.Select("package_name", "name", "api_key_hash").
		From("broker.apps").
		Where(squirrel.Eq{"package_name": packageName}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select app sql: %w", err)
	}

	var app domain.App
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&app.PackageName, &app.Name, &app.APIKeyHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select app: %w", err)
	}

	permissions, err := r.appPermissions(ctx, packageName)
	if err != nil {
		return nil, err
	}
	app.Permissions = permissions

	return &app, nil
}

func (r *AppRepository) appPermissions(ctx context.Context, packageName string) ([]domain.Permission, error) {
	sql, args, err := r.builder.Select("permission").
		From("broker.app_permissions").
		Where(squirrel.Eq{"package_name": packageName}).
		OrderBy("permission").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select app permissions sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select app permissions: %w", err)
	}
	defer rows.Close()

	var permissions []domain.Permission
	for rows.Next() {
		var permission string
		if err := rows.Scan(&permission); err != nil {
			return nil, fmt.Errorf("scan app permission: %w", err)
		}
		permissions = append(permissions, domain.Permission(permission))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app permissions: %w", err)
	}

	return permissions, nil
}

var _ port.AppDirectory = (*AppRepository)(nil)
