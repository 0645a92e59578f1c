package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/bridgecare/scheduling-core/internal/models"
)

// AuthorizationRepository exposes read-only access to active service
// authorizations and their remaining unit balances.
type AuthorizationRepository struct {
	db *sqlx.DB
}

// NewAuthorizationRepository constructs the repository.
func NewAuthorizationRepository(db *sqlx.DB) *AuthorizationRepository {
	return &AuthorizationRepository{db: db}
}

const authorizationColumns = `id, user_id, client_id, client_status, service_code, total_units, used_units, remaining_units, start_date, end_date, status`

// ListActiveAuthorizations returns active authorizations in a user
// scope, optionally narrowed to one client.
func (r *AuthorizationRepository) ListActiveAuthorizations(ctx context.Context, userID, clientID string) ([]models.ServiceAuthorization, error) {
	query := `SELECT ` + authorizationColumns + ` FROM service_authorizations WHERE user_id = $1 AND status = $2`
	args := []any{userID, models.AuthorizationStatusActive}
	if clientID != "" {
		query += ` AND client_id = $3`
		args = append(args, clientID)
	}
	query += ` ORDER BY client_id, service_code`

	var authorizations []models.ServiceAuthorization
	if err := r.db.SelectContext(ctx, &authorizations, query, args...); err != nil {
		return nil, fmt.Errorf("list active authorizations: %w", err)
	}
	return authorizations, nil
}

// GetAuthorizationForService loads the active authorization covering a
// client's service code. Returns nil without error when none exists.
func (r *AuthorizationRepository) GetAuthorizationForService(ctx context.Context, userID, clientID, serviceCode string) (*models.ServiceAuthorization, error) {
	const query = `SELECT ` + authorizationColumns + ` FROM service_authorizations
		WHERE user_id = $1 AND client_id = $2 AND service_code = $3 AND status = $4
		ORDER BY end_date DESC LIMIT 1`
	var authorizations []models.ServiceAuthorization
	if err := r.db.SelectContext(ctx, &authorizations, query, userID, clientID, serviceCode, models.AuthorizationStatusActive); err != nil {
		return nil, fmt.Errorf("load authorization: %w", err)
	}
	if len(authorizations) == 0 {
		return nil, nil
	}
	return &authorizations[0], nil
}
