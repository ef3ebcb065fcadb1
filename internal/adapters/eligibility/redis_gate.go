package eligibility

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisGate answers eligibility from a per-project set of user ids maintained
// by the subscription service (SADD project:{id}:eligible <user>).
type RedisGate struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

type RedisGateParams struct {
	RedisClient *redis.Client
	KeyPrefix   string
	Logger      zerolog.Logger
}

func NewRedisGate(params RedisGateParams) *RedisGate {
	prefix := params.KeyPrefix
	if prefix == "" {
		prefix = "project:"
	}
	return &RedisGate{
		client: params.RedisClient,
		prefix: prefix,
		logger: params.Logger.With().Str("component", "eligibility_gate").Logger(),
	}
}

func (g *RedisGate) key(projectID uuid.UUID) string {
	return fmt.Sprintf("%s%s:eligible", g.prefix, projectID)
}

// CheckEligibility implements outbound.EligibilityGate
func (g *RedisGate) CheckEligibility(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	ok, err := g.client.SIsMember(ctx, g.key(projectID), userID.String()).Result()
	if err != nil {
		g.logger.Error().Err(err).
			Str("user_id", userID.String()).
			Str("project_id", projectID.String()).
			Msg("Eligibility lookup failed")
		return false, fmt.Errorf("eligibility lookup: %w", err)
	}
	return ok, nil
}

// Grant adds a user to a project's eligible set
func (g *RedisGate) Grant(ctx context.Context, projectID, userID uuid.UUID) error {
	return g.client.SAdd(ctx, g.key(projectID), userID.String()).Err()
}

// Revoke removes a user from a project's eligible set
func (g *RedisGate) Revoke(ctx context.Context, projectID, userID uuid.UUID) error {
	return g.client.SRem(ctx, g.key(projectID), userID.String()).Err()
}
