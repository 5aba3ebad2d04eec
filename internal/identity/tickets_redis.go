package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisTickets stores claim tickets in Redis so tickets survive a process
// restart. Room state does not, but a client holding a ticket for a
// recreated room of the same id still resolves to its name.
type RedisTickets struct {
	client *redis.Client
}

// NewRedisTickets wraps an existing Redis client.
func NewRedisTickets(client *redis.Client) *RedisTickets {
	return &RedisTickets{client: client}
}

// Issue mints a token and stores its name binding with the ticket TTL.
func (r *RedisTickets) Issue(ctx context.Context, mode, roomID, name string) (string, error) {
	token := uuid.NewString()
	if err := r.client.Set(ctx, ticketKey(mode, roomID, token), name, TicketTTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Consume uses GETDEL so the read-and-delete is atomic server-side.
func (r *RedisTickets) Consume(ctx context.Context, mode, roomID, token string) (string, bool, error) {
	name, err := r.client.GetDel(ctx, ticketKey(mode, roomID, token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}
