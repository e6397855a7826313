package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/infomate/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	redisSessionKeyPrefix     = "infomate:session:"
	redisUserSessionKeyPrefix = "infomate:user_sessions:"
)

// redisSessionRecord はRedisに保存するセッションのJSON表現。
type redisSessionRecord struct {
	UserID    string                `json:"user_id"`
	Snapshot  model.SessionSnapshot `json:"snapshot"`
	ExpiresAt time.Time             `json:"expires_at"`
	CreatedAt time.Time             `json:"created_at"`
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// セッション本体はexpires_atまでのTTL付きで保存し、
// ユーザー単位の全削除のためにユーザーごとのセッションID集合を保持する。
type RedisSessionRepo struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

// NewRedisClient はREDIS_URL形式の接続URLからRedisクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func sessionKey(id string) string {
	return redisSessionKeyPrefix + id
}

func userSessionsKey(userID string) string {
	return redisUserSessionKeyPrefix + userID
}

// Create はセッションを作成する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: already expired")
	}

	data, err := json.Marshal(redisSessionRecord{
		UserID:    session.UserID,
		Snapshot:  session.Snapshot,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.pruneUserSessions(ctx, session.UserID); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.ID), data, ttl)
		pipe.SAdd(ctx, userSessionsKey(session.UserID), session.ID)
		pipe.Expire(ctx, userSessionsKey(session.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	rec, err := r.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if rec == nil || !rec.ExpiresAt.After(r.now()) {
		return nil, nil
	}

	return &model.Session{
		ID:        id,
		UserID:    rec.UserID,
		Snapshot:  rec.Snapshot,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// UpdateSnapshot はセッションのユーザースナップショットを上書きする。
// KEEPTTLで残り有効期間を維持し、XXで削除済みセッションを復活させない。
func (r *RedisSessionRepo) UpdateSnapshot(ctx context.Context, id string, snapshot model.SessionSnapshot) error {
	rec, err := r.get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to update session snapshot: %w", err)
	}
	if rec == nil {
		return nil
	}
	rec.Snapshot = snapshot

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = r.client.SetArgs(ctx, sessionKey(id), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to update session snapshot: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	rec, err := r.get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		if rec != nil {
			pipe.SRem(ctx, userSessionsKey(rec.UserID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *RedisSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	ids, err := r.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKey(id))
	}
	keys = append(keys, userSessionsKey(userID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// pruneUserSessions はユーザーのセッションID集合から、期限切れで消えたセッションを取り除く。
func (r *RedisSessionRepo) pruneUserSessions(ctx context.Context, userID string) error {
	ids, err := r.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	exists := make([]*redis.IntCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			exists[i] = pipe.Exists(ctx, sessionKey(id))
		}
		return nil
	})
	if err != nil {
		return err
	}

	var dead []interface{}
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			dead = append(dead, ids[i])
		}
	}
	if len(dead) == 0 {
		return nil
	}
	return r.client.SRem(ctx, userSessionsKey(userID), dead...).Err()
}

// get はセッションレコードを読み取る。キーが存在しない場合はnilを返す。
func (r *RedisSessionRepo) get(ctx context.Context, id string) (*redisSessionRecord, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec := &redisSessionRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return rec, nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
