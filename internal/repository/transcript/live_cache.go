package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/xpanvictor/voxcap/internal/domains/transcript"
	"github.com/xpanvictor/voxcap/pkg/utils"
)

// RedisLiveCache keeps in-progress lines as one hash per session, keyed by generation.
type RedisLiveCache struct {
	rc  *redis.Client
	ttl time.Duration
}

func LiveLinesKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:%s:live", sessionID.String())
}

// Put implements transcript.LiveCache
func (c *RedisLiveCache) Put(ctx context.Context, line transcript.Line) error {
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("can't marshal line: %w", err)
	}
	key := LiveLinesKey(line.SessionID)
	if err := c.rc.HSet(key, strconv.Itoa(line.GenerationID), data).Err(); err != nil {
		return utils.XError{Reason: "storing live line", Meta: err}.ToError()
	}
	if c.ttl > 0 {
		if err := c.rc.Expire(key, c.ttl).Err(); err != nil {
			return utils.XError{Reason: "refreshing live line ttl", Meta: err}.ToError()
		}
	}
	return nil
}

// All implements transcript.LiveCache
func (c *RedisLiveCache) All(ctx context.Context, sessionID uuid.UUID) ([]transcript.Line, error) {
	raw, err := c.rc.HGetAll(LiveLinesKey(sessionID)).Result()
	if err != nil {
		return nil, utils.XError{Reason: "reading live lines", Meta: err}.ToError()
	}

	lines := make([]transcript.Line, 0, len(raw))
	for _, v := range raw {
		var l transcript.Line
		if err := json.Unmarshal([]byte(v), &l); err != nil {
			continue
		}
		lines = append(lines, l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].GenerationID < lines[j].GenerationID })
	return lines, nil
}

// Drop implements transcript.LiveCache
func (c *RedisLiveCache) Drop(ctx context.Context, sessionID uuid.UUID, generationID int) error {
	if err := c.rc.HDel(LiveLinesKey(sessionID), strconv.Itoa(generationID)).Err(); err != nil {
		return utils.XError{Reason: "dropping live line", Meta: err}.ToError()
	}
	return nil
}

func NewRedisLiveCache(rc *redis.Client, ttl time.Duration) transcript.LiveCache {
	return &RedisLiveCache{rc: rc, ttl: ttl}
}
