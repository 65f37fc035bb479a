package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rushteam/questkit/core"
)

// MemoryQuestStore 是内存实现的 QuestStore，用于测试/开发/原型。
// 记录按加入顺序保存，遍历顺序稳定。
type MemoryQuestStore struct {
	mu     sync.RWMutex
	quests []*core.Quest
	stats  map[string]*core.UserStats
}

func NewMemoryQuestStore() *MemoryQuestStore {
	return &MemoryQuestStore{
		stats: make(map[string]*core.UserStats),
	}
}

func (m *MemoryQuestStore) Name() string { return "memory" }

// Add 追加任务记录（测试数据装载）。
func (m *MemoryQuestStore) Add(quests ...*core.Quest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quests = append(m.quests, quests...)
}

func (m *MemoryQuestStore) ListQuests(ctx context.Context) ([]*core.Quest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*core.Quest, len(m.quests))
	copy(out, m.quests)
	return out, nil
}

func (m *MemoryQuestStore) ListUserQuests(ctx context.Context, userID string) ([]*core.Quest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*core.Quest
	for _, q := range m.quests {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *MemoryQuestStore) ListUserIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var ids []string
	for _, q := range m.quests {
		if !seen[q.UserID] {
			seen[q.UserID] = true
			ids = append(ids, q.UserID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryQuestStore) UpdateUserStats(ctx context.Context, stats *core.UserStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *stats
	m.stats[stats.UserID] = &copied
	return nil
}

// GetUserStats 读取写回的用户聚合统计（测试断言用）；未写回过返回 nil。
func (m *MemoryQuestStore) GetUserStats(userID string) *core.UserStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats[userID]
}

func (m *MemoryQuestStore) Close() error { return nil }

var _ core.QuestStore = (*MemoryQuestStore)(nil)
