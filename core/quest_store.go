package core

import "context"

// QuestStore 是历史数据源的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（store）实现
//   - 周边的 CRUD/Web 层如何落库不在本库范围内，这里只约定逻辑视图
//
// 实现：
//   - store.MemoryQuestStore 实现此接口（测试/原型）
//   - store.PostgresQuestStore 实现此接口（生产）
type QuestStore interface {
	// Name 返回存储后端名称（用于日志/监控）
	Name() string

	// ListQuests 返回全部任务记录（训练数据）
	ListQuests(ctx context.Context) ([]*Quest, error)

	// ListUserQuests 返回某个用户的全部任务记录
	ListUserQuests(ctx context.Context, userID string) ([]*Quest, error)

	// ListUserIDs 返回全部用户 ID（聚合刷新时遍历）
	ListUserIDs(ctx context.Context) ([]string, error)

	// UpdateUserStats 将重算后的用户聚合统计写回持久化用户记录。
	// 实现必须保证单个用户的读改写是原子的（单事务或等价手段），
	// 避免与并发的完成/更新操作互相踩踏中间状态。
	UpdateUserStats(ctx context.Context, stats *UserStats) error

	// Close 关闭连接/释放资源
	Close() error
}
