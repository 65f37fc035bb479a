package store

// 注意：此包只包含实现，接口定义在 core 包。
// 使用 core.Store（KV 缓存）和 core.QuestStore（任务历史）接口。
//
// 示例：
//   var cache core.Store = NewMemoryStore()
//   var quests core.QuestStore = NewMemoryQuestStore()
