package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // postgres driver

	"github.com/rushteam/questkit/core"
)

// PostgresQuestStore 是 PostgreSQL 实现的 QuestStore（生产）。
//
// 依赖两张由外围应用维护的表：
//
//	quests(id, user_id, name, motivation, category, duration, difficulty,
//	       completed, success_rate, created_at, completed_at)
//	user_stats(user_id, total_quests, completed_quests, streak_days,
//	           preferred_category, avg_success_rate, updated_at)
//
// 本库只读 quests，写 user_stats；任务的增删改由外围 CRUD 层负责。
type PostgresQuestStore struct {
	db *sql.DB
}

func NewPostgresQuestStore(dsn string) (*PostgresQuestStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresQuestStore{db: db}, nil
}

func (p *PostgresQuestStore) Name() string { return "postgres" }

const questColumns = `id, user_id, name, COALESCE(motivation, ''), COALESCE(category, ''),
	COALESCE(duration, 0), COALESCE(difficulty, 0), completed,
	COALESCE(success_rate, 0), created_at, completed_at`

func (p *PostgresQuestStore) ListQuests(ctx context.Context) ([]*core.Quest, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+questColumns+` FROM quests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query quests: %w", err)
	}
	defer rows.Close()
	return scanQuests(rows)
}

func (p *PostgresQuestStore) ListUserQuests(ctx context.Context, userID string) ([]*core.Quest, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+questColumns+` FROM quests WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user quests: %w", err)
	}
	defer rows.Close()
	return scanQuests(rows)
}

func (p *PostgresQuestStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM quests ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateUserStats 单事务 upsert 用户聚合记录，保证单个用户的读改写原子。
func (p *PostgresQuestStore) UpdateUserStats(ctx context.Context, stats *core.UserStats) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_stats
			(user_id, total_quests, completed_quests, streak_days, preferred_category, avg_success_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			total_quests = EXCLUDED.total_quests,
			completed_quests = EXCLUDED.completed_quests,
			streak_days = EXCLUDED.streak_days,
			preferred_category = EXCLUDED.preferred_category,
			avg_success_rate = EXCLUDED.avg_success_rate,
			updated_at = NOW()`,
		stats.UserID, stats.TotalQuests, stats.CompletedQuests,
		stats.StreakDays, stats.PreferredCategory, stats.AvgSuccessRate)
	if err != nil {
		return fmt.Errorf("upsert user stats: %w", err)
	}
	return tx.Commit()
}

func (p *PostgresQuestStore) Close() error {
	return p.db.Close()
}

func scanQuests(rows *sql.Rows) ([]*core.Quest, error) {
	var quests []*core.Quest
	for rows.Next() {
		var q core.Quest
		var completedAt sql.NullTime
		if err := rows.Scan(&q.ID, &q.UserID, &q.Name, &q.Motivation, &q.Category,
			&q.Duration, &q.Difficulty, &q.Completed,
			&q.SuccessRate, &q.CreatedAt, &completedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t := completedAt.Time
			q.CompletedAt = &t
		}
		quests = append(quests, &q)
	}
	return quests, rows.Err()
}

var _ core.QuestStore = (*PostgresQuestStore)(nil)
