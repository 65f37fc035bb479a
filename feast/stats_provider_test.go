package feast

import (
	"context"
	"testing"

	feastsdk "github.com/feast-dev/feast/sdk/go"
	feasttypes "github.com/feast-dev/feast/sdk/go/protos/feast/types"
	"github.com/rushteam/questkit/core"
)

// fakeClient 返回预置的在线特征（不连真实 Feast 服务器）。
type fakeClient struct {
	values map[string]interface{}
	err    error
}

func (f *fakeClient) GetOnlineFeatures(ctx context.Context, req *GetOnlineFeaturesRequest) (*GetOnlineFeaturesResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &GetOnlineFeaturesResponse{
		FeatureVectors: []FeatureVector{
			{Values: f.values, EntityRow: req.EntityRows[0]},
		},
	}, nil
}

func (f *fakeClient) Close() error { return nil }

func TestStatsProviderBuildsUserStats(t *testing.T) {
	provider := NewStatsProvider(&fakeClient{values: map[string]interface{}{
		"user_stats:total_quests":       float64(12),
		"user_stats:completed_quests":   float64(9),
		"user_stats:streak_days":        float64(4),
		"user_stats:preferred_category": "Reading",
		"user_stats:avg_success_rate":   0.7,
	}})

	stats, err := provider.GetUserStats(context.Background(), "u1001")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalQuests != 12 || stats.CompletedQuests != 9 || stats.StreakDays != 4 {
		t.Errorf("counts = %d/%d/%d, want 12/9/4", stats.TotalQuests, stats.CompletedQuests, stats.StreakDays)
	}
	if stats.PreferredCategory != "reading" {
		t.Errorf("PreferredCategory = %q, want normalized %q", stats.PreferredCategory, "reading")
	}
	if stats.AvgSuccessRate != 0.7 {
		t.Errorf("AvgSuccessRate = %v, want 0.7", stats.AvgSuccessRate)
	}
}

func TestStatsProviderMissingFeatures(t *testing.T) {
	provider := NewStatsProvider(&fakeClient{values: map[string]interface{}{}})

	stats, err := provider.GetUserStats(context.Background(), "new-user")
	if err != nil {
		t.Fatal(err)
	}
	neutral := core.NewUserStats("new-user")
	if *stats != *neutral {
		t.Errorf("missing features must yield neutral stats, got %+v", stats)
	}
}

func TestFromSDKValue(t *testing.T) {
	tests := []struct {
		name string
		in   *feasttypes.Value
		want interface{}
	}{
		{"string", feastsdk.StrVal("reading"), "reading"},
		{"int64", feastsdk.Int64Val(42), float64(42)},
		{"double", feastsdk.DoubleVal(0.5), 0.5},
		{"bool", feastsdk.BoolVal(true), float64(1)},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fromSDKValue(tt.in); got != tt.want {
				t.Errorf("fromSDKValue = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGrpcClientOnline 需要连接真实的 Feast 服务器才能运行
func TestGrpcClientOnline(t *testing.T) {
	t.Skip("需要连接真实的 Feast 服务器才能运行")

	client, err := NewClient("localhost:6565", "quest_tracker")
	if err != nil {
		t.Fatalf("创建客户端失败: %v", err)
	}
	defer client.Close()

	stats, err := NewStatsProvider(client).GetUserStats(context.Background(), "u1001")
	if err != nil {
		t.Fatalf("获取用户统计失败: %v", err)
	}
	t.Logf("user stats: %+v", stats)
}
