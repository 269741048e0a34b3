package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// reportStreamMaxLen bounds the run stream via XADD MAXLEN ~.
const reportStreamMaxLen int64 = 1000

// ReportStream appends run reports to a Redis stream and announces them on a
// pub/sub channel of the same name for downstream consumers.
type ReportStream struct {
	rdb    redis.Cmdable
	stream string
}

// NewReportStream creates a ReportStream writing to stream under the
// client's key prefix.
func NewReportStream(c *Client, stream string) *ReportStream {
	return &ReportStream{rdb: c.Underlying(), stream: c.Keys().Key(stream)}
}

// Distribute implements the orchestrator's report sink.
func (rs *ReportStream) Distribute(ctx context.Context, report domain.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: marshal run report: %w", err)
	}

	if err := rs.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: rs.stream,
		MaxLen: reportStreamMaxLen,
		Approx: true,
		Values: map[string]any{
			"run_id":  report.RunID,
			"period":  report.Period.Format("2006-01-02"),
			"payload": payload,
		},
	}).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", rs.stream, err)
	}

	if err := rs.rdb.Publish(ctx, rs.stream, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", rs.stream, err)
	}
	return nil
}

// Recent returns up to count reports, newest first.
func (rs *ReportStream) Recent(ctx context.Context, count int64) ([]domain.RunReport, error) {
	msgs, err := rs.rdb.XRevRangeN(ctx, rs.stream, "+", "-", count).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", rs.stream, err)
	}

	reports := make([]domain.RunReport, 0, len(msgs))
	for _, msg := range msgs {
		var data []byte
		switch v := msg.Values["payload"].(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			continue
		}
		var r domain.RunReport
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("redis: decode run report %s: %w", msg.ID, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}
