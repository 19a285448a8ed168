package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lesson-forge-api/internal/domain/entity"
	"lesson-forge-api/pkg/metrics"
)

var tracer = otel.Tracer("messaging")

// Producer 复核事件发布者，流长度近似截断到 maxLen
type Producer struct {
	client *redis.Client
	maxLen int64
	stream string
	now    func() time.Time
}

// NewProducer stream 为空时使用 DefaultReviewStream
func NewProducer(client *redis.Client, maxLen int64, stream string) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	if stream == "" {
		stream = DefaultReviewStream
	}
	return &Producer{client: client, maxLen: maxLen, stream: stream, now: time.Now}
}

// NotifyFlagged 发布 lesson.flagged 事件，返回前已写入流
func (p *Producer) NotifyFlagged(ctx context.Context, lesson *entity.Lesson, flag *entity.LessonReviewFlag) error {
	ctx, span := tracer.Start(ctx, "review.NotifyFlagged", trace.WithAttributes(
		attribute.String("stream", p.stream),
		attribute.String("lesson.id", lesson.ID),
	))
	defer span.End()

	fields, err := newFlaggedEvent(lesson, flag, p.now()).streamFields()
	if err == nil {
		var id string
		id, err = p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: p.maxLen,
			Approx: true,
			Values: fields,
		}).Result()
		if err == nil {
			span.SetAttributes(attribute.String("stream.message_id", id))
		}
	}

	if err != nil {
		span.RecordError(err)
		metrics.ReviewEventsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("publish review event for lesson %s: %w", lesson.ID, err)
	}
	metrics.ReviewEventsPublished.WithLabelValues("success").Inc()
	return nil
}
