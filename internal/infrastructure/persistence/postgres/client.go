// Package postgres 存放规则集版本与课程记录
package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"lesson-forge-api/internal/config"
	"lesson-forge-api/internal/domain/entity"
	"lesson-forge-api/pkg/logger"
)

var tracer = otel.Tracer("postgres")

// Client GORM 连接
type Client struct {
	db *gorm.DB
}

// NewClient 打开连接池并在 ctx 内 PING 一次
func NewClient(ctx context.Context, cfg *config.PostgresConfig) (*Client, error) {
	db, err := gorm.Open(postgres.Open(dsn(cfg)), &gorm.Config{
		Logger: gormlogger.New(slowQueryWriter{}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	c := &Client{db: db}
	if err := c.HealthCheck(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return c, nil
}

func dsn(cfg *config.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=lesson-forge",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode)
}

// slowQueryWriter 将 GORM 的慢查询与错误输出转入结构化日志
type slowQueryWriter struct{}

func (slowQueryWriter) Printf(format string, args ...interface{}) {
	logger.Warn(context.Background(), "gorm", "detail", fmt.Sprintf(format, args...))
}

// DB 非事务连接
func (c *Client) DB() *gorm.DB {
	return c.db
}

func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck 供就绪探针调用
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.Ping")
	defer span.End()

	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// AutoMigrate 创建规则集版本、课程与复核记录表
func (c *Client) AutoMigrate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.AutoMigrate")
	defer span.End()

	if err := c.db.WithContext(ctx).AutoMigrate(
		&entity.RuleSetVersion{},
		&entity.Lesson{},
		&entity.LessonReviewFlag{},
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}
