package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/LJTian/ImageHub/internal/cache"
	"github.com/LJTian/ImageHub/internal/processor"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// 快照保留时长，超过的在写入新快照时清理
const snapshotRetention = 7 * 24 * time.Hour

// ImageRecord 每个文章链接最近一次解析出的图片，ID 为链接的 sha1
type ImageRecord struct {
	ID       string `gorm:"primaryKey;size:40" json:"id"`
	Link     string `gorm:"type:text" json:"link"`
	Image    string `gorm:"size:1024" json:"image"`
	Source   string `gorm:"size:64;index" json:"source"`
	Position int    `json:"position"`
	// host / hasImage 等附加信息，便于排查某个站点长期取不到图
	ExtraData datatypes.JSONMap `gorm:"type:jsonb" json:"extraData"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot 一次完整流水线的结果，最新一条作为降级页面的兜底
type Snapshot struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Images    datatypes.JSON `gorm:"type:jsonb" json:"images"`
	Count     int            `json:"count"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
}

// Store 两个后端都是可选的：DB 为空不做持久化，Redis 为空退回进程内缓存
type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	s := &Store{}

	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s.DB = db
		if err := s.migrate(); err != nil {
			return nil, err
		}
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("warn: redis ping failed: %v", err)
		}
		s.Redis = rdb
	}

	return s, nil
}

func (s *Store) migrate() error {
	if err := s.DB.AutoMigrate(&ImageRecord{}, &Snapshot{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Cache 有 Redis 用 Redis，否则用进程内缓存
func (s *Store) Cache() cache.Cache {
	if s.Redis != nil {
		return NewRedisCache(s.Redis)
	}
	log.Println("REDIS_ADDR not set, using in-process cache")
	return cache.NewMemory()
}

func (s *Store) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// toValidUTF8 页面里的 src 偶尔混有非法字节，入库前统一规范
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 截断，保证不超过 varchar 长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

func newImageRecord(it processor.ResolvedImage) *ImageRecord {
	host := ""
	if u, err := url.Parse(it.Link); err == nil {
		host = u.Host
	}
	return &ImageRecord{
		ID:       it.ID,
		Link:     it.Link,
		Image:    truncateRunesDB(toValidUTF8(it.Image), 1024),
		Source:   it.Source,
		Position: it.Position,
		ExtraData: datatypes.JSONMap{
			"host":     host,
			"hasImage": it.Image != "",
		},
	}
}

// SaveSnapshot 以链接哈希为幂等键更新 ImageRecord，并追加一条快照
func (s *Store) SaveSnapshot(ctx context.Context, images []string, items []processor.ResolvedImage) error {
	if s.DB == nil {
		return nil
	}
	bs, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			fresh := newImageRecord(it)
			rec := *fresh
			// 已存在时 FirstOrCreate 会用库里的旧值填充 rec，更新字段取 fresh
			if err := tx.Where("id = ?", fresh.ID).FirstOrCreate(&rec).Error; err != nil {
				return err
			}
			if err := tx.Model(&rec).Updates(map[string]any{
				"image":      fresh.Image,
				"source":     fresh.Source,
				"position":   fresh.Position,
				"extra_data": fresh.ExtraData,
			}).Error; err != nil {
				return err
			}
		}

		if err := tx.Create(&Snapshot{Images: datatypes.JSON(bs), Count: len(images)}).Error; err != nil {
			return err
		}
		return tx.Where("created_at < ?", time.Now().Add(-snapshotRetention)).Delete(&Snapshot{}).Error
	})
}

// LatestSnapshot 没有 DB 或还没有快照时返回 nil, nil
func (s *Store) LatestSnapshot(ctx context.Context) ([]string, error) {
	if s.DB == nil {
		return nil, nil
	}
	var snap Snapshot
	err := s.DB.WithContext(ctx).Order("created_at DESC").Order("id DESC").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var images []string
	if err := json.Unmarshal(snap.Images, &images); err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", snap.ID, err)
	}
	return images, nil
}

// ListImageRecords 按来源和顺序列出最近解析结果，source 为空表示全部
func (s *Store) ListImageRecords(ctx context.Context, source string, limit int) ([]ImageRecord, error) {
	if s.DB == nil {
		return nil, nil
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	db := s.DB.WithContext(ctx).Model(&ImageRecord{})
	if source != "" {
		db = db.Where("source = ?", source)
	}
	var list []ImageRecord
	err := db.Order("source ASC").Order("position ASC").Limit(limit).Find(&list).Error
	return list, err
}
