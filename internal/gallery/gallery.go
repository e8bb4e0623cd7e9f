package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/ImageHub/internal/cache"
	"github.com/LJTian/ImageHub/internal/collector"
	"github.com/LJTian/ImageHub/internal/config"
	"github.com/LJTian/ImageHub/internal/processor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	defaultConcurrency    = 4
	defaultComputeTimeout = 5 * time.Minute
)

var (
	pipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagehub_pipeline_duration_seconds",
		Help:    "Duration of a full image pipeline run",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	})
	pipelineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagehub_pipeline_errors_total",
		Help: "Pipeline runs aborted, by stage",
	}, []string{"stage"})
	imagesMissing = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagehub_images_missing_total",
		Help: "Article pages that could not be fetched while resolving an image",
	})
)

// 流水线中止的阶段
const (
	StageAPIFetch = "api_fetch"
	StageAPIParse = "api_parse"
	StageImages   = "images"
)

// PipelineError 某个数据源在某一阶段失败，整次加载中止
type PipelineError struct {
	Source string
	Stage  string
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s (%s): %v", e.Source, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Extractor 给定文章地址返回一张代表图，抓取失败返回错误
type Extractor interface {
	Extract(ctx context.Context, url string) (string, error)
}

// SnapshotStore 保存一次成功加载的结果
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, images []string, items []processor.ResolvedImage) error
}

// Service 按数据源驱动 抓取 -> 解析 -> 合并 -> 取图 -> 缓存
type Service struct {
	Sources   []config.DataSource
	Fetcher   collector.Fetcher
	Extractor Extractor
	Cache     cache.Cache

	// Snapshots 可选，为空时不持久化
	Snapshots SnapshotStore
	TTL       time.Duration
	// Concurrency 单个数据源内并发取图的上限，结果顺序与链接顺序一致
	Concurrency int
	// ComputeTimeout 一次共享计算的上限，与调用方的 ctx 无关
	ComputeTimeout time.Duration

	group singleflight.Group
}

func NewService(sources []config.DataSource, f collector.Fetcher, x Extractor, c cache.Cache) *Service {
	return &Service{
		Sources:        sources,
		Fetcher:        f,
		Extractor:      x,
		Cache:          c,
		TTL:            cache.DefaultTTL,
		Concurrency:    defaultConcurrency,
		ComputeTimeout: defaultComputeTimeout,
	}
}

// Images 整个图片列表的 get-or-compute，TTL 内不会触发任何抓取
func (s *Service) Images(ctx context.Context) ([]string, error) {
	return s.shared(ctx, func(ctx context.Context) ([]string, error) {
		return cache.Remember(ctx, s.Cache, processor.ImagesKey, s.ttl(), s.compute)
	})
}

// Refresh 忽略已有的列表缓存重新计算并覆盖（单链接的图片缓存仍然生效）
func (s *Service) Refresh(ctx context.Context) ([]string, error) {
	return s.shared(ctx, func(ctx context.Context) ([]string, error) {
		images, err := s.compute(ctx)
		if err != nil {
			return nil, err
		}
		cache.Store(ctx, s.Cache, processor.ImagesKey, s.ttl(), images)
		return images, nil
	})
}

// shared 同一时刻只跑一次计算。计算不跟随发起者的 ctx 取消，
// 发起请求断开后其他等待者仍能拿到结果；每个调用者只等待到自己的 ctx 结束。
func (s *Service) shared(ctx context.Context, fn func(context.Context) ([]string, error)) ([]string, error) {
	ch := s.group.DoChan(processor.ImagesKey, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.computeTimeout())
		defer cancel()
		return fn(cctx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// LoadImages 不经过列表缓存跑一遍流水线
func (s *Service) LoadImages(ctx context.Context) ([]string, error) {
	images, _, err := s.load(ctx)
	return images, err
}

func (s *Service) compute(ctx context.Context) ([]string, error) {
	images, items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if s.Snapshots != nil {
		if err := s.Snapshots.SaveSnapshot(ctx, images, items); err != nil {
			log.WithError(err).Warn("save snapshot failed")
		}
	}
	return images, nil
}

func (s *Service) load(ctx context.Context) ([]string, []processor.ResolvedImage, error) {
	start := time.Now()
	defer func() { pipelineDuration.Observe(time.Since(start).Seconds()) }()

	images := make([]string, 0)
	items := make([]processor.ResolvedImage, 0)
	for _, src := range s.Sources {
		links, err := s.Links(ctx, src)
		if err != nil {
			return nil, nil, s.fail(err)
		}

		resolved, err := s.resolve(ctx, links)
		if err != nil {
			return nil, nil, s.fail(&PipelineError{Source: src.Name, Stage: StageImages, Err: err})
		}
		for i, link := range links {
			items = append(items, processor.NewResolvedImage(src.Name, i, link, resolved[i]))
		}
		images = append(images, resolved...)

		log.WithFields(log.Fields{"source": src.Name, "links": len(links)}).Info("source images resolved")
	}
	return images, items, nil
}

func (s *Service) fail(err error) error {
	stage := StageImages
	var pe *PipelineError
	if errors.As(err, &pe) {
		stage = pe.Stage
	}
	pipelineErrors.WithLabelValues(stage).Inc()
	return err
}

// Links 一个数据源合并去重后的文章链接：RSS 在前，API 在后。
// RSS 取不到或解析不了只记日志；API 取不到或解析失败视为致命错误。
func (s *Service) Links(ctx context.Context, src config.DataSource) ([]string, error) {
	var feedLinks []string
	if src.FeedURL != "" {
		raw, err := s.Fetcher.Fetch(ctx, src.FeedURL)
		if err != nil {
			log.WithError(err).WithField("source", src.Name).Warn("feed unreachable, no feed links")
		} else {
			feedLinks = collector.ParseFeed(raw)
		}
	}

	var apiLinks []string
	if src.APIURL != "" {
		raw, err := s.Fetcher.Fetch(ctx, src.APIURL)
		if err != nil {
			// NewsAPI 用 4xx 返回错误信封（密钥无效、限流），按解析失败上报
			if apiErr := collector.APIErrorFromFetch(err); apiErr != nil {
				return nil, &PipelineError{Source: src.Name, Stage: StageAPIParse, Err: &collector.DecodeError{Err: apiErr}}
			}
			return nil, &PipelineError{Source: src.Name, Stage: StageAPIFetch, Err: err}
		}
		apiLinks, err = collector.ParseAPI(raw)
		if err != nil {
			return nil, &PipelineError{Source: src.Name, Stage: StageAPIParse, Err: err}
		}
	}

	return processor.Aggregate(feedLinks, apiLinks), nil
}

func (s *Service) resolve(ctx context.Context, links []string) ([]string, error) {
	images := make([]string, len(links))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, link := range links {
		g.Go(func() error {
			img, err := s.imageFor(gctx, link)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// imageFor 单链接图片的 get-or-compute；页面取不到时记为空串并同样缓存
func (s *Service) imageFor(ctx context.Context, link string) (string, error) {
	return cache.Remember(ctx, s.Cache, processor.CacheKey(link), s.ttl(), func(ctx context.Context) (string, error) {
		img, err := s.Extractor.Extract(ctx, link)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		imagesMissing.Inc()
		log.WithError(err).WithField("link", link).Warn("article page unreachable, no image")
		return "", nil
	})
}

func (s *Service) ttl() time.Duration {
	if s.TTL <= 0 {
		return cache.DefaultTTL
	}
	return s.TTL
}

func (s *Service) computeTimeout() time.Duration {
	if s.ComputeTimeout <= 0 {
		return defaultComputeTimeout
	}
	return s.ComputeTimeout
}

func (s *Service) concurrency() int {
	if s.Concurrency <= 0 {
		return 1
	}
	return s.Concurrency
}
