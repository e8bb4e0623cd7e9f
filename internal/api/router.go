package api

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strconv"

	"github.com/LJTian/ImageHub/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ImageSource 带缓存的图片列表
type ImageSource interface {
	Images(ctx context.Context) ([]string, error)
}

// SnapshotReader 最近一次成功结果，用于降级展示
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context) ([]string, error)
}

// RecordLister 每个文章链接最近一次的取图结果
type RecordLister interface {
	ListImageRecords(ctx context.Context, source string, limit int) ([]storage.ImageRecord, error)
}

type Server struct {
	images    ImageSource
	snapshots SnapshotReader
	records   RecordLister
}

// NewServer snapshots 可以为 nil，此时降级页面为空列表；records 为 nil 时 /api/v1/records 返回空列表
func NewServer(images ImageSource, snapshots SnapshotReader, records RecordLister) *Server {
	return &Server{images: images, snapshots: snapshots, records: records}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))

	r.GET("/", s.index)
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/images", s.listImages)
		v1.GET("/records", s.listRecords)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) index(c *gin.Context) {
	images, degraded := s.loadImages(c.Request.Context())
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Images":   images,
		"Degraded": degraded,
	})
}

func (s *Server) listImages(c *gin.Context) {
	images, degraded := s.loadImages(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"code":     "ok",
		"message":  "success",
		"degraded": degraded,
		"data":     images,
	})
}

func (s *Server) listRecords(c *gin.Context) {
	source := c.Query("source")

	limitStr := c.DefaultQuery("limit", "100")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 100
	}

	items := []storage.ImageRecord{}
	if s.records != nil {
		list, err := s.records.ListImageRecords(c.Request.Context(), source, limit)
		if err != nil {
			log.WithError(err).Warn("list image records failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "internal_error",
				"message": "internal server error",
			})
			return
		}
		if list != nil {
			items = list
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

// loadImages 流水线失败时不向用户报错：记录日志，退回最近快照或空列表
func (s *Server) loadImages(ctx context.Context) ([]string, bool) {
	images, err := s.images.Images(ctx)
	if err == nil {
		return images, false
	}
	log.WithError(err).Warn("image pipeline failed, serving degraded page")

	if s.snapshots != nil {
		last, serr := s.snapshots.LatestSnapshot(ctx)
		if serr != nil {
			log.WithError(serr).Warn("load latest snapshot failed")
		} else if last != nil {
			return last, true
		}
	}
	return []string{}, true
}
