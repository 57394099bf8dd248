package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"incorvix/backend/internal/config"
	"incorvix/backend/internal/domain"
)

// Store 简历临时存储
//
// 每个文件使用唯一文件名，只属于创建它的请求，因此不需要加锁。
type Store struct {
	dir     string
	maxSize int64
	allowed map[string]bool
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore 创建上传存储并确保目录存在
//
// 参数:
//   - cfg: 上传配置（目录、大小上限、允许的扩展名）
//   - logger: 日志记录器
//
// 返回值:
//   - *Store: 存储实例
//   - error: 目录无法创建时返回错误
func NewStore(cfg config.UploadConfig, logger *zap.Logger) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("upload dir must not be empty")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}

	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = config.DefaultMaxUploadSize
	}

	return &Store{
		dir:     dir,
		maxSize: maxSize,
		allowed: allowed,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Dir 上传目录绝对路径
func (s *Store) Dir() string { return s.dir }

// Allowed 扩展名是否允许
func (s *Store) Allowed(ext string) bool { return s.allowed[strings.ToLower(ext)] }

// Accept 校验并持久化上传的简历
//
// 校验顺序：扩展名 → 声明大小 → 落盘 → 内容嗅探。扩展名或声明大小不合格时不会写盘。
//
// 返回值:
//   - *domain.UploadedDocument: 已落盘的文件，调用方负责 Remove
//   - error: *domain.UploadError（ErrInvalidFileType / ErrFileTooLarge）或 I/O 错误
func (s *Store) Accept(ctx context.Context, fh *multipart.FileHeader) (*domain.UploadedDocument, error) {
	ext := Extension(fh.Filename)
	if !s.Allowed(ext) {
		return nil, &domain.UploadError{Filename: fh.Filename, Err: domain.ErrInvalidFileType}
	}
	if fh.Size > s.maxSize {
		return nil, &domain.UploadError{Filename: fh.Filename, Err: domain.ErrFileTooLarge}
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	now := s.now()
	doc := &domain.UploadedDocument{
		OriginalName: fh.Filename,
		StoredName:   storedName(fh.Filename, now),
		DeclaredType: fh.Header.Get("Content-Type"),
		Extension:    ext,
		UploadedAt:   now,
	}
	doc.Path = filepath.Join(s.dir, doc.StoredName)

	written, err := s.persist(ctx, doc.Path, src)
	if err != nil {
		s.discard(doc.Path)
		return nil, err
	}
	if written > s.maxSize {
		s.discard(doc.Path)
		return nil, &domain.UploadError{Filename: fh.Filename, Err: domain.ErrFileTooLarge}
	}
	doc.Size = written

	s.verify(doc, fh.Size)

	insp, err := inspectFile(doc.Path, ext)
	if err != nil {
		s.logger.Warn("无法嗅探上传文件类型", zap.String("path", doc.Path), zap.Error(err))
	} else {
		doc.DetectedType = insp.detected
		if insp.executable {
			s.discard(doc.Path)
			s.logger.Warn("拒绝可执行内容的上传文件",
				zap.String("filename", doc.StoredName),
				zap.String("detected", insp.detected))
			return nil, &domain.UploadError{Filename: fh.Filename, Err: domain.ErrInvalidFileType}
		}
		if insp.mismatch {
			s.logger.Warn("上传文件内容与扩展名不符",
				zap.String("filename", doc.StoredName),
				zap.String("extension", ext),
				zap.String("detected", insp.detected))
		}
	}

	if ext == "pdf" {
		pages, err := countPDFPages(doc.Path)
		if err != nil {
			s.logger.Debug("无法读取 PDF 页数", zap.String("filename", doc.StoredName), zap.Error(err))
		}
		doc.Pages = pages
	}

	s.logger.Info("简历已保存",
		zap.String("filename", doc.StoredName),
		zap.Int64("size", doc.Size),
		zap.String("detected", doc.DetectedType))
	return doc, nil
}

// persist 写入文件，最多读取 maxSize+1 字节用于判断超限
func (s *Store) persist(ctx context.Context, path string, src io.Reader) (int64, error) {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create upload file: %w", err)
	}

	written, copyErr := io.Copy(dst, &ctxReader{ctx: ctx, r: io.LimitReader(src, s.maxSize+1)})
	closeErr := dst.Close()
	if copyErr != nil {
		return written, fmt.Errorf("write upload file: %w", copyErr)
	}
	if closeErr != nil {
		return written, fmt.Errorf("close upload file: %w", closeErr)
	}
	return written, nil
}

// verify 确认文件可读且大小与声明一致，不一致只记录警告
func (s *Store) verify(doc *domain.UploadedDocument, declared int64) {
	info, err := os.Stat(doc.Path)
	if err != nil {
		s.logger.Warn("上传文件落盘后不可读", zap.String("path", doc.Path), zap.Error(err))
		return
	}
	if info.Size() != declared {
		doc.SizeMismatch = true
		s.logger.Warn("上传文件大小与声明不一致",
			zap.String("filename", doc.StoredName),
			zap.Int64("declared", declared),
			zap.Int64("actual", info.Size()))
	}
}

// Read 读取文件内容用于附件
//
// 返回值:
//   - error: *domain.AttachmentReadError，调用方应降级为无附件发送
func (s *Store) Read(doc *domain.UploadedDocument) ([]byte, error) {
	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return nil, &domain.AttachmentReadError{Path: doc.Path, Err: err}
	}
	return data, nil
}

// Remove 删除临时文件，文件不存在视为成功
func (s *Store) Remove(doc *domain.UploadedDocument) error {
	if doc == nil || doc.Path == "" {
		return nil
	}
	if err := os.Remove(doc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}

// discard 删除写入失败或被拒绝的文件
func (s *Store) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("清理上传文件失败", zap.String("path", path), zap.Error(err))
	}
}

// CheckWritable 健康检查：确认上传目录可写
func (s *Store) CheckWritable() error {
	f, err := os.CreateTemp(s.dir, ".healthcheck-*")
	if err != nil {
		return fmt.Errorf("upload dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// IsMissingFile 区分"未选择文件"与其他上传传输错误
func IsMissingFile(err error) bool {
	return errors.Is(err, http.ErrMissingFile)
}

// ctxReader 在每次读取前检查 context，使超时能中断大文件写入
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
