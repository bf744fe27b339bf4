package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"degreefi/backend/internal/dto"
	"degreefi/backend/internal/model"
	"degreefi/backend/internal/repository"
	"degreefi/backend/pkg/mailer"
)

// ── 通知模块业务错误 ──

var (
	ErrNotificationNotFound = errors.New("通知不存在")
)

const (
	defaultBroadcastConcurrency = 8
	mailSendTimeout             = 15 * time.Second
)

// NotificationService 站内通知业务接口
type NotificationService interface {
	// Append 追加一条通知；学生存在即成功
	Append(ctx context.Context, studentID, title, message string) (*dto.NotificationResponse, error)
	List(ctx context.Context, userID string, req *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (*dto.MarkAllReadResponse, error)
	UnreadCount(ctx context.Context, userID string) (*dto.UnreadCountResponse, error)
	// Broadcast 向多个学生发送同一通知；studentIDs 为空时发送给全体学生
	Broadcast(ctx context.Context, studentIDs []string, title, message string) (*dto.BroadcastResult, error)
	// Close 停止抄送新邮件并等待进行中的邮件发送完成
	Close(ctx context.Context) error
}

// NotificationOptions 通知模块可选行为
type NotificationOptions struct {
	EmailEnabled bool // 同步抄送邮件
	Concurrency  int  // 批量发送并发上限
}

type notificationService struct {
	repo   *repository.Repository
	mail   mailer.Mailer
	opts   NotificationOptions
	logger *zap.Logger

	mailMu     sync.Mutex
	mailClosed bool
	mailWG     sync.WaitGroup
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(repo *repository.Repository, mail mailer.Mailer, opts NotificationOptions, logger *zap.Logger) NotificationService {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultBroadcastConcurrency
	}
	return &notificationService{repo: repo, mail: mail, opts: opts, logger: logger}
}

// ────────────────────── Append ──────────────────────

func (s *notificationService) Append(ctx context.Context, studentID, title, message string) (*dto.NotificationResponse, error) {
	student, err := requireStudent(ctx, s.repo, s.logger, studentID)
	if err != nil {
		return nil, err
	}

	n := &model.Notification{
		UserID:  studentID,
		Title:   title,
		Message: message,
	}
	if err := s.repo.Notification.Create(ctx, n); err != nil {
		s.logger.Error("写入通知失败", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	if s.opts.EmailEnabled && s.mail != nil {
		s.mirrorEmail(ctx, student, title, message)
	}

	resp := toNotificationResponse(n)
	return &resp, nil
}

// mirrorEmail 异步抄送，失败只记日志
func (s *notificationService) mirrorEmail(ctx context.Context, student *model.User, title, message string) {
	msg := mailer.Message{
		ToName:  student.Name,
		ToEmail: student.Email,
		Subject: title,
		Text:    message,
	}
	base := context.WithoutCancel(ctx)

	s.mailMu.Lock()
	if s.mailClosed {
		s.mailMu.Unlock()
		s.logger.Warn("服务正在关闭，跳过邮件抄送", zap.String("to", msg.ToEmail))
		return
	}
	s.mailWG.Add(1)
	s.mailMu.Unlock()

	go func() {
		defer s.mailWG.Done()
		sendCtx, cancel := context.WithTimeout(base, mailSendTimeout)
		defer cancel()
		if err := s.mail.Send(sendCtx, msg); err != nil {
			s.logger.Warn("通知邮件抄送失败", zap.String("to", msg.ToEmail), zap.Error(err))
		}
	}()
}

// ────────────────────── Close ──────────────────────

func (s *notificationService) Close(ctx context.Context) error {
	s.mailMu.Lock()
	s.mailClosed = true
	s.mailMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.mailWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ────────────────────── List ──────────────────────

func (s *notificationService) List(ctx context.Context, userID string, req *dto.NotificationListRequest) ([]dto.NotificationResponse, int64, error) {
	list, total, err := s.repo.Notification.ListByUser(ctx, userID, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询通知失败", zap.String("user_id", userID), zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.NotificationResponse, 0, len(list))
	for i := range list {
		result = append(result, toNotificationResponse(&list[i]))
	}
	return result, total, nil
}

// ────────────────────── MarkRead ──────────────────────

func (s *notificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := s.repo.Notification.MarkRead(ctx, userID, notificationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		s.logger.Error("标记已读失败", zap.String("id", notificationID), zap.Error(err))
		return err
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (*dto.MarkAllReadResponse, error) {
	n, err := s.repo.Notification.MarkAllRead(ctx, userID)
	if err != nil {
		s.logger.Error("全部标记已读失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &dto.MarkAllReadResponse{Updated: n}, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (*dto.UnreadCountResponse, error) {
	n, err := s.repo.Notification.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Error("统计未读通知失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &dto.UnreadCountResponse{Unread: n}, nil
}

// ═══════════════════════════════════════════════════════════
// Broadcast: 有界并发批量发送
// ═══════════════════════════════════════════════════════════
//
// 每个学生独立写入，单个失败记录在 Failures 中，不中断其余学生。

func (s *notificationService) Broadcast(ctx context.Context, studentIDs []string, title, message string) (*dto.BroadcastResult, error) {
	ids, err := s.resolveTargets(ctx, studentIDs)
	if err != nil {
		return nil, err
	}

	return fanOut(ctx, ids, s.opts.Concurrency, func(ctx context.Context, id string) error {
		_, err := s.Append(ctx, id, title, message)
		return err
	}), nil
}

func (s *notificationService) resolveTargets(ctx context.Context, studentIDs []string) ([]string, error) {
	if len(studentIDs) == 0 {
		ids, err := s.repo.User.ListStudentIDs(ctx)
		if err != nil {
			s.logger.Error("查询学生列表失败", zap.Error(err))
			return nil, err
		}
		return ids, nil
	}
	return dedupe(studentIDs), nil
}

// fanOut 以 limit 为并发上限对每个 id 执行 fn，汇总成功数与失败原因（按输入顺序）
func fanOut(ctx context.Context, ids []string, limit int, fn func(ctx context.Context, id string) error) *dto.BroadcastResult {
	if limit <= 0 {
		limit = defaultBroadcastConcurrency
	}
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = fn(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	result := &dto.BroadcastResult{Total: len(ids)}
	for i, err := range errs {
		if err == nil {
			result.Succeeded++
			continue
		}
		result.Failures = append(result.Failures, dto.BroadcastFailure{
			StudentID: ids[i],
			Reason:    err.Error(),
		})
	}
	return result
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
