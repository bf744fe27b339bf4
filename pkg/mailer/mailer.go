// Package mailer 通知邮件通道：SendGrid 实现与仅写日志的开发实现。
package mailer

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"degreefi/backend/config"
)

// Message 一封纯文本邮件
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
}

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New 按配置选择实现
func New(cfg *config.MailConfig, logger *zap.Logger) Mailer {
	if cfg.Provider == "sendgrid" {
		return NewSendgridMailer(cfg, logger)
	}
	return NewLogMailer(logger)
}

// ── SendGrid ──

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridMailer 通过 SendGrid v3 API 发送
type SendgridMailer struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	logger     *zap.Logger
}

var _ Mailer = (*SendgridMailer)(nil)

// NewSendgridMailer 创建 SendGrid 邮件通道
func NewSendgridMailer(cfg *config.MailConfig, logger *zap.Logger) *SendgridMailer {
	return &SendgridMailer{
		key:        cfg.SendgridAPIKey,
		from:       sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
		subjPrefix: "[" + cfg.AppName + "] ",
		logger:     logger,
	}
}

func (m *SendgridMailer) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = m.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", textToHTML(msg.Text)),
	)
	return v3
}

// Send 同步发送；ctx 已取消时直接返回
func (m *SendgridMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.ToEmail == "" {
		return fmt.Errorf("收件人邮箱为空")
	}

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		m.logger.Error("发送邮件失败", zap.String("to", msg.ToEmail), zap.Error(err))
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		m.logger.Error("发送邮件被拒绝",
			zap.String("to", msg.ToEmail),
			zap.Int("status", res.StatusCode),
			zap.String("body", res.Body),
		)
		return fmt.Errorf("发送邮件失败: status=%d", res.StatusCode)
	}
	return nil
}

func textToHTML(text string) string {
	paras := strings.Split(strings.TrimSpace(text), "\n\n")
	var b strings.Builder
	for _, p := range paras {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// ── 开发环境：仅记录日志 ──

// LogMailer 不真正发送，只写日志
type LogMailer struct {
	logger *zap.Logger
}

var _ Mailer = (*LogMailer)(nil)

// NewLogMailer 创建日志邮件通道
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("邮件（未发送，仅记录）",
		zap.String("to", msg.ToEmail),
		zap.String("subject", msg.Subject),
	)
	return nil
}
