package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"strings"
	texttemplate "text/template"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/mailer"

	"gopkg.in/yaml.v3"
)

//go:embed templates/order_status.yaml
var defaultOrderStatusTemplates []byte

const defaultTemplateKey = "default"

type emailTemplate struct {
	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// EmailTemplates はステータスごとのメール文面
type EmailTemplates struct {
	byStatus map[string]emailTemplate
}

type rawEmailTemplate struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

func LoadEmailTemplates(data []byte) (*EmailTemplates, error) {
	var raw map[string]rawEmailTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	if _, ok := raw[defaultTemplateKey]; !ok {
		return nil, fmt.Errorf("email templates: %q is required", defaultTemplateKey)
	}

	t := &EmailTemplates{byStatus: make(map[string]emailTemplate, len(raw))}
	for key, r := range raw {
		subj, err := texttemplate.New(key + ".subject").Parse(r.Subject)
		if err != nil {
			return nil, fmt.Errorf("email template %s subject: %w", key, err)
		}
		body, err := htmltemplate.New(key + ".body").Parse(r.Body)
		if err != nil {
			return nil, fmt.Errorf("email template %s body: %w", key, err)
		}
		t.byStatus[key] = emailTemplate{subject: subj, body: body}
	}
	return t, nil
}

// 埋め込みの既定テンプレート
func DefaultEmailTemplates() *EmailTemplates {
	t, err := LoadEmailTemplates(defaultOrderStatusTemplates)
	if err != nil {
		panic(err)
	}
	return t
}

type emailData struct {
	OrderID string
	ShortID string
	Status  string
	Total   string
	City    string
	Country string
}

// Render は注文の状態に対応するテンプレートで件名と本文を作る（なければdefault）
func (t *EmailTemplates) Render(o model.Order) (subject string, html string, err error) {
	tmpl, ok := t.byStatus[string(o.Status)]
	if !ok {
		tmpl = t.byStatus[defaultTemplateKey]
	}

	d := emailData{
		OrderID: o.ID,
		ShortID: shortOrderID(o.ID),
		Status:  string(o.Status),
		Total:   o.TotalAmount.StringFixed(2),
		City:    deref(o.ShippingCity),
		Country: deref(o.ShippingCountry),
	}

	var sb, bb bytes.Buffer
	if err := tmpl.subject.Execute(&sb, d); err != nil {
		return "", "", err
	}
	if err := tmpl.body.Execute(&bb, d); err != nil {
		return "", "", err
	}
	return sb.String(), bb.String(), nil
}

// Notifier は注文ステータスの変更をメールで知らせる。送信失敗は注文更新に影響させない
type Notifier struct {
	mailer  Mailer
	tmpl    *EmailTemplates
	log     *slog.Logger
	timeout time.Duration
}

var _ StatusNotifier = (*Notifier)(nil)

func NewNotifier(m Mailer, tmpl *EmailTemplates, log *slog.Logger, timeout time.Duration) *Notifier {
	if tmpl == nil {
		tmpl = DefaultEmailTemplates()
	}
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{mailer: m, tmpl: tmpl, log: log, timeout: timeout}
}

// NotifyStatusChange はstatusが変わり、メールアドレスがあるときだけ送る。送ったらtrue
func (n *Notifier) NotifyStatusChange(ctx context.Context, old, cur model.Order) (bool, error) {
	if old.Status == cur.Status {
		return false, nil
	}
	to := strings.TrimSpace(deref(cur.Email))
	if to == "" {
		return false, nil
	}

	subject, html, err := n.tmpl.Render(cur)
	if err != nil {
		return false, fmt.Errorf("render status email: %w", err)
	}

	if err := n.mailer.Send(ctx, mailer.Message{To: to, Subject: subject, HTML: html}); err != nil {
		return false, err
	}
	return true, nil
}

// Dispatch はリクエストとは別のcontextで送信する（呼び出し側を待たせない）
func (n *Notifier) Dispatch(old, cur model.Order) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		sent, err := n.NotifyStatusChange(ctx, old, cur)
		if err != nil {
			n.log.Error("status email failed", "order_id", cur.ID, "status", cur.Status, "error", err)
			return
		}
		if sent {
			n.log.Info("status email sent", "order_id", cur.ID, "status", cur.Status)
		}
	}()
}

func shortOrderID(id string) string {
	if len(id) > 8 {
		return "#" + strings.ToUpper(id[:8])
	}
	return "#" + strings.ToUpper(id)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
