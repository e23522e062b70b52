package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gopkg.in/gomail.v2"

	"teamflow/internal/models"
)

// Notifier tells people that a task was assigned to someone.
type Notifier interface {
	TaskAssigned(ctx context.Context, task *models.Task, assignee *models.User) error
}

type NopNotifier struct{}

func (NopNotifier) TaskAssigned(context.Context, *models.Task, *models.User) error { return nil }

// MultiNotifier fans out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) TaskAssigned(ctx context.Context, task *models.Task, assignee *models.User) error {
	var errs []error
	for _, n := range m {
		if err := n.TaskAssigned(ctx, task, assignee); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmailNotifier mails the assignee.
type EmailNotifier struct {
	from string
	send func(...*gomail.Message) error
}

func NewEmailNotifier(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) *EmailNotifier {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &EmailNotifier{from: fromEmail, send: dialer.DialAndSend}
}

func (n *EmailNotifier) TaskAssigned(ctx context.Context, task *models.Task, assignee *models.User) error {
	if assignee == nil || assignee.Email == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", assignee.Email)
	m.SetHeader("Subject", "TeamFlow: "+task.Title)
	m.SetBody("text/html", fmt.Sprintf(`
		<h3>%s</h3>
		%s
		<p>This task has been assigned to you.</p>
	`, html.EscapeString(assignee.Name), formatTaskHTML(task)))

	if err := n.send(m); err != nil {
		return fmt.Errorf("failed to send assignment email: %w", err)
	}
	return nil
}

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts assignments to a team chat.
type TelegramNotifier struct {
	bot    telegramSender
	chatID int64
}

func NewTelegramNotifier(botToken string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (n *TelegramNotifier) TaskAssigned(ctx context.Context, task *models.Task, assignee *models.User) error {
	if n.chatID == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	who := "—"
	if assignee != nil {
		who = html.EscapeString(assignee.Name)
	}
	msg := tgbotapi.NewMessage(n.chatID, "📌 "+who+"\n"+formatTaskHTML(task))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return nil
}

func formatTaskHTML(t *models.Task) string {
	due := "—"
	if t.DueDate != nil {
		due = t.DueDate.Format("2006-01-02")
	}
	project := t.ProjectID
	if t.Project != nil {
		project = t.Project.Name
	}
	var b strings.Builder
	b.WriteString("• <b>" + html.EscapeString(t.Title) + "</b>\n")
	b.WriteString("• Project: <code>" + html.EscapeString(project) + "</code>\n")
	b.WriteString("• Status: <code>" + string(t.Status) + "</code>\n")
	b.WriteString("• Priority: <code>" + string(t.Priority) + "</code>\n")
	b.WriteString("• Due: <code>" + due + "</code>")
	return b.String()
}
