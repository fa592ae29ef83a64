// Package render builds the text of bot messages. Nothing here does I/O.
package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	"updatebot/internal/domain"
)

const (
	ControlPrefix = "p_"
	UpdateLabel   = "Обновить"

	AnswerRequestSent   = "Запрос на обновление отправлен"
	AnswerRequestFailed = "Произошла ошибка при запросе обновления. Пожалуйста, попробуйте позже."
	AnswerNoLongerValid = "Это обновление больше не актуально."
)

var moscow = time.FixedZone("MSK", 3*60*60)

var statusText = map[domain.Status]string{
	domain.StatusPending:    "⏳ Ожидание",
	domain.StatusProcessing: "🔄 Обработка",
	domain.StatusCompleted:  "✅ Завершено",
	domain.StatusFailed:     "❌ Ошибка",
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

// EscapeMarkdown escapes the characters legacy Telegram Markdown treats as markup.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func FormatMoscow(t time.Time) string {
	return t.In(moscow).Format("02.01.2006, 15:04:05")
}

// PatchNote is the initial Markdown text of an update-available notification.
// Names stay outside bold entities: legacy Markdown does not unescape inside them.
func PatchNote(app, game domain.Ref) string {
	g, a := EscapeMarkdown(game.Name), EscapeMarkdown(app.Name)
	return fmt.Sprintf("🎮 *Обновление для игры:* %s\n📱 *Приложение:* %s\n\n"+
		"Доступно обновление для игры %s в приложении %s.\n\n"+
		"Нажмите кнопку \"%s\" ниже, чтобы запустить процесс обновления на вашем устройстве.",
		g, a, g, a, UpdateLabel)
}

// Subscription is the HTML confirmation for a subscribe or unsubscribe.
func Subscription(ev domain.SubscriptionEvent, subscribed bool) string {
	title, action, tail := "Уведомление:", "отписались от",
		"Вы больше не будете получать уведомления о новых обновлениях для этой игры в данном приложении."
	if subscribed {
		title, action, tail = "Поздравляем!", "подписались на",
			"Вы будете получать уведомления о новых обновлениях для этой игры в данном приложении."
	}
	return fmt.Sprintf("<b>%s Вы успешно %s обновления.</b>\n\n🎮 <b>Игра:</b> %s\n📱 <b>Приложение:</b> %s\n\n%s",
		title, action, html.EscapeString(ev.Game.Name), html.EscapeString(ev.App.Name), tail)
}

// StatusLine is the fragment appended to a notification when its status changes.
func StatusLine(status domain.Status, detail string, at time.Time) string {
	text, ok := statusText[status]
	if !ok {
		text = string(status)
	}
	var b strings.Builder
	b.WriteString("*🔎 Статус обновления:* ")
	b.WriteString(text)
	if detail = strings.TrimSpace(detail); detail != "" {
		b.WriteString("\n💬 *Сообщение:* ")
		b.WriteString(EscapeMarkdown(detail))
	}
	b.WriteString("\n🕒 *Дата (МСК +3):* ")
	b.WriteString(FormatMoscow(at))
	return b.String()
}

func RequestSent(at time.Time) string {
	return "_Запрос на обновление отправлен " + FormatMoscow(at) + " (МСК +3)_"
}

func RequestFailed() string {
	return "_Ошибка: Не удалось запросить обновление. Пожалуйста, попробуйте позже._"
}

// ControlToken encodes an update id as callback data. It never truncates:
// an id that does not fit is an error.
func ControlToken(updateID string) (string, error) {
	token := ControlPrefix + updateID
	if len(token) > domain.ControlTokenMaxBytes {
		return "", domain.ErrControlTooLong
	}
	return token, nil
}

func ParseControlToken(token string) (string, bool) {
	if len(token) > domain.ControlTokenMaxBytes {
		return "", false
	}
	id, ok := strings.CutPrefix(token, ControlPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// UpdateControl is the single button attached to a pending notification.
func UpdateControl(updateID string) (*domain.Control, error) {
	token, err := ControlToken(updateID)
	if err != nil {
		return nil, err
	}
	return &domain.Control{Label: UpdateLabel, Token: token}, nil
}
