package bot

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/falta1/internal/model"
)

const maxMessageLen = 2000

func confirmationMessage(ev model.Event, p model.Participant, confirmed int) string {
	msg := fmt.Sprintf("✅ **%s** confirmou presença em **%s** (%d/%d)", p.DisplayName, ev.Description, confirmed, ev.PeopleCount)
	switch missing := ev.Missing(confirmed); {
	case missing > 0:
		msg += fmt.Sprintf(" · falta%s %d", plural(missing, "m"), missing)
	case missing == 0:
		msg += " · lista completa!"
	}
	return msg
}

func participantsMessage(ev model.Event, participants []model.Participant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** · %s por pessoa · %d/%d confirmados\n", ev.Description, ev.PerPersonShare(), len(participants), ev.PeopleCount)
	if len(participants) == 0 {
		b.WriteString("Ninguém confirmou ainda.")
		return b.String()
	}
	for i, p := range participants {
		line := fmt.Sprintf("%d. %s\n", i+1, p.DisplayName)
		if b.Len()+len(line) > maxMessageLen-4 {
			b.WriteString("…")
			break
		}
		b.WriteString(line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func plural(n int, suffix string) string {
	if n == 1 {
		return ""
	}
	return suffix
}

func (b *Bot) sendWithRetry(ctx context.Context, channelID, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := b.sender.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		time.Sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout()
	}
	return false
}
