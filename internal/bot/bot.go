// Package bot announces confirmed participants on Discord.
package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/google/logger"
	"github.com/susu3304/falta1/internal/model"
)

type Store interface {
	GetEvent(ctx context.Context, eventID int64) (*model.Event, error)
	ListParticipants(ctx context.Context, eventID int64) ([]model.Participant, error)
}

// Minimal session interface for sending channel messages.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Bot struct {
	session   *discordgo.Session
	sender    messageSender
	store     Store
	channelID string
}

func New(token, channelID string, store Store) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session:   session,
		sender:    session,
		store:     store,
		channelID: channelID,
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds

	return bot, nil
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	logger.Info("bot: discord announcer is running")
	return nil
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

// AnnounceParticipant posts a confirmation to the configured channel. It
// is safe to call on a nil Bot.
func (b *Bot) AnnounceParticipant(ctx context.Context, p model.Participant) {
	if b == nil {
		return
	}
	ev, err := b.store.GetEvent(ctx, p.EventID)
	if err != nil {
		logger.Errorf("bot: failed to load event %d: %v", p.EventID, err)
		return
	}
	participants, err := b.store.ListParticipants(ctx, p.EventID)
	if err != nil {
		logger.Errorf("bot: failed to load participants of event %d: %v", p.EventID, err)
		return
	}
	msg := confirmationMessage(*ev, p, len(participants))
	if err := b.sendWithRetry(ctx, b.channelID, msg); err != nil {
		logger.Errorf("bot: failed to send message to channel %s: %v", b.channelID, err)
	}
}
