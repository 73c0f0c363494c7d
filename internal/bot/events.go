package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/google/logger"
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	logger.Infof("bot: %s is connected", event.User.Username)

	// Register commands for all guilds
	for _, guild := range event.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			logger.Errorf("bot: failed to register commands for guild %s: %v", guild.ID, err)
		}
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	if err := b.registerGuildCommands(event.ID); err != nil {
		logger.Errorf("bot: failed to register commands for guild %s: %v", event.ID, err)
	}
}

func (b *Bot) registerGuildCommands(guildID string) error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:         "participantes",
			Description:  "Lista quem já confirmou presença no evento",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "evento",
					Description: "ID do evento",
					Required:    true,
				},
			},
		},
	}

	// Delete existing commands and register new ones
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, commands)
	if err != nil {
		return err
	}

	logger.Infof("bot: registered application commands for guild %s", guildID)
	return nil
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "participantes" {
		return
	}

	var eventID int64
	for _, opt := range data.Options {
		if opt.Name == "evento" {
			eventID = opt.IntValue()
		}
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: b.participantsContent(context.Background(), eventID),
		},
	})
	if err != nil {
		logger.Errorf("bot: failed to respond to interaction: %v", err)
	}
}

func (b *Bot) participantsContent(ctx context.Context, eventID int64) string {
	ev, err := b.store.GetEvent(ctx, eventID)
	if err != nil {
		return "Evento não encontrado."
	}
	participants, err := b.store.ListParticipants(ctx, eventID)
	if err != nil {
		logger.Errorf("bot: failed to list participants of event %d: %v", eventID, err)
		return "Não foi possível carregar os participantes."
	}
	return participantsMessage(*ev, participants)
}

func boolPtr(b bool) *bool {
	return &b
}
