package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/commands"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/config"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/notify"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/srcom"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/storage"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/watch"
)

// Bot wires the Discord session to the repository, the poll scheduler
// and the command service.
type Bot struct {
	config     *config.Config
	session    *discordgo.Session
	repo       *storage.Repository
	scheduler  *watch.Scheduler
	service    *commands.Service
	registered []*discordgo.ApplicationCommand
}

// New creates a Bot instance and all of its collaborators.
func New(cfg *config.Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	client := srcom.NewClient()
	sink := notify.New(session)
	scheduler := watch.NewScheduler(repo, client, sink)
	service := commands.NewService(repo, scheduler)

	b := &Bot{
		config:    cfg,
		session:   session,
		repo:      repo,
		scheduler: scheduler,
		service:   service,
	}

	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts the scheduler.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	go b.scheduler.Start(ctx)

	b.announceOnline()

	return nil
}

// Stop gracefully shuts down the bot.
func (b *Bot) Stop() error {
	if b.scheduler != nil {
		b.scheduler.Stop()
	}

	if b.config.CleanupCommands {
		b.removeCommands()
	}

	if b.repo != nil {
		b.repo.Close()
	}

	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// announceOnline posts a startup notice to the bound channel, if any.
func (b *Bot) announceOnline() {
	settings, err := b.repo.LoadSettings()
	if err != nil || settings.ChannelID == "" {
		return
	}
	if _, err := b.session.ChannelMessageSend(settings.ChannelID, "Speedrun monitor bot is now online!"); err != nil {
		slog.Warn("Failed to send startup notice", "channel", settings.ChannelID, "error", err)
	}
}

// registerHandlers sets up Discord event handlers.
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction routes slash command interactions through the
// closed command enumeration.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	kind := commands.ParseKind(data.Name)
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch kind {
	case commands.KindBindChannel:
		b.handleBindChannel(s, i)
	case commands.KindSetRole:
		b.handleSetRole(s, i)
	case commands.KindSetGames:
		b.handleSetGames(s, i)
	case commands.KindSetInterval:
		b.handleSetInterval(s, i)
	case commands.KindResetSeen:
		b.handleResetSeen(s, i)
	case commands.KindResetConfig:
		b.handleResetConfig(s, i)
	case commands.KindShowConfig:
		b.handleShowConfig(s, i)
	case commands.KindListRecent:
		b.handleListRecent(s, i)
	case commands.KindPollNow:
		b.handlePollNow(s, i)
	case commands.KindDebugGames:
		b.handleDebugGames(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
		respondWithMessage(s, i, fmt.Sprintf("%s: `%s`", commands.ErrUnknownCommand, data.Name))
	}
}
