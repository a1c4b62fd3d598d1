package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/commands"
	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/watch"
)

const commandTimeout = 30 * time.Second

var adminPermission = int64(discordgo.PermissionAdministrator)

// getCommandDefinitions returns the slash command set. Admin commands
// carry the administrator default member permission; Discord enforces
// the gate before the interaction reaches us.
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "bindchannel",
			Description:              "Send new-run notifications to this channel",
			DefaultMemberPermissions: &adminPermission,
		},
		{
			Name:                     "setrole",
			Description:              "Set the role pinged on new runs (omit to clear)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "Role to mention on new-run notifications",
					Required:    false,
				},
			},
		},
		{
			Name:                     "setgames",
			Description:              "Replace the list of monitored games",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "games",
					Description: "Comma-separated game names (e.g. Destiny 2, Halo 3)",
					Required:    true,
				},
			},
		},
		{
			Name:                     "setinterval",
			Description:              "Set the polling interval in seconds",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "seconds",
					Description: "Seconds between poll cycles (must be positive)",
					Required:    true,
				},
			},
		},
		{
			Name:                     "resetseen",
			Description:              "Clear the seen-run history",
			DefaultMemberPermissions: &adminPermission,
		},
		{
			Name:                     "resetconfig",
			Description:              "Restore default configuration",
			DefaultMemberPermissions: &adminPermission,
		},
		{
			Name:        "config",
			Description: "Show the current configuration",
		},
		{
			Name:        "recent",
			Description: "List the most recently announced runs",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "How many runs to list (default 5)",
					Required:    false,
				},
			},
		},
		{
			Name:        "pollnow",
			Description: "Run one poll cycle now and report a summary",
		},
		{
			Name:        "debuggames",
			Description: "Show per-game match diagnostics",
		},
	}
}

// registerCommands registers all slash commands with Discord.
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	definitions := b.getCommandDefinitions()
	registered := make([]*discordgo.ApplicationCommand, 0, len(definitions))

	for _, cmd := range definitions {
		created, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", cmd)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registered = append(registered, created)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.registered = registered
	slog.Info("Slash commands registered", "count", len(registered))
	return nil
}

// removeCommands deletes the registered slash commands. Invoked on
// shutdown only when CLEANUP_COMMANDS is set.
func (b *Bot) removeCommands() {
	for _, cmd := range b.registered {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, "", cmd.ID); err != nil {
			slog.Error("Failed to remove command", "name", cmd.Name, "error", err)
		}
	}
}

// handleBindChannel handles /bindchannel: notifications go to the
// channel the command was issued in.
func (b *Bot) handleBindChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	settings, err := b.service.BindChannel(i.ChannelID)
	if err != nil {
		respondWithMessage(s, i, userError(err))
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("Notifications will now be sent to <#%s>.", settings.ChannelID))
}

// handleSetRole handles /setrole.
func (b *Bot) handleSetRole(s *discordgo.Session, i *discordgo.InteractionCreate) {
	roleID := ""
	if opts := i.ApplicationCommandData().Options; len(opts) > 0 {
		roleID = opts[0].RoleValue(nil, "").ID
	}

	if _, err := b.service.SetRole(roleID); err != nil {
		respondWithMessage(s, i, userError(err))
		return
	}

	if roleID == "" {
		respondWithMessage(s, i, "Role ping cleared.")
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("Role <@&%s> will now be pinged for new runs.", roleID))
}

// handleSetGames handles /setgames with a comma-separated list.
func (b *Bot) handleSetGames(s *discordgo.Session, i *discordgo.InteractionCreate) {
	raw := i.ApplicationCommandData().Options[0].StringValue()
	names := strings.Split(raw, ",")

	settings, err := b.service.SetGames(names)
	if err != nil {
		respondWithMessage(s, i, userError(err))
		return
	}

	if len(settings.Games) == 0 {
		respondWithMessage(s, i, "Monitoring list cleared; no games are being watched.")
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("Monitoring games: %s", strings.Join(settings.Games, ", ")))
}

// handleSetInterval handles /setinterval.
func (b *Bot) handleSetInterval(s *discordgo.Session, i *discordgo.InteractionCreate) {
	seconds := int(i.ApplicationCommandData().Options[0].IntValue())

	settings, err := b.service.SetInterval(seconds)
	if err != nil {
		respondWithMessage(s, i, userError(err))
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("Monitoring interval set to %d seconds (takes effect next tick).", settings.IntervalSeconds))
}

// handleResetSeen handles /resetseen.
func (b *Bot) handleResetSeen(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := b.service.ResetSeen(); err != nil {
		respondWithMessage(s, i, userError(err))
		return
	}
	respondWithMessage(s, i, "Seen runs history cleared.")
}

// handleResetConfig handles /resetconfig.
func (b *Bot) handleResetConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	settings, err := b.service.ResetConfig()
	if err != nil {
		respondWithMessage(s, i, userError(err))
		return
	}
	respondWithMessage(s, i, fmt.Sprintf(
		"Configuration reset to defaults: games %s, interval %d seconds.",
		strings.Join(settings.Games, ", "), settings.IntervalSeconds,
	))
}

// handleShowConfig handles /config.
func (b *Bot) handleShowConfig(s *discordgo.Session, i *discordgo.InteractionCreate) {
	view, err := b.service.ShowConfig()
	if err != nil {
		respondWithMessage(s, i, userError(err))
		return
	}
	respondWithEmbed(s, i, configEmbed(view))
}

// handleListRecent handles /recent.
func (b *Bot) handleListRecent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	count := 0
	if opts := i.ApplicationCommandData().Options; len(opts) > 0 {
		count = int(opts[0].IntValue())
	}

	runs, err := b.service.ListRecent(count)
	if err != nil {
		respondWithMessage(s, i, userError(err))
		return
	}

	if len(runs) == 0 {
		respondWithMessage(s, i, "No runs have been announced yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Last announced runs:**\n")
	for _, run := range runs {
		fmt.Fprintf(&sb, "- %s — %s (%s): %s\n", run.Player, run.Game, run.Category, run.Weblink)
	}
	respondWithMessage(s, i, sb.String())
}

// handlePollNow handles /pollnow; the cycle is network-bound so the
// interaction is deferred first.
func (b *Bot) handlePollNow(s *discordgo.Session, i *discordgo.InteractionCreate) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	summary, err := b.service.PollNow(ctx)
	if errors.Is(err, watch.ErrBusy) {
		editResponse(s, i, "A poll cycle is already running; try again shortly.")
		return
	}
	if err != nil {
		editResponse(s, i, userError(err))
		return
	}
	editResponse(s, i, formatSummary(summary))
}

// handleDebugGames handles /debuggames.
func (b *Bot) handleDebugGames(s *discordgo.Session, i *discordgo.InteractionCreate) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	diags, err := b.service.DebugGames(ctx)
	if err != nil {
		editResponse(s, i, userError(err))
		return
	}

	if len(diags) == 0 {
		editResponse(s, i, "No games are configured.")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Game diagnostics:**\n")
	for _, d := range diags {
		switch {
		case d.Err != "":
			fmt.Fprintf(&sb, "- `%s`: error: %s\n", d.Query, d.Err)
		case d.SkipReason != "":
			fmt.Fprintf(&sb, "- `%s` → %s: skipped (%s)\n", d.Query, d.Resolved, d.SkipReason)
		default:
			fmt.Fprintf(&sb, "- `%s` → %s (`%s`): %d pending, %d unannounced", d.Query, d.Resolved, d.GameID, d.Pending, d.Unseen)
			if d.BackoffLeft > 0 {
				fmt.Fprintf(&sb, ", backoff %d cycles left", d.BackoffLeft)
			}
			sb.WriteString("\n")
		}
	}
	editResponse(s, i, sb.String())
}

// configEmbed renders the current configuration and stats.
func configEmbed(view *commands.ConfigView) *discordgo.MessageEmbed {
	channel := "not bound"
	if view.Settings.ChannelID != "" {
		channel = fmt.Sprintf("<#%s>", view.Settings.ChannelID)
	}
	role := "none"
	if view.Settings.RoleID != "" {
		role = fmt.Sprintf("<@&%s>", view.Settings.RoleID)
	}
	games := "none"
	if len(view.Settings.Games) > 0 {
		games = strings.Join(view.Settings.Games, ", ")
	}

	return &discordgo.MessageEmbed{
		Title: "Speedrun Monitor Configuration",
		Color: 0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Games", Value: games, Inline: false},
			{Name: "Interval", Value: fmt.Sprintf("%d seconds", view.Settings.IntervalSeconds), Inline: true},
			{Name: "Channel", Value: channel, Inline: true},
			{Name: "Ping role", Value: role, Inline: true},
			{Name: "Seen runs", Value: fmt.Sprintf("%d", view.SeenCount), Inline: true},
		},
	}
}

// formatSummary renders a cycle summary for the pollnow reply.
func formatSummary(summary *watch.CycleSummary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Poll cycle finished in %s**\n", summary.Duration.Round(time.Millisecond))
	if summary.Note != "" {
		fmt.Fprintf(&sb, "Note: %s\n", summary.Note)
	}
	for _, g := range summary.Games {
		switch {
		case g.Skipped != "":
			fmt.Fprintf(&sb, "- %s: skipped (%s)\n", g.Game, g.Skipped)
		case g.Err != "":
			fmt.Fprintf(&sb, "- %s: %d new runs, error: %s\n", g.Game, g.NewRuns, g.Err)
		default:
			fmt.Fprintf(&sb, "- %s: %d new runs\n", g.Game, g.NewRuns)
		}
	}
	fmt.Fprintf(&sb, "Total: %d new runs, %d errors across %d games.", summary.NewRuns, summary.Errors, len(summary.Games))
	return sb.String()
}

// userError turns service errors into a user-facing message.
func userError(err error) string {
	return fmt.Sprintf("Command failed: %s", err.Error())
}

// respondWithMessage sends an immediate interaction reply.
func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}

// respondWithEmbed sends an immediate embed reply.
func respondWithEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}

// editResponse edits a deferred interaction response.
func editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	if err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}
