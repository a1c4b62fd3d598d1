package notify

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/aCatWithSchizophrenia/SRCNotifications/internal/srcom"
)

const embedColorRed = 0xED4245

// DeliveryError indicates a notification could not be delivered: rate
// limits, revoked permissions, or a deleted channel. One failed
// announcement must not block the rest of the batch.
type DeliveryError struct {
	ChannelID string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to deliver to channel %s: %v", e.ChannelID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Announcer posts new-run notifications to Discord.
type Announcer struct {
	session *discordgo.Session
}

// New creates an Announcer on an open Discord session.
func New(session *discordgo.Session) *Announcer {
	return &Announcer{session: session}
}

// Announce formats a run into an embed and sends it to the channel,
// mentioning the role if one is configured.
func (a *Announcer) Announce(run srcom.Run, gameName, channelID, roleID string) error {
	msg := &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{buildRunEmbed(run, gameName)},
	}
	if roleID != "" {
		msg.Content = fmt.Sprintf("<@&%s>", roleID)
	}

	if _, err := a.session.ChannelMessageSendComplex(channelID, msg); err != nil {
		return &DeliveryError{ChannelID: channelID, Err: err}
	}
	return nil
}

// buildRunEmbed creates the notification embed for a newly submitted run.
func buildRunEmbed(run srcom.Run, gameName string) *discordgo.MessageEmbed {
	category := run.Category
	if run.Level != "" {
		category = fmt.Sprintf("%s - %s", run.Category, run.Level)
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Runner", Value: orUnknown(run.Player), Inline: true},
		{Name: "Category", Value: orUnknown(category), Inline: false},
		{Name: "Time", Value: FormatRunTime(run.TimeSeconds), Inline: true},
		{Name: "Platform", Value: orUnknown(run.Platform), Inline: true},
		{Name: "Submitted", Value: formatSubmitted(run.Submitted), Inline: true},
		{Name: "Link", Value: fmt.Sprintf("[View Run](%s)", run.Weblink), Inline: false},
	}
	if run.VideoURI != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Video", Value: fmt.Sprintf("[Watch Here](%s)", run.VideoURI), Inline: false,
		})
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("New %s Speedrun Needs Verification!", gameName),
		URL:         run.Weblink,
		Description: fmt.Sprintf("A new run for **%s** was submitted and is awaiting verification.", gameName),
		Color:       embedColorRed,
		Fields:      fields,
	}
	if run.PlayerAvatar != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: run.PlayerAvatar}
	}
	return embed
}

// FormatRunTime renders a primary time in seconds as h/m/s.
func FormatRunTime(seconds float64) string {
	if seconds <= 0 {
		return "Unknown"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Millisecond)

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)

	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %.3fs", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %.3fs", m, s)
	default:
		return fmt.Sprintf("%.3fs", s)
	}
}

func formatSubmitted(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.Format("2006-01-02 15:04 MST")
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
