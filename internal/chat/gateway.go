package chat

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// AttendPrefix prefixes the custom id of every attendance button, e.g. "attend:accepted".
const AttendPrefix = "attend:"

// Press is one attendance button press received from the gateway.
type Press struct {
	GuildID     string    `json:"guild_id"`
	ChannelID   string    `json:"channel_id"`
	MessageID   string    `json:"message_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Response    string    `json:"response"`
	PressedAt   time.Time `json:"pressed_at"`
}

// PressSink receives presses after the interaction has been acknowledged.
type PressSink func(ctx context.Context, p Press) error

// AttendButtons returns the accept / tentative / decline button row.
func AttendButtons() []Button {
	return []Button{
		{Label: "Accept", CustomID: AttendPrefix + "accepted", Style: ButtonSuccess},
		{Label: "Tentative", CustomID: AttendPrefix + "tentative", Style: ButtonSecondary},
		{Label: "Decline", CustomID: AttendPrefix + "declined", Style: ButtonDanger},
	}
}

// RegisterAttendanceHandler wires component interactions carrying AttendPrefix to sink.
// It returns the discordgo handler remover.
func RegisterAttendanceHandler(s *discordgo.Session, sink PressSink, timeout time.Duration, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	return s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		press, ok := pressFromInteraction(i)
		if !ok {
			return
		}
		// Deferred update: the message is re-rendered after the response is stored.
		if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		}); err != nil {
			logger.Warn("interaction ack failed", zap.String("message_id", press.MessageID), zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := sink(ctx, press); err != nil {
			logger.Error("attendance press dropped", zap.String("message_id", press.MessageID), zap.String("user_id", press.UserID), zap.Error(err))
		}
	})
}

func pressFromInteraction(i *discordgo.InteractionCreate) (Press, bool) {
	if i.Type != discordgo.InteractionMessageComponent || i.Message == nil {
		return Press{}, false
	}
	data := i.MessageComponentData()
	if !strings.HasPrefix(data.CustomID, AttendPrefix) {
		return Press{}, false
	}
	p := Press{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		MessageID: i.Message.ID,
		Response:  strings.TrimPrefix(data.CustomID, AttendPrefix),
		PressedAt: time.Now().UTC(),
	}
	var user *discordgo.User
	if i.Member != nil {
		m := toMember(i.Member)
		p.DisplayName = m.DisplayName
		user = i.Member.User
	} else {
		user = i.User
	}
	if user == nil {
		return Press{}, false
	}
	p.UserID = user.ID
	if p.DisplayName == "" {
		p.DisplayName = user.Username
	}
	return p, true
}
