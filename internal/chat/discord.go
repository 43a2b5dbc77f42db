package chat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// Discord JSON error codes the core branches on.
const (
	codeUnknownChannel       = 10003
	codeUnknownMember        = 10007
	codeUnknownMessage       = 10008
	codeMissingAccess        = 50001
	codeMissingPermissions   = 50013
	codeInvalidChannelType   = 50024
	codeInvalidFormBody      = 50035
	codeThreadArchived       = 50083
	codeThreadAlreadyCreated = 160004
	codeThreadLocked         = 160005
)

// Discord adapts a discordgo session to Client. Every call runs under the configured timeout.
type Discord struct {
	session *discordgo.Session
	timeout time.Duration
	logger  *zap.Logger
}

// NewDiscord wraps an opened or unopened session.
func NewDiscord(session *discordgo.Session, timeout time.Duration, logger *zap.Logger) *Discord {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Discord{session: session, timeout: timeout, logger: logger}
}

// Session returns the underlying session (for gateway handlers).
func (d *Discord) Session() *discordgo.Session { return d.session }

func (d *Discord) call(ctx context.Context) (context.Context, context.CancelFunc, discordgo.RequestOption) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	return ctx, cancel, discordgo.WithContext(ctx)
}

// SendMessage posts a message with embed and buttons to a channel.
func (d *Discord) SendMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	ctx, cancel, opt := d.call(ctx)
	defer cancel()
	m, err := d.session.ChannelMessageSendComplex(channelID, toSend(msg), opt)
	if err != nil {
		return "", classify(ctx, err)
	}
	return m.ID, nil
}

// EditMessage replaces content, embed and buttons of a message.
func (d *Discord) EditMessage(ctx context.Context, channelID, messageID string, msg Message) error {
	ctx, cancel, opt := d.call(ctx)
	defer cancel()
	send := toSend(msg)
	edit := &discordgo.MessageEdit{
		ID:              messageID,
		Channel:         channelID,
		Content:         &send.Content,
		Embeds:          &send.Embeds,
		Components:      &send.Components,
		AllowedMentions: send.AllowedMentions,
	}
	if _, err := d.session.ChannelMessageEditComplex(edit, opt); err != nil {
		return classify(ctx, err)
	}
	return nil
}

// DeleteMessage deletes a message; an already-deleted message is success.
func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	ctx, cancel, opt := d.call(ctx)
	defer cancel()
	err := d.session.ChannelMessageDelete(channelID, messageID, opt)
	return IgnoreGone(classify(ctx, err))
}

// CreateThread starts a thread anchored to a message.
func (d *Discord) CreateThread(ctx context.Context, channelID, messageID, name string, archiveMinutes int) (string, error) {
	ctx, cancel, opt := d.call(ctx)
	defer cancel()
	ch, err := d.session.MessageThreadStart(channelID, messageID, name, archiveMinutes, opt)
	if err != nil {
		return "", classify(ctx, err)
	}
	return ch.ID, nil
}

// MessageThread returns the thread started from messageID. Discord gives such a thread
// the same id as its anchor message.
func (d *Discord) MessageThread(ctx context.Context, channelID, messageID string) (string, error) {
	ctx, cancel, opt := d.call(ctx)
	defer cancel()
	ch, err := d.session.Channel(messageID, opt)
	if err != nil {
		return "", classify(ctx, err)
	}
	if !ch.IsThread() || ch.ParentID != channelID {
		return "", ErrNotFound
	}
	return ch.ID, nil
}

// PostToThread sends a message into a thread.
func (d *Discord) PostToThread(ctx context.Context, threadID string, msg Message) (string, error) {
	return d.SendMessage(ctx, threadID, msg)
}

// DeleteThread deletes a thread; an already-deleted thread is success.
func (d *Discord) DeleteThread(ctx context.Context, threadID string) error {
	ctx, cancel, opt := d.call(ctx)
	defer cancel()
	_, err := d.session.ChannelDelete(threadID, opt)
	return IgnoreGone(classify(ctx, err))
}

// Channel fetches a channel or thread.
func (d *Discord) Channel(ctx context.Context, channelID string) (*Channel, error) {
	ctx, cancel, opt := d.call(ctx)
	defer cancel()
	ch, err := d.session.Channel(channelID, opt)
	if err != nil {
		return nil, classify(ctx, err)
	}
	out := &Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name, IsThread: ch.IsThread()}
	if ch.ThreadMetadata != nil {
		out.Archived = ch.ThreadMetadata.Archived
	}
	return out, nil
}

// Member fetches a guild member.
func (d *Discord) Member(ctx context.Context, guildID, userID string) (*Member, error) {
	ctx, cancel, opt := d.call(ctx)
	defer cancel()
	m, err := d.session.GuildMember(guildID, userID, opt)
	if err != nil {
		return nil, classify(ctx, err)
	}
	return toMember(m), nil
}

func toMember(m *discordgo.Member) *Member {
	out := &Member{RoleIDs: m.Roles, DisplayName: m.Nick}
	if m.User != nil {
		out.UserID = m.User.ID
		out.Username = m.User.Username
		if out.DisplayName == "" {
			out.DisplayName = m.User.GlobalName
		}
		if out.DisplayName == "" {
			out.DisplayName = m.User.Username
		}
	}
	return out
}

func toSend(msg Message) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content: msg.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: msg.Mentions,
		},
	}
	if msg.Title != "" || msg.Description != "" || len(msg.Fields) > 0 {
		embed := &discordgo.MessageEmbed{
			Title:       msg.Title,
			Description: msg.Description,
			Color:       msg.Color,
		}
		for _, f := range msg.Fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		if msg.Footer != "" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
		}
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}
	if len(msg.Buttons) > 0 {
		row := discordgo.ActionsRow{}
		for _, b := range msg.Buttons {
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				CustomID: b.CustomID,
				Style:    buttonStyle(b.Style),
			})
		}
		send.Components = []discordgo.MessageComponent{row}
	}
	return send
}

func buttonStyle(s ButtonStyle) discordgo.ButtonStyle {
	switch s {
	case ButtonSuccess:
		return discordgo.SuccessButton
	case ButtonDanger:
		return discordgo.DangerButton
	case ButtonSecondary:
		return discordgo.SecondaryButton
	default:
		return discordgo.PrimaryButton
	}
}

// classify maps discordgo failures onto the package sentinels.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &Error{Kind: ErrTransient, Message: ctx.Err().Error()}
	}
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return &Error{Kind: ErrTransient, Status: http.StatusTooManyRequests, Message: err.Error()}
	}
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return &Error{Kind: ErrTransient, Message: err.Error()}
	}
	out := &Error{Kind: ErrTransient, Message: err.Error()}
	if rest.Response != nil {
		out.Status = rest.Response.StatusCode
	}
	if rest.Message != nil {
		out.Code = rest.Message.Code
		out.Message = rest.Message.Message
	}
	switch out.Code {
	case codeUnknownChannel, codeUnknownMember, codeUnknownMessage:
		out.Kind = ErrNotFound
	case codeMissingAccess, codeMissingPermissions:
		out.Kind = ErrPermission
	case codeInvalidChannelType:
		out.Kind = ErrUnsupported
	case codeInvalidFormBody:
		out.Kind = ErrInvalid
	case codeThreadArchived, codeThreadLocked:
		out.Kind = ErrArchived
	case codeThreadAlreadyCreated:
		out.Kind = ErrThreadExists
	default:
		switch {
		case out.Status == http.StatusNotFound:
			out.Kind = ErrNotFound
		case out.Status == http.StatusForbidden:
			out.Kind = ErrPermission
		case out.Status == http.StatusTooManyRequests || out.Status >= 500:
			out.Kind = ErrTransient
		case out.Status >= 400:
			out.Kind = ErrInvalid
		}
	}
	return out
}
