package core

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/small-frappuccino/modcore/pkg/theme"
)

// ResponseType selects the prefix and color of a standard response.
type ResponseType int

const (
	ResponseSuccess ResponseType = iota
	ResponseError
	ResponseWarning
	ResponseInfo
	ResponseLoading
)

// Responder sends interaction responses.
type Responder struct {
	session *discordgo.Session
}

// NewResponder creates a new responder.
func NewResponder(session *discordgo.Session) *Responder {
	return &Responder{session: session}
}

// Error sends an ephemeral error response.
func (r *Responder) Error(i *discordgo.InteractionCreate, message string) error {
	return r.text(i, formatTextMessage(message, ResponseError), true)
}

// Public sends a visible error response.
func (r *Responder) Public(i *discordgo.InteractionCreate, message string) error {
	return r.text(i, formatTextMessage(message, ResponseError), false)
}

// Ephemeral sends a plain ephemeral response.
func (r *Responder) Ephemeral(i *discordgo.InteractionCreate, message string) error {
	return r.text(i, formatTextMessage(message, ResponseInfo), true)
}

func (r *Responder) text(i *discordgo.InteractionCreate, content string, ephemeral bool) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	return r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			Flags:           flags,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
}

// DeferResponse acknowledges the interaction for long running work.
func (r *Responder) DeferResponse(i *discordgo.InteractionCreate, ephemeral bool) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	return r.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	})
}

// EditResponseWithEmbed replaces the deferred response with embed.
func (r *Responder) EditResponseWithEmbed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) error {
	embeds := []*discordgo.MessageEmbed{embed}
	_, err := r.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &embeds,
	})
	return err
}

// EditResponse replaces the deferred response with text.
func (r *Responder) EditResponse(i *discordgo.InteractionCreate, content string) error {
	_, err := r.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	})
	return err
}

// DeleteResponse removes the original (or deferred) response.
func (r *Responder) DeleteResponse(i *discordgo.InteractionCreate) error {
	return r.session.InteractionResponseDelete(i.Interaction)
}

// FollowUp sends a follow-up message after a deferred response.
func (r *Responder) FollowUp(i *discordgo.InteractionCreate, content string, ephemeral bool) error {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_, err := r.session.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content:         content,
		Flags:           flags,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	return err
}

// ConfirmationEmbed builds the success embed shown to the invoking moderator.
func ConfirmationEmbed(title, description, footer string) *discordgo.MessageEmbed {
	embed := createEmbed(description, ResponseSuccess)
	if title != "" {
		embed.Title = title
	}
	if footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	embed.Timestamp = time.Now().Format(time.RFC3339)
	return embed
}

// ErrorMessage prefixes message the way Error does.
func ErrorMessage(message string) string {
	return formatTextMessage(message, ResponseError)
}

func formatTextMessage(message string, responseType ResponseType) string {
	switch responseType {
	case ResponseSuccess:
		return "✅ " + message
	case ResponseError:
		return "❌ " + message
	case ResponseWarning:
		return "⚠️ " + message
	case ResponseInfo:
		return "ℹ️ " + message
	case ResponseLoading:
		return "⏳ " + message
	default:
		return message
	}
}

func createEmbed(message string, responseType ResponseType) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       titleForType(responseType),
		Description: message,
		Color:       colorForType(responseType),
	}
}

func colorForType(responseType ResponseType) int {
	switch responseType {
	case ResponseSuccess:
		return theme.Success()
	case ResponseError:
		return theme.Error()
	case ResponseWarning:
		return theme.Warning()
	case ResponseInfo:
		return theme.Info()
	case ResponseLoading:
		return theme.Loading()
	default:
		return theme.Muted()
	}
}

func titleForType(responseType ResponseType) string {
	switch responseType {
	case ResponseSuccess:
		return "Success"
	case ResponseError:
		return "Error"
	case ResponseWarning:
		return "Warning"
	case ResponseInfo:
		return "Information"
	case ResponseLoading:
		return "Loading..."
	default:
		return ""
	}
}
