package slyfox

import "github.com/bwmarrin/discordgo"

const (
	embedColor      = 3447003
	embedAuthorName = "Reply from the Sly Fox 🦊"
	embedAuthorIcon = "https://i.imgur.com/emgIscZ.png"
	embedInviteLink = "https://discord.gg/slyfox"
)

// newReplyEmbed builds the bot's standard reply embed. Title and
// fields are optional.
func newReplyEmbed(
	description string,
	title string,
	fields ...*discordgo.MessageEmbedField,
) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Author: &discordgo.MessageEmbedAuthor{
			Name:    embedAuthorName,
			IconURL: embedAuthorIcon,
		},
		Title:       title,
		Description: description,
		Color:       embedColor,
		Fields:      fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Join us! 🌟 " + embedInviteLink,
		},
	}
}
