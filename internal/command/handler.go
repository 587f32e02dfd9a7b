package command

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
)

const maxMessageLen = 1500

// respondDeferred sends a "thinking..." response that gives us up to 15
// minutes to reply — match operations can spend two minutes per power wait.
func respondDeferred(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: flags},
	}); err != nil {
		log.Printf("Error deferring response: %v", err)
	}
}

// followUp edits the deferred response with a text message. It may be
// called more than once to update progress.
func followUp(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		log.Printf("Error editing response: %v", err)
	}
}

// followUpEmbed edits the deferred response with a rich embed.
func followUpEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embeds []*discordgo.MessageEmbed) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &embeds,
	}); err != nil {
		log.Printf("Error editing response with embed: %v", err)
	}
}

// followUpError edits the deferred response with an error message.
func followUpError(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	followUp(s, i, fmt.Sprintf("**Error:** %s", msg))
}

// announce posts a public follow-up message in the invoking channel. The
// deferred reply stays ephemeral; this is the public half.
func announce(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	}); err != nil {
		log.Printf("Error sending announcement: %v", err)
	}
}

// truncate shortens a string to maxLen, appending "... (truncated)" if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "\n... (truncated)"
}

// callerID returns the invoking user's ID. Commands are guild-only, so
// the member is always present.
func callerID(i *discordgo.InteractionCreate) string {
	return i.Member.User.ID
}

// callerIsAdmin reports whether the invoking member has the Administrator
// permission in the guild.
func callerIsAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member.Permissions&discordgo.PermissionAdministrator != 0
}
