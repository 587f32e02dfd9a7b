package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// handleStatus shows the recorded lifecycle state next to the live panel
// power state. Showing both makes an "idle record, running server" leftover
// from a failed start visible at a glance.
func (h *MatchHandler) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	respondDeferred(s, i, false)

	st := h.engine.Snapshot()

	embed := &discordgo.MessageEmbed{
		Title:     "Match Status",
		Color:     0x00bfff,
		Timestamp: time.Now().Format(time.RFC3339),
		Fields:    []*discordgo.MessageEmbedField{},
	}

	if st.Active {
		embed.Color = 0x00ff00
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Match", Value: "Active", Inline: true},
			&discordgo.MessageEmbedField{Name: "Map", Value: fmt.Sprintf("`%s`", st.Map), Inline: true},
			&discordgo.MessageEmbedField{Name: "Started by", Value: fmt.Sprintf("<@%s>", st.StartedBy), Inline: true},
		)
		if st.StartedAt != nil {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "Started", Value: st.StartedAt.Format(time.RFC1123), Inline: true,
			})
		}
	} else {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Match", Value: "None", Inline: true,
		})
		if st.LastEnded != nil {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "Last ended", Value: st.LastEnded.Format(time.RFC1123), Inline: true,
			})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	power, err := h.panel.CurrentState(ctx)
	if err != nil {
		power = "unknown"
	}
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "Server power", Value: power, Inline: true,
	})
	if h.cfg.Match.ServerAddress != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Address", Value: fmt.Sprintf("`%s`", h.cfg.Match.ServerAddress), Inline: true,
		})
	}

	if h.cfg.Query.Address != "" {
		h.appendLiveInfo(ctx, embed)
	}

	followUpEmbed(s, i, []*discordgo.MessageEmbed{embed})
}

// appendLiveInfo adds A2S info to the status embed when a query address is
// configured. Query failures just mean no live section — the panel power
// state above is still authoritative.
func (h *MatchHandler) appendLiveInfo(ctx context.Context, embed *discordgo.MessageEmbed) {
	status, err := h.querier.QueryStatus(ctx, h.cfg.Query.Address)
	if err != nil || status == nil || !status.Online {
		return
	}

	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "In-game map", Value: fmt.Sprintf("`%s`", status.Map), Inline: true},
		&discordgo.MessageEmbedField{Name: "Players", Value: fmt.Sprintf("%d / %d", status.Players, status.MaxPlayers), Inline: true},
		&discordgo.MessageEmbedField{Name: "Latency", Value: fmt.Sprintf("%dms", status.Latency.Milliseconds()), Inline: true},
	)

	players, _ := h.querier.QueryPlayers(ctx, h.cfg.Query.Address)
	if len(players) > 0 {
		var lines []string
		for _, p := range players {
			dur := p.Duration.Truncate(time.Second)
			lines = append(lines, fmt.Sprintf("`%-20s` | Score: %d | %s", p.Name, p.Score, dur))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Connected Players",
			Value: truncate(strings.Join(lines, "\n"), 1024),
		})
	}
}

// handleConsole runs a raw console command on the server. Direct RCON is
// used when configured; otherwise the command goes through the panel,
// which gives no response text back.
func (h *MatchHandler) handleConsole(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	respondDeferred(s, i, true) // console output may be sensitive

	if !callerIsAdmin(i) {
		followUpError(s, i, "Only admins can run console commands")
		return
	}

	cmd := sub.Options[0].StringValue()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if h.cfg.RCON.Address != "" {
		response, err := h.rcon.Execute(ctx, h.cfg.RCON.Address, h.cfg.RCON.Password, cmd)
		if err != nil {
			followUpError(s, i, fmt.Sprintf("RCON failed: %s", err.Error()))
			return
		}
		msg := fmt.Sprintf("**Console** `%s`", cmd)
		if response != "" {
			msg += fmt.Sprintf("\n```\n%s\n```", truncate(response, maxMessageLen))
		} else {
			msg += "\n*No response*"
		}
		followUp(s, i, msg)
		return
	}

	if err := h.panel.SendCommand(ctx, cmd); err != nil {
		followUpError(s, i, fmt.Sprintf("Console command failed: %s", err.Error()))
		return
	}
	followUp(s, i, fmt.Sprintf("**Console** `%s` sent via panel (no response channel)", cmd))
}
