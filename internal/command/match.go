package command

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/memegaming/matchbot/internal/config"
	"github.com/memegaming/matchbot/internal/match"
	"github.com/memegaming/matchbot/internal/panel"
	"github.com/memegaming/matchbot/internal/query"
	"github.com/memegaming/matchbot/internal/rcon"
)

// playerNamePattern is the allow-list for player names. Names pass through
// to server console commands verbatim, so anything outside this set is
// rejected here, at the boundary — the engine assumes sanitized input.
var playerNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,16}$`)

// MatchHandler handles all /match subcommands.
type MatchHandler struct {
	cfg     *config.Config
	engine  *match.Engine
	panel   panel.Controller
	querier query.Querier
	rcon    rcon.Client
}

func NewMatchHandler(cfg *config.Config, engine *match.Engine, ctrl panel.Controller, querier query.Querier, rconClient rcon.Client) *MatchHandler {
	return &MatchHandler{
		cfg:     cfg,
		engine:  engine,
		panel:   ctrl,
		querier: querier,
		rcon:    rconClient,
	}
}

// Subcommands returns the full option tree for the /match command.
func (h *MatchHandler) Subcommands() []*discordgo.ApplicationCommandOption {
	mapChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(h.cfg.Match.Maps))
	for _, m := range h.cfg.Match.Maps {
		mapChoices = append(mapChoices, &discordgo.ApplicationCommandOptionChoice{
			Name:  m,
			Value: m,
		})
	}

	startOptions := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "map",
			Description: "Map to play",
			Required:    true,
			Choices:     mapChoices,
		},
	}
	for n := 1; n <= 6; n++ {
		startOptions = append(startOptions, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        fmt.Sprintf("player%d", n),
			Description: fmt.Sprintf("Player %d", n),
			Required:    n <= 2,
		})
	}

	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "start",
			Description: "Start a match with selected map and players",
			Options:     startOptions,
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "end",
			Description: "End the active match",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "whitelist",
			Description: "Add a player to the current match whitelist",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "player",
					Description: "Player name to whitelist",
					Required:    true,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "status",
			Description: "Show match and server status",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "console",
			Description: "Run a raw console command on the server (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "command",
					Description: "Console command to execute",
					Required:    true,
				},
			},
		},
	}
}

// Handle dispatches a /match subcommand.
func (h *MatchHandler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	switch sub.Name {
	case "start":
		h.handleStart(s, i, sub)
	case "end":
		h.handleEnd(s, i)
	case "whitelist":
		h.handleWhitelist(s, i, sub)
	case "status":
		h.handleStatus(s, i)
	case "console":
		h.handleConsole(s, i, sub)
	}
}

func (h *MatchHandler) handleStart(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	respondDeferred(s, i, true)

	var mapName string
	var players []string
	for _, opt := range sub.Options {
		if opt.Name == "map" {
			mapName = opt.StringValue()
			continue
		}
		if strings.HasPrefix(opt.Name, "player") && opt.StringValue() != "" {
			players = append(players, opt.StringValue())
		}
	}

	if !h.cfg.ValidMap(mapName) {
		followUpError(s, i, fmt.Sprintf("Unknown map. Available: %s", strings.Join(h.cfg.Match.Maps, ", ")))
		return
	}
	for _, p := range players {
		if !playerNamePattern.MatchString(p) {
			followUpError(s, i, fmt.Sprintf("Invalid player name: `%s` (letters, digits, and underscores only)", p))
			return
		}
	}

	followUp(s, i, fmt.Sprintf("Provisioning **%s** for players: `%s` — please wait 45-60 seconds",
		mapName, strings.Join(players, "`, `")))

	result, err := h.engine.Start(context.Background(), callerID(i), mapName, players)
	if err != nil {
		h.renderError(s, i, "start match", err)
		return
	}

	msg := fmt.Sprintf("Match is ready on **%s**. Only you (or an admin) can end it with `/match end`.", result.Map)
	if len(result.FailedWhitelist) > 0 {
		msg += fmt.Sprintf("\nWhitelisting failed for: `%s` — re-add them with `/match whitelist`.",
			strings.Join(result.FailedWhitelist, "`, `"))
	}
	followUp(s, i, msg)

	quoted := make([]string, len(result.Players))
	for n, p := range result.Players {
		quoted[n] = "`" + p + "`"
	}
	public := fmt.Sprintf("**Match is live** on **%s**!", result.Map)
	if h.cfg.Match.ServerAddress != "" {
		public += fmt.Sprintf("\nServer: `%s`", h.cfg.Match.ServerAddress)
	}
	public += fmt.Sprintf("\nPlayers: %s", strings.Join(quoted, ", "))
	announce(s, i, public)
}

func (h *MatchHandler) handleEnd(s *discordgo.Session, i *discordgo.InteractionCreate) {
	respondDeferred(s, i, true)
	followUp(s, i, "Ending match and shutting down server…")

	result, err := h.engine.End(context.Background(), callerID(i), callerIsAdmin(i))
	if err != nil {
		h.renderError(s, i, "end match", err)
		return
	}
	if result.AlreadyIdle {
		followUp(s, i, "No active match.")
		return
	}

	followUp(s, i, "Match ended. Server is now offline.")
	announce(s, i, fmt.Sprintf("Match on **%s** has ended. Server is now offline.", result.Map))
}

func (h *MatchHandler) handleWhitelist(s *discordgo.Session, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	respondDeferred(s, i, true)

	player := sub.Options[0].StringValue()
	if !playerNamePattern.MatchString(player) {
		followUpError(s, i, fmt.Sprintf("Invalid player name: `%s` (letters, digits, and underscores only)", player))
		return
	}

	if err := h.engine.Whitelist(context.Background(), callerID(i), callerIsAdmin(i), player); err != nil {
		h.renderError(s, i, "whitelist player", err)
		return
	}
	followUp(s, i, fmt.Sprintf("Added **%s** to the whitelist.", player))
}

// renderError maps engine errors to user replies. Rejections carry their
// own user-facing text; anything else is logged in full and reported
// generically.
func (h *MatchHandler) renderError(s *discordgo.Session, i *discordgo.InteractionCreate, op string, err error) {
	var rej *match.Rejection
	if errors.As(err, &rej) {
		followUp(s, i, rej.Message)
		return
	}
	var auth *match.AuthRejection
	if errors.As(err, &auth) {
		followUpError(s, i, auth.Error())
		return
	}
	log.Printf("Failed to %s: %v", op, err)
	followUp(s, i, "Something went wrong. Check the bot logs.")
}
