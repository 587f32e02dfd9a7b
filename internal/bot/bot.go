package bot

import (
	"log"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/memegaming/matchbot/internal/command"
	"github.com/memegaming/matchbot/internal/config"
	"github.com/memegaming/matchbot/internal/match"
	"github.com/memegaming/matchbot/internal/panel"
	"github.com/memegaming/matchbot/internal/query"
	"github.com/memegaming/matchbot/internal/rcon"
	"github.com/memegaming/matchbot/internal/state"
)

// Bot is the top-level Discord bot that owns the session and the match
// command handler.
type Bot struct {
	cfg     *config.Config
	session *discordgo.Session

	matchHandler *command.MatchHandler

	registeredCommand *discordgo.ApplicationCommand
}

// New creates a new Bot instance with all dependencies wired up.
func New(cfg *config.Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, err
	}

	panelClient := panel.NewClient(cfg.Panel.BaseURL, cfg.Panel.Token, cfg.Panel.ServerID, cfg.PanelTimeout())
	waiter := panel.NewStateWaiter(panelClient, cfg.PollInterval())
	store := state.NewFileStore(cfg.Match.Dir)
	engine := match.NewEngine(store, panelClient, waiter, cfg.Cooldown(), cfg.PowerTimeout())
	querier := query.NewA2SQuerier(5 * time.Second)
	rconClient := rcon.NewGorconClient(10 * time.Second)

	return &Bot{
		cfg:          cfg,
		session:      session,
		matchHandler: command.NewMatchHandler(cfg, engine, panelClient, querier, rconClient),
	}, nil
}

// Start opens the Discord websocket connection and registers the /match command.
func (b *Bot) Start() error {
	b.session.AddHandler(b.handleInteraction)

	if err := b.session.Open(); err != nil {
		return err
	}

	cmd := b.buildCommand()
	registered, err := b.session.ApplicationCommandCreate(
		b.session.State.User.ID,
		b.cfg.Discord.GuildID,
		cmd,
	)
	if err != nil {
		return err
	}
	b.registeredCommand = registered
	log.Printf("Registered command: /%s", cmd.Name)

	return nil
}

// Stop deregisters the slash command and closes the Discord session.
func (b *Bot) Stop() error {
	if b.registeredCommand != nil {
		if err := b.session.ApplicationCommandDelete(
			b.session.State.User.ID,
			b.cfg.Discord.GuildID,
			b.registeredCommand.ID,
		); err != nil {
			log.Printf("Failed to deregister command: %v", err)
		}
	}
	return b.session.Close()
}

// buildCommand constructs the /match command with all subcommands.
func (b *Bot) buildCommand() *discordgo.ApplicationCommand {
	dmPermission := false
	return &discordgo.ApplicationCommand{
		Name:         "match",
		Description:  "Start, end, and manage matches on the game server",
		DMPermission: &dmPermission,
		Options:      b.matchHandler.Subcommands(),
	}
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.ApplicationCommandData().Name != "match" {
		return
	}

	sub := i.ApplicationCommandData().Options[0]
	b.matchHandler.Handle(s, i, sub)
}
