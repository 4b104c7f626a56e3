// Command loteria plays a Lotería match from the terminal, either offline
// against simulated opponents or online over a Nakama server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/joho/godotenv"
	"github.com/skip2/go-qrcode"

	"loteria/internal/app"
	"loteria/internal/app/offline"
	"loteria/internal/app/relay"
	"loteria/internal/bot"
	"loteria/internal/config"
	"loteria/internal/logging"
	"loteria/internal/ports/nakamaclient"
)

const (
	modeOffline = "offline"
	modeOnline  = "online"
)

type options struct {
	mode       string
	name       string
	matchID    string
	configPath string
	deviceID   string
	logLevel   string
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "loteria:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("loteria", flag.ContinueOnError)
	fs.StringVar(&o.mode, "mode", modeOffline, "offline or online")
	fs.StringVar(&o.name, "name", "", "display name")
	fs.StringVar(&o.matchID, "match", "", "match id to join (online); empty hosts a new match")
	fs.StringVar(&o.configPath, "config", "", "path to a JSON game config")
	fs.StringVar(&o.deviceID, "device", "", "device id used to authenticate (online); random when empty")
	fs.StringVar(&o.logLevel, "log", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.mode != modeOffline && o.mode != modeOnline {
		return o, fmt.Errorf("unknown mode %q", o.mode)
	}
	return o, nil
}

func loadConfig(path string) (*config.GameConfig, error) {
	// A missing .env is fine; the environment and defaults still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(config.EnvMap(os.Environ())); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(args []string, in io.Reader, out io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(o.logLevel)
	if err != nil {
		return err
	}
	roster, err := bot.LoadRoster(cfg.BotIdentitiesPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := app.NewEngine(cfg.EngineConfig(), nil)
	svc := newService(o.mode, engine, cfg, roster, logger)
	defer svc.Close()

	c := newConsole(svc, out)
	c.subscribe()

	if o.deviceID == "" {
		o.deviceID = uuid.NewString()
	}
	if err := svc.Connect(ctx, app.Identity{DeviceID: o.deviceID, Name: o.name}); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	matchID, err := svc.CreateOrJoinMatch(ctx, app.MatchRequest{MatchID: o.matchID, Name: o.name})
	if err != nil {
		return fmt.Errorf("match: %w", err)
	}
	logger.Info("CLI: in match %s as %s", matchID, svc.LocalPlayerID())

	if o.mode == modeOnline && o.matchID == "" {
		printJoinCode(out, matchID)
	}
	c.help()
	return c.loop(ctx, in)
}

func newService(mode string, engine *app.Engine, cfg *config.GameConfig, roster *bot.Roster, logger runtime.Logger) app.Service {
	if mode == modeOnline {
		client := nakamaclient.New(nakamaclient.Options{Server: cfg.Nakama, Logger: logger})
		return relay.NewService(engine, client, relay.Options{
			DrawInterval:  cfg.DrawInterval(),
			ReactionDelay: cfg.ReactionDelay(),
			MinPlayers:    cfg.MinPlayers,
			Preferences:   client,
			Logger:        logger,
		})
	}
	return offline.NewSimulator(engine, offline.Options{
		Opponents:     cfg.SimulatedOpponents,
		Roster:        roster,
		DrawInterval:  cfg.DrawInterval(),
		ReactionDelay: cfg.ReactionDelay(),
		Logger:        logger,
	})
}

func printJoinCode(out io.Writer, matchID string) {
	fmt.Fprintf(out, "Partida: %s\n", matchID)
	qr, err := qrcode.New(matchID, qrcode.Medium)
	if err != nil {
		return
	}
	fmt.Fprintln(out, qr.ToSmallString(false))
}
