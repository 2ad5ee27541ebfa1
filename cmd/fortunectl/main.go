// fortunectl: служебные операции: загрузка каталога, сброс дня, выпуск токена.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"vibeailife/internal/app"
	"vibeailife/internal/domain"
	"vibeailife/internal/infra/config"
	httpinfra "vibeailife/internal/infra/http"
	applog "vibeailife/internal/infra/log"
)

const usage = `usage:
  fortunectl seed <file.json>       upsert fortune catalog entries
  fortunectl clear <user-id>        delete today's draw or skip of a user
  fortunectl token [-ttl 24h] <user-id>  issue an access token`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv).Level(zerolog.WarnLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("fortunectl: не удалось инициализировать зависимости")
	}
	defer a.Close()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "seed":
		err = runSeed(ctx, a, args)
	case "clear":
		err = runClear(ctx, a, args)
	case "token":
		err = runToken(ctx, a, args)
	default:
		err = fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "fortunectl:", err)
		a.Close()
		os.Exit(1)
	}
}

type seedEntry struct {
	ID                  string   `json:"id"`
	Type                string   `json:"type"`
	Level               string   `json:"level"`
	Title               string   `json:"title"`
	Text                string   `json:"text"`
	Interpretation      string   `json:"interpretation"`
	ApplicableScenarios []string `json:"applicableScenarios"`
	AIHints             []string `json:"aiHints"`
	Tone                string   `json:"tone"`
}

// loadEntries читает JSON-массив записей каталога.
func loadEntries(r io.Reader) ([]domain.FortuneEntry, error) {
	var raw []seedEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	entries := make([]domain.FortuneEntry, 0, len(raw))
	for _, e := range raw {
		level := domain.FortuneLevel(e.Level)
		if level == "" {
			level = domain.FortuneLevelGood
		}
		tone := domain.FortuneTone(e.Tone)
		if tone == "" {
			tone = domain.FortuneToneWarm
		}
		entries = append(entries, domain.FortuneEntry{
			ID:                  e.ID,
			Type:                domain.FortuneType(e.Type),
			Level:               level,
			Title:               e.Title,
			Text:                e.Text,
			Interpretation:      e.Interpretation,
			ApplicableScenarios: e.ApplicableScenarios,
			AIHints:             e.AIHints,
			Tone:                tone,
		})
	}
	return entries, nil
}

func runSeed(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("seed: path to catalog file is required")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	entries, err := loadEntries(f)
	if err != nil {
		return err
	}
	n, err := a.Fortune.Seed(ctx, entries)
	if err != nil {
		return fmt.Errorf("seed: stored %d of %d: %w", n, len(entries), err)
	}
	fmt.Printf("Seeded %d fortune entries\n", n)
	return nil
}

func runClear(ctx context.Context, a *app.App, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("clear: user id is required")
	}
	n, err := a.Fortune.ClearToday(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d daily fortune records for %s\n", n, args[0])
	return nil
}

func runToken(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ttl := fs.Duration("ttl", a.Config.Auth.JWTTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("token: user id is required")
	}
	user, err := a.Accounts.GetUser(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	tok, err := httpinfra.NewTokenIssuer(a.Config.Auth.JWTSecret, *ttl).Issue(domain.Identity{UserID: user.ID, Role: user.Role})
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
