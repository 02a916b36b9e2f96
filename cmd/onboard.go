package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/groupcast/groupcast/internal/config"
	"github.com/groupcast/groupcast/internal/store"
)

// onboardAnswers are the values collected by the setup wizard.
type onboardAnswers struct {
	BridgeURL      string
	RedirectReply  string
	StorageDriver  string
	SQLitePath     string
	AllowBroadcast bool
	BatchSize      string
}

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard that writes a starter config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

func runOnboard() error {
	cfgPath := resolveConfigPath()

	base := config.Default()
	if existing, err := config.Load(cfgPath); err == nil {
		base = existing
	}

	a := answersFrom(base)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("WhatsApp bridge URL").
				Description("WebSocket endpoint of the bridge, e.g. ws://127.0.0.1:3001").
				Value(&a.BridgeURL).
				Validate(validateBridgeURL),
			huh.NewInput().
				Title("Reply to direct messages").
				Value(&a.RedirectReply),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Participants per mention message").
				Value(&a.BatchSize).
				Validate(validateBatchSize),
			huh.NewConfirm().
				Title("Allow DM broadcast (!anuncio -b)?").
				Value(&a.AllowBroadcast),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Command audit storage").
				Options(
					huh.NewOption("SQLite file", store.DriverSQLite),
					huh.NewOption("PostgreSQL (DSN from GROUPCAST_POSTGRES_DSN)", store.DriverPostgres),
					huh.NewOption("Disabled", store.DriverNone),
				).
				Value(&a.StorageDriver),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Setup cancelled.")
			return nil
		}
		return fmt.Errorf("onboard form: %w", err)
	}

	cfg := a.apply(base)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Config written to %s\n", cfgPath)
	if cfg.Storage.Driver == store.DriverPostgres {
		fmt.Println("Set GROUPCAST_POSTGRES_DSN before starting, then run: groupcast migrate up")
	}
	fmt.Println("Start the bot with: groupcast")
	return nil
}

func answersFrom(cfg *config.Config) onboardAnswers {
	return onboardAnswers{
		BridgeURL:      cfg.Bridge.URL,
		RedirectReply:  cfg.Commands.RedirectReply,
		StorageDriver:  cfg.Storage.Driver,
		SQLitePath:     cfg.Storage.SQLitePath,
		AllowBroadcast: cfg.Commands.AllowBroadcast,
		BatchSize:      strconv.Itoa(cfg.Delivery.BatchSize),
	}
}

// apply copies the answers onto a copy of base.
func (a onboardAnswers) apply(base *config.Config) *config.Config {
	cfg := *base
	cfg.Bridge.URL = strings.TrimSpace(a.BridgeURL)
	cfg.Commands.RedirectReply = strings.TrimSpace(a.RedirectReply)
	cfg.Commands.AllowBroadcast = a.AllowBroadcast
	if n, err := strconv.Atoi(strings.TrimSpace(a.BatchSize)); err == nil {
		cfg.Delivery.BatchSize = n
	}
	cfg.Storage.Driver = a.StorageDriver
	if a.StorageDriver == store.DriverSQLite && a.SQLitePath == "" {
		cfg.Storage.SQLitePath = config.Default().Storage.SQLitePath
	}
	return &cfg
}

func validateBridgeURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("must start with ws:// or wss://")
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

func validateBatchSize(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return errors.New("enter a positive number")
	}
	return nil
}
