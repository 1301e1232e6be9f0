package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"volleymanager-backend/lib/accountstore"
	"volleymanager-backend/lib/configutil"
	"volleymanager-backend/lib/restyutil"
	"volleymanager-backend/lib/scrapers/volleymanager"
	"volleymanager-backend/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
)

const defaultBaseUrl = "https://volleymanager.volleyball.ch"

type Config struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	// milliseconds, unset means the client default
	CookieDelayMs     *int    `json:"cookie_delay_ms"`
	Db                string  `json:"db"`
	DumpDir           string  `json:"dump_dir"`
	BypassCloudflare  bool    `json:"bypass_cloudflare"`
	RequestsPerSecond float64 `json:"requests_per_second"`
}

func readConfig() Config {
	cfg, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = defaultBaseUrl
	}
	if cfg.Db == "" {
		cfg.Db = "volleymanager.db"
	}
	if cfg.Username == "" {
		serviceutil.Fatal("invalid config", fmt.Errorf("username is required"))
	}
	return cfg
}

func newClient(cfg Config) (*volleymanager.Client, error) {
	opts := volleymanager.ClientOptions{
		BaseUrl:           cfg.BaseUrl,
		Logger:            slog.Default().With("username", cfg.Username),
		BypassCloudflare:  cfg.BypassCloudflare,
		RequestsPerSecond: cfg.RequestsPerSecond,
		OnSessionHeader: func(value string) {
			slog.Debug("received session header", "length", len(value))
		},
	}
	if cfg.CookieDelayMs != nil {
		delay := time.Duration(*cfg.CookieDelayMs) * time.Millisecond
		opts.CookieDelay = &delay
	}

	client, err := volleymanager.NewClient(opts)
	if err != nil {
		return nil, err
	}
	if cfg.DumpDir != "" {
		output, err := restyutil.NewFilesystemOutput(cfg.DumpDir)
		if err != nil {
			return nil, err
		}
		restyutil.InstrumentClient(client.Http, output)
	}
	return client, nil
}

func mustClient(cfg Config) *volleymanager.Client {
	client, err := newClient(cfg)
	if err != nil {
		serviceutil.Fatal("failed to initialize client", err)
	}
	return client
}

func openStore(cfg Config) accountstore.Store {
	store, err := accountstore.Open(cfg.Db)
	if err != nil {
		serviceutil.Fatal("failed to open account store", err)
	}
	return store
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func renderUser(derived volleymanager.DerivedUser) {
	fmt.Printf(
		"%s (%s)\n",
		strings.TrimSpace(derived.User.FirstName+" "+derived.User.LastName),
		derived.User.Id,
	)

	t := newTable()
	t.AppendHeader(table.Row{"", "Occupation", "Type", "Association"})
	for _, occupation := range derived.User.Occupations {
		active := ""
		if occupation.Id == derived.ActiveOccupationId {
			active = "*"
		}
		t.AppendRow(table.Row{active, occupation.Id, occupation.Type, occupation.AssociationCode})
	}
	t.Render()
}
