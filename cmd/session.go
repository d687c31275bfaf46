package cmd

import (
	"context"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/config"
	"github.com/BioHazard786/Coderoom/internal/credentials"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/BioHazard786/Coderoom/internal/ui"
)

const requestTimeout = 15 * time.Second

// LoadConfig applies the global flags on top of opts.
func LoadConfig(opts config.Options) (*config.Config, error) {
	opts.ConfigFile = flagConfig
	opts.Server = flagServer
	opts.STUNServer = flagSTUN
	opts.TURNServer = flagTURN
	opts.TURNUser = flagTURNUser
	opts.TURNPass = flagTURNPass
	opts.ForceRelay = flagRelay

	cfg, err := config.Load(opts)
	if err != nil {
		return nil, errs.New("load config", err)
	}
	return cfg, nil
}

// Account is the logged-in context shared by every authenticated command.
type Account struct {
	Config   *config.Config
	Store    *credentials.Store
	Client   *api.Client
	Identity *credentials.Identity
}

// OpenAccount loads the config and the stored credentials. It fails with
// errs.ErrNotLoggedIn when there are none.
func OpenAccount(opts config.Options) (*Account, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	store, err := credentials.Open(credentials.DefaultPath())
	if err != nil {
		return nil, err
	}
	identity, err := store.Identity()
	if err != nil {
		return nil, errs.Wrap("load credentials", errs.ErrNotLoggedIn, "run `coderoom login` first")
	}
	if srv := store.Server(); srv != "" && srv != cfg.Server {
		ui.PrintWarningf("Logged in to %s but using %s", srv, cfg.Server)
	}

	return &Account{
		Config:   cfg,
		Store:    store,
		Client:   api.New(cfg.APIBaseURL(), store),
		Identity: identity,
	}, nil
}

// EnsureFresh refreshes an expired access token. The collaboration channel
// carries the token in its URL and cannot retry after a 401.
func (a *Account) EnsureFresh(ctx context.Context) error {
	if !a.Identity.Expired(time.Now()) {
		return nil
	}
	if err := a.Client.Refresh(ctx); err != nil {
		return errs.Wrap("refresh session", err, "run `coderoom login` again")
	}
	identity, err := a.Store.Identity()
	if err != nil {
		return err
	}
	a.Identity = identity
	return nil
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, requestTimeout)
}
