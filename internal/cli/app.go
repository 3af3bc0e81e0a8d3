// Package cli is the kisanctl shell: cobra commands standing in for the
// app's screens, backed by the preference store, the profile client and the
// profile flow.
package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/kisanai/backend/internal/chatbot"
	"github.com/kisanai/backend/internal/config"
	"github.com/kisanai/backend/internal/i18n"
	"github.com/kisanai/backend/internal/logger"
	"github.com/kisanai/backend/internal/preferences"
	"github.com/kisanai/backend/internal/profileclient"
	"github.com/kisanai/backend/internal/profilesync"
	"github.com/kisanai/backend/internal/storage"
)

const (
	dataFile   = "kisanai.json"
	sessionKey = "kisanai.session"
)

// Sessions keeps the bearer token in the same KV as the preferences.
type Sessions struct {
	kv storage.KV
}

func (s *Sessions) Token() (string, error) {
	tok, _, err := s.kv.Get(sessionKey)
	return tok, err
}

func (s *Sessions) Save(token string) error { return s.kv.Set(sessionKey, token) }

func (s *Sessions) Clear() error { return s.kv.Remove(sessionKey) }

// App holds what every command needs. It is built once per process.
type App struct {
	Log      *logger.Logger
	Prefs    *preferences.Store
	Sessions *Sessions
	Client   *profileclient.Client
	Bot      *chatbot.Bot

	out    io.Writer
	errOut io.Writer
}

// NewApp wires the shell over kv and a service at serverURL.
func NewApp(kv storage.KV, serverURL string, fallback i18n.Language, log *logger.Logger, hc *http.Client) (*App, error) {
	if log == nil {
		log = logger.Nop()
	}
	catalog, err := i18n.Default()
	if err != nil {
		return nil, fmt.Errorf("load translations: %w", err)
	}
	prefs, err := preferences.Open(kv, catalog,
		preferences.WithFallbackLanguage(fallback),
		preferences.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	sessions := &Sessions{kv: kv}
	opts := []profileclient.Option{profileclient.WithLogger(log)}
	if hc != nil {
		opts = append(opts, profileclient.WithHTTPClient(hc))
	}

	return &App{
		Log:      log,
		Prefs:    prefs,
		Sessions: sessions,
		Client:   profileclient.New(serverURL, sessions, opts...),
		Bot:      chatbot.New(prefs),
		out:      os.Stdout,
		errOut:   os.Stderr,
	}, nil
}

// NewAppFromConfig opens the on-disk store under cfg.DataDir. Without a
// usable directory preferences last for this process only.
func NewAppFromConfig(cfg *config.ClientConfig, log *logger.Logger) (*App, error) {
	kv := storage.Open(cfg.DataDir, dataFile, log)
	fallback, err := i18n.ParseLanguage(cfg.DefaultLanguage)
	if err != nil {
		log.Warn("ignoring default language", "value", cfg.DefaultLanguage, "error", err)
		fallback = i18n.DefaultLanguage
	}
	return NewApp(kv, cfg.ServerURL, fallback, log, &http.Client{Timeout: cfg.RequestTimeout})
}

// SetOutput redirects command output, mainly for tests.
func (a *App) SetOutput(out, errOut io.Writer) {
	a.out = out
	a.errOut = errOut
}

func (a *App) Close() {
	a.Prefs.Close()
	a.Log.Sync()
}

// NewFlow builds a profile flow whose notifications and sign-in redirects go
// to the terminal.
func (a *App) NewFlow() *profilesync.Flow {
	return profilesync.New(a.Client, a.Prefs, &terminalNavigator{app: a}, &terminalNotifier{w: a.errOut},
		profilesync.WithLogger(a.Log))
}

type terminalNotifier struct {
	w io.Writer
}

func (n *terminalNotifier) Notify(msg string) {
	fmt.Fprintln(n.w, msg)
}

// terminalNavigator forgets the stale token and points at the login command.
type terminalNavigator struct {
	app *App
}

func (n *terminalNavigator) RedirectToAuth() {
	if err := n.app.Sessions.Clear(); err != nil {
		n.app.Log.Warn("clear session failed", "error", err)
	}
	fmt.Fprintln(n.app.errOut, n.app.Prefs.T("auth.login_required"))
	fmt.Fprintln(n.app.errOut, "  kisanctl login --email <email> --password <password>")
}
