package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kisanai/backend/internal/handlers"
	"github.com/kisanai/backend/internal/i18n"
	"github.com/kisanai/backend/internal/logger"
	"github.com/kisanai/backend/internal/models"
	"github.com/kisanai/backend/internal/profilesync"
	"github.com/kisanai/backend/internal/services"
	"github.com/kisanai/backend/internal/storage"
)

type nullMailer struct{}

func (nullMailer) Configured() bool { return false }
func (nullMailer) SendSupportEmail(context.Context, string, *models.FarmerProfile, string) error {
	return nil
}

func startService(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := services.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	store, err := services.NewSQLProfileService(context.Background(), db)
	require.NoError(t, err)
	accounts, err := services.NewSQLAccountStore(context.Background(), db)
	require.NoError(t, err)

	log := logger.Nop()
	tokens := services.NewJWTSessionService("cli-test", time.Hour, nil)
	chain := services.NewSessionChain().Add(services.ProviderJWT, tokens)
	srv := httptest.NewServer(handlers.NewRouter(handlers.RouterDeps{
		Auth:     handlers.NewAuthHandler(services.NewUserService(accounts), tokens, chain, log, 5*time.Second),
		Profiles: handlers.NewProfileHandler(store, log, 5*time.Second),
		Support:  handlers.NewSupportHandler(nullMailer{}, store, log),
		Sessions: chain,
		Log:      log,
	}))
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close(context.Background())
	})
	return srv
}

type shell struct {
	app    *App
	kv     storage.KV
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newShell(t *testing.T, serverURL string) *shell {
	t.Helper()
	kv := storage.NewMemoryStore()
	app, err := NewApp(kv, serverURL, i18n.English, nil, nil)
	require.NoError(t, err)
	t.Cleanup(app.Close)
	s := &shell{app: app, kv: kv, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}}
	app.SetOutput(s.out, s.errOut)
	return s
}

func (s *shell) run(args ...string) error {
	s.out.Reset()
	s.errOut.Reset()
	return Execute(context.Background(), s.app, args)
}

func TestShell_ProfileJourney(t *testing.T) {
	srv := startService(t)
	sh := newShell(t, srv.URL)

	require.NoError(t, sh.run("register", "--email", "asha@example.com", "--password", "secret1", "--name", "Asha"))
	assert.Contains(t, sh.out.String(), "Signed in as asha@example.com")
	tok, ok, err := sh.kv.Get(sessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, tok)

	require.NoError(t, sh.run("profile", "show"))
	out := sh.out.String()
	assert.Contains(t, out, "Farmer Profile")
	assert.Contains(t, out, "asha")
	assert.Contains(t, out, "Rice, Wheat, Sugarcane")
	assert.Contains(t, out, models.DefaultPhone)

	require.NoError(t, sh.run("profile", "edit", "--set", "location=Nashik", "--set", "crops=Onion, Grapes"))
	out = sh.out.String()
	assert.Contains(t, out, "Nashik")
	assert.Contains(t, out, "Onion, Grapes")
	assert.Contains(t, sh.errOut.String(), "Profile updated successfully.")

	require.NoError(t, sh.run("prefs", "language", "hi"))
	require.NoError(t, sh.run("profile", "show"))
	assert.Contains(t, sh.out.String(), "स्थान")
	assert.Contains(t, sh.out.String(), "Nashik")

	require.NoError(t, sh.run("logout"))
	_, ok, err = sh.kv.Get(sessionKey)
	require.NoError(t, err)
	assert.False(t, ok, "sign-out clears the stored session")

	err = sh.run("profile", "show")
	assert.ErrorIs(t, err, errSignedOut)
	assert.Contains(t, sh.errOut.String(), "kisanctl login")
}

func TestShell_EditRejectsUnknownField(t *testing.T) {
	srv := startService(t)
	sh := newShell(t, srv.URL)
	require.NoError(t, sh.run("register", "--email", "asha@example.com", "--password", "secret1", "--name", "Asha"))

	err := sh.run("profile", "edit", "--set", "user_id=someone")
	assert.ErrorIs(t, err, profilesync.ErrUnknownField)
}

func TestShell_EditValidationKeepsServerRow(t *testing.T) {
	srv := startService(t)
	sh := newShell(t, srv.URL)
	require.NoError(t, sh.run("register", "--email", "asha@example.com", "--password", "secret1", "--name", "Asha"))

	err := sh.run("profile", "edit", "--set", "email=not-an-email")
	require.Error(t, err)
	assert.Contains(t, sh.errOut.String(), "We could not save your profile.")

	require.NoError(t, sh.run("profile", "show"))
	assert.Contains(t, sh.out.String(), "asha@example.com")
}

func TestShell_NotSignedIn(t *testing.T) {
	srv := startService(t)
	sh := newShell(t, srv.URL)

	err := sh.run("profile", "show")
	assert.ErrorIs(t, err, errSignedOut)
	assert.Contains(t, sh.errOut.String(), "Please sign in to continue.")

	err = sh.run("support", "help")
	assert.ErrorIs(t, err, errSignedOut)
}

func TestShell_ServiceDown(t *testing.T) {
	srv := startService(t)
	url := srv.URL
	srv.Close()

	sh := newShell(t, url)
	require.NoError(t, sh.kv.Set(sessionKey, "stale-token"))

	err := sh.run("profile", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not reach")
	assert.Contains(t, sh.errOut.String(), "We could not load your profile.")
	tok, _, _ := sh.kv.Get(sessionKey)
	assert.Equal(t, "stale-token", tok, "a transport failure is not a sign-out")
}

func TestShell_Prefs(t *testing.T) {
	sh := newShell(t, "http://127.0.0.1:1")

	require.NoError(t, sh.run("prefs", "show"))
	assert.Contains(t, sh.out.String(), "Light")

	require.NoError(t, sh.run("prefs", "theme", "toggle"))
	assert.Contains(t, sh.out.String(), "Dark")

	require.NoError(t, sh.run("prefs", "color", "FF0000"))
	assert.Contains(t, sh.out.String(), "#ff0000")

	assert.Error(t, sh.run("prefs", "color", "banana"))
	assert.Error(t, sh.run("prefs", "language", "fr"))

	require.NoError(t, sh.run("prefs", "language", "Kannada"))
	assert.Equal(t, i18n.Kannada, sh.app.Prefs.Language())
}

func TestShell_Chat(t *testing.T) {
	sh := newShell(t, "http://127.0.0.1:1")

	require.NoError(t, sh.run("chat"))
	assert.Contains(t, sh.out.String(), "Namaste!")

	require.NoError(t, sh.run("chat", "when", "will", "it", "rain"))
	assert.Contains(t, sh.out.String(), "Weather tab")
}

func TestParseSets(t *testing.T) {
	edits, err := parseSets([]string{"Location= Nashik ", "crops=Onion,Grapes"})
	require.NoError(t, err)
	assert.Equal(t, []fieldEdit{
		{key: profilesync.FieldLocation, value: "Nashik"},
		{key: profilesync.FieldCrops, value: "Onion,Grapes"},
	}, edits)

	_, err = parseSets([]string{"location"})
	assert.Error(t, err)
}
