package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kisanai/backend/internal/i18n"
	"github.com/kisanai/backend/internal/models"
	"github.com/kisanai/backend/internal/profileclient"
	"github.com/kisanai/backend/internal/profilesync"
)

// errSignedOut marks commands that stopped at the sign-in redirect. The hint
// has already been printed.
var errSignedOut = errors.New("not signed in")

// NewRootCmd builds the command tree over app.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "kisanctl",
		Short:         "KisanAI farmer app from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(app.out)
	root.SetErr(app.errOut)

	root.AddCommand(
		newRegisterCmd(app),
		newLoginCmd(app),
		newLogoutCmd(app),
		newProfileCmd(app),
		newPrefsCmd(app),
		newChatCmd(app),
		newSupportCmd(app),
	)
	return root
}

// Execute runs the command tree and reports the error the way the shell
// prints it.
func Execute(ctx context.Context, app *App, args []string) error {
	root := NewRootCmd(app)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errSignedOut) {
		fmt.Fprintln(app.errOut, "error:", err)
	}
	return err
}

func newRegisterCmd(app *App) *cobra.Command {
	var req models.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := app.Client.Register(cmd.Context(), req)
			if err != nil {
				return describe(err)
			}
			return app.signedIn(cmd.OutOrStdout(), auth)
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLoginCmd(app *App) *cobra.Command {
	var req models.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := app.Client.Login(cmd.Context(), req)
			if err != nil {
				if errors.Is(err, profileclient.ErrUnauthenticated) {
					return errors.New("invalid email or password")
				}
				return describe(err)
			}
			return app.signedIn(cmd.OutOrStdout(), auth)
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (a *App) signedIn(w io.Writer, auth *models.AuthResponse) error {
	if err := a.Sessions.Save(auth.Token); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	a.Log.Info("signed in", "user_id", auth.User.ID)
	fmt.Fprintf(w, "Signed in as %s\n", auth.User.Email)
	return nil
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out of this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flow := app.NewFlow()
			if err := mount(cmd.Context(), flow); err != nil {
				return err
			}
			return flow.SignOut(cmd.Context())
		},
	}
}

func newProfileCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your farmer profile",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show your profile, creating it on first use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flow := app.NewFlow()
			if err := mount(cmd.Context(), flow); err != nil {
				return err
			}
			app.printProfile(cmd.OutOrStdout(), flow.Snapshot().Canonical)
			return nil
		},
	}

	var sets []string
	edit := &cobra.Command{
		Use:   "edit",
		Short: "Change profile fields",
		Long: "Change profile fields and save them.\n\nFields: " + fieldList() + "\n" +
			"Crops take a comma separated list.\n\n" +
			"Example:\n  kisanctl profile edit --set location=Nashik --set crops=\"Onion, Grapes\"",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			edits, err := parseSets(sets)
			if err != nil {
				return err
			}
			flow := app.NewFlow()
			if err := mount(cmd.Context(), flow); err != nil {
				return err
			}
			if err := flow.StartEdit(); err != nil {
				return err
			}
			for _, e := range edits {
				if err := flow.SetField(e.key, e.value); err != nil {
					return err
				}
			}
			if err := flow.Save(cmd.Context()); err != nil {
				return describe(err)
			}
			app.printProfile(cmd.OutOrStdout(), flow.Snapshot().Canonical)
			return nil
		},
	}
	edit.Flags().StringArrayVar(&sets, "set", nil, "field=value, repeatable")
	_ = edit.MarkFlagRequired("set")

	cmd.AddCommand(show, edit)
	return cmd
}

type fieldEdit struct {
	key   profilesync.FieldKey
	value string
}

func parseSets(sets []string) ([]fieldEdit, error) {
	out := make([]fieldEdit, 0, len(sets))
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("--set %q: want field=value", s)
		}
		key, err := profilesync.ParseFieldKey(name)
		if err != nil {
			return nil, fmt.Errorf("--set %q: %w (fields: %s)", s, err, fieldList())
		}
		out = append(out, fieldEdit{key: key, value: strings.TrimSpace(value)})
	}
	return out, nil
}

func fieldList() string {
	names := make([]string, 0, len(profilesync.Fields()))
	for _, f := range profilesync.Fields() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// mount loads the profile. A failed load is not retried here; the farmer
// runs the command again.
func mount(ctx context.Context, flow *profilesync.Flow) error {
	if err := flow.Mount(ctx); err != nil {
		return describe(err)
	}
	if flow.State() == profilesync.Unauthenticated {
		return errSignedOut
	}
	return nil
}

func (a *App) printProfile(w io.Writer, p *models.FarmerProfile) {
	if p == nil {
		return
	}
	fmt.Fprintf(w, "%s\n", a.Prefs.T("profile.title"))
	for _, f := range profilesync.Fields() {
		fmt.Fprintf(w, "  %-16s %s\n", a.Prefs.T(f.LabelKey())+":", f.Value(p))
	}
	fmt.Fprintf(w, "  %-16s %s\n", a.Prefs.T("profile.language")+":", p.PreferredLanguage.DisplayName())
	fmt.Fprintf(w, "  updated %s\n", p.UpdatedAt.Local().Format(time.RFC822))
}

func newPrefsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Language and theme",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show current preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.printPrefs(cmd.OutOrStdout())
			return nil
		},
	}

	language := &cobra.Command{
		Use:   "language <en|hi|kn|ml>",
		Short: "Set the interface language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := i18n.ParseLanguage(args[0])
			if err != nil {
				return err
			}
			if err := app.Prefs.SetLanguage(lang); err != nil {
				return err
			}
			app.printPrefs(cmd.OutOrStdout())
			return nil
		},
	}

	theme := &cobra.Command{
		Use:   "theme",
		Short: "Color theme",
	}
	theme.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Switch between dark and light",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Prefs.ToggleTheme(); err != nil {
				return err
			}
			app.printPrefs(cmd.OutOrStdout())
			return nil
		},
	})

	color := &cobra.Command{
		Use:   "color <#rrggbb>",
		Short: "Set the accent color",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Prefs.SetPrimaryColor(args[0]); err != nil {
				return err
			}
			app.printPrefs(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.AddCommand(show, language, theme, color)
	return cmd
}

func (a *App) printPrefs(w io.Writer) {
	st := a.Prefs.State()
	mode := a.Prefs.T("prefs.light")
	if st.Theme.Dark {
		mode = a.Prefs.T("prefs.dark")
	}
	fmt.Fprintf(w, "%s: %s\n", a.Prefs.T("prefs.language"), st.Language.DisplayName())
	fmt.Fprintf(w, "%s: %s\n", a.Prefs.T("prefs.theme"), mode)
	fmt.Fprintf(w, "%s: %s\n", a.Prefs.T("prefs.color"), st.Theme.PrimaryColor)
}

func newChatCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message...]",
		Short: "Ask the farming assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), app.Bot.Greeting())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), app.Bot.Reply(strings.Join(args, " ")))
			return nil
		},
	}
}

func newSupportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "support <message...>",
		Short: "Send a message to the support team",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticket, err := app.Client.SubmitSupport(cmd.Context(), strings.Join(args, " "))
			if errors.Is(err, profileclient.ErrUnauthenticated) {
				(&terminalNavigator{app: app}).RedirectToAuth()
				return errSignedOut
			}
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ticket %s\n", ticket)
			return nil
		},
	}
}

// describe turns client failures into short messages; the full error has
// already been logged by the flow or the client.
func describe(err error) error {
	var ve *profileclient.ValidationError
	var te *profileclient.TransportError
	switch {
	case errors.As(err, &ve):
		return ve
	case errors.As(err, &te) && te.Status == 0:
		return errors.New("could not reach the KisanAI service")
	case errors.Is(err, profileclient.ErrConflict):
		return errors.New("already exists")
	}
	return err
}
