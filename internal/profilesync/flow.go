// Package profilesync drives the profile screen: fetch or create the
// farmer's profile, edit a draft copy and save it back to the service.
package profilesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kisanai/backend/internal/i18n"
	"github.com/kisanai/backend/internal/logger"
	"github.com/kisanai/backend/internal/models"
	"github.com/kisanai/backend/internal/profileclient"
)

type State int

const (
	Idle State = iota
	Loading
	LoadFailed
	Viewing
	Editing
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case LoadFailed:
		return "load_failed"
	case Viewing:
		return "viewing"
	case Editing:
		return "editing"
	case Unauthenticated:
		return "unauthenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrBusy is returned while another remote call of the same flow is
	// still outstanding.
	ErrBusy              = errors.New("profile request already in progress")
	ErrInvalidTransition = errors.New("operation not allowed in current state")
)

// Remote is the service side of the flow. *profileclient.Client satisfies it.
type Remote interface {
	CurrentUser(ctx context.Context) (*models.SessionUser, error)
	FetchProfile(ctx context.Context, userID string) (*models.FarmerProfile, error)
	CreateProfile(ctx context.Context, req models.CreateProfileRequest) (*models.FarmerProfile, error)
	UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch) (*models.FarmerProfile, error)
	SignOut(ctx context.Context) error
}

type Preferences interface {
	Language() i18n.Language
	T(key string) string
}

type Navigator interface {
	RedirectToAuth()
}

// Notifier shows a short, dismissable message to the farmer. It is called
// with the flow locked and must not call back into it.
type Notifier interface {
	Notify(message string)
}

// Snapshot is a copy of the flow's state safe to hand to a renderer.
type Snapshot struct {
	State     State
	User      *models.SessionUser
	Canonical *models.FarmerProfile
	Draft     *models.FarmerProfile
	Busy      bool
	LastErr   error
}

type Option func(*Flow)

func WithLogger(l *logger.Logger) Option {
	return func(f *Flow) { f.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// Flow is one profile screen instance. All methods are safe for concurrent
// use; at most one remote call runs at a time.
type Flow struct {
	remote Remote
	prefs  Preferences
	nav    Navigator
	notify Notifier
	log    *logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     State
	busy      bool
	user      *models.SessionUser
	canonical *models.FarmerProfile
	draft     *models.FarmerProfile
	lastErr   error
}

func New(remote Remote, prefs Preferences, nav Navigator, notify Notifier, opts ...Option) *Flow {
	f := &Flow{
		remote: remote,
		prefs:  prefs,
		nav:    nav,
		notify: notify,
		log:    logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{
		State:     f.state,
		Canonical: f.canonical.Clone(),
		Draft:     f.draft.Clone(),
		Busy:      f.busy,
		LastErr:   f.lastErr,
	}
	if f.user != nil {
		u := *f.user
		s.User = &u
	}
	return s
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Mount loads the profile for the signed-in user, creating it from session
// defaults when none exists. Without a session the flow redirects to sign-in.
// The returned error is the load failure, if any; the flow is then in
// LoadFailed and Retry may be called.
func (f *Flow) Mount(ctx context.Context) error {
	if err := f.begin(Loading, Idle, LoadFailed, Unauthenticated); err != nil {
		return err
	}
	return f.load(ctx)
}

// Retry re-runs a failed load.
func (f *Flow) Retry(ctx context.Context) error {
	if err := f.begin(Loading, LoadFailed); err != nil {
		return err
	}
	return f.load(ctx)
}

// Refresh reloads the canonical profile, discarding any draft.
func (f *Flow) Refresh(ctx context.Context) error {
	if err := f.begin(Loading, Viewing, Editing); err != nil {
		return err
	}
	return f.load(ctx)
}

func (f *Flow) StartEdit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(Viewing); err != nil {
		return err
	}
	f.draft = f.canonical.Clone()
	f.state = Editing
	return nil
}

// SetField changes the draft only.
func (f *Flow) SetField(key FieldKey, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(Editing); err != nil {
		return err
	}
	return key.set(f.draft, value)
}

func (f *Flow) CancelEdit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(Editing); err != nil {
		return err
	}
	f.draft = nil
	f.state = Viewing
	return nil
}

// Save sends the draft to the service. On success the returned row becomes
// the canonical profile; on failure the flow stays in Editing with the draft
// exactly as it was.
func (f *Flow) Save(ctx context.Context) error {
	f.mu.Lock()
	if err := f.checkLocked(Editing); err != nil {
		f.mu.Unlock()
		return err
	}
	f.busy = true
	userID := f.user.ID
	patch := patchFromDraft(f.draft, f.prefs.Language(), models.Timestamp(f.now()))
	f.mu.Unlock()

	saved, err := f.remote.UpdateProfile(ctx, userID, patch)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		f.lastErr = err
		f.log.Error("profile save failed", "user_id", userID, "error", err)
		if errors.Is(err, profileclient.ErrUnauthenticated) {
			f.notifyLocked("notify.session_expired")
		} else {
			f.notifyLocked("notify.save_failed")
		}
		return err
	}
	saved.ApplyDisplayDefaults()
	f.canonical = saved
	f.draft = nil
	f.lastErr = nil
	f.state = Viewing
	f.log.Info("profile saved", "user_id", userID, "updated_at", saved.UpdatedAt)
	f.notifyLocked("notify.saved")
	return nil
}

// SignOut ends the session. A session the service no longer knows counts as
// signed out.
func (f *Flow) SignOut(ctx context.Context) error {
	f.mu.Lock()
	if err := f.checkLocked(Viewing); err != nil {
		f.mu.Unlock()
		return err
	}
	f.busy = true
	f.mu.Unlock()

	err := f.remote.SignOut(ctx)
	if errors.Is(err, profileclient.ErrUnauthenticated) {
		err = nil
	}

	f.mu.Lock()
	f.busy = false
	if err != nil {
		f.lastErr = err
		f.log.Error("sign out failed", "error", err)
		f.notifyLocked("notify.sign_out_failed")
		f.mu.Unlock()
		return err
	}
	f.signedOutLocked()
	f.notifyLocked("notify.signed_out")
	f.mu.Unlock()

	f.nav.RedirectToAuth()
	return nil
}

// begin claims the flow for a load, moving it to next.
func (f *Flow) begin(next State, allowed ...State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkLocked(allowed...); err != nil {
		return err
	}
	f.busy = true
	f.state = next
	f.draft = nil
	return nil
}

func (f *Flow) checkLocked(allowed ...State) error {
	if f.busy {
		return ErrBusy
	}
	for _, s := range allowed {
		if f.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidTransition, f.state)
}

// load runs with busy set and the state at Loading. Creation is attempted at
// most once; a conflict means another client won and the row is fetched.
func (f *Flow) load(ctx context.Context) error {
	user, err := f.remote.CurrentUser(ctx)
	if err != nil {
		return f.loadDone(nil, nil, err)
	}

	prof, err := f.remote.FetchProfile(ctx, user.ID)
	if errors.Is(err, profileclient.ErrNotFound) {
		f.log.Info("no profile yet, creating", "user_id", user.ID)
		req := models.NewDefaultProfileRequest(user.ID, user.Email, f.prefs.Language())
		prof, err = f.remote.CreateProfile(ctx, req)
		if errors.Is(err, profileclient.ErrConflict) {
			f.log.Warn("profile created concurrently, fetching", "user_id", user.ID)
			prof, err = f.remote.FetchProfile(ctx, user.ID)
		}
	}
	return f.loadDone(user, prof, err)
}

func (f *Flow) loadDone(user *models.SessionUser, prof *models.FarmerProfile, err error) error {
	f.mu.Lock()
	f.busy = false

	if errors.Is(err, profileclient.ErrUnauthenticated) {
		f.log.Info("no session, redirecting to sign in")
		f.signedOutLocked()
		f.mu.Unlock()
		f.nav.RedirectToAuth()
		return nil
	}
	defer f.mu.Unlock()

	if err != nil {
		f.state = LoadFailed
		f.lastErr = err
		f.log.Error("profile load failed", "error", err)
		f.notifyLocked("notify.load_failed")
		return err
	}

	prof.ApplyDisplayDefaults()
	f.user = user
	f.canonical = prof
	f.lastErr = nil
	f.state = Viewing
	return nil
}

func (f *Flow) signedOutLocked() {
	f.state = Unauthenticated
	f.user = nil
	f.canonical = nil
	f.draft = nil
	f.lastErr = nil
}

func (f *Flow) notifyLocked(key string) {
	if f.notify != nil {
		f.notify.Notify(f.prefs.T(key))
	}
}

// patchFromDraft carries every mutable field of the draft, the current
// interface language and the save time. The phone placeholder shown for an
// empty number is not sent back as data.
func patchFromDraft(d *models.FarmerProfile, lang i18n.Language, at time.Time) models.ProfilePatch {
	name, phone, email := d.Name, d.Phone, d.Email
	if phone == models.DefaultPhone {
		phone = ""
	}
	location, farmSize := d.Location, d.FarmSize
	soil, water := d.SoilType, d.WaterSource
	crops := append([]string{}, d.Crops...)
	return models.ProfilePatch{
		Name:              &name,
		Phone:             &phone,
		Email:             &email,
		Location:          &location,
		FarmSize:          &farmSize,
		SoilType:          &soil,
		WaterSource:       &water,
		Crops:             &crops,
		PreferredLanguage: &lang,
		UpdatedAt:         &at,
	}
}
