package profilesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/kisanai/backend/internal/i18n"
	"github.com/kisanai/backend/internal/models"
	"github.com/kisanai/backend/internal/profileclient"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	t0 = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

type fakeRemote struct {
	mu   sync.Mutex
	now  time.Time
	user *models.SessionUser
	rows map[string]*models.FarmerProfile

	userErr    error
	fetchErr   error
	createErr  error
	updateErr  error
	signOutErr error
	onFetch    func(n int) (*models.FarmerProfile, error)

	fetches    int
	createReqs []models.CreateProfileRequest
	patches    []models.ProfilePatch
	signOuts   int

	// When set, UpdateProfile signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		now:  t0,
		user: &models.SessionUser{ID: "U1", Email: "farmer@example.com"},
		rows: map[string]*models.FarmerProfile{},
	}
}

func (r *fakeRemote) CurrentUser(ctx context.Context) (*models.SessionUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.userErr != nil {
		return nil, r.userErr
	}
	u := *r.user
	return &u, nil
}

func (r *fakeRemote) FetchProfile(ctx context.Context, userID string) (*models.FarmerProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetches++
	if r.onFetch != nil {
		return r.onFetch(r.fetches)
	}
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	row, ok := r.rows[userID]
	if !ok {
		return nil, profileclient.ErrNotFound
	}
	return row.Clone(), nil
}

func (r *fakeRemote) CreateProfile(ctx context.Context, req models.CreateProfileRequest) (*models.FarmerProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createReqs = append(r.createReqs, req)
	if r.createErr != nil {
		return nil, r.createErr
	}
	if _, ok := r.rows[req.UserID]; ok {
		return nil, profileclient.ErrConflict
	}
	row := &models.FarmerProfile{
		ID:                "P-" + req.UserID,
		UserID:            req.UserID,
		Name:              req.Name,
		Phone:             req.Phone,
		Email:             req.Email,
		Location:          req.Location,
		FarmSize:          req.FarmSize,
		SoilType:          req.SoilType,
		WaterSource:       req.WaterSource,
		Crops:             append([]string(nil), req.Crops...),
		PreferredLanguage: req.PreferredLanguage,
		CreatedAt:         r.now,
		UpdatedAt:         r.now,
	}
	r.rows[req.UserID] = row
	return row.Clone(), nil
}

func (r *fakeRemote) UpdateProfile(ctx context.Context, userID string, patch models.ProfilePatch) (*models.FarmerProfile, error) {
	if r.entered != nil {
		r.entered <- struct{}{}
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patches = append(r.patches, patch)
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	row, ok := r.rows[userID]
	if !ok {
		return nil, profileclient.ErrNotFound
	}
	patch.Apply(row)
	row.UpdatedAt = patch.NextUpdatedAt(r.now, row.UpdatedAt)
	return row.Clone(), nil
}

func (r *fakeRemote) SignOut(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signOuts++
	return r.signOutErr
}

type fakePrefs struct {
	lang    i18n.Language
	catalog *i18n.Catalog
}

func (p *fakePrefs) Language() i18n.Language { return p.lang }
func (p *fakePrefs) T(key string) string     { return p.catalog.Lookup(p.lang, key) }

type fakeNav struct{ redirects int }

func (n *fakeNav) RedirectToAuth() { n.redirects++ }

type notes struct{ msgs []string }

func (n *notes) Notify(m string) { n.msgs = append(n.msgs, m) }

type harness struct {
	remote *fakeRemote
	prefs  *fakePrefs
	nav    *fakeNav
	notes  *notes
	flow   *Flow
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := i18n.Default()
	require.NoError(t, err)
	h := &harness{
		remote: newFakeRemote(),
		prefs:  &fakePrefs{lang: i18n.English, catalog: cat},
		nav:    &fakeNav{},
		notes:  &notes{},
	}
	h.flow = New(h.remote, h.prefs, h.nav, h.notes, WithClock(func() time.Time { return t1 }))
	return h
}

func (h *harness) seed(p *models.FarmerProfile) {
	h.remote.rows[p.UserID] = p
}

func puneProfile() *models.FarmerProfile {
	return &models.FarmerProfile{
		ID:                "P1",
		UserID:            "U1",
		Name:              "Ravi",
		Phone:             "9876543210",
		Email:             "farmer@example.com",
		Location:          "Pune",
		FarmSize:          "3 acres",
		SoilType:          "Black",
		WaterSource:       "Canal",
		Crops:             []string{"Cotton"},
		PreferredLanguage: i18n.English,
		CreatedAt:         t0,
		UpdatedAt:         t0,
	}
}

func TestMount_CreatesProfileFromSession(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.flow.Mount(context.Background()))

	require.Len(t, h.remote.createReqs, 1)
	want := models.CreateProfileRequest{
		UserID:            "U1",
		Name:              "farmer",
		Email:             "farmer@example.com",
		Location:          models.DefaultLocation,
		FarmSize:          models.DefaultFarmSize,
		SoilType:          models.DefaultSoilType,
		WaterSource:       models.DefaultWaterSource,
		Crops:             []string{"Rice", "Wheat", "Sugarcane"},
		PreferredLanguage: i18n.English,
	}
	if diff := cmp.Diff(want, h.remote.createReqs[0]); diff != "" {
		t.Errorf("create request mismatch (-want +got):\n%s", diff)
	}

	snap := h.flow.Snapshot()
	assert.Equal(t, Viewing, snap.State)
	require.NotNil(t, snap.Canonical)
	assert.NotEmpty(t, snap.Canonical.ID)
	assert.True(t, snap.Canonical.CreatedAt.Equal(snap.Canonical.UpdatedAt))
	assert.Equal(t, "U1", snap.User.ID)
	assert.Nil(t, snap.Draft)
}

func TestMount_FillsDisplayDefaults(t *testing.T) {
	h := newHarness(t)
	h.seed(&models.FarmerProfile{ID: "P1", UserID: "U1", Name: "Ravi", CreatedAt: t0, UpdatedAt: t0})

	require.NoError(t, h.flow.Mount(context.Background()))

	c := h.flow.Snapshot().Canonical
	assert.Equal(t, models.DefaultCrops(), c.Crops)
	assert.Equal(t, models.DefaultSoilType, c.SoilType)
	assert.Equal(t, models.DefaultWaterSource, c.WaterSource)
	assert.Equal(t, models.DefaultFarmSize, c.FarmSize)
	assert.Equal(t, models.DefaultLocation, c.Location)
	assert.Equal(t, models.DefaultPhone, c.Phone)
	assert.Empty(t, h.remote.createReqs)
}

func TestMount_NoSessionRedirects(t *testing.T) {
	h := newHarness(t)
	h.remote.userErr = profileclient.ErrUnauthenticated

	require.NoError(t, h.flow.Mount(context.Background()))

	assert.Equal(t, Unauthenticated, h.flow.State())
	assert.Equal(t, 1, h.nav.redirects)
	assert.Zero(t, h.remote.fetches)
	assert.Empty(t, h.notes.msgs)
}

func TestMount_TransportFailureThenRetry(t *testing.T) {
	h := newHarness(t)
	h.seed(puneProfile())
	h.remote.fetchErr = &profileclient.TransportError{Op: "fetch profile", Status: 502, Err: errors.New("bad gateway")}

	err := h.flow.Mount(context.Background())
	var te *profileclient.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, LoadFailed, h.flow.State())
	assert.Equal(t, []string{"We could not load your profile. Please try again."}, h.notes.msgs)
	assert.Empty(t, h.remote.createReqs, "a failed fetch must not lead to create")
	assert.ErrorIs(t, h.flow.StartEdit(), ErrInvalidTransition)

	h.remote.fetchErr = nil
	require.NoError(t, h.flow.Retry(context.Background()))
	snap := h.flow.Snapshot()
	assert.Equal(t, Viewing, snap.State)
	assert.Equal(t, "Pune", snap.Canonical.Location)
	assert.NoError(t, snap.LastErr)
}

func TestMount_CreatesAtMostOnce(t *testing.T) {
	h := newHarness(t)
	other := puneProfile()
	// Another device creates the row between our fetch and our create.
	h.remote.onFetch = func(n int) (*models.FarmerProfile, error) {
		if n == 1 {
			h.remote.rows["U1"] = other
			return nil, profileclient.ErrNotFound
		}
		return other.Clone(), nil
	}

	require.NoError(t, h.flow.Mount(context.Background()))

	assert.Len(t, h.remote.createReqs, 1)
	assert.Equal(t, 2, h.remote.fetches)
	snap := h.flow.Snapshot()
	assert.Equal(t, Viewing, snap.State)
	assert.Equal(t, "P1", snap.Canonical.ID)
}

func TestMount_CreateFailureIsLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.remote.createErr = &profileclient.TransportError{Op: "create profile", Err: errors.New("connection reset")}

	require.Error(t, h.flow.Mount(context.Background()))
	assert.Equal(t, LoadFailed, h.flow.State())
	assert.Len(t, h.remote.createReqs, 1)
}

func TestMount_WrongState(t *testing.T) {
	h := newHarness(t)
	h.seed(puneProfile())
	require.NoError(t, h.flow.Mount(context.Background()))

	assert.ErrorIs(t, h.flow.Mount(context.Background()), ErrInvalidTransition)
	assert.ErrorIs(t, h.flow.Retry(context.Background()), ErrInvalidTransition)
}

func TestSave_ServerRowBecomesCanonical(t *testing.T) {
	h := newHarness(t)
	h.seed(puneProfile())
	h.prefs.lang = i18n.Hindi
	ctx := context.Background()
	require.NoError(t, h.flow.Mount(ctx))
	require.NoError(t, h.flow.StartEdit())

	require.NoError(t, h.flow.SetField(FieldLocation, "Nashik"))
	require.NoError(t, h.flow.SetField(FieldName, "  Ravi Patil "))
	require.NoError(t, h.flow.SetField(FieldCrops, "Onion, Grapes, "))
	assert.Equal(t, "Pune", h.flow.Snapshot().Canonical.Location, "canonical untouched while editing")

	require.NoError(t, h.flow.Save(ctx))

	snap := h.flow.Snapshot()
	assert.Equal(t, Viewing, snap.State)
	assert.Nil(t, snap.Draft)
	assert.Equal(t, "Nashik", snap.Canonical.Location)
	assert.Equal(t, "Ravi Patil", snap.Canonical.Name, "server trims, the flow keeps what the server returned")
	assert.Equal(t, []string{"Onion", "Grapes"}, snap.Canonical.Crops)
	assert.Equal(t, i18n.Hindi, snap.Canonical.PreferredLanguage)
	assert.Equal(t, "U1", snap.Canonical.UserID)
	assert.True(t, snap.Canonical.CreatedAt.Equal(t0))
	assert.False(t, snap.Canonical.UpdatedAt.Before(t0))

	require.Len(t, h.remote.patches, 1)
	p := h.remote.patches[0]
	require.NotNil(t, p.UpdatedAt)
	assert.True(t, p.UpdatedAt.Equal(t1))
	require.NotNil(t, p.PreferredLanguage)
	assert.Equal(t, i18n.Hindi, *p.PreferredLanguage)
	assert.Len(t, h.notes.msgs, 1)
}

func TestSave_FailurePreservesDraft(t *testing.T) {
	h := newHarness(t)
	h.seed(puneProfile())
	ctx := context.Background()
	require.NoError(t, h.flow.Mount(ctx))
	require.NoError(t, h.flow.StartEdit())
	require.NoError(t, h.flow.SetField(FieldLocation, "Nashik"))
	require.NoError(t, h.flow.SetField(FieldWaterSource, "Drip"))
	before := h.flow.Snapshot()

	h.remote.updateErr = &profileclient.TransportError{Op: "update profile", Err: errors.New("timeout")}
	require.Error(t, h.flow.Save(ctx))

	after := h.flow.Snapshot()
	assert.Equal(t, Editing, after.State)
	if diff := cmp.Diff(before.Draft, after.Draft); diff != "" {
		t.Errorf("draft changed on failed save (-before +after):\n%s", diff)
	}
	if diff := cmp.Diff(before.Canonical, after.Canonical); diff != "" {
		t.Errorf("canonical changed on failed save (-before +after):\n%s", diff)
	}
	assert.Error(t, after.LastErr)
	assert.Equal(t, []string{"We could not save your profile. Your changes are kept, please try again."}, h.notes.msgs)

	h.remote.updateErr = nil
	require.NoError(t, h.flow.Save(ctx))
	assert.Equal(t, "Drip", h.flow.Snapshot().Canonical.WaterSource)
}

func TestSave_ExpiredSessionKeepsDraft(t *testing.T) {
	h := newHarness(t)
	h.seed(puneProfile())
	ctx := context.Background()
	require.NoError(t, h.flow.Mount(ctx))
	require.NoError(t, h.flow.StartEdit())
	require.NoError(t, h.flow.SetField(FieldPhone, "9000000000"))

	h.remote.updateErr = profileclient.ErrUnauthenticated
	require.ErrorIs(t, h.flow.Save(ctx), profileclient.ErrUnauthenticated)

	snap := h.flow.Snapshot()
	assert.Equal(t, Editing, snap.State)
	assert.Equal(t, "9000000000", snap.Draft.Phone)
	assert.Equal(t, []string{"Your session has expired. Please sign in again."}, h.notes.msgs)
}

func TestSave_PhonePlaceholderNotSent(t *testing.T) {
	h := newHarness(t)
	p := puneProfile()
	p.Phone = ""
	h.seed(p)
	ctx := context.Background()
	require.NoError(t, h.flow.Mount(ctx))
	require.Equal(t, models.DefaultPhone, h.flow.Snapshot().Canonical.Phone)
	require.NoError(t, h.flow.StartEdit())
	require.NoError(t, h.flow.Save(ctx))

	require.Len(t, h.remote.patches, 1)
	assert.Equal(t, "", *h.remote.patches[0].Phone)
}

func TestBusy_OneCallInFlight(t *testing.T) {
	h := newHarness(t)
	h.seed(puneProfile())
	ctx := context.Background()
	require.NoError(t, h.flow.Mount(ctx))
	require.NoError(t, h.flow.StartEdit())

	h.remote.entered = make(chan struct{})
	h.remote.release = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- h.flow.Save(ctx) }()
	<-h.remote.entered

	assert.True(t, h.flow.Snapshot().Busy)
	assert.ErrorIs(t, h.flow.Save(ctx), ErrBusy)
	assert.ErrorIs(t, h.flow.SetField(FieldName, "x"), ErrBusy)
	assert.ErrorIs(t, h.flow.CancelEdit(), ErrBusy)
	assert.ErrorIs(t, h.flow.Refresh(ctx), ErrBusy)

	close(h.remote.release)
	require.NoError(t, <-done)
	assert.Equal(t, Viewing, h.flow.State())
	assert.Len(t, h.remote.patches, 1)
}

func TestEditTransitions(t *testing.T) {
	h := newHarness(t)
	h.seed(puneProfile())
	ctx := context.Background()

	assert.ErrorIs(t, h.flow.StartEdit(), ErrInvalidTransition)
	require.NoError(t, h.flow.Mount(ctx))
	assert.ErrorIs(t, h.flow.Save(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, h.flow.SetField(FieldName, "x"), ErrInvalidTransition)

	require.NoError(t, h.flow.StartEdit())
	assert.ErrorIs(t, h.flow.SignOut(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, h.flow.SetField(FieldKey("created_at"), "x"), ErrUnknownField)
	require.NoError(t, h.flow.SetField(FieldName, "Someone"))
	require.NoError(t, h.flow.CancelEdit())

	snap := h.flow.Snapshot()
	assert.Equal(t, Viewing, snap.State)
	assert.Nil(t, snap.Draft)
	assert.Equal(t, "Ravi", snap.Canonical.Name)
	assert.Empty(t, h.remote.patches)
}

func TestRefresh_DiscardsDraft(t *testing.T) {
	h := newHarness(t)
	h.seed(puneProfile())
	ctx := context.Background()
	require.NoError(t, h.flow.Mount(ctx))
	require.NoError(t, h.flow.StartEdit())
	require.NoError(t, h.flow.SetField(FieldLocation, "Nashik"))

	h.remote.rows["U1"].SoilType = "Red"
	require.NoError(t, h.flow.Refresh(ctx))

	snap := h.flow.Snapshot()
	assert.Equal(t, Viewing, snap.State)
	assert.Nil(t, snap.Draft)
	assert.Equal(t, "Pune", snap.Canonical.Location)
	assert.Equal(t, "Red", snap.Canonical.SoilType)
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		h := newHarness(t)
		h.seed(puneProfile())
		require.NoError(t, h.flow.Mount(ctx))

		require.NoError(t, h.flow.SignOut(ctx))
		snap := h.flow.Snapshot()
		assert.Equal(t, Unauthenticated, snap.State)
		assert.Nil(t, snap.Canonical)
		assert.Nil(t, snap.User)
		assert.Equal(t, 1, h.nav.redirects)
	})

	t.Run("failure stays viewing", func(t *testing.T) {
		h := newHarness(t)
		h.seed(puneProfile())
		require.NoError(t, h.flow.Mount(ctx))
		h.remote.signOutErr = &profileclient.TransportError{Op: "sign out", Status: 500, Err: errors.New("boom")}

		require.Error(t, h.flow.SignOut(ctx))
		assert.Equal(t, Viewing, h.flow.State())
		assert.Zero(t, h.nav.redirects)
		assert.Equal(t, []string{"Sign out failed. Please try again."}, h.notes.msgs)
	})

	t.Run("already signed out", func(t *testing.T) {
		h := newHarness(t)
		h.seed(puneProfile())
		require.NoError(t, h.flow.Mount(ctx))
		h.remote.signOutErr = profileclient.ErrUnauthenticated

		require.NoError(t, h.flow.SignOut(ctx))
		assert.Equal(t, Unauthenticated, h.flow.State())
		assert.Equal(t, 1, h.nav.redirects)
	})
}

func TestNotificationsFollowLanguage(t *testing.T) {
	h := newHarness(t)
	h.prefs.lang = i18n.Hindi
	h.remote.fetchErr = errors.New("offline")

	require.Error(t, h.flow.Mount(context.Background()))
	require.Len(t, h.notes.msgs, 1)
	assert.Equal(t, h.prefs.catalog.Lookup(i18n.Hindi, "notify.load_failed"), h.notes.msgs[0])
	assert.NotEqual(t, h.prefs.catalog.Lookup(i18n.English, "notify.load_failed"), h.notes.msgs[0])
}

func TestParseFieldKey(t *testing.T) {
	k, err := ParseFieldKey(" Farm_Size ")
	require.NoError(t, err)
	assert.Equal(t, FieldFarmSize, k)
	assert.Equal(t, "profile.farm_size", k.LabelKey())

	_, err = ParseFieldKey("user_id")
	assert.ErrorIs(t, err, ErrUnknownField)

	assert.Len(t, Fields(), 8)
	assert.Equal(t, "Cotton", FieldCrops.Value(puneProfile()))
}
