package profile_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DevLabFoundry/aws-session-keeper/internal/profile"
	"github.com/go-test/deep"
)

func helperStore(t *testing.T) *profile.Store {
	t.Helper()
	store, err := profile.NewStore(filepath.Join(t.TempDir(), "config.ini"))
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func Test_Store_save_get_roundtrip(t *testing.T) {
	store := helperStore(t)
	want := profile.Profile{
		Alias:        "work",
		ProfileName:  "work-readonly",
		RoleArn:      "arn:aws:iam::1234111111111:role/Role-ReadOnly",
		PrincipalArn: "arn:aws:iam::1234111111111:saml-provider/provider1",
		LoginURL:     "https://idp.example.com/start",
	}

	if err := store.Save(want); err != nil {
		t.Fatal(err)
	}

	got, found, err := store.Get("work")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("got not found, wanted the saved profile")
	}
	if diff := deep.Equal(got, want); len(diff) > 0 {
		t.Errorf("diff: %v", diff)
	}
}

func Test_Store_get_unknown_alias(t *testing.T) {
	store := helperStore(t)
	_, found, err := store.Get("missing")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("got found, wanted not found for an unknown alias")
	}
}

func Test_Store_list_returns_only_profiles(t *testing.T) {
	store := helperStore(t)
	for _, alias := range []string{"alpha", "beta"} {
		if err := store.Save(profile.Profile{Alias: alias, ProfileName: alias}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SetAutoRenewSettings(profile.DefaultRenewalSettings()); err != nil {
		t.Fatal(err)
	}

	got, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d profiles, wanted 2", len(got))
	}
	if got[0].Alias != "alpha" || got[1].Alias != "beta" {
		t.Errorf("got %v, wanted alpha and beta in file order", got)
	}
}

func Test_Store_delete(t *testing.T) {
	store := helperStore(t)
	if err := store.Save(profile.Profile{Alias: "gone", ProfileName: "gone"}); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete("gone"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := store.Get("gone"); found {
		t.Error("got found, wanted the profile removed")
	}

	// deleting again is a no-op
	if err := store.Delete("gone"); err != nil {
		t.Errorf("got %v, wanted nil on repeat delete", err)
	}
}

func Test_Store_activation_lifecycle(t *testing.T) {
	store := helperStore(t)
	if err := store.Save(profile.Profile{Alias: "work", ProfileName: "work"}); err != nil {
		t.Fatal(err)
	}
	renewed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	expires := renewed.Add(12 * time.Hour)

	if err := store.SetActive("work", renewed, expires); err != nil {
		t.Fatal(err)
	}
	got, _, err := store.Get("work")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Active {
		t.Error("got inactive, wanted active after SetActive")
	}
	if exp, ok := got.ExpiresAtTime(); !ok || !exp.Equal(expires) {
		t.Errorf("got (%v, %v), wanted the stored expiry", exp, ok)
	}

	if err := store.ClearActive("work"); err != nil {
		t.Fatal(err)
	}
	got, _, err = store.Get("work")
	if err != nil {
		t.Fatal(err)
	}
	if got.Active || got.LastRenewedAt != "" || got.ExpiresAt != "" {
		t.Errorf("got %+v, wanted flag and timestamps cleared together", got)
	}
}

func Test_Store_record_renewal_keeps_active_flag(t *testing.T) {
	store := helperStore(t)
	if err := store.Save(profile.Profile{Alias: "work", ProfileName: "work"}); err != nil {
		t.Fatal(err)
	}
	// profile was deactivated while a renewal was in flight
	renewed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.RecordRenewal("work", renewed, renewed.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, _, err := store.Get("work")
	if err != nil {
		t.Fatal(err)
	}
	if got.Active {
		t.Error("got active, wanted RecordRenewal to leave the flag untouched")
	}
	if got.LastRenewedAt == "" || got.ExpiresAt == "" {
		t.Errorf("got %+v, wanted timestamps recorded", got)
	}
}

func Test_Store_mark_active_keeps_timestamps(t *testing.T) {
	store := helperStore(t)
	renewed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.Save(profile.Profile{
		Alias:         "work",
		ProfileName:   "work",
		LastRenewedAt: renewed.Format(time.RFC3339),
		ExpiresAt:     renewed.Add(time.Hour).Format(time.RFC3339),
	}); err != nil {
		t.Fatal(err)
	}

	if err := store.MarkActive("work"); err != nil {
		t.Fatal(err)
	}
	got, _, err := store.Get("work")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Active {
		t.Error("got inactive, wanted active after MarkActive")
	}
	if got.LastRenewedAt != renewed.Format(time.RFC3339) {
		t.Errorf("got %q, wanted the original renewal timestamp preserved", got.LastRenewedAt)
	}
}

func Test_Store_mutating_unknown_alias(t *testing.T) {
	store := helperStore(t)
	err := store.MarkActive("missing")
	if !errors.Is(err, profile.ErrUnknownProfile) {
		t.Errorf("got %v, wanted %v", err, profile.ErrUnknownProfile)
	}
}

func Test_ExpiresAtTime(t *testing.T) {
	ttests := map[string]struct {
		value  string
		wantOk bool
	}{
		"valid rfc3339": {"2026-03-01T10:00:00Z", true},
		"empty":         {"", false},
		"malformed":     {"yesterday", false},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			p := profile.Profile{ExpiresAt: tt.value}
			if _, ok := p.ExpiresAtTime(); ok != tt.wantOk {
				t.Errorf("got %v, wanted %v", ok, tt.wantOk)
			}
		})
	}
}

func Test_Store_auto_renew_settings(t *testing.T) {
	store := helperStore(t)

	t.Run("defaults when unset", func(t *testing.T) {
		got := store.AutoRenewSettings()
		want := profile.RenewalSettings{Enabled: true, LeadMinutes: 13, Silent: true}
		if diff := deep.Equal(got, want); len(diff) > 0 {
			t.Errorf("diff: %v", diff)
		}
	})

	t.Run("roundtrip", func(t *testing.T) {
		want := profile.RenewalSettings{Enabled: false, LeadMinutes: 5, Silent: false}
		if err := store.SetAutoRenewSettings(want); err != nil {
			t.Fatal(err)
		}
		got := store.AutoRenewSettings()
		if diff := deep.Equal(got, want); len(diff) > 0 {
			t.Errorf("diff: %v", diff)
		}
	})
}
