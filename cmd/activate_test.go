package cmd_test

import (
	"testing"

	"github.com/DevLabFoundry/aws-session-keeper/cmd"
	"github.com/DevLabFoundry/aws-session-keeper/internal/profile"
	"github.com/go-test/deep"
)

func Test_OverridesFromFlags(t *testing.T) {
	ttests := map[string]struct {
		stored profile.Profile
		flags  cmd.ActivateFlags
		want   profile.Profile
	}{
		"empty flags keep the stored definition": {
			stored: profile.Profile{
				Alias:        "work",
				ProfileName:  "work-readonly",
				RoleArn:      "arn:aws:iam::1234111111111:role/Role-ReadOnly",
				PrincipalArn: "arn:aws:iam::1234111111111:saml-provider/provider1",
				LoginURL:     "https://idp.example.com/start",
			},
			flags: cmd.ActivateFlags{},
			want: profile.Profile{
				Alias:        "work",
				ProfileName:  "work-readonly",
				RoleArn:      "arn:aws:iam::1234111111111:role/Role-ReadOnly",
				PrincipalArn: "arn:aws:iam::1234111111111:saml-provider/provider1",
				LoginURL:     "https://idp.example.com/start",
			},
		},
		"set flags win over the stored definition": {
			stored: profile.Profile{
				Alias:    "work",
				RoleArn:  "arn:aws:iam::1234111111111:role/Role-ReadOnly",
				LoginURL: "https://idp.example.com/start",
			},
			flags: cmd.ActivateFlags{
				RoleArn:  "arn:aws:iam::1234111111111:role/Role-Admin",
				LoginURL: "https://idp.example.com/other",
			},
			want: profile.Profile{
				Alias:    "work",
				RoleArn:  "arn:aws:iam::1234111111111:role/Role-Admin",
				LoginURL: "https://idp.example.com/other",
			},
		},
		"session bookkeeping is never touched": {
			stored: profile.Profile{
				Alias:         "work",
				RoleArn:       "arn:aws:iam::1234111111111:role/Role-ReadOnly",
				Active:        true,
				LastRenewedAt: "2026-03-01T10:00:00Z",
				ExpiresAt:     "2026-03-01T22:00:00Z",
			},
			flags: cmd.ActivateFlags{RoleArn: "arn:aws:iam::1234111111111:role/Role-Admin"},
			want: profile.Profile{
				Alias:         "work",
				RoleArn:       "arn:aws:iam::1234111111111:role/Role-Admin",
				Active:        true,
				LastRenewedAt: "2026-03-01T10:00:00Z",
				ExpiresAt:     "2026-03-01T22:00:00Z",
			},
		},
	}
	for name, tt := range ttests {
		t.Run(name, func(t *testing.T) {
			got := tt.stored
			if err := cmd.OverridesFromFlags(&got, &tt.flags); err != nil {
				t.Fatal(err)
			}
			if diff := deep.Equal(got, tt.want); len(diff) > 0 {
				t.Errorf("diff: %v", diff)
			}
		})
	}
}
