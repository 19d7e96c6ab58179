package actor

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Role
	}{
		{name: "accessor", in: "ACCESSOR", want: RoleAccessor},
		{name: "lower qualifying", in: "qualifying_accessor", want: RoleQualifyingAccessor},
		{name: "padded assessment", in: "  assessment ", want: RoleAssessment},
		{name: "admin", in: "Admin", want: RoleAdmin},
		{name: "unknown", in: "viewer", want: RoleUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		ctx  Context
		want error
	}{
		{name: "assessment user", ctx: Context{UserID: "u1", RoleID: "r1", Role: RoleAssessment}, want: nil},
		{name: "accessor with unit", ctx: Context{UserID: "u1", RoleID: "r1", Role: RoleAccessor, OrganisationUnitID: "unit-1"}, want: nil},
		{name: "missing user", ctx: Context{RoleID: "r1"}, want: ErrMissingUser},
		{name: "missing role", ctx: Context{UserID: "u1"}, want: ErrMissingRole},
		{name: "accessor without unit", ctx: Context{UserID: "u1", RoleID: "r1", Role: RoleQualifyingAccessor}, want: ErrMissingUnit},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ctx.Validate(); !errors.Is(got, tc.want) {
				t.Fatalf("Validate() = %v, want %v", got, tc.want)
			}
		})
	}
}
