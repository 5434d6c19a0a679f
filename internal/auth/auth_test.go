package auth

import (
	"errors"
	"testing"

	"github.com/dutlab/dutctl/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty stored token denies everything", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "empty presented token denied", stored: "abc", input: "", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)

	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})

	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for bad token, got %v", err)
	}
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected success for ok token, got %v", err)
	}
}

func TestParseBearer(t *testing.T) {
	testlog.Start(t)

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "plain bearer", header: "Bearer lab-token", want: "lab-token"},
		{name: "scheme is case insensitive", header: "bearer lab-token", want: "lab-token"},
		{name: "surrounding space trimmed", header: "Bearer  lab-token ", want: "lab-token"},
		{name: "missing header", header: "", want: ""},
		{name: "wrong scheme", header: "Basic bGFiOnRva2Vu", want: ""},
		{name: "scheme without token", header: "Bearer", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseBearer(tc.header); got != tc.want {
				t.Fatalf("ParseBearer(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}
