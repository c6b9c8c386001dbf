package gmail

import (
	"errors"
	"strings"
	"testing"
)

func TestLabelFilterAllows(t *testing.T) {
	tests := []struct {
		name   string
		filter LabelFilter
		labels []LabelID
		want   bool
	}{
		{name: "no filter", labels: []LabelID{"INBOX"}, want: true},
		{
			name:   "exclude wins over include",
			filter: LabelFilter{Include: []LabelID{"INBOX"}, Exclude: []LabelID{"CATEGORY_PROMOTIONS"}},
			labels: []LabelID{"INBOX", "CATEGORY_PROMOTIONS"},
			want:   false,
		},
		{
			name:   "exclude without include",
			filter: LabelFilter{Exclude: []LabelID{"CATEGORY_PROMOTIONS"}},
			labels: []LabelID{"INBOX", "CATEGORY_PROMOTIONS"},
			want:   false,
		},
		{
			name:   "include requires all",
			filter: LabelFilter{Include: []LabelID{"INBOX", "STARRED"}},
			labels: []LabelID{"INBOX"},
			want:   false,
		},
		{
			name:   "include subset satisfied",
			filter: LabelFilter{Include: []LabelID{"INBOX", "STARRED"}},
			labels: []LabelID{"STARRED", "UNREAD", "INBOX"},
			want:   true,
		},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Allows(tc.labels); got != tc.want {
				t.Fatalf("Allows(%v) = %v, want %v", tc.labels, got, tc.want)
			}
		})
	}
}

func TestParseLabelIDs(t *testing.T) {
	got := ParseLabelIDs(" INBOX, ,Label_12 ")
	if len(got) != 2 || got[0] != "INBOX" || got[1] != "Label_12" {
		t.Fatalf("ParseLabelIDs() = %v", got)
	}
	if ParseLabelIDs("  ") != nil {
		t.Fatalf("blank input should yield nil")
	}
}

func TestCredentialsValidate(t *testing.T) {
	full := Credentials{Token: "t", RefreshToken: "r", ClientID: "id", ClientSecret: "s"}
	if err := full.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := Credentials{Token: "t", ClientID: "id"}.Validate()
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if !strings.Contains(err.Error(), "refresh token, client secret") {
		t.Fatalf("error should name missing fields: %v", err)
	}

	withDefaults := full.WithDefaults()
	if withDefaults.TokenURI != DefaultTokenURI || len(withDefaults.Scopes) != 2 {
		t.Fatalf("defaults not applied: %+v", withDefaults)
	}
}

func TestErrorUnwrapsKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ErrGmail, "list messages", cause)
	if !errors.Is(err, ErrGmail) || !errors.Is(err, cause) {
		t.Fatalf("error should match kind and cause: %v", err)
	}
	if got, want := err.Error(), "list messages: gmail error: boom"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if Wrap(ErrGmail, "noop", nil) != nil {
		t.Fatalf("wrapping nil should yield nil")
	}
}
