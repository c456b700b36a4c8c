package rfc5322

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseAddressListSimple(t *testing.T) {
	got, err := ParseAddressList(`"David" <david@example.com>`)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "David" || got[0].Addr != "david@example.com" {
		t.Errorf("got %+v", got)
	}
}

func TestParseAddressListBareAddrSpec(t *testing.T) {
	got, err := ParseAddressList("a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Addr != "a@example.com" || got[0].Name != "" {
		t.Errorf("got %+v", got)
	}
}

func TestParseAddressListMultiple(t *testing.T) {
	got, err := ParseAddressList("a@example.com, Bob <b@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	want := []Mailbox{
		{Addr: "a@example.com"},
		{Name: "Bob", Addr: "b@example.com"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseAddressList mismatch (-want +got):\n%s", diff)
	}
}

// TestParseAddressListGroup exercises the "group : member, member ;"
// form, which must flatten into its member mailboxes.
func TestParseAddressListGroup(t *testing.T) {
	got, err := ParseAddressList("undisclosed-recipients: a@example.com, b@example.com;")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Addr != "a@example.com" || got[1].Addr != "b@example.com" {
		t.Errorf("got %+v", got)
	}
}

func TestParseAddressListEmptyGroup(t *testing.T) {
	got, err := ParseAddressList("undisclosed-recipients:;")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want empty", got)
	}
}

// TestParseAddressListCommentAsDomainLiteral exercises an addr-spec
// with a parenthesized comment between local-part and domain.
func TestParseAddressListCommentAsDomainLiteral(t *testing.T) {
	got, err := ParseAddressList("c@(Chris's host.)public.example")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Addr != "c@public.example" {
		t.Errorf("got %+v", got)
	}
}

func TestParseAddressListUnmatchedAngle(t *testing.T) {
	if _, err := ParseAddressList("Bob <b@example.com"); err == nil {
		t.Fatal("expected error for unclosed angle-addr")
	}
}

func TestParseAddressListEncodedWordDisplayName(t *testing.T) {
	got, err := ParseAddressList("=?UTF-8?B?RMOhdmlk?= <david@example.com>")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "Dávid" {
		t.Errorf("got %+v", got)
	}
}
