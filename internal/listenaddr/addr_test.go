package listenaddr

import "testing"

func TestParseSocketAddr(t *testing.T) {
	a, err := Parse("127.1.2.3:1234")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Kind != KindSocketAddr || a.Socket != "127.1.2.3:1234" {
		t.Fatalf("got %+v", a)
	}
}

func TestParseSystemdBare(t *testing.T) {
	a, err := Parse("systemd")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Kind != KindSystemdFD || a.Offset != 0 {
		t.Fatalf("got %+v", a)
	}
}

func TestParseSystemdIndexed(t *testing.T) {
	a, err := Parse("systemd#3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Kind != KindSystemdFD || a.Offset != 2 {
		t.Fatalf("got %+v", a)
	}
}

func TestParseSystemdZeroIsError(t *testing.T) {
	if _, err := Parse("systemd#0"); err == nil {
		t.Fatalf("expected error for systemd#0")
	}
}

func TestParseInvalidPrefix(t *testing.T) {
	if _, err := Parse("systemdfoo"); err == nil {
		t.Fatalf("expected error for malformed systemd prefix")
	}
}

func TestParseInvalidSocket(t *testing.T) {
	if _, err := Parse("not-an-address"); err == nil {
		t.Fatalf("expected error for invalid socket address")
	}
}

func TestRoundTripDisplayParse(t *testing.T) {
	cases := []string{"systemd", "systemd#3", "0.0.0.0:24224"}
	for _, c := range cases {
		a, err := Parse(c)
		if err != nil {
			t.Fatalf("parse %q: %v", c, err)
		}
		got := a.String()
		if c == "systemd" {
			if got != "systemd" {
				t.Fatalf("round trip %q -> %q", c, got)
			}
			continue
		}
		b, err := Parse(got)
		if err != nil {
			t.Fatalf("reparse %q: %v", got, err)
		}
		if a != b {
			t.Fatalf("round trip mismatch: %+v != %+v", a, b)
		}
	}
}
