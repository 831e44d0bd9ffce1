package langmeta

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "pt_br", want: "pt-BR"},
		{in: " EN-us ", want: "en-US"},
		{in: "ru", want: "ru"},
		{in: "", want: ""},
	}

	for _, tc := range cases {
		got := canonicalize(tc.in)
		if got != tc.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Run("exact code", func(t *testing.T) {
		got := Resolve("ko")
		if got.Name != "Korean" || got.Native != "한국어" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("english name", func(t *testing.T) {
		got := Resolve("  traditional chinese ")
		if got.Code != "zh-TW" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("normalized match", func(t *testing.T) {
		got := Resolve("pt_br")
		if got.Name != "Brazilian Portuguese" || got.Code != "pt-BR" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("base fallback", func(t *testing.T) {
		got := Resolve("ko_KR")
		if got.Code != "ko" || !got.Known() {
			t.Fatalf("unexpected fallback result: %#v", got)
		}
	})

	t.Run("unknown passthrough", func(t *testing.T) {
		got := Resolve("Old Norse")
		if got.Name != "Old Norse" || got.Known() {
			t.Fatalf("unexpected unknown result: %#v", got)
		}
	})
}
