package engine

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"🔥 Hot take 🔥", "Hot take"},
		{"see https://example.com/a?b=c for more", "see for more"},
		{"chapter 1:23 and 01:02:03 end", "chapter and end"},
		{"Tom &amp; Jerry &lt;3 &quot;hi&quot; it&#39;s&nbsp;ok", `Tom & Jerry <3 "hi" it's ok`},
		{"  many\n\tspaces   here ", "many spaces here"},
		{"version 1.2.3 stays", "version 1.2.3 stays"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"Breaking: &amp;lt;news&amp;gt; at 10:00 https://t.co/x 🚀",
		"  Ｇｏ 语言 教程 第1集 ",
		"a&nbsp;&nbsp;b",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Errorf("Sanitize not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("short", 10); got != "short" {
		t.Errorf("short string changed: %q", got)
	}
	got := TruncateRunes(strings.Repeat("界", 50), 10)
	if n := utf8.RuneCountInString(got); n != 10 {
		t.Errorf("rune count = %d, want 10", n)
	}
	if !strings.HasSuffix(got, Ellipsis) {
		t.Errorf("missing ellipsis: %q", got)
	}
	if got := TruncateRunes("hello world again", 7); got != "hello"+Ellipsis {
		t.Errorf("trailing space not trimmed before ellipsis: %q", got)
	}
	if got := TruncateRunes("abc", 0); got != "" {
		t.Errorf("zero limit: %q", got)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML(`<p>Hello <b>world</b></p><p>again</p>`)
	if got != "Hello worldagain" {
		t.Errorf("StripHTML = %q", got)
	}
	if got := StripHTML("no markup"); got != "no markup" {
		t.Errorf("plain text changed: %q", got)
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	got := HTMLToMarkdown(`<p>Read <a href="https://example.com">this</a></p>`)
	if !strings.Contains(got, "[this](https://example.com)") {
		t.Errorf("HTMLToMarkdown = %q", got)
	}
}
