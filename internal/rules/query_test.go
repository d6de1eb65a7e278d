package rules

import (
	"strings"
	"testing"
)

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want string
	}{
		{
			name: "plain sender",
			rule: Rule{Action: AlwaysDelete, Sender: "news.example.com"},
			want: "from:news.example.com",
		},
		{
			name: "sender with spaces is quoted",
			rule: Rule{Action: AutoArchive, Sender: "The Daily Digest"},
			want: `from:"The Daily Digest"`,
		},
		{
			name: "embedded quote is escaped",
			rule: Rule{Action: AutoArchive, Sender: `Bob "The Builder" Inc`},
			want: `from:"Bob \"The Builder\" Inc"`,
		},
		{
			name: "older-than suffix",
			rule: Rule{Action: AlwaysDelete, Sender: "ex.com", OlderThanDays: 30},
			want: "from:ex.com older_than:30d",
		},
		{
			name: "single character sender",
			rule: Rule{Action: AlwaysDelete, Sender: "x"},
			want: "from:x",
		},
		{
			name: "missing sender yields empty query",
			rule: Rule{Action: AlwaysDelete, Sender: "   "},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildQuery(tt.rule); got != tt.want {
				t.Fatalf("BuildQuery: got %q want %q", got, tt.want)
			}
		})
	}
}

// The quoting must survive a naive parse: strip the surrounding quotes and
// unescape backslash-quote to recover the original sender.
func TestBuildQueryQuoteRoundTrip(t *testing.T) {
	senders := []string{
		"Weekly Report Bot",
		`A "quoted" name`,
		`ends with "quote"`,
	}
	for _, sender := range senders {
		q := BuildQuery(Rule{Action: AutoArchive, Sender: sender})
		val := strings.TrimPrefix(q, "from:")
		if !strings.HasPrefix(val, `"`) || !strings.HasSuffix(val, `"`) {
			t.Fatalf("sender %q not quoted in %q", sender, q)
		}
		val = strings.TrimSuffix(strings.TrimPrefix(val, `"`), `"`)
		val = strings.ReplaceAll(val, `\"`, `"`)
		if val != sender {
			t.Fatalf("round-trip: got %q want %q", val, sender)
		}
	}
}
