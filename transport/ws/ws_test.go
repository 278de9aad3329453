package ws

import "testing"

func TestSessionURL(t *testing.T) {
	cases := []struct {
		base, session, token, want string
	}{
		{"ws://localhost:8000", "42", "tok", "ws://localhost:8000/ws/sessions/42?token=tok"},
		{"ws://localhost:8000/", "42", "", "ws://localhost:8000/ws/sessions/42"},
		{"http://relay.example.com", "abc", "t k", "ws://relay.example.com/ws/sessions/abc?token=t+k"},
		{"https://relay.example.com", "abc", "", "wss://relay.example.com/ws/sessions/abc"},
	}
	for _, tc := range cases {
		if got := SessionURL(tc.base, tc.session, tc.token); got != tc.want {
			t.Errorf("SessionURL(%q, %q, %q):\n  expected %q\n  got      %q\n",
				tc.base, tc.session, tc.token, tc.want, got)
		}
	}
}
