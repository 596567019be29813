package fetch

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRobotsDisallow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private/\nAllow: /private/open\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rb := NewRobots("kcorpus/1.0", 5*time.Second)

	if rb.Allowed(srv.URL + "/private/secret") {
		t.Error("disallowed path should be blocked")
	}
	if !rb.Allowed(srv.URL + "/private/open") {
		t.Error("allow rule should override disallow")
	}
	if !rb.Allowed(srv.URL + "/public/page") {
		t.Error("unlisted path should be allowed")
	}
}

func TestRobotsMissingFileAllowsAll(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	rb := NewRobots("kcorpus/1.0", 5*time.Second)
	if !rb.Allowed(srv.URL + "/anything") {
		t.Error("missing robots.txt must mean allow-all")
	}
}

func TestRobotsAgentSpecificGroup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: kcorpus\nDisallow: /no-bots/\n\nUser-agent: otherbot\nDisallow: /\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rb := NewRobots("kcorpus/1.0 (+corpus research crawler)", 5*time.Second)
	if rb.Allowed(srv.URL + "/no-bots/x") {
		t.Error("our agent group should block /no-bots/")
	}
	if !rb.Allowed(srv.URL + "/anything-else") {
		t.Error("otherbot's blanket disallow should not apply to us")
	}
}

func TestMatchRobotsPattern(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"/a", "/a/b", true},
		{"/a$", "/a", true},
		{"/a$", "/a/b", false},
		{"/*/print", "/doc/print", true},
		{"/*/print", "/doc/view", false},
		{"", "/a", false},
	}
	for _, tt := range tests {
		if got := matchRobotsPattern(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchRobotsPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}
