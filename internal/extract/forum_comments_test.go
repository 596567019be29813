package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStripHTML(t *testing.T) {
	got := stripHTML(`첫 줄<br>둘째 줄 <b>강조</b> &amp; 끝`)
	want := "첫 줄\n둘째 줄 강조 & 끝"
	if got != want {
		t.Errorf("stripHTML = %q, want %q", got, want)
	}
}

func TestGenericCommentSweep(t *testing.T) {
	html := `<html><body>
<ul class="comment_list">
  <li>첫 번째 댓글</li>
  <li>두 번째 댓글</li>
  <li>첫 번째 댓글</li>
  <li>ㅋ</li>
</ul>
</body></html>`
	out := genericCommentSweep(html)
	if len(out) != 2 {
		t.Fatalf("got %d comments, want 2 (dedup + min length)", len(out))
	}
	if out[0].Text != "첫 번째 댓글" {
		t.Errorf("first = %q", out[0].Text)
	}
}

func TestFetchDcinsideComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/board/comment/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		r.ParseForm()
		if r.PostForm.Get("e_s_n_o") != "tok123" {
			t.Errorf("e_s_n_o = %q", r.PostForm.Get("e_s_n_o"))
		}
		if r.PostForm.Get("id") != "stock" || r.PostForm.Get("no") != "99" {
			t.Errorf("id/no = %q/%q", r.PostForm.Get("id"), r.PostForm.Get("no"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"comments":[
{"no":"1","name":"개미","ip":"1.2","memo":"오른다<br>간다","reg_date":"2025.06.12 08:15:30","depth":0,"parent":"0"},
{"no":"2","name":"곰","ip":"","memo":"","reg_date":"2025.06.12 08:16:00","depth":1,"parent":"1"}
]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	threadHTML := `<html><body>
<input type="hidden" name="e_s_n_o" value="tok123">
<input type="hidden" name="_GALLTYPE_" value="M">
</body></html>`

	e := New(testConfig(), testLogger())
	s := e.newSession()
	out, err := fetchDcinsideComments(context.Background(), s, srv.URL+"/board/view/?id=stock&no=99", threadHTML)
	if err != nil {
		t.Fatalf("fetchDcinsideComments: %v", err)
	}
	// Empty-memo rows are dropped.
	if len(out) != 1 {
		t.Fatalf("got %d comments, want 1", len(out))
	}
	c := out[0]
	if c.Author != "개미(1.2)" {
		t.Errorf("Author = %q", c.Author)
	}
	if c.Text != "오른다\n간다" {
		t.Errorf("Text = %q", c.Text)
	}
	if c.ID != "1" || c.PublishedAt == "" {
		t.Errorf("meta = %+v", c)
	}
}

func TestFetchDcinsideCommentsMissingToken(t *testing.T) {
	e := New(testConfig(), testLogger())
	s := e.newSession()
	_, err := fetchDcinsideComments(context.Background(), s, "https://gall.example.com/board/view/?id=a&no=1", "<html></html>")
	if err == nil {
		t.Fatal("want error when e_s_n_o is absent")
	}
}

func TestFetchMlbparkComments(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/mp/b.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("m") != "reply" {
			t.Errorf("m = %q, want reply", r.URL.Query().Get("m"))
		}
		fmt.Fprint(w, `<html><body>
<div class="other_con">
  <span class="nick">야구팬</span><span class="ip">3.4</span>
  <div class="re_txt">동의합니다</div>
  <span class="retime">2025-06-10 15:00</span>
</div>
<div class="other_con"><div class="re_txt"></div></div>
</body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := New(testConfig(), testLogger())
	s := e.newSession()
	out, err := fetchMlbparkComments(context.Background(), s, srv.URL+"/mp/b.php?b=bullpen&id=777&m=view", "")
	if err != nil {
		t.Fatalf("fetchMlbparkComments: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d comments, want 1", len(out))
	}
	if out[0].Author != "야구팬(3.4)" || out[0].Text != "동의합니다" {
		t.Errorf("comment = %+v", out[0])
	}
}

func TestFetchPpomppuCommentsInline(t *testing.T) {
	threadHTML := `<html><body>
<div class="comment_line0">
  <span class="comment_name">뽐뿌인</span>
  <span class="comment_content">좋은 정보 감사 12:34:56</span>
</div>
</body></html>`

	e := New(testConfig(), testLogger())
	s := e.newSession()
	out, err := fetchPpomppuComments(context.Background(), s, "https://www.example.com/zboard/view.php?id=free&no=1", threadHTML)
	if err != nil {
		t.Fatalf("fetchPpomppuComments: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d comments, want 1", len(out))
	}
	if out[0].PublishedAt != "12:34:56" {
		t.Errorf("PublishedAt = %q, want HH:MM:SS token", out[0].PublishedAt)
	}
}

func TestFetchTheqooCommentsNoLoginGivesEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Comment list requires login; always refuse.
		w.WriteHeader(http.StatusBadRequest)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := New(testConfig(), testLogger())
	s := e.newSession()
	out, err := fetchTheqooComments(context.Background(), s, srv.URL+"/square/900001", "<html></html>")
	if err != nil {
		t.Fatalf("fetchTheqooComments: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("got %d comments, want 0 (login unavailable is not fatal)", len(out))
	}
}

func TestFetchForumCommentsFastCrawl(t *testing.T) {
	t.Setenv("FAST_CRAWL", "1")
	e := New(testConfig(), testLogger())
	out := e.fetchForumComments(context.Background(), "dcinside", "https://x.example.com/board/view/?id=a&no=1", "<html></html>")
	if out != nil {
		t.Errorf("FAST_CRAWL=1 must skip comments, got %v", out)
	}
}
