package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/guildboard/internal/metrics"
	"github.com/hitoshi/guildboard/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// newTestClient はテスト用HTTPサーバーをオリジンとするClientを生成する。
func newTestClient(t *testing.T, server *httptest.Server, cfg Config) (*Client, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	cfg.Origin = server.URL
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	c, err := NewClient(cfg, metrics.Nop{}, newTestLogger(&buf))
	if err != nil {
		t.Fatalf("NewClient がエラーを返した: %v", err)
	}
	return c, &buf
}

func jsonHandler(t *testing.T, wantPath, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("path = %s, want %s", r.URL.Path, wantPath)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

func assertKind(t *testing.T, err error, want model.ClientErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("エラーが返されるべき (kind=%s)", want)
	}
	kind, ok := model.ClientErrorKindOf(err)
	if !ok {
		t.Fatalf("ClientError であるべき: %v", err)
	}
	if kind != want {
		t.Errorf("kind = %q, want %q (err=%v)", kind, want, err)
	}
}

func TestNewClient_InvalidOrigin_ReturnsError(t *testing.T) {
	if _, err := NewClient(Config{Origin: "localhost"}, nil, nil); err == nil {
		t.Fatal("絶対URLでないオリジンはエラーになるべき")
	}
}

func TestClient_LoginURL(t *testing.T) {
	c, err := NewClient(Config{Origin: "http://localhost:3100"}, nil, nil)
	if err != nil {
		t.Fatalf("NewClient がエラーを返した: %v", err)
	}
	if got := c.LoginURL(); got != "http://localhost:3100/api/auth/login" {
		t.Errorf("LoginURL = %q, want %q", got, "http://localhost:3100/api/auth/login")
	}
	if got := c.Origin(); got != "http://localhost:3100" {
		t.Errorf("Origin = %q", got)
	}
}

func TestClient_Session_WithUser(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/api/auth/session",
		`{"session":{"user":{"id":"1","username":"a","avatar":"av","verified":true}}}`))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{})

	data, err := c.Session(context.Background())
	if err != nil {
		t.Fatalf("Session がエラーを返した: %v", err)
	}
	if data.User == nil {
		t.Fatal("User がnilであってはならない")
	}
	if data.User.ID != "1" || data.User.Username != "a" || !data.User.Verified {
		t.Errorf("User = %+v", data.User)
	}
}

func TestClient_Session_WithoutUser(t *testing.T) {
	for _, body := range []string{`{"session":{}}`, `{"session":{"user":null}}`} {
		server := httptest.NewServer(jsonHandler(t, "/api/auth/session", body))

		c, _ := newTestClient(t, server, Config{})
		data, err := c.Session(context.Background())
		server.Close()

		if err != nil {
			t.Fatalf("Session(%s) がエラーを返した: %v", body, err)
		}
		if data.User != nil {
			t.Errorf("Session(%s).User = %+v, want nil", body, data.User)
		}
	}
}

func TestClient_Session_MalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"sessionフィールドなし", `{}`},
		{"配列", `[]`},
		{"JSONでない", `<html></html>`},
		{"userのid欠落", `{"session":{"user":{"username":"a"}}}`},
		{"型不一致", `{"session":{"user":{"id":1}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(jsonHandler(t, "/api/auth/session", tt.body))
			defer server.Close()

			c, _ := newTestClient(t, server, Config{})
			_, err := c.Session(context.Background())
			assertKind(t, err, model.ClientErrorMalformed)
		})
	}
}

func TestClient_Session_SendsCredentialsAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("connect.sid")
		if err != nil {
			t.Errorf("セッションCookieが送信されていない: %v", err)
		} else if cookie.Value != "abc" {
			t.Errorf("cookie = %q, want %q", cookie.Value, "abc")
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q, want application/json", got)
		}
		if got := r.Header.Get("X-Request-ID"); got != "req-1" {
			t.Errorf("X-Request-ID = %q, want req-1", got)
		}
		if got := r.Header.Get("User-Agent"); got != "Guildboard/1.0" {
			t.Errorf("User-Agent = %q", got)
		}
		io.WriteString(w, `{"session":{}}`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{SessionCookieName: "connect.sid", SessionCookieValue: "abc"})
	c.newRequestID = func() string { return "req-1" }

	if _, err := c.Session(context.Background()); err != nil {
		t.Fatalf("Session がエラーを返した: %v", err)
	}
}

func TestClient_AnonymousEndpoints_DoNotSendCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.Cookies()) != 0 {
			t.Errorf("認証不要のエンドポイントにCookieが送信された: %v", r.Cookies())
		}
		io.WriteString(w, `[]`)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{SessionCookieName: "connect.sid", SessionCookieValue: "abc"})
	if _, err := c.Members(context.Background()); err != nil {
		t.Fatalf("Members がエラーを返した: %v", err)
	}
}

func TestClient_Logout_PostsWithCookieJar(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/auth/logout" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "{}" {
			t.Errorf("body = %q, want {}", body)
		}
		if _, err := r.Cookie("connect.sid"); err != nil {
			t.Error("ログアウトはセッションCookie付きで送信されるべき")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{SessionCookieName: "connect.sid", SessionCookieValue: "abc"})
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout がエラーを返した: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("呼び出し回数 = %d, want 1", calls)
	}
}

func TestClient_Logout_Non2xx_ReturnsHTTPStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, buf := newTestClient(t, server, Config{})
	err := c.Logout(context.Background())
	assertKind(t, err, model.ClientErrorHTTPStatus)

	var ce *model.ClientError
	if errors.As(err, &ce) && ce.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", ce.StatusCode)
	}
	if !strings.Contains(buf.String(), "http_status") {
		t.Errorf("エラーステータスがログに記録されるべき: %s", buf.String())
	}
}

func TestClient_Members(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/api/members",
		`[{"id":1,"discordId":"100","discordName":"alice","nickname":"Alice"},{"id":2,"nickname":"Bob"}]`))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{})
	members, err := c.Members(context.Background())
	if err != nil {
		t.Fatalf("Members がエラーを返した: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("len = %d, want 2", len(members))
	}
	if members[0].ID != 1 || !members[0].HasDiscord() || *members[0].DiscordName != "alice" {
		t.Errorf("members[0] = %+v", members[0])
	}
	if members[1].HasDiscord() || members[1].Nickname != "Bob" {
		t.Errorf("members[1] = %+v", members[1])
	}
}

func TestClient_Members_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"null", `null`},
		{"オブジェクト", `{"members":[]}`},
		{"id欠落", `[{"nickname":"x"}]`},
		{"idが文字列", `[{"id":"1"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(jsonHandler(t, "/api/members", tt.body))
			defer server.Close()

			c, _ := newTestClient(t, server, Config{})
			_, err := c.Members(context.Background())
			assertKind(t, err, model.ClientErrorMalformed)
		})
	}
}

func TestClient_OnlineCount(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/api/getOnlineCount", `{"onlineCount":42}`))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{})
	count, err := c.OnlineCount(context.Background())
	if err != nil {
		t.Fatalf("OnlineCount がエラーを返した: %v", err)
	}
	if count != 42 {
		t.Errorf("OnlineCount = %d, want 42", count)
	}
}

func TestClient_OnlineCount_Malformed(t *testing.T) {
	for _, body := range []string{`{}`, `{"onlineCount":"42"}`, `{"onlineCount":-1}`, `42`} {
		server := httptest.NewServer(jsonHandler(t, "/api/getOnlineCount", body))

		c, _ := newTestClient(t, server, Config{})
		_, err := c.OnlineCount(context.Background())
		server.Close()

		assertKind(t, err, model.ClientErrorMalformed)
	}
}

func TestClient_DiscordUsers_PassThrough(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/api/discordUsers",
		`[{"id":"1","username":"a","roles":["x"]},{"id":"2"}]`))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{})
	users, err := c.DiscordUsers(context.Background())
	if err != nil {
		t.Fatalf("DiscordUsers がエラーを返した: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("len = %d, want 2", len(users))
	}
	if string(users[0]) != `{"id":"1","username":"a","roles":["x"]}` {
		t.Errorf("users[0] = %s", users[0])
	}
}

func TestClient_DiscordUsers_NonObjectElement_Malformed(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/api/discordUsers", `[{"id":"1"}, 5]`))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{})
	_, err := c.DiscordUsers(context.Background())
	assertKind(t, err, model.ClientErrorMalformed)
}

func TestClient_ResponseTooLarge_Malformed(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/api/members", `[{"id":1,"nickname":"aaaaaaaaaaaaaaaaaaaa"}]`))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{MaxResponseSize: 10})
	_, err := c.Members(context.Background())
	assertKind(t, err, model.ClientErrorMalformed)
}

func TestClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c, buf := newTestClient(t, server, Config{})
	server.Close() // 接続できない状態にする

	_, err := c.Members(context.Background())
	assertKind(t, err, model.ClientErrorTransport)

	if !strings.Contains(buf.String(), "バックエンドAPIの呼び出しに失敗しました") {
		t.Errorf("通信エラーがログに記録されるべき: %s", buf.String())
	}
}

func TestClient_CancelledContext_Transport(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/api/members", `[]`))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Members(ctx)
	assertKind(t, err, model.ClientErrorTransport)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("context.Canceled を辿れるべき: %v", err)
	}
}

func TestClient_RateLimiter_PacesRequests(t *testing.T) {
	server := httptest.NewServer(jsonHandler(t, "/api/getOnlineCount", `{"onlineCount":1}`))
	defer server.Close()

	// 20 req/sec、バースト1: 3回目の呼び出しまでに少なくとも約100ms待つ
	c, _ := newTestClient(t, server, Config{RatePerSec: 20, Burst: 1})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.OnlineCount(context.Background()); err != nil {
			t.Fatalf("OnlineCount がエラーを返した: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("elapsed = %v, レート制限により80ms以上かかるべき", elapsed)
	}
}
