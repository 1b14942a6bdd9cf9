package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/tasksparkle/internal/tunnel"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func newTestServer(t *testing.T, r chi.Router) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

const localtunnelPage = `<!DOCTYPE html>
<html><head><title>Tunnel website ahead!</title></head>
<body><p>This website is served for free via a localtunnel.</p></body></html>`

func TestRequestSetsHeaders(t *testing.T) {
	var got http.Header
	r := chi.NewRouter()
	r.Get("/filhos", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`[]`))
	})
	srv := newTestServer(t, r)

	c := New(srv.URL, staticToken("tok-123"))
	if _, err := c.ListChildren(context.Background()); err != nil {
		t.Fatalf("list children: %v", err)
	}

	if v := got.Get("Authorization"); v != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want %q", v, "Bearer tok-123")
	}
	if v := got.Get("Content-Type"); v != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", v)
	}
	if v := got.Get("X-Request-ID"); v == "" {
		t.Error("expected X-Request-ID header")
	}
	if v := got.Get("Bypass-Tunnel-Reminder"); v != "" {
		t.Errorf("unexpected bypass header for non-tunnel host: %q", v)
	}
}

func TestRequestNoTokenNoAuthorization(t *testing.T) {
	var auth string
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{"message":"ok","token":"t","nome":"Maria"}`))
	})
	srv := newTestServer(t, r)

	c := New(srv.URL, staticToken(""))
	resp, err := c.Login(context.Background(), "m@example.com", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if auth != "" {
		t.Errorf("Authorization = %q, want empty", auth)
	}
	if resp.Token != "t" || resp.Name != "Maria" {
		t.Errorf("login response = %+v", resp)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/tarefas", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Request-ID")
		w.Write([]byte(`[]`))
	})
	srv := newTestServer(t, r)

	c := New(srv.URL, nil)
	ctx := WithRequestID(context.Background(), "req-42")
	if _, err := c.ListTasks(ctx); err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if got != "req-42" {
		t.Errorf("X-Request-ID = %q, want %q", got, "req-42")
	}
}

func TestTunnelBypassHeaders(t *testing.T) {
	var got *http.Request
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = r
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(`[]`)),
			Header:     http.Header{},
		}, nil
	})}

	c := New("https://sparkle.loca.lt/", nil, WithHTTPClient(hc))
	if _, err := c.ListRewards(context.Background()); err != nil {
		t.Fatalf("list rewards: %v", err)
	}
	if got.URL.String() != "https://sparkle.loca.lt/recompensas" {
		t.Errorf("url = %q", got.URL.String())
	}
	if v := got.Header.Get("Bypass-Tunnel-Reminder"); v != "true" {
		t.Errorf("Bypass-Tunnel-Reminder = %q, want true", v)
	}
	if v := got.Header.Get("User-Agent"); v != defaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", v, defaultUserAgent)
	}
}

func TestRequestEmptySuccess(t *testing.T) {
	r := chi.NewRouter()
	r.Delete("/tarefas/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/pontuar", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := newTestServer(t, r)
	c := New(srv.URL, nil)

	if err := c.DeleteTask(context.Background(), 3); err != nil {
		t.Fatalf("delete task: %v", err)
	}

	out := map[string]int{"total": 99}
	if err := c.Request(context.Background(), http.MethodPost, "/pontuar", nil, &out); err != nil {
		t.Fatalf("empty 200: %v", err)
	}
	if out["total"] != 99 {
		t.Errorf("out modified on empty body: %v", out)
	}
}

func TestRequestTunnelPage(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusServiceUnavailable} {
		r := chi.NewRouter()
		r.Get("/filhos", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(status)
			w.Write([]byte(localtunnelPage))
		})
		srv := httptest.NewServer(r)

		c := New(srv.URL, nil)
		_, err := c.ListChildren(context.Background())
		srv.Close()

		var ce *ConnectivityError
		if !errors.As(err, &ce) {
			t.Fatalf("status %d: err = %v, want *ConnectivityError", status, err)
		}
		if ce.Tunnel == nil || ce.Tunnel.Provider != tunnel.ProviderLocaltunnel {
			t.Errorf("status %d: tunnel = %+v, want localtunnel", status, ce.Tunnel)
		}
		if !strings.Contains(ce.Error(), srv.URL) {
			t.Errorf("status %d: message %q does not name the base URL", status, ce.Error())
		}
		if !IsConnectivity(err) {
			t.Errorf("status %d: IsConnectivity = false", status)
		}
	}
}

func TestRequestGenericHTML(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/recompensas", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html><head><title>502 Bad Gateway</title></head><body>nginx</body></html>"))
	})
	srv := newTestServer(t, r)

	_, err := New(srv.URL, nil).ListRewards(context.Background())
	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConnectivityError", err)
	}
	if ce.Tunnel.Provider != tunnel.ProviderNone {
		t.Errorf("provider = %q, want none", ce.Tunnel.Provider)
	}
	if ce.Tunnel.Title != "502 Bad Gateway" {
		t.Errorf("title = %q, want %q", ce.Tunnel.Title, "502 Bad Gateway")
	}
	if !strings.Contains(ce.Error(), "HTML") {
		t.Errorf("message %q should mention HTML", ce.Error())
	}
}

func TestRequestJSONWithMarkerTextDecodes(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/filhos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":2,"nome":"Leo (localtunnel fan)","usuario_id":1},{"id":3,"nome":"You are about to visit grandma","usuario_id":1}]`))
	})
	srv := newTestServer(t, r)

	children, err := New(srv.URL, nil).ListChildren(context.Background())
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 2 || children[0].Name != "Leo (localtunnel fan)" {
		t.Errorf("children = %+v", children)
	}
}

func TestRequestJSONErrorWithMarkerText(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/filhos", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"Filho localtunnel já existe"}`))
	})
	srv := newTestServer(t, r)

	_, err := New(srv.URL, nil).CreateChild(context.Background(), "localtunnel")
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if ae.Message != "Filho localtunnel já existe" {
		t.Errorf("message = %q", ae.Message)
	}
}

func TestRequestAPIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"json error field", http.StatusUnauthorized, `{"error":"Credenciais inválidas"}`, "Credenciais inválidas"},
		{"json message field", http.StatusBadRequest, `{"message":"Nome obrigatório"}`, "Nome obrigatório"},
		{"plain text", http.StatusBadRequest, "  saldo insuficiente \n", "saldo insuficiente"},
		{"empty body", http.StatusInternalServerError, "", "Erro 500: Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/resgatar", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			srv := newTestServer(t, r)

			_, err := New(srv.URL, nil).Redeem(context.Background(), 1, 2)
			var ae *APIError
			if !errors.As(err, &ae) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if ae.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", ae.StatusCode, tt.status)
			}
			if ae.Message != tt.want {
				t.Errorf("message = %q, want %q", ae.Message, tt.want)
			}
			if IsConnectivity(err) {
				t.Error("APIError should not count as connectivity")
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode = %d, want %d", StatusCode(err), tt.status)
			}
		})
	}
}

func TestRequestMalformedJSON(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/pontuacao/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("total: seven"))
	})
	srv := newTestServer(t, r)

	_, err := New(srv.URL, nil).Score(context.Background(), 1)
	var me *MalformedResponseError
	if !errors.As(err, &me) {
		t.Fatalf("err = %v, want *MalformedResponseError", err)
	}
	if !IsConnectivity(err) {
		t.Error("malformed response should count as connectivity")
	}
}

func TestRequestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil).ListChildren(context.Background())
	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConnectivityError", err)
	}
	if ce.Err == nil {
		t.Error("expected wrapped transport error")
	}
	if ce.Tunnel != nil {
		t.Error("transport failure should carry no tunnel diagnosis")
	}
}

func TestAdjustScoreBody(t *testing.T) {
	var bodies []map[string]any
	r := chi.NewRouter()
	r.Post("/pontuar", func(w http.ResponseWriter, r *http.Request) {
		var b map[string]any
		json.NewDecoder(r.Body).Decode(&b)
		bodies = append(bodies, b)
		w.Write([]byte(`{"total":11}`))
	})
	srv := newTestServer(t, r)
	c := New(srv.URL, nil)

	total, err := c.AdjustScore(context.Background(), 7, 1, "Tarefa: Arrumar cama - Data: 2024-05-01")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if total != 11 {
		t.Errorf("total = %d, want 11", total)
	}
	if _, err := c.AdjustScore(context.Background(), 7, -2, ""); err != nil {
		t.Fatalf("adjust without description: %v", err)
	}

	if bodies[0]["filho_id"] != float64(7) || bodies[0]["valor"] != float64(1) {
		t.Errorf("body = %v", bodies[0])
	}
	if bodies[0]["descricao"] != "Tarefa: Arrumar cama - Data: 2024-05-01" {
		t.Errorf("descricao = %v", bodies[0]["descricao"])
	}
	if _, ok := bodies[1]["descricao"]; ok {
		t.Errorf("empty description should be omitted: %v", bodies[1])
	}
}

func TestCatalogEndpoints(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/filhos", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"message":"criado","filho":{"id":5,"nome":"Ana","usuario_id":1}}`))
	})
	r.Post("/tarefas", func(w http.ResponseWriter, r *http.Request) {
		var b map[string]any
		json.NewDecoder(r.Body).Decode(&b)
		if b["nome"] != "Escovar dentes" || b["valor"] != float64(2) {
			t.Errorf("task body = %v", b)
		}
		w.Write([]byte(`{"message":"criada","tarefa":{"id":9,"nome":"Escovar dentes","valor":2}}`))
	})
	r.Post("/recompensas", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"criada","recompensa":{"id":3,"nome":"Sorvete","custo":10}}`))
	})
	r.Delete("/recompensas/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "3" {
			t.Errorf("delete id = %q, want 3", chi.URLParam(r, "id"))
		}
		w.Write([]byte(`{"message":"removida"}`))
	})
	r.Get("/premios-resgatados/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"recompensa_id":3,"nome":"Sorvete","custo":10,"data_resgate":"2024-05-01T10:00:00Z","filho_id":5}]`))
	})
	srv := newTestServer(t, r)
	c := New(srv.URL, nil)
	ctx := context.Background()

	child, err := c.CreateChild(ctx, "Ana")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if child.ID != 5 || child.Name != "Ana" {
		t.Errorf("child = %+v", child)
	}

	task, err := c.CreateTask(ctx, "Escovar dentes", 2)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	if task.ID != 9 || task.PointValue != 2 {
		t.Errorf("task = %+v", task)
	}

	reward, err := c.CreateReward(ctx, "Sorvete", 10)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if reward.Cost != 10 {
		t.Errorf("reward cost = %d, want 10", reward.Cost)
	}
	if err := c.DeleteReward(ctx, 3); err != nil {
		t.Fatalf("delete reward: %v", err)
	}

	history, err := c.ListRedeemed(ctx, 5)
	if err != nil {
		t.Fatalf("list redeemed: %v", err)
	}
	if len(history) != 1 || history[0].RewardID != 3 || history[0].ChildID != 5 {
		t.Errorf("history = %+v", history)
	}
}

func TestRoundTripLogging(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/tarefas", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	srv := newTestServer(t, r)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := New(srv.URL, nil, WithLogger(logger))

	ctx := WithRequestID(context.Background(), "req-log")
	if _, err := c.ListTasks(ctx); err != nil {
		t.Fatalf("list tasks: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"msg=\"round trip\"", "path=/tarefas", "status=200", "request_id=req-log"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
