package shopctx

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"b2b-pricing/internal/model"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    model.ShopContext
		wantErr bool
	}{
		{
			name:   "shop only",
			header: `shop="acme.myshopify.com"`,
			want:   model.ShopContext{Shop: "acme.myshopify.com"},
		},
		{
			name:   "shop and actor",
			header: `shop="Acme.myshopify.com", actor="ops@acme.example"`,
			want:   model.ShopContext{Shop: "acme.myshopify.com", Actor: "ops@acme.example"},
		},
		{
			name:   "token values and unknown members",
			header: `actor=pricectl, other=1, shop="acme.myshopify.com";v=2`,
			want:   model.ShopContext{Shop: "acme.myshopify.com", Actor: "pricectl"},
		},
		{
			name:    "empty header",
			header:  "   ",
			wantErr: true,
		},
		{
			name:    "missing shop",
			header:  `actor="ops"`,
			wantErr: true,
		},
		{
			name:    "shop is a number",
			header:  `shop=42`,
			wantErr: true,
		},
		{
			name:    "shop is an inner list",
			header:  `shop=("a" "b")`,
			wantErr: true,
		},
		{
			name:    "malformed",
			header:  `shop="unterminated`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeader(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseHeader() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHeader() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseHeader() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFormatHeader_RoundTrip(t *testing.T) {
	in := model.ShopContext{Shop: "acme.myshopify.com", Actor: "ops@acme.example"}

	header, err := FormatHeader(in)
	if err != nil {
		t.Fatalf("FormatHeader() error: %v", err)
	}
	if header != `shop="acme.myshopify.com", actor="ops@acme.example"` {
		t.Errorf("FormatHeader() = %s", header)
	}

	out, err := ParseHeader(header)
	if err != nil {
		t.Fatalf("ParseHeader() error: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantCode   string
		want       model.ShopContext
	}{
		{
			name:       "no header uses configured shop",
			path:       "/prices/reconcile",
			wantStatus: http.StatusOK,
			want:       model.ShopContext{Shop: "acme.myshopify.com", RequestID: "req-1"},
		},
		{
			name:       "matching header",
			path:       "/prices/reconcile",
			header:     `shop="acme.myshopify.com", actor="ops"`,
			wantStatus: http.StatusOK,
			want:       model.ShopContext{Shop: "acme.myshopify.com", Actor: "ops", RequestID: "req-1"},
		},
		{
			name:       "other shop",
			path:       "/prices/reconcile",
			header:     `shop="rival.myshopify.com"`,
			wantStatus: http.StatusForbidden,
			wantCode:   "SHOP_MISMATCH",
		},
		{
			name:       "malformed header",
			path:       "/prices/export",
			header:     `shop=`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_SHOP_CONTEXT",
		},
		{
			name:       "webhooks exempt",
			path:       "/webhooks/app-subscriptions-update",
			header:     `shop="rival.myshopify.com"`,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.ShopContext
			var called bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				got, _ = FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", tt.path, nil)
			req.Header.Set(RequestIDHeader, "req-1")
			if tt.header != "" {
				req.Header.Set(Header, tt.header)
			}
			w := httptest.NewRecorder()

			Middleware("ACME.myshopify.com", logger)(next).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if called {
					t.Error("next handler should not run")
				}
				var resp struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				json.NewDecoder(w.Body).Decode(&resp)
				if resp.Error.Code != tt.wantCode {
					t.Errorf("Error code = %s, want %s", resp.Error.Code, tt.wantCode)
				}
				return
			}
			if got != tt.want {
				t.Errorf("ShopContext = %+v, want %+v", got, tt.want)
			}
		})
	}
}
