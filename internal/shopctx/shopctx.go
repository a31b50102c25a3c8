// Package shopctx resolves which shop and caller a request acts for.
//
// Callers identify themselves with the Shop-Context header, an RFC 8941
// dictionary:
//
//	Shop-Context: shop="acme.myshopify.com", actor="ops@acme.example"
//
// The header is optional because the service is bound to one shop; when it is
// present its shop must match the configured one.
package shopctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dunglas/httpsfv"

	"b2b-pricing/internal/model"
)

// Header is the request header carrying the shop context.
const Header = "Shop-Context"

// RequestIDHeader carries the request id assigned by the request-id middleware.
const RequestIDHeader = "X-Request-ID"

type contextKey struct{}

// ParseHeader reads the shop and actor members of a Shop-Context header.
// Unknown members and parameters are ignored.
func ParseHeader(header string) (model.ShopContext, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return model.ShopContext{}, errors.New("empty Shop-Context header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return model.ShopContext{}, fmt.Errorf("invalid Shop-Context header: %w", err)
	}

	shop, err := stringMember(dict, "shop")
	if err != nil {
		return model.ShopContext{}, err
	}
	if shop == "" {
		return model.ShopContext{}, errors.New("shop key not found in Shop-Context header")
	}
	actor, err := stringMember(dict, "actor")
	if err != nil {
		return model.ShopContext{}, err
	}

	return model.ShopContext{Shop: strings.ToLower(shop), Actor: actor}, nil
}

// stringMember returns the string value of key, or "" when key is absent.
func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	member, ok := dict.Get(key)
	if !ok {
		return "", nil
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", fmt.Errorf("%s value must be an item", key)
	}
	switch v := item.Value.(type) {
	case string:
		return v, nil
	case httpsfv.Token:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s value must be a string", key)
	}
}

// FormatHeader serializes sc as a Shop-Context header value.
func FormatHeader(sc model.ShopContext) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("shop", httpsfv.NewItem(sc.Shop))
	if sc.Actor != "" {
		dict.Add("actor", httpsfv.NewItem(sc.Actor))
	}
	return httpsfv.Marshal(dict)
}

// Middleware attaches a ShopContext to every request. Requests naming a
// different shop are rejected with 403, malformed headers with 400.
func Middleware(shop string, logger *slog.Logger) func(http.Handler) http.Handler {
	shop = strings.ToLower(shop)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			sc := model.ShopContext{Shop: shop}
			if header := r.Header.Get(Header); header != "" {
				parsed, err := ParseHeader(header)
				if err != nil {
					logger.Warn("invalid Shop-Context header",
						slog.String("header", header),
						slog.String("error", err.Error()))
					writeError(w, http.StatusBadRequest, "INVALID_SHOP_CONTEXT", err.Error())
					return
				}
				if parsed.Shop != shop {
					logger.Warn("shop mismatch",
						slog.String("requested", parsed.Shop),
						slog.String("configured", shop))
					writeError(w, http.StatusForbidden, "SHOP_MISMATCH",
						fmt.Sprintf("this service does not serve %s", parsed.Shop))
					return
				}
				sc = parsed
			}
			sc.RequestID = r.Header.Get(RequestIDHeader)

			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), sc)))
		})
	}
}

// isExemptPath returns true for paths that authenticate differently or not at all.
func isExemptPath(path string) bool {
	switch {
	case path == "/health" || path == "/healthz":
		return true
	case strings.HasPrefix(path, "/webhooks/"):
		return true
	default:
		return false
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = code
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}

// WithContext returns ctx carrying sc.
func WithContext(ctx context.Context, sc model.ShopContext) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// FromContext returns the ShopContext stored in ctx and whether one was set.
func FromContext(ctx context.Context) (model.ShopContext, bool) {
	sc, ok := ctx.Value(contextKey{}).(model.ShopContext)
	return sc, ok
}
