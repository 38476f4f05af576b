package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsMaxAge       = "86400"
)

// parseAllowedOrigins はカンマ区切りのオリジン一覧を分解する。空要素は無視する。
func parseAllowedOrigins(allowed string) map[string]struct{} {
	origins := make(map[string]struct{})
	for _, o := range strings.Split(allowed, ",") {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" {
			origins[o] = struct{}{}
		}
	}
	return origins
}

// NewCORSMiddleware は許可オリジン一覧（カンマ区切り）に対するCORSミドルウェアを返す。
// Cookieを送るためワイルドカードは使わず、一致したOriginのみをそのまま返す。
// 許可リストが1件でOriginヘッダーがない場合はそのオリジンを返す（同一オリジンの開発環境向け）。
// OPTIONSプリフライトには204で応答する。
func NewCORSMiddleware(allowed string) func(next http.Handler) http.Handler {
	origins := parseAllowedOrigins(allowed)
	var single string
	if len(origins) == 1 {
		for o := range origins {
			single = o
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowOrigin := ""
			if _, ok := origins[origin]; ok {
				allowOrigin = origin
			} else if origin == "" {
				allowOrigin = single
			}

			if allowOrigin != "" {
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", "Content-Type, "+csrfHeaderName)
				h.Set("Access-Control-Expose-Headers", "Retry-After")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
