package provider

import "testing"

func TestHTTPStatusError(t *testing.T) {
	e := &HTTPStatusError{URL: "https://www.loteriasyapuestas.es/es/la-quiniela", StatusCode: 302, Location: "/es/login"}
	if got, want := e.Error(), "HTTP 302 www.loteriasyapuestas.es -> /es/login"; got != want {
		t.Fatalf("期望 %q，实际 %q", want, got)
	}
	if e.Temporary() {
		t.Fatalf("302 不应视为临时错误")
	}
	for _, code := range []int{429, 500, 503} {
		if !(&HTTPStatusError{StatusCode: code}).Temporary() {
			t.Fatalf("期望 %d 为临时错误", code)
		}
	}
	if got := (&HTTPStatusError{StatusCode: 404}).Error(); got != "HTTP 404" {
		t.Fatalf("期望 HTTP 404，实际 %q", got)
	}
}

func TestBlockedError(t *testing.T) {
	if got := (&BlockedError{URL: "https://resultados.as.com/quiniela/", Reason: "captcha"}).Error(); got != "blocked by resultados.as.com: captcha" {
		t.Fatalf("实际 %q", got)
	}
	if got := (&BlockedError{}).Error(); got != "blocked: unknown" {
		t.Fatalf("实际 %q", got)
	}
	var nilErr *BlockedError
	if got := nilErr.Error(); got != "blocked" {
		t.Fatalf("实际 %q", got)
	}
}
