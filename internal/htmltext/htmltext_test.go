package htmltext

import "testing"

func TestRender_BlocksAndCells(t *testing.T) {
	page := `<html><head><title>Quiniela</title><style>p{}</style></head><body>
<script>var partidos = [];</script>
<table><tr><td>Celta</td><td>-</td><td>Betis</td></tr><tr><td>Getafe</td><td>Mallorca</td></tr></table>
<p>Pleno&nbsp;al 15</p><noscript>activa JS</noscript>
</body></html>`

	got, err := Render([]byte(page))
	if err != nil {
		t.Fatalf("渲染失败：%v", err)
	}
	if want := "Celta - Betis\nGetafe Mallorca\nPleno al 15"; got != want {
		t.Fatalf("期望 %q，实际 %q", want, got)
	}
}

func TestRender_InlineStaysOnLine(t *testing.T) {
	got, err := Render([]byte(`<div><span>Real</span> <b>Sociedad</b> - <a href="#">Osasuna</a></div><div>Elche</div>`))
	if err != nil {
		t.Fatalf("渲染失败：%v", err)
	}
	if want := "Real Sociedad - Osasuna\nElche"; got != want {
		t.Fatalf("期望 %q，实际 %q", want, got)
	}
}

func TestMarkdown_StripsMarkup(t *testing.T) {
	page := `<h2>Jornada 5</h2><p>Real <strong>Madrid</strong> - <a href="/equipos/betis">Betis</a></p><img src="/logo.png" alt="logo">`

	got, err := Markdown([]byte(page), "www.loteriasyapuestas.es")
	if err != nil {
		t.Fatalf("渲染失败：%v", err)
	}
	if want := "Jornada 5\nReal Madrid - Betis"; got != want {
		t.Fatalf("期望 %q，实际 %q", want, got)
	}
}

func TestTidy(t *testing.T) {
	if got := tidy("  a  \n\n\t\nb c\n"); got != "a\nb c" {
		t.Fatalf("期望 %q，实际 %q", "a\nb c", got)
	}
}
