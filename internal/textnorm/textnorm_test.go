package textnorm

import (
	"reflect"
	"testing"
)

func TestNormalize_Dashes(t *testing.T) {
	cases := map[string]string{
		"Real Madrid – Barcelona":       "Real Madrid - Barcelona",
		"Celta—Rayo":                    "Celta - Rayo",
		"Getafe&ndash;Sevilla":          "Getafe - Sevilla",
		"Getafe &#8211; Sevilla":        "Getafe - Sevilla",
		"Betis−Osasuna":            "Betis - Osasuna",
		"Celta.-Rayo":                   "Celta - Rayo",
		"Celta . - Rayo":                "Celta . - Rayo",
		"  Athletic\t\t- Girona  ": "Athletic - Girona",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q)：期望 %q，实际 %q", in, want, got)
		}
	}
}

func TestNormalize_KeepsLineBreaks(t *testing.T) {
	got := Normalize("1.Ajax - Olimpiacos\r\n2.Celtic   -  Bodo/Glimt\r\n")
	if want := "1.Ajax - Olimpiacos\n2.Celtic - Bodo/Glimt"; got != want {
		t.Fatalf("期望 %q，实际 %q", want, got)
	}
}

func TestNormalize_PlenoTag(t *testing.T) {
	for _, in := range []string{"P-15 Getafe – R.Sociedad", "P – 15 Getafe - R.Sociedad"} {
		if got := Normalize(in); got != "P15 Getafe - R.Sociedad" {
			t.Fatalf("Normalize(%q)：期望 P15 标记，实际 %q", in, got)
		}
	}
}

func TestNormalize_Empty(t *testing.T) {
	for _, in := range []string{"", " \n\t "} {
		if got := Normalize(in); got != "" {
			t.Fatalf("Normalize(%q)：期望空串，实际 %q", in, got)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"A.-B.-C",
		"A - - B",
		"P-15 Getafe\nR.Sociedad ....... 15",
		"1X2 – DIA/HORA—PART.\n\n\nCelta—Rayo",
		"Jr. - Celta",
		"&ndash;&nbsp;x&mdash;",
		"Eibar​-　Leganés",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("%q 不幂等：%q -> %q", in, once, twice)
		}
	}
}

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Pronóstico":   "PRONOSTICO",
		"Cádiz Alavés": "CADIZ ALAVES",
		"Español":      "ESPANOL",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Fatalf("Fold(%q)：期望 %q，实际 %q", in, want, got)
		}
	}
}

func TestLinesAndHasSep(t *testing.T) {
	if got := Lines("a\n\n  \nb\n"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("期望 [a b]，实际 %q", got)
	}
	if !HasSep("Celta – Rayo") || HasSep("Celta Rayo") {
		t.Fatalf("HasSep 判断错误")
	}
}
