package cipher

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"corpus-obfuscator/internal/metrics"
)

const russianLetters = "абвгдеёжзийклмнопрстуфхцчшщъыьэюяАБВГДЕЁЖЗИЙКЛМНОПРСТУФХЦЧШЩЪЫЬЭЮЯ"

func TestEveryCyrillicLetterHasOneClass(t *testing.T) {
	for _, r := range russianLetters {
		if ClassOf(r) == Other {
			t.Errorf("%q has no letter class", r)
		}
	}
	for _, r := range "AZaz09-'’ .«" {
		if ClassOf(r) != Other {
			t.Errorf("%q: got %v, want other", r, ClassOf(r))
		}
	}
}

func TestSubstitute_Involution(t *testing.T) {
	for _, r := range russianLetters {
		if got := Substitute(Substitute(r)); got != r {
			t.Errorf("Substitute twice on %q = %q", r, got)
		}
		if ClassOf(Substitute(r)) != ClassOf(r) {
			t.Errorf("%q changes class under substitution", r)
		}
	}
}

func TestSubstitute_ImmutableUnchanged(t *testing.T) {
	for _, r := range "нйкмлартпхъьяНЙКМЛАРТПХЪЬЯ" {
		if Substitute(r) != r {
			t.Errorf("immutable %q substituted to %q", r, Substitute(r))
		}
	}
}

func TestPlain(t *testing.T) {
	cases := map[string]string{
		"машина":             "мащына",
		"Звезда Смерти":      "Жбёжга Фмёрты",
		"X-wing истребитель": "X-wing ыфтрёвытёль",
		"":                   "",
	}
	for in, want := range cases {
		if got := Plain(in); got != want {
			t.Errorf("Plain(%q) = %q, want %q", in, got, want)
		}
		if back := Plain(Plain(in)); back != in {
			t.Errorf("Plain is not an involution on %q: %q", in, back)
		}
	}
}

func TestIsQuoted(t *testing.T) {
	cases := map[string]bool{
		`"хороший дроид"`: true,
		"«большой»":       true,
		"»большой«":       true,
		`"`:               false,
		"«»":              true,
		"«большой":        false,
		"большой»":        false,
		"дроид":           false,
	}
	for in, want := range cases {
		if got := IsQuoted(in); got != want {
			t.Errorf("IsQuoted(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestQuoted(t *testing.T) {
	cases := map[string]string{
		`"хороший дроид"`:        `"плохой дроид"`,
		"«Большой  и добрый»":    "«Маленький  и скверный»",
		"»огромный, крошечный!«": "«крошечный, огромный!»",
		`"неизвестное слово"`:    `"неизвестное слово"`,
	}
	for in, want := range cases {
		if got := Quoted(in); got != want {
			t.Errorf("Quoted(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLine_ChoosesTreatment(t *testing.T) {
	if got := Line("«хороший»"); got != "«плохой»" {
		t.Errorf("quoted: got %q", got)
	}
	if got := Line("хороший"); got != "хюрющый" {
		t.Errorf("plain: got %q", got)
	}
}

func TestDuplicateWords(t *testing.T) {
	lines := []string{
		"Звёздный разрушитель",
		"разрушитель класса Имперский",
		"звёздный флот, Звёздный путь",
		"д'артаньян",
		"Д'Артаньян - мушкетёр",
	}
	want := []Duplicate{
		{Word: "звёздный", Lines: []int{1, 3}},
		{Word: "разрушитель", Lines: []int{1, 2}},
		{Word: "д'артаньян", Lines: []int{4, 5}},
	}
	if diff := cmp.Diff(want, DuplicateWords(lines)); diff != "" {
		t.Errorf("DuplicateWords (-want +got):\n%s", diff)
	}
}

func TestRun(t *testing.T) {
	m := &metrics.Metrics{}
	res := Run([]string{"машина", "«хороший»", "Бластер", "машина времени"}, m)

	wantTerms := []string{"«хороший»", "Бластер", "машина", "машина времени"}
	if diff := cmp.Diff(wantTerms, res.Terms); diff != "" {
		t.Errorf("sorted terms (-want +got):\n%s", diff)
	}
	wantLines := []string{"«плохой»", "Влафтёр", "мащына", "мащына брёмёны"}
	if diff := cmp.Diff(wantLines, res.Lines); diff != "" {
		t.Errorf("ciphered lines (-want +got):\n%s", diff)
	}
	if res.Quoted != 1 || m.QuotedTerms.Load() != 1 {
		t.Errorf("quoted count: %d / %d", res.Quoted, m.QuotedTerms.Load())
	}
	if m.TermsCiphered.Load() != 4 {
		t.Errorf("TermsCiphered: %d", m.TermsCiphered.Load())
	}
	if v, _ := res.LineMap.Get("машина"); v != "мащына" {
		t.Errorf("line map: %q", v)
	}
	if len(res.Duplicates) != 1 || res.Duplicates[0].Word != "машина" {
		t.Errorf("duplicates: %+v", res.Duplicates)
	}
}
