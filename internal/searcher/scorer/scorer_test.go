package scorer

import (
	"testing"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/parser"
)

func doc(content string) index.Document {
	return index.Document{URL: "/it/I/1/1", Content: content}
}

func TestScoreRequiresEveryToken(t *testing.T) {
	d := doc("Il mercato fissa il prezzo di equilibrio.")
	if _, ok := ScoreDocument(d, parser.Parse("mercato prezzo")); !ok {
		t.Error("expected document with both tokens to pass")
	}
	if _, ok := ScoreDocument(d, parser.Parse("mercato salario")); ok {
		t.Error("expected document missing one token to fail")
	}
}

func TestScorePhraseIsContiguous(t *testing.T) {
	inOrder := doc("Adverse selection arises in insurance markets.")
	reversed := doc("The selection was adverse to the buyer.")

	phrase := parser.Parse(`"adverse selection"`)
	if _, ok := ScoreDocument(inOrder, phrase); !ok {
		t.Error("expected contiguous phrase to pass")
	}
	if _, ok := ScoreDocument(reversed, phrase); ok {
		t.Error("expected reversed words to fail phrase match")
	}

	tokens := parser.Parse("adverse selection")
	for _, d := range []index.Document{inOrder, reversed} {
		if _, ok := ScoreDocument(d, tokens); !ok {
			t.Errorf("expected unquoted tokens to match %q", d.Content)
		}
	}
}

func TestScoreBlankQueryNeverPasses(t *testing.T) {
	d := doc("qualunque testo")
	for _, q := range []string{"", "   ", `""`, "?!"} {
		if _, ok := ScoreDocument(d, parser.Parse(q)); ok {
			t.Errorf("query %q should not pass", q)
		}
	}
	if _, ok := Score(NewHaystack(d), nil); ok {
		t.Error("nil query should not pass")
	}
}

func TestScoreIgnoresDiacritics(t *testing.T) {
	if _, ok := ScoreDocument(doc("Perché il mercato fallisce"), parser.Parse("perche")); !ok {
		t.Error("expected perche to match Perché")
	}
	if _, ok := ScoreDocument(doc("perche il mercato fallisce"), parser.Parse("PERCHÉ")); !ok {
		t.Error("expected PERCHÉ to match perche")
	}
}

func TestScoreTightFallback(t *testing.T) {
	split := doc("il costo marg inale cresce")
	if _, ok := ScoreDocument(split, parser.Parse("marginale")); !ok {
		t.Error("expected tight form to rescue a split word")
	}
	if _, ok := ScoreDocument(split, parser.Parse(`"costo marginale"`)); !ok {
		t.Error("expected tight form to rescue a split phrase")
	}
	if _, ok := ScoreDocument(doc("a b"), parser.Parse("ab")); ok {
		t.Error("short tokens must not use the tight form")
	}
}

func TestScoreEmptyDocumentFails(t *testing.T) {
	if _, ok := ScoreDocument(index.Document{}, parser.Parse("mercato")); ok {
		t.Error("empty document should never pass")
	}
}

func TestScoreTitleIsSearched(t *testing.T) {
	d := index.Document{URL: "/it/I/1/1", Title: "Elasticità", Content: "testo del paragrafo"}
	if _, ok := ScoreDocument(d, parser.Parse("elasticita")); !ok {
		t.Error("expected title to be part of the haystack")
	}
}

func TestScoreIgnoresDisplayMath(t *testing.T) {
	d := doc("Testo $$mercato$$ altro testo")
	if _, ok := ScoreDocument(d, parser.Parse("mercato")); ok {
		t.Error("display math should not be searchable")
	}
}

func TestScoreValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		query   string
		want    int
	}{
		{"token at start", "mercato", "mercato", proximityWindow + tokenWeight},
		{"token twice", "mercato mercato", "mercato", proximityWindow + 2*tokenWeight},
		{"phrase at start", "adverse selection", `"adverse selection"`, proximityWindow + phraseWeight},
		{"token and phrase", "adverse selection", `adverse "adverse selection"`, 2*proximityWindow + tokenWeight + phraseWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ScoreDocument(doc(tt.content), parser.Parse(tt.query))
			if !ok {
				t.Fatal("expected match")
			}
			if got != tt.want {
				t.Errorf("score = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestScoreRewardsEarlyMatch(t *testing.T) {
	q := parser.Parse("mercato")
	early, _ := ScoreDocument(doc("mercato e prezzi"), q)
	late, _ := ScoreDocument(doc("prezzi salari redditi e infine il mercato"), q)
	if early <= late {
		t.Errorf("expected early match to score higher: early=%d late=%d", early, late)
	}
}

func TestScoreProximityFloorsAtZero(t *testing.T) {
	padding := make([]byte, 0, 12000)
	for len(padding) < 11000 {
		padding = append(padding, "parola "...)
	}
	got, ok := ScoreDocument(doc(string(padding)+"mercato"), parser.Parse("mercato"))
	if !ok {
		t.Fatal("expected match")
	}
	if got != tokenWeight {
		t.Errorf("score = %d, want %d", got, tokenWeight)
	}
}

func TestOccurrenceCount(t *testing.T) {
	tests := []struct {
		hay, needle string
		want        int
	}{
		{"", "a", 0},
		{"abc", "", 0},
		{"aaaa", "aa", 2},
		{"mercato e mercati", "mercat", 2},
		{"perché perché", "perché", 2},
	}
	for _, tt := range tests {
		if got := OccurrenceCount(tt.hay, tt.needle); got != tt.want {
			t.Errorf("OccurrenceCount(%q, %q) = %d, want %d", tt.hay, tt.needle, got, tt.want)
		}
	}
}

func TestRuneIndex(t *testing.T) {
	if got := runeIndex("è così", "così"); got != 2 {
		t.Errorf("runeIndex = %d, want 2", got)
	}
	if got := runeIndex("abc", "z"); got != -1 {
		t.Errorf("runeIndex = %d, want -1", got)
	}
}
