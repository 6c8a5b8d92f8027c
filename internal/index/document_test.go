package index

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	data := []byte(`[
		{"url": "/it/I/1/1", "title": "Scarsità", "content": "testo"},
		42,
		"stringa",
		null,
		{"url": "/it/I/1/2"},
		{"url": 7, "title": ["x"], "content": "solo contenuto"}
	]`)
	docs, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []Document{
		{URL: "/it/I/1/1", Title: "Scarsità", Content: "testo"},
		{URL: "/it/I/1/2"},
		{Content: "solo contenuto"},
	}
	if len(docs) != len(want) {
		t.Fatalf("got %d documents, want %d: %+v", len(docs), len(want), docs)
	}
	for i := range want {
		if docs[i] != want[i] {
			t.Errorf("doc %d = %+v, want %+v", i, docs[i], want[i])
		}
	}
}

func TestDecodeEmptyArray(t *testing.T) {
	docs, err := Decode([]byte(`[]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("expected no documents, got %d", len(docs))
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"truncated", `[{"url": "/it/I/1/1"`, ErrMalformedIndex},
		{"garbage", `<html>`, ErrMalformedIndex},
		{"empty", ``, ErrMalformedIndex},
		{"object", `{"url": "/it/I/1/1"}`, ErrNotArray},
		{"number", `3`, ErrNotArray},
		{"null", `null`, ErrNotArray},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}
