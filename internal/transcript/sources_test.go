package transcript

import (
	"testing"
)

const answerWithSources = `Photosynthesis converts light into chemical energy.

---
**Sources:**
- [Photosynthesis Overview](https://www.biology.example.com/photo) — Introductory article
- [Light Reactions](https://example.org/light)
`

func TestParseSources(t *testing.T) {
	citations, display := ParseSources(answerWithSources)

	if display != "Photosynthesis converts light into chemical energy." {
		t.Errorf("display = %q", display)
	}
	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2: %+v", len(citations), citations)
	}

	first := citations[0]
	if first.Title != "Photosynthesis Overview" {
		t.Errorf("title = %q", first.Title)
	}
	if first.URL != "https://www.biology.example.com/photo" {
		t.Errorf("url = %q", first.URL)
	}
	if first.Description != "Introductory article" {
		t.Errorf("description = %q", first.Description)
	}
	if first.Domain != "biology.example.com" {
		t.Errorf("domain = %q, want www. stripped", first.Domain)
	}

	second := citations[1]
	if second.Description != "" {
		t.Errorf("description = %q, want empty", second.Description)
	}
	if second.Domain != "example.org" {
		t.Errorf("domain = %q", second.Domain)
	}
}

func TestParseSourcesAbsent(t *testing.T) {
	text := "Just an answer with --- a rule but no sources label."
	citations, display := ParseSources(text)
	if len(citations) != 0 {
		t.Errorf("citations = %+v, want none", citations)
	}
	if display != text {
		t.Errorf("display = %q, want unchanged", display)
	}
}

func TestParseSourcesIdempotent(t *testing.T) {
	_, display := ParseSources(answerWithSources)
	citations, again := ParseSources(display)
	if len(citations) != 0 {
		t.Errorf("second parse found citations: %+v", citations)
	}
	if again != display {
		t.Errorf("second parse changed text: %q -> %q", display, again)
	}
}

func TestParseSourcesLenient(t *testing.T) {
	text := `Answer text.

---
**Sources:**
- [Good One](https://a.example.com)
- this line has no link at all
- [Good Two](https://b.example.com) — desc
`
	citations, display := ParseSources(text)
	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2: %+v", len(citations), citations)
	}
	if citations[0].Title != "Good One" || citations[1].Title != "Good Two" {
		t.Errorf("order not preserved: %+v", citations)
	}
	if display != "Answer text." {
		t.Errorf("display = %q, block not fully removed", display)
	}
}

func TestParseSourcesNumberedList(t *testing.T) {
	text := `Fact.

---
**Sources:**
1. [First - Reference](https://one.example.com)
2. [Second - Reference](https://two.example.com)
`
	citations, _ := ParseSources(text)
	if len(citations) != 2 {
		t.Fatalf("got %d citations, want 2: %+v", len(citations), citations)
	}
}

func TestExtractDomainFallback(t *testing.T) {
	text := `X.

---
**Sources:**
- [Broken](not a real url)
`
	citations, _ := ParseSources(text)
	if len(citations) != 1 {
		t.Fatalf("got %d citations: %+v", len(citations), citations)
	}
	if citations[0].Domain != "not a real url" {
		t.Errorf("domain = %q, want raw fallback", citations[0].Domain)
	}
}
