package memory

import (
	"context"
	"testing"

	"github.com/JakeFAU/newsdesk-sync/internal/crawler"
)

func TestPublisherStoresDocuments(t *testing.T) {
	t.Parallel()

	pub := New()
	if !pub.Publish(context.Background(), crawler.Article{Title: "a/b", URL: "https://x/1", Body: "one"}) {
		t.Fatal("expected first publish to succeed")
	}
	if !pub.Publish(context.Background(), crawler.Article{Title: "second", URL: "https://x/2", Body: "two"}) {
		t.Fatal("expected second publish to succeed")
	}

	docs := pub.Documents()
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(docs))
	}
	if docs[0].Name != "a-b" || docs[1].Name != "second" {
		t.Fatalf("names not rendered correctly: %+v", docs)
	}

	docs[0].Name = "modified"
	if pub.Documents()[0].Name == "modified" {
		t.Fatal("expected Documents() to return a copy")
	}
}

func TestPublisherRejecter(t *testing.T) {
	t.Parallel()

	pub := New(WithRejecter(func(a crawler.Article) bool { return a.Title == "bad" }))
	if pub.Publish(context.Background(), crawler.Article{Title: "bad"}) {
		t.Fatal("expected rejected publish to fail")
	}
	if !pub.Publish(context.Background(), crawler.Article{Title: "good"}) {
		t.Fatal("expected publish to succeed")
	}
	if got := len(pub.Documents()); got != 1 {
		t.Fatalf("expected 1 recorded document, got %d", got)
	}
}
