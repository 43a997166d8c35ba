package extractor

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtract_SinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`
			<html>
			<head><title>Acme Dental</title></head>
			<body>
				<article>
				<h1>Our Services</h1>
				<p>We offer cleanings, fillings and orthodontics. Appointments are available Monday to Friday.</p>
				<h2>Opening Hours</h2>
				<p>We are open from 8am to 6pm on weekdays and 9am to 1pm on Saturdays.</p>
				</article>
			</body>
			</html>
		`))
	}))
	defer server.Close()

	e := New(NewStaticRenderer("test-agent"), Config{Timeout: 5 * time.Second})

	page, err := e.Extract(t.Context(), server.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if page.URL != server.URL {
		t.Errorf("URL = %q, want %q", page.URL, server.URL)
	}
	if page.Title != "Acme Dental" {
		t.Errorf("Title = %q, want %q", page.Title, "Acme Dental")
	}
	if !strings.Contains(page.Content, "cleanings") {
		t.Error("Content should contain body text")
	}
	if page.FetchedAt.IsZero() {
		t.Error("FetchedAt should not be zero")
	}
	if page.RawHTML == "" {
		t.Error("RawHTML should be kept for archiving")
	}
}

func TestExtract_CollectsHeadings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>T</title></head><body>
			<h1>Services</h1><p>text</p>
			<h2>Hours</h2><p>text</p>
			<h3>Location</h3><p>text</p>
		</body></html>`))
	}))
	defer server.Close()

	e := New(NewStaticRenderer("test-agent"), Config{Timeout: 5 * time.Second})

	page, err := e.Extract(t.Context(), server.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	want := []string{"Services", "Hours", "Location"}
	if len(page.Headings) != len(want) {
		t.Fatalf("Headings = %v, want %v", page.Headings, want)
	}
	for i, h := range want {
		if page.Headings[i] != h {
			t.Errorf("Headings[%d] = %q, want %q", i, page.Headings[i], h)
		}
	}
}

func TestExtract_MarkdownPassthrough(t *testing.T) {
	markdown := "# Pricing\n\n- Cleaning: $80\n- Filling: $150\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/markdown")
		w.Write([]byte(markdown))
	}))
	defer server.Close()

	e := New(NewStaticRenderer("test-agent"), Config{Timeout: 5 * time.Second})

	page, err := e.Extract(t.Context(), server.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if page.Content != markdown {
		t.Errorf("markdown content should pass through unchanged, got %q", page.Content)
	}
}

func TestExtract_TimeoutIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	e := New(NewStaticRenderer("test-agent"), Config{Timeout: 100 * time.Millisecond})

	_, err := e.Extract(t.Context(), server.URL)
	if err == nil {
		t.Fatal("expected error for slow server")
	}
	if kind := KindOf(err); kind != KindTimeout {
		t.Errorf("error kind = %v, want %v", kind, KindTimeout)
	}
	if !Retryable(err) {
		t.Error("timeout should be retryable")
	}
}

func TestExtract_ServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	e := New(NewStaticRenderer("test-agent"), Config{Timeout: 5 * time.Second})

	_, err := e.Extract(t.Context(), server.URL)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if kind := KindOf(err); kind != KindNetworkError {
		t.Errorf("error kind = %v, want %v", kind, KindNetworkError)
	}
	if !Retryable(err) {
		t.Error("server errors should be retryable")
	}
}

func TestExtract_ForbiddenIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer server.Close()

	e := New(NewStaticRenderer("test-agent"), Config{Timeout: 5 * time.Second})

	_, err := e.Extract(t.Context(), server.URL)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
	if kind := KindOf(err); kind != KindBlocked {
		t.Errorf("error kind = %v, want %v", kind, KindBlocked)
	}
	if Retryable(err) {
		t.Error("blocked responses should not be retryable")
	}

	var ee *ExtractError
	if !errors.As(err, &ee) {
		t.Fatal("error should be an *ExtractError")
	}
	if ee.URL != server.URL {
		t.Errorf("error URL = %q, want %q", ee.URL, server.URL)
	}
}

func TestExtract_TruncatesOversizedContent(t *testing.T) {
	big := strings.Repeat("repeated content sentence. ", 2000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><head><title>Big</title></head><body><article><p>" + big + "</p></article></body></html>"))
	}))
	defer server.Close()

	e := New(NewStaticRenderer("test-agent"), Config{
		Timeout:         5 * time.Second,
		MaxContentChars: 500,
	})

	page, err := e.Extract(t.Context(), server.URL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(page.Content) > 500 {
		t.Errorf("content length = %d, want <= 500", len(page.Content))
	}
}

func TestExtract_SetsUserAgent(t *testing.T) {
	var receivedUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>T</title></head><body><p>some visible body text here</p></body></html>`))
	}))
	defer server.Close()

	e := New(NewStaticRenderer("recepd/1.0"), Config{Timeout: 5 * time.Second})

	if _, err := e.Extract(t.Context(), server.URL); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if receivedUA != "recepd/1.0" {
		t.Errorf("User-Agent = %q, want %q", receivedUA, "recepd/1.0")
	}
}
