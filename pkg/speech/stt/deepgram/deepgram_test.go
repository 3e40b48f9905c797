package deepgram

import (
	"net/url"
	"testing"
)

// ---- URL / query-param tests ----

func assertEqual(t *testing.T, name, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", name, got, want)
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL("es-ES")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "es-ES", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
}

func TestBuildURL_CustomOptions(t *testing.T) {
	p, err := New("key", WithModel("base"), WithSampleRate(48000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL("es-MX")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "es-MX", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New should reject an empty api key")
	}
}

// ---- message parsing ----

func TestParseFinal_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [
				{"transcript": "el gato duerme", "confidence": 0.97}
			]
		}
	}`)

	result, ok := parseFinal(raw)
	if !ok {
		t.Fatal("parseFinal rejected a final Results message")
	}
	assertEqual(t, "text", "el gato duerme", result.Text)
	if result.Confidence != 0.97 {
		t.Errorf("confidence = %v, want 0.97", result.Confidence)
	}
}

func TestParseFinal_IgnoresInterim(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": false,
		"channel": {
			"alternatives": [{"transcript": "el ga", "confidence": 0.4}]
		}
	}`)

	if _, ok := parseFinal(raw); ok {
		t.Error("interim results must not produce a transcript")
	}
}

func TestParseFinal_IgnoresMetadata(t *testing.T) {
	raw := []byte(`{"type": "Metadata", "request_id": "abc"}`)
	if _, ok := parseFinal(raw); ok {
		t.Error("non-Results messages must be ignored")
	}
}

func TestParseFinal_IgnoresEmptyTranscript(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {"alternatives": [{"transcript": "", "confidence": 0}]}
	}`)
	if _, ok := parseFinal(raw); ok {
		t.Error("a final with an empty transcript must be ignored")
	}
}

func TestParseFinal_Garbage(t *testing.T) {
	if _, ok := parseFinal([]byte("not json")); ok {
		t.Error("unparseable messages must be ignored")
	}
}
