package bodycache

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCaptureRoundTrip(t *testing.T) {
	payload := []byte(`{"value":"2","data":"\x00binary\xff"}`)

	var seenCached []byte
	var seenBody []byte
	var rereadBody []byte

	handler := Capture(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cached, ok := FromContext(r.Context())
		if !ok {
			t.Fatal("expected a cached body")
		}
		seenCached = cached.Bytes

		b, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("downstream body read failed: %v", err)
		}
		seenBody = b

		// The body must be reconstructable any number of times.
		rc, err := r.GetBody()
		if err != nil {
			t.Fatalf("GetBody failed: %v", err)
		}
		rereadBody, _ = io.ReadAll(rc)

		if r.ContentLength != int64(len(payload)) {
			t.Errorf("ContentLength = %d, want %d", r.ContentLength, len(payload))
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/route", bytes.NewReader(payload))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !bytes.Equal(seenCached, payload) {
		t.Errorf("cached bytes differ from original: %q vs %q", seenCached, payload)
	}
	if !bytes.Equal(seenBody, payload) {
		t.Errorf("downstream body differs from original: %q vs %q", seenBody, payload)
	}
	if !bytes.Equal(rereadBody, payload) {
		t.Errorf("replayed body differs from original: %q vs %q", rereadBody, payload)
	}
}

func TestCaptureBodilessMethodIsNoop(t *testing.T) {
	handler := Capture(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); ok {
			t.Error("GET request must not produce a cached body")
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/route", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestCaptureWriteMethods(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			captured := false
			handler := Capture(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, captured = FromContext(r.Context())
			}))

			req := httptest.NewRequest(method, "/", strings.NewReader("x"))
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if !captured {
				t.Errorf("%s body should be captured", method)
			}
		})
	}
}

func TestCaptureOversizedBody(t *testing.T) {
	reached := false
	handler := Capture(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is larger than eight bytes"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if reached {
		t.Error("oversized body must short-circuit before later stages")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestCachedBodyText(t *testing.T) {
	b := &CachedBody{Bytes: []byte(`{"value":"2"}`)}
	if b.Text() != `{"value":"2"}` {
		t.Errorf("unexpected text decoding: %q", b.Text())
	}
}
