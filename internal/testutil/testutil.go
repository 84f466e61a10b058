// Package testutil provides shared test helpers: synthetic beat trains,
// float comparisons and small HTTP conveniences for admin route tests.
package testutil

import (
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertClose fails the test if |got-want| > tol.
func AssertClose(t testing.TB, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > tol {
		t.Errorf("got %.9g, want %.9g (±%g)", got, want, tol)
	}
}

// AssertAllClose compares two slices element-wise with AssertClose.
func AssertAllClose(t testing.TB, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if math.IsNaN(got[i]) || math.Abs(got[i]-want[i]) > tol {
			t.Errorf("[%d] got %.9g, want %.9g (±%g)", i, got[i], want[i], tol)
		}
	}
}

// StatusCode fails the test if the recorder status differs from want.
func StatusCode(t testing.TB, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Errorf("status code = %d, want %d (body %q)", w.Code, want, w.Body.String())
	}
}

// LocalRequest builds a request that appears to come from localhost, so
// it passes tsweb.AllowDebugAccess.
func LocalRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// Serve runs a local request against h and returns the recorder.
func Serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, LocalRequest(method, path, nil))
	return w
}

// BeatTrain returns n evenly spaced beat times starting at start.
func BeatTrain(start, period float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*period
	}
	return out
}

// JitteredTrain returns n beat times with i.i.d. Gaussian jitter of the
// given standard deviation added to each ideal beat. The sequence is
// deterministic for a given seed.
func JitteredTrain(seed int64, start, period, jitter float64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := BeatTrain(start, period, n)
	for i := range out {
		out[i] += rng.NormFloat64() * jitter
	}
	return out
}
