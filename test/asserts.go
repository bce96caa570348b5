// Package test holds the assertion helpers and database fakes shared by the
// package tests. Every assertion stops the test on failure.
package test

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func fail(t testing.TB, format string, args ...any) {
	t.Helper()
	t.Fatalf(format, args...)
}

// Assert fails the test with message unless ok.
func Assert(t testing.TB, ok bool, message string) {
	t.Helper()
	if !ok {
		fail(t, "%s", message)
	}
}

// isNil reports whether v is nil or an interface holding a nil pointer, map,
// slice, chan or func.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// AssertNil requires v to be an untyped nil. A nil pointer inside an
// interface fails.
func AssertNil(t testing.TB, v any, message string) {
	t.Helper()
	if v != nil {
		fail(t, "%s: got %#v", message, v)
	}
}

// AssertNotNil requires v to be neither nil nor a nil value of a nillable
// type.
func AssertNotNil(t testing.TB, v any, message string) {
	t.Helper()
	if isNil(v) {
		fail(t, "%s: got nil", message)
	}
}

// AssertNotError fails the test if err is non-nil.
func AssertNotError(t testing.TB, err error, message string) {
	t.Helper()
	if err != nil {
		fail(t, "%s: %s", message, err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error, message string) {
	t.Helper()
	if err == nil {
		fail(t, "%s: no error returned", message)
	}
}

// AssertErrorWraps requires errors.As(err, target), which also fills target.
func AssertErrorWraps(t testing.TB, err error, target any) {
	t.Helper()
	if err == nil {
		fail(t, "expected an error wrapping %T, got nil", target)
	}
	if !errors.As(err, target) {
		fail(t, "%q does not wrap %T", err, target)
	}
}

// AssertErrorIs requires errors.Is(err, target).
func AssertErrorIs(t testing.TB, err error, target error) {
	t.Helper()
	if err == nil {
		fail(t, "expected an error wrapping %q, got nil", target)
	}
	if !errors.Is(err, target) {
		fail(t, "%q does not wrap %q", err, target)
	}
}

// AssertEquals compares got and expected with ==. Values of different
// dynamic types are never equal, so int(1) and int64(1) fail.
func AssertEquals(t testing.TB, got any, expected any) {
	t.Helper()
	if gt, et := reflect.TypeOf(got), reflect.TypeOf(expected); gt != et {
		fail(t, "type mismatch: got %v (%#v), expected %v (%#v)", gt, got, et, expected)
	}
	if got != expected {
		fail(t, "got %#v, expected %#v", got, expected)
	}
}

// AssertDeepEquals compares got and expected with reflect.DeepEqual.
func AssertDeepEquals(t testing.TB, got any, expected any) {
	t.Helper()
	if !reflect.DeepEqual(got, expected) {
		fail(t, "got %#v, expected (deep) %#v", got, expected)
	}
}

// AssertNotEquals requires got != other.
func AssertNotEquals(t testing.TB, got any, other any) {
	t.Helper()
	if got == other {
		fail(t, "both values are %#v", got)
	}
}

// AssertContains requires needle to occur in s.
func AssertContains(t testing.TB, s string, needle string) {
	t.Helper()
	if !strings.Contains(s, needle) {
		fail(t, "%q not found in:\n%s", needle, s)
	}
}

// AssertNotContains requires needle not to occur in s.
func AssertNotContains(t testing.TB, s string, needle string) {
	t.Helper()
	if strings.Contains(s, needle) {
		fail(t, "%q unexpectedly found in:\n%s", needle, s)
	}
}

// AssertSQLEquals compares two statements with runs of whitespace collapsed,
// so long expectations can be wrapped across lines.
func AssertSQLEquals(t testing.TB, got string, expected string) {
	t.Helper()
	g, e := strings.Join(strings.Fields(got), " "), strings.Join(strings.Fields(expected), " ")
	if g != e {
		fail(t, "statement mismatch:\n got: %s\nwant: %s", g, e)
	}
}

// AssertMetricWithLabelsEquals sums every series of c whose labels agree with
// l (labels absent from l match anything) and compares the sum to expected.
// Counters and gauges contribute their value, histograms their sample count.
func AssertMetricWithLabelsEquals(t testing.TB, c prometheus.Collector, l prometheus.Labels, expected float64) {
	t.Helper()
	reg := prometheus.NewRegistry()
	err := reg.Register(c)
	if err != nil {
		fail(t, "registering collector: %s", err)
	}
	families, err := reg.Gather()
	if err != nil {
		fail(t, "gathering metrics: %s", err)
	}
	var sum float64
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if matchesLabels(m, l) {
				sum += m.GetCounter().GetValue() + m.GetGauge().GetValue() + float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	if sum != expected {
		fail(t, "metric %s: got %g, expected %g", describeLabels(l), sum, expected)
	}
}

func matchesLabels(m *dto.Metric, l prometheus.Labels) bool {
	for _, lp := range m.GetLabel() {
		want, ok := l[lp.GetName()]
		if ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func describeLabels(l prometheus.Labels) string {
	parts := make([]string, 0, len(l))
	for k, v := range l {
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
