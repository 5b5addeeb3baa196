package urlchange

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectComponents(t *testing.T) {
	tests := []struct {
		name   string
		before string
		after  string
		want   *ComponentDelta
	}{
		{
			name:   "query only",
			before: "https://a.com/x?y=1",
			after:  "https://a.com/x?y=2",
			want:   &ComponentDelta{Query: true},
		},
		{
			name:   "path only",
			before: "https://a.com/x",
			after:  "https://a.com/y",
			want:   &ComponentDelta{Path: true},
		},
		{
			name:   "hash only",
			before: "https://a.com/x#top",
			after:  "https://a.com/x#bottom",
			want:   &ComponentDelta{Hash: true},
		},
		{
			name:   "subdomain within same site",
			before: "https://www.example.co.uk/login",
			after:  "https://accounts.example.co.uk/login",
			want:   &ComponentDelta{Host: true},
		},
		{
			name:   "different site",
			before: "https://shop.example.com/cart",
			after:  "https://pay.other.com/checkout",
			want:   &ComponentDelta{Path: true, Host: true, Site: true},
		},
		{
			name:   "host case ignored",
			before: "https://A.com/x",
			after:  "https://a.com/x?q",
			want:   &ComponentDelta{Query: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.before, tt.after, Options{CheckComponents: true})
			assert.True(t, got.Changed)
			if diff := cmp.Diff(tt.want, got.Components); diff != "" {
				t.Errorf("Components mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDetectIdentical(t *testing.T) {
	for _, u := range []string{"", "about:blank", "https://a.com/x?y=1#z", "%%%not a url"} {
		got := Detect(u, u, Options{CheckComponents: true})
		assert.False(t, got.Changed, u)
		assert.Nil(t, got.Components, u)
	}
}

func TestDetectSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"https://a.com/x", "https://a.com/y"},
		{"about:blank", "https://a.com"},
		{"https://a.com", "%%%"},
		{"", "https://a.com"},
	}
	for _, p := range pairs {
		for _, opts := range []Options{{}, {CheckComponents: true}} {
			ab := Detect(p[0], p[1], opts)
			ba := Detect(p[1], p[0], opts)
			assert.Equal(t, ab.Changed, ba.Changed, "%q vs %q", p[0], p[1])
			assert.Equal(t, Changed(p[0], p[1]), ab.Changed)
		}
	}
}

func TestDetectParseErrorStillChanged(t *testing.T) {
	got := Detect("https://a.com/x", "http://[::1", Options{CheckComponents: true})
	assert.True(t, got.Changed)
	assert.Nil(t, got.Components)
	require.Contains(t, got.Details, "parseError")
	assert.Contains(t, got.Details["parseError"], "after:")

	got = Detect("relative/path", "https://a.com", Options{CheckComponents: true})
	assert.True(t, got.Changed)
	assert.Contains(t, got.Details["parseError"], "before:")
}

func TestDetectWithoutComponents(t *testing.T) {
	got := Detect("https://a.com/x", "https://a.com/y", Options{})
	want := Result{
		Changed: true,
		Details: map[string]any{"before": "https://a.com/x", "after": "https://a.com/y"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Detect mismatch (-want +got):\n%s", diff)
	}
}
