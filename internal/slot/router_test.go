package slot

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSlot(t *testing.T) {
	r := Default()

	tests := []struct {
		name string
		key  string
		want uint16
	}{
		// Reference values for the CRC16-XModem checksum mod 16384.
		{"reference vector", "123456789", 12739},
		{"plain key", "foo", 12182},
		{"plain key 2", "bar", 5061},
		{"empty key", "", 0},
		{"tagged key hashes tag only", "{user:1000}.following", 1649},
		{"tagged key same tag", "{user:1000}.followers", 1649},
		{"tag equals bare key", "user:1000", 1649},
		{"empty tag hashes whole key", "{}.x", 7237},
		{"unbalanced open hashes whole key", "{open", 7674},
		{"closing before opening hashes whole key", "close}", 5262},
		{"first tag wins", "{a}{b}", 15495},
		{"tag prefix form", "meta:{sess}", 15052},
		{"tag prefix form 2", "body:{sess}", 15052},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Slot([]byte(tt.key)); got != tt.want {
				t.Errorf("Slot(%q) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestHasTag(t *testing.T) {
	r := Default()

	tests := []struct {
		key  string
		want bool
	}{
		{"plain", false},
		{"{tag}suffix", true},
		{"prefix{tag}", true},
		{"{}", false},
		{"{unclosed", false},
		{"closed}", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := r.HasTag([]byte(tt.key)); got != tt.want {
			t.Errorf("HasTag(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestCustomDelimiters(t *testing.T) {
	r := NewRouter('[', ']')

	if r.Slot([]byte("[sess]a")) != r.Slot([]byte("[sess]b")) {
		t.Error("keys sharing a [sess] tag mapped to different slots")
	}
	// Braces are ordinary bytes for this router.
	if r.HasTag([]byte("{sess}a")) {
		t.Error("HasTag matched the default delimiters on a custom router")
	}
}

func TestSlotProperties(t *testing.T) {
	r := Default()

	properties := gopter.NewProperties(nil)

	properties.Property("slot is always in range", prop.ForAll(
		func(key []byte) bool {
			return r.Slot(key) < Count
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("keys sharing a tag share a slot", prop.ForAll(
		func(tag string, a, b string) bool {
			ka := []byte("{" + tag + "}" + a)
			kb := []byte("{" + tag + "}" + b)
			return r.Slot(ka) == r.Slot(kb) && r.Slot(ka) == r.Slot([]byte(tag))
		},
		gen.AlphaString().SuchThat(func(s string) bool { return len(s) > 0 }),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
