package engine

import (
	"testing"

	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		ext    string
		access protocol.AccessType
		want   Kind
	}{
		{"png image", ".png", protocol.AccessOwner, KindImage},
		{"jpg image", ".jpg", protocol.AccessRead, KindImage},
		{"js owner", ".js", protocol.AccessOwner, KindEditableText},
		{"js write", ".js", protocol.AccessWrite, KindEditableText},
		{"js read", ".js", protocol.AccessRead, KindReadonlyText},
		{"py read", ".py", protocol.AccessRead, KindReadonlyText},
		{"uppercase ext", ".JS", protocol.AccessOwner, KindEditableText},
		{"archive", ".zip", protocol.AccessOwner, KindUnsupported},
		{"no extension", "", protocol.AccessOwner, KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := protocol.FileRecord{Extension: tt.ext, AccessType: tt.access}
			if got := Classify(r); got != tt.want {
				t.Errorf("Classify(%q, %s) = %v, want %v", tt.ext, tt.access, got, tt.want)
			}
		})
	}
}

func TestEscapeMarkup(t *testing.T) {
	in := `if (a < b && b > c) { alert("x"); }`
	want := `if (a &lt; b &amp;&amp; b &gt; c) { alert("x"); }`
	if got := escapeMarkup(in); got != want {
		t.Errorf("escapeMarkup = %q, want %q", got, want)
	}

	// Quotes are left alone; this is markup neutralization, not attribute
	// escaping.
	if got := escapeMarkup(`"quoted"`); got != `"quoted"` {
		t.Errorf("quotes should pass through, got %q", got)
	}
}

func TestKindString(t *testing.T) {
	if KindImage.String() != "image" || KindUnsupported.String() != "unsupported" {
		t.Error("unexpected Kind string labels")
	}
}
