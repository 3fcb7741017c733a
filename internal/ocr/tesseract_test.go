package ocr

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		text, lang, want string
	}{
		{"こ ん に\nち は ", "jpn_vert", "こんにちは"},
		{"  hello \n world ", "eng", "hello world"},
		{"", "jpn", ""},
	}
	for _, tt := range tests {
		if got := normalize(tt.text, tt.lang); got != tt.want {
			t.Errorf("normalize(%q, %q) = %q, want %q", tt.text, tt.lang, got, tt.want)
		}
	}
}

func TestPageSegMode(t *testing.T) {
	if pageSegMode("jpn_vert") == pageSegMode("jpn") {
		t.Error("vertical and horizontal languages should use different modes")
	}
}
