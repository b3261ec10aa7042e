package loyalty

import "testing"

func TestExtractCSRFToken(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantToken string
		wantFound bool
	}{
		{
			name:      "token in the middle",
			input:     "foo=bar; crf=XYZ123; baz=qux",
			wantToken: "XYZ123",
			wantFound: true,
		},
		{
			name:      "token at start",
			input:     "crf=abc; rest=1",
			wantToken: "abc",
			wantFound: true,
		},
		{
			name:      "token at end without terminator",
			input:     "foo=bar; crf=tail",
			wantToken: "tail",
			wantFound: true,
		},
		{
			name:      "decoded session cookie shape",
			input:     ";crf=tok42;",
			wantToken: "tok42",
			wantFound: true,
		},
		{
			name:      "no token",
			input:     "no token here",
			wantFound: false,
		},
		{
			name:      "empty input",
			input:     "",
			wantFound: false,
		},
		{
			name:      "empty token value",
			input:     "crf=;",
			wantToken: "",
			wantFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, found := extractCSRFToken(tt.input)
			if found != tt.wantFound {
				t.Fatalf("extractCSRFToken(%q) found = %v, want %v", tt.input, found, tt.wantFound)
			}
			if token != tt.wantToken {
				t.Errorf("extractCSRFToken(%q) = %q, want %q", tt.input, token, tt.wantToken)
			}
		})
	}
}
