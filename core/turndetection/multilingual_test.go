package turndetection

import "testing"

func TestMultilingualModelIsEndOfTurn(t *testing.T) {
	model := NewMultilingualModel()

	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"What is my balance?", true},
		{"मेरा बैलेंस क्या है।", true},
		{"I want to check my balance and", false},
		{"मुझे बैलेंस देखना है लेकिन", false},
		{"Let me think,", false},
		{"book a table for two", true},
	}

	for _, tt := range tests {
		if got := model.IsEndOfTurn(nil, tt.text); got != tt.want {
			t.Errorf("IsEndOfTurn(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
