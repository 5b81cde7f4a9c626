package tournament

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		text    string
		want    string
		wantErr bool
	}{
		{text: "$1,700", want: "1700"},
		{text: "1700 USD", want: "1700"},
		{text: "$1.5K", want: "1500"},
		{text: "$2M", want: "2000000"},
		{text: "$250+$50", want: "300"},
		{text: "Freeroll", want: "0"},
		{text: "$0.50", want: "0.5"},
		{text: "", wantErr: true},
		{text: "TBA", wantErr: true},
		{text: "$250+TBA", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseMoney(tt.text)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMoney(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseMoney(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}
