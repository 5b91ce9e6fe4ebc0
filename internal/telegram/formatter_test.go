package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatNotice(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		body     string
		link     string
		contains []string
		excludes []string
	}{
		{
			name:  "full message",
			title: "New notice 90001/2024",
			body:  "Reforma do prédio sede",
			link:  "https://comprasnet.gov.br/detalhe?id=1&x=2",
			contains: []string{
				"<b>New notice 90001/2024</b>",
				"Reforma do prédio sede",
				`<a href="https://comprasnet.gov.br/detalhe?id=1&amp;x=2">Open notice</a>`,
				"#BidScout",
			},
		},
		{
			name:     "no link",
			title:    "Updated",
			body:     "Changed fields: modality",
			contains: []string{"<b>Updated</b>", "Changed fields: modality"},
			excludes: []string{"<a href"},
		},
		{
			name:     "escapes html",
			title:    "<script>",
			body:     "a & b",
			contains: []string{"&lt;script&gt;", "a &amp; b"},
			excludes: []string{"<script>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatNotice(tt.title, tt.body, tt.link)
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("FormatNotice() missing %q in:\n%s", want, msg)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(msg, unwanted) {
					t.Errorf("FormatNotice() should not contain %q in:\n%s", unwanted, msg)
				}
			}
		})
	}
}

func TestFormatNotice_Truncates(t *testing.T) {
	msg := FormatNotice("Long", strings.Repeat("ã", MaxMessageLength*2), "")

	if n := utf8.RuneCountInString(msg); n != MaxMessageLength {
		t.Errorf("message length = %d runes, want %d", n, MaxMessageLength)
	}
	if !strings.HasSuffix(msg, "…") {
		t.Error("truncated message should end with an ellipsis")
	}
}
