package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/escola/core"
)

func TestEmailMessage_Render(t *testing.T) {
	tests := []struct {
		name     string
		msg      core.EmailMessage
		wantText []string
		wantHTML []string
	}{
		{
			name: "boleto created",
			msg: core.EmailMessage{
				TemplateName: "boleto_created",
				TemplateData: map[string]string{"GuardianName": "Ana", "Amount": "550.00", "DueDate": "2024-07-10"},
			},
			wantText: []string{"Hello Ana,", "550.00", "2024-07-10"},
			wantHTML: []string{"Ana", "550.00"},
		},
		{
			name: "password reset",
			msg: core.EmailMessage{
				TemplateName: "password_reset",
				TemplateData: map[string]string{"UID": "dWlk", "Token": "AB-sig"},
			},
			wantText: []string{"http://localhost:8080/password-reset?uid=dWlk&token=AB-sig"},
			wantHTML: []string{"uid=dWlk"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			require.NoError(t, msg.Render("http://localhost:8080"))
			for _, want := range tt.wantText {
				assert.Contains(t, msg.TextContent, want)
			}
			for _, want := range tt.wantHTML {
				assert.Contains(t, msg.HTMLContent, want)
			}
		})
	}
}
