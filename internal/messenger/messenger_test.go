package messenger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gosuda/audittrail/internal/messenger"
)

func TestNotice_Text(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		notice messenger.Notice
		want   string
	}{
		{
			name:   "title only",
			notice: messenger.Notice{Title: "invoice deleted"},
			want:   "invoice deleted",
		},
		{
			name: "fields and footer",
			notice: messenger.Notice{
				Title:  "invoice updated",
				Fields: []messenger.Field{{Label: "total", Value: "100 → 150"}, {Label: "status", Value: "paid"}},
				Footer: "actor 7",
			},
			want: "invoice updated\ntotal: 100 → 150\nstatus: paid\nactor 7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.notice.Text())
		})
	}
}
