package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/portal"
)

var now = time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)

func TestRenderHistory(t *testing.T) {
	page := &portal.Page{
		Content: []portal.NotificationDTO{
			{ID: "301", Title: "SENT_TO_INSTALLATION", ReferenceID: "5", CreatedAt: json.RawMessage(`"2025-11-10T08:55:00Z"`)},
			{ID: "300", Title: "PAYMENT_RECEIVED", Read: true, CreatedAt: json.RawMessage(`"2025-11-10T06:00:00Z"`)},
		},
		TotalElements: 2,
		TotalPages:    1,
	}

	var buf bytes.Buffer
	renderHistory(&buf, page, now)
	out := buf.String()

	assert.Contains(t, out, "301")
	assert.Contains(t, out, "5 phút trước")
	assert.Contains(t, out, "Yêu cầu lắp đặt cho hợp đồng #5")
	assert.Contains(t, out, "3 giờ trước")
	assert.Contains(t, out, "page 1/1, 2 total")

	buf.Reset()
	renderHistory(&buf, &portal.Page{}, now)
	assert.Equal(t, "No notifications.\n", buf.String())
}

func TestLinePrinterPrintsEachRecordOnce(t *testing.T) {
	rec := func(id string, ago time.Duration) model.Notification {
		return model.Notification{
			ID:         id,
			Type:       model.TypeCustomerSignedContract,
			ContractID: id,
			Status:     model.StatusHiddenUnread,
			Timestamp:  now.Add(-ago),
		}
	}

	var buf bytes.Buffer
	p := newLinePrinter(&buf, notify.TechnicalBell, []model.Notification{rec("1", time.Hour)})

	list := []model.Notification{
		rec("3", 0),
		{ID: "9", Type: model.TypePaymentReceived, Timestamp: now},
		rec("2", time.Minute),
		rec("1", time.Hour),
	}
	require.Equal(t, 2, p.print(list))
	assert.Equal(t, 0, p.print(list))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Hợp đồng #2")
	assert.Contains(t, lines[0], "/technical/install/detail/2")
	assert.Contains(t, lines[1], "Hợp đồng #3")
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "portal-notify version "+Version+" (commit: "+Commit+")\n", buf.String())
}
