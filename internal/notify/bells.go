package notify

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/session"
)

// Bell is a role-specific view over the notification list.
type Bell struct {
	Name  string
	Title string
	match func(model.Notification) bool
	route func(model.Notification) string
}

var (
	// ServiceBell shows every record.
	ServiceBell = Bell{
		Name:  "service",
		Title: "Thông báo dịch vụ",
		match: func(model.Notification) bool { return true },
		route: serviceRoute,
	}

	// TechnicalBell shows only records the technical team must act on.
	TechnicalBell = Bell{
		Name:  "technical",
		Title: "Thông báo kỹ thuật",
		match: func(n model.Notification) bool {
			return n.Type == model.TypeContractRequestCreated || n.Type == model.TypeCustomerSignedContract
		},
		route: technicalRoute,
	}

	// CashierBell shows payments and issued bills.
	CashierBell = Bell{
		Name:  "cashier",
		Title: "Thông báo thu ngân",
		match: func(n model.Notification) bool {
			return n.Type == model.TypePaymentReceived ||
				n.Type == model.TypeWaterBillIssued ||
				strings.Contains(n.Type, "INVOICE") ||
				isInvoiceRef(n)
		},
		route: func(model.Notification) string { return "/cashier/my-route" },
	}

	// AccountingBell shows invoices and bills.
	AccountingBell = Bell{
		Name:  "accounting",
		Title: "Thông báo kế toán",
		match: func(n model.Notification) bool {
			return strings.Contains(n.Type, "INVOICE") ||
				strings.Contains(n.Type, "BILL") ||
				isInvoiceRef(n)
		},
		route: func(n model.Notification) string {
			if n.ContractID == "" {
				return "/accounting/invoices"
			}
			return "/accounting/invoices/" + url.PathEscape(n.ContractID)
		},
	}
)

// BellForRole picks the bell of a role. Unknown roles get the service bell.
func BellForRole(role string) Bell {
	switch session.NormalizeRole(role) {
	case session.RoleTechnicalStaff:
		return TechnicalBell
	case session.RoleCashierStaff:
		return CashierBell
	case session.RoleAccountingStaff:
		return AccountingBell
	}
	return ServiceBell
}

// Matches reports whether n belongs in the bell.
func (b Bell) Matches(n model.Notification) bool {
	return b.match != nil && b.match(n)
}

// Filter returns the records of list shown in the bell, keeping order.
func (b Bell) Filter(list []model.Notification) []model.Notification {
	var out []model.Notification
	for _, n := range list {
		if b.Matches(n) {
			out = append(out, n)
		}
	}
	return out
}

// Unread returns the ids of the unread records of list shown in the bell.
func (b Bell) Unread(list []model.Notification) []string {
	var ids []string
	for _, n := range list {
		if b.Matches(n) && n.IsUnread() {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Route is the portal page a record opens.
func (b Bell) Route(n model.Notification) string {
	if b.route == nil {
		return ""
	}
	return b.route(n)
}

func isInvoiceRef(n model.Notification) bool {
	return strings.EqualFold(n.ReferenceType, "INVOICE")
}

func serviceRoute(n model.Notification) string {
	switch n.Type {
	case model.TypeContractRequestCreated:
		return "/service/requests"
	case model.TypeTechSurveyCompleted:
		return "/service/survey-reviews?tab=pending-survey-review"
	case model.TypeSurveyApproved:
		return "/service/approved-contracts"
	case model.TypeCustomerSignedContract:
		return "/service/signed-contracts"
	case model.TypeSentToInstallation:
		return "/service/contracts?status=AWAITING_INSTALLATION"
	case model.TypeInstallationCompleted:
		return "/service/active-contracts"
	}
	return ""
}

func technicalRoute(n model.Notification) string {
	survey := strings.Contains(n.Type, "SURVEY") || n.Type == model.TypeContractRequestCreated
	install := strings.Contains(n.Type, "INSTALL")

	if n.ContractID == "" {
		switch {
		case survey:
			return "/technical/survey"
		case install:
			return "/technical/install"
		}
		return "/technical"
	}

	id := url.PathEscape(n.ContractID)
	if survey {
		return "/technical/survey/report/" + id
	}
	return "/technical/install/detail/" + id
}

type copyText struct {
	title   string
	withRef string
	noRef   string
}

var displayCopy = map[string]copyText{
	model.TypeContractRequestCreated:   {"Yêu cầu khảo sát mới", "Yêu cầu khảo sát cho hợp đồng #%s cần xử lý", "Có yêu cầu khảo sát mới cần xử lý"},
	model.TypeSentToInstallation:       {"Yêu cầu lắp đặt", "Yêu cầu lắp đặt cho hợp đồng #%s", "Có yêu cầu lắp đặt cần xử lý"},
	model.TypeCustomerSignedContract:   {"Hợp đồng đã ký, chuẩn bị lắp đặt", "Hợp đồng #%s đã được ký, chuẩn bị lắp đặt", "Hợp đồng đã được ký, chuẩn bị lắp đặt"},
	model.TypeSurveyApproved:           {"Khảo sát đã duyệt", "Khảo sát hợp đồng #%s đã được duyệt", "Khảo sát đã được duyệt"},
	model.TypeTechSurveyCompleted:      {"Khảo sát hoàn thành", "Khảo sát hợp đồng #%s đã hoàn thành", "Khảo sát đã hoàn thành"},
	model.TypeInstallationCompleted:    {"Hoàn tất lắp đặt", "Lắp đặt cho hợp đồng #%s đã hoàn tất", "Lắp đặt đã hoàn tất"},
	model.TypePaymentReceived:          {"Thanh toán thành công", "Hóa đơn #%s đã được thanh toán", "Thanh toán đã được ghi nhận"},
	model.TypeWaterBillIssued:          {"Hóa đơn tiền nước", "Hóa đơn #%s đã được phát hành", "Hóa đơn đã được phát hành"},
	model.TypeWaterBillPaymentReceived: {"Thanh toán hóa đơn nước", "Hóa đơn #%s đã được thanh toán", "Thanh toán đã được ghi nhận"},
	model.TypeError:                    {"Lỗi", "%s", ""},
}

// DisplayTitle is the localized heading of a record.
func DisplayTitle(n model.Notification) string {
	if c, ok := displayCopy[n.Type]; ok {
		return c.title
	}
	if n.Title != "" {
		return humanize(n.Title)
	}
	return humanize(n.Type)
}

// DisplayMessage is the localized body of a record. The server message is
// preferred when the type has no fixed copy.
func DisplayMessage(n model.Notification) string {
	c, ok := displayCopy[n.Type]
	if !ok || n.Type == model.TypeError {
		return n.Message
	}
	if n.ContractID != "" {
		return fmt.Sprintf(c.withRef, n.ContractID)
	}
	if n.Message != "" {
		return n.Message
	}
	return c.noRef
}

func humanize(s string) string {
	words := strings.Fields(strings.ToLower(strings.ReplaceAll(s, "_", " ")))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// TimeAgo renders t relative to now the way the portal does.
func TimeAgo(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	mins := int(d / time.Minute)
	hours := mins / 60
	days := hours / 24

	switch {
	case mins < 1:
		return "vừa xong"
	case mins < 60:
		return fmt.Sprintf("%d phút trước", mins)
	case hours < 24:
		return fmt.Sprintf("%d giờ trước", hours)
	case days < 7:
		return fmt.Sprintf("%d ngày trước", days)
	}
	return t.Local().Format("02/01 15:04")
}
