package notifications

import (
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/restaurant-backend/pkg/db/models"
	"github.com/angelmondragon/restaurant-backend/pkg/enums"
	"github.com/angelmondragon/restaurant-backend/pkg/types"
)

const (
	titleOrderStatus       = "تحديث حالة الطلب"
	titleOrderConfirmation = "تم استلام طلبك"
	titleEstimatedTime     = "الوقت المتوقع للتحضير"
	titleLoyaltyEarned     = "نقاط ولاء جديدة"
	titleLoyaltyRedeemed   = "استبدال نقاط الولاء"
)

var statusNames = map[enums.OrderStatus]string{
	enums.OrderStatusPending:        "قيد الانتظار",
	enums.OrderStatusConfirmed:      "مؤكد",
	enums.OrderStatusPreparing:      "قيد التحضير",
	enums.OrderStatusReady:          "جاهز",
	enums.OrderStatusOutForDelivery: "في الطريق",
	enums.OrderStatusDelivered:      "تم التسليم",
	enums.OrderStatusPickedUp:       "تم الاستلام",
	enums.OrderStatusCancelled:      "ملغي",
}

var paymentMethodNames = map[enums.PaymentMethod]string{
	enums.PaymentMethodCash:   "نقدي",
	enums.PaymentMethodCard:   "بطاقة ائتمان",
	enums.PaymentMethodWallet: "محفظة إلكترونية",
}

// ShortID is the customer-facing order number: the last six characters of the id.
func ShortID(id uuid.UUID) string {
	s := id.String()
	return s[len(s)-6:]
}

func StatusName(status enums.OrderStatus) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return string(status)
}

func PaymentMethodName(method enums.PaymentMethod) string {
	if name, ok := paymentMethodNames[method]; ok {
		return name
	}
	return string(method)
}

func deliveryMethodName(method enums.DeliveryMethod) string {
	if method == enums.DeliveryMethodDelivery {
		return "توصيل للمنزل"
	}
	return "استلام من المطعم"
}

// StatusText returns the customer message for the order's current status.
func StatusText(order *models.Order) string {
	id := ShortID(order.ID)
	switch order.Status {
	case enums.OrderStatusConfirmed:
		return fmt.Sprintf("✅ تم تأكيد طلبك رقم #%s وسنبدأ بتحضيره الآن!", id)
	case enums.OrderStatusPreparing:
		return fmt.Sprintf("👨‍🍳 جاري تحضير طلبك رقم #%s", id)
	case enums.OrderStatusReady:
		if order.DeliveryMethod == enums.DeliveryMethodPickup {
			return fmt.Sprintf("🍽️ طلبك رقم #%s جاهز للاستلام من المطعم.", id)
		}
		return fmt.Sprintf("🍽️ تم تجهيز طلبك رقم #%s وسيتم تعيين مندوب توصيل قريبًا.", id)
	case enums.OrderStatusOutForDelivery:
		return fmt.Sprintf("🛵 طلبك رقم #%s في الطريق إليك!", id)
	case enums.OrderStatusDelivered:
		return fmt.Sprintf("🎉 تم توصيل طلبك رقم #%s. بالهناء والشفاء!", id)
	case enums.OrderStatusPickedUp:
		return fmt.Sprintf("🎉 تم استلام طلبك رقم #%s. بالهناء والشفاء!", id)
	case enums.OrderStatusCancelled:
		return fmt.Sprintf("❌ تم إلغاء طلبك رقم #%s", id)
	default:
		return fmt.Sprintf("ℹ️ تم تحديث حالة طلبك رقم #%s إلى: %s", id, StatusName(order.Status))
	}
}

// StatusMessage builds the inbox entry sent after a status transition.
func StatusMessage(order *models.Order) Message {
	body := StatusText(order)
	return Message{
		Type:         enums.NotificationTypeOrder,
		Title:        titleOrderStatus,
		Body:         body,
		ChatText:     body,
		RelatedID:    &order.ID,
		RelatedModel: "Order",
		Action:       orderAction(order.ID),
	}
}

// OrderConfirmation is sent to the customer once an order is accepted.
func OrderConfirmation(order *models.Order) Message {
	var b strings.Builder
	b.WriteString("✅ *تم استلام طلبك بنجاح!*\n\n")
	fmt.Fprintf(&b, "🧾 رقم الطلب: #%s\n", ShortID(order.ID))
	fmt.Fprintf(&b, "📅 التاريخ: %s\n\n", order.CreatedAt.Format("02/01/2006"))
	b.WriteString("🍽️ العناصر:\n")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "- %dx %s (%s ريال)\n", item.Quantity, itemName(item.Name), item.UnitPrice.String())
	}
	fmt.Fprintf(&b, "\n💰 الإجمالي: %s ريال\n", order.TotalPrice.String())
	fmt.Fprintf(&b, "💳 طريقة الدفع: %s\n", PaymentMethodName(order.PaymentMethod))
	fmt.Fprintf(&b, "🚚 طريقة التوصيل: %s\n\n", deliveryMethodName(order.DeliveryMethod))
	b.WriteString("سنبدأ بتحضير طلبك قريبًا وسنبقيك على اطلاع بالمستجدات!")

	return Message{
		Type:         enums.NotificationTypeOrder,
		Title:        titleOrderConfirmation,
		Body:         fmt.Sprintf("طلبك رقم #%s بقيمة %s ريال قيد المراجعة.", ShortID(order.ID), order.TotalPrice.String()),
		ChatText:     b.String(),
		RelatedID:    &order.ID,
		RelatedModel: "Order",
		Action:       orderAction(order.ID),
	}
}

// EstimatedTimeMessage tells the customer how long the kitchen expects to take.
func EstimatedTimeMessage(order *models.Order, minutes int) Message {
	body := fmt.Sprintf("⏱️ الوقت المتوقع لتحضير طلبك رقم #%s هو %d دقيقة.", ShortID(order.ID), minutes)
	return Message{
		Type:         enums.NotificationTypeOrder,
		Title:        titleEstimatedTime,
		Body:         body,
		ChatText:     body,
		RelatedID:    &order.ID,
		RelatedModel: "Order",
		Action:       orderAction(order.ID),
	}
}

func LoyaltyEarnedMessage(points int, orderID *uuid.UUID) Message {
	msg := Message{
		Type:  enums.NotificationTypeLoyalty,
		Title: titleLoyaltyEarned,
		Body:  fmt.Sprintf("تم إضافة %d نقطة ولاء إلى حسابك!", points),
	}
	if orderID != nil {
		msg.RelatedID = orderID
		msg.RelatedModel = "Order"
	}
	return msg
}

func LoyaltyRedeemedMessage(points int, discount decimal.Decimal) Message {
	return Message{
		Type:  enums.NotificationTypeLoyalty,
		Title: titleLoyaltyRedeemed,
		Body:  fmt.Sprintf("تم استبدال %d نقطة ولاء مقابل خصم بقيمة %s ريال!", points, discount.String()),
	}
}

// KitchenNewOrderEmail renders the new-order alert for the kitchen inbox.
func KitchenNewOrderEmail(order *models.Order, customer, appURL string) (string, string) {
	var b strings.Builder
	b.WriteString("<h2>طلب جديد!</h2>")
	fmt.Fprintf(&b, "<p>رقم الطلب: #%s</p>", ShortID(order.ID))
	fmt.Fprintf(&b, "<p>التاريخ: %s</p>", order.CreatedAt.Format("02/01/2006 15:04"))
	fmt.Fprintf(&b, "<p>العميل: %s</p>", html.EscapeString(customerName(customer)))
	b.WriteString("<h3>العناصر:</h3><ul>")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "<li>%dx %s</li>", item.Quantity, html.EscapeString(itemName(item.Name)))
	}
	b.WriteString("</ul>")
	fmt.Fprintf(&b, "<p>طريقة التوصيل: %s</p>", deliveryMethodName(order.DeliveryMethod))
	fmt.Fprintf(&b, "<p>الإجمالي: %s ريال</p>", order.TotalPrice.String())
	fmt.Fprintf(&b, `<p><a href="%s">فتح لوحة المطبخ</a></p>`, html.EscapeString(appURL))
	return fmt.Sprintf("طلب جديد: #%s", ShortID(order.ID)), b.String()
}

// KitchenCancellationEmail uses the note of the latest history entry as the reason.
func KitchenCancellationEmail(order *models.Order, customer, appURL string) (string, string) {
	reason := "غير محدد"
	if n := len(order.StatusHistory); n > 0 && strings.TrimSpace(order.StatusHistory[n-1].Note) != "" {
		reason = order.StatusHistory[n-1].Note
	}
	var b strings.Builder
	b.WriteString("<h2>تم إلغاء طلب!</h2>")
	fmt.Fprintf(&b, "<p>رقم الطلب: #%s</p>", ShortID(order.ID))
	fmt.Fprintf(&b, "<p>العميل: %s</p>", html.EscapeString(customerName(customer)))
	fmt.Fprintf(&b, "<p>سبب الإلغاء: %s</p>", html.EscapeString(reason))
	fmt.Fprintf(&b, `<p><a href="%s">فتح لوحة المطبخ</a></p>`, html.EscapeString(appURL))
	return fmt.Sprintf("إلغاء طلب: #%s", ShortID(order.ID)), b.String()
}

func chatText(msg Message) string {
	if msg.ChatText != "" {
		return msg.ChatText
	}
	return fmt.Sprintf("*%s*\n\n%s", msg.Title, msg.Body)
}

func emailHTML(msg Message) string {
	return fmt.Sprintf("<h2>%s</h2><p>%s</p>", html.EscapeString(msg.Title), html.EscapeString(msg.Body))
}

func orderAction(id uuid.UUID) *types.NotificationAction {
	return &types.NotificationAction{Type: "view_order", Data: id.String(), Label: "عرض الطلب"}
}

func itemName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "عنصر"
	}
	return name
}

func customerName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "غير معروف"
	}
	return name
}
