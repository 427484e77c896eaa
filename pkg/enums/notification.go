package enums

import "slices"

// NotificationType groups notifications for filtering in the inbox.
type NotificationType string

const (
	NotificationTypeOrder     NotificationType = "order"
	NotificationTypePromotion NotificationType = "promotion"
	NotificationTypeSystem    NotificationType = "system"
	NotificationTypeLoyalty   NotificationType = "loyalty"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeOrder,
	NotificationTypePromotion,
	NotificationTypeSystem,
	NotificationTypeLoyalty,
}

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}

func (n NotificationType) IsValid() bool { return slices.Contains(validNotificationTypes, n) }

func ParseNotificationType(value string) (NotificationType, error) {
	return parse(value, "notification type", validNotificationTypes)
}
