package enums

import "fmt"

// NotificationChannel names an outbound delivery channel.
type NotificationChannel string

const (
	NotificationChannelChat  NotificationChannel = "chat"
	NotificationChannelEmail NotificationChannel = "email"
)

var validNotificationChannels = []NotificationChannel{
	NotificationChannelChat,
	NotificationChannelEmail,
}

func (n NotificationChannel) String() string {
	return string(n)
}

func (n NotificationChannel) IsValid() bool {
	for _, candidate := range validNotificationChannels {
		if candidate == n {
			return true
		}
	}
	return false
}

func ParseNotificationChannel(value string) (NotificationChannel, error) {
	for _, candidate := range validNotificationChannels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification channel %q", value)
}
