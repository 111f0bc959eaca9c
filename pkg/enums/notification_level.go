package enums

// NotificationLevel selects how a user-facing notice is rendered.
type NotificationLevel string

const (
	NotificationLevelSuccess NotificationLevel = "success"
	NotificationLevelInfo    NotificationLevel = "info"
	NotificationLevelError   NotificationLevel = "error"
)

func (l NotificationLevel) String() string {
	return string(l)
}

func (l NotificationLevel) IsValid() bool {
	switch l {
	case NotificationLevelSuccess, NotificationLevelInfo, NotificationLevelError:
		return true
	}
	return false
}
