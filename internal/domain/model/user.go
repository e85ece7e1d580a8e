package model

// User is an account holder. Principals (payment collectors) and payers are
// both users.
type User struct {
	ID             int64
	Name           string
	TelegramChatID int64 // Zero when the user never linked Telegram.
	Phone          string
	Email          string
}

// HasMessagingChannel reports whether the user can be reached by chat.
func (u User) HasMessagingChannel() bool {
	return u.TelegramChatID != 0
}

// IsPhoneOnly reports whether the phone number is the only way to reach the
// user. Phone delivery costs extra and is surcharged.
func (u User) IsPhoneOnly() bool {
	return !u.HasMessagingChannel() && u.Phone != ""
}

// Channel is the delivery route a notification took.
type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelSMS      Channel = "sms"
	ChannelNone     Channel = "none"
)
