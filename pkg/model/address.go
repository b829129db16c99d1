package model

import "strings"

// ChannelKind identifies the messaging platform an address belongs to.
type ChannelKind string

const (
	ChannelWhatsApp ChannelKind = "whatsapp"
	ChannelTelegram ChannelKind = "telegram"
)

// telegramPrefix disambiguates Telegram chat IDs from WhatsApp phone numbers.
// Stored addresses depend on it, so it must never change.
const telegramPrefix = "tg_"

// Address is the channel-qualified key of a user. A raw phone number is a
// WhatsApp user; "tg_<chat id>" is a Telegram chat.
type Address string

// NewWhatsAppAddress returns the address of a WhatsApp user
func NewWhatsAppAddress(phone string) Address {
	return Address(phone)
}

// NewTelegramAddress returns the address of a Telegram chat
func NewTelegramAddress(chatID string) Address {
	return Address(telegramPrefix + chatID)
}

// Channel returns which platform delivers messages for this address
func (a Address) Channel() ChannelKind {
	if strings.HasPrefix(string(a), telegramPrefix) {
		return ChannelTelegram
	}
	return ChannelWhatsApp
}

// Recipient returns the platform-native destination identifier
func (a Address) Recipient() string {
	return strings.TrimPrefix(string(a), telegramPrefix)
}

func (a Address) String() string {
	return string(a)
}
