package domain

import "time"

// NotificationType classifies a user notification.
type NotificationType string

const (
	NotificationTradeRequest NotificationType = "TRADE_REQUEST"
	NotificationTradeUpdate  NotificationType = "TRADE_UPDATE"
)

// Notification is a message queued for a user.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Message   string
	Link      string
	CreatedAt time.Time
	ReadAt    *time.Time
}

// UpdateMessage is the TRADE_UPDATE text for a trade that moved to status.
func UpdateMessage(status Status) string {
	switch status {
	case StatusAccepted:
		return "El receptor aceptó tu propuesta de trueque."
	case StatusRejected:
		return "Tu propuesta de trueque fue rechazada."
	case StatusCancelled:
		return "El trueque fue cancelado."
	case StatusFinished:
		return "El trueque finalizó exitosamente."
	case StatusCountered:
		return "Recibiste una contraoferta."
	default:
		return "Tu trueque fue actualizado."
	}
}

// TradeLink is the client path of a trade.
func TradeLink(tradeID string) string {
	return "/trades/" + tradeID
}
