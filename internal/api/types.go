package api

import "encoding/json"

type TokenRequest struct {
	Room             string   `json:"room"`
	PreferredDevices []string `json:"preferredDevices,omitempty"`
}

type Credential struct {
	Token     string `json:"token"`
	ServerURL string `json:"serverUrl"`
}

type QuickBalance struct {
	TotalCoins       int64 `json:"totalCoins"`
	GiftCoins        int64 `json:"giftCoins"`
	RemainingMinutes int   `json:"remainingMinutes"`
	ShouldEndSession bool  `json:"shouldEndSession"`
}

type DeductionRequest struct {
	Room                   string `json:"room"`
	SessionDurationSeconds int    `json:"sessionDurationSeconds"`
	CoinsAmount            int64  `json:"coinsAmount"`
	Reason                 string `json:"reason"`
}

type DeductionResult struct {
	Success          bool  `json:"success"`
	RemainingBalance int64 `json:"remainingBalance"`
	MinutesRemaining int   `json:"minutesRemaining"`
	ShouldEndSession bool  `json:"shouldEndSession"`
}

type StatusUpdate struct {
	HasNotifications bool          `json:"hasNotifications"`
	Notification     *Notification `json:"notification,omitempty"`
}

type Notification struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const (
	NotificationPartnerWentNext    = "partner_went_next"
	NotificationPartnerLeftSession = "partner_left_session"
	NotificationCallReplaced       = "call_replaced"
)

type GiftRequestBody struct {
	Room        string `json:"room"`
	RequestID   string `json:"requestId"`
	GiftID      string `json:"giftId"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Message     string `json:"message,omitempty"`
}

type GiftRequestResult struct {
	RequestID    string `json:"requestId"`
	PriceCoins   int64  `json:"priceCoins"`
	SecurityHash string `json:"securityHash,omitempty"`
}

type GiftAcceptBody struct {
	RequestID    string `json:"requestId"`
	SecurityHash string `json:"securityHash,omitempty"`
}

type GiftRejectBody struct {
	RequestID string `json:"requestId"`
}

type EarningsRequest struct {
	Room            string `json:"room"`
	DurationSeconds int    `json:"durationSeconds"`
	HostID          string `json:"hostId"`
	GuestID         string `json:"guestId"`
	EndedBy         string `json:"endedBy"`
}
