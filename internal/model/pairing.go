package model

// RFIDCredential is the card a user taps on the station. Code is what the
// reader reports; Number is the human-friendly sequence number printed on the
// card. Both are unique across users.
type RFIDCredential struct {
	Code   string `json:"rfid"`
	Number string `json:"rfidNumber"`
}

// DetectedCard is what the owning client sees once the firmware has read a
// card during a pairing session.
type DetectedCard struct {
	SessionID    string `json:"sessionId"`
	Code         string `json:"rfid"`
	TargetUserID string `json:"targetUserId"`
}
