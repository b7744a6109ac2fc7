// Package models defines the persisted document types: users, their ride
// records, chat history and the ephemeral match tuple.
package models

import "time"

// Chat history roles.
const (
	HistoryRoleUser      = "user"
	HistoryRoleAssistant = "assistant"
)

// ChatMessage is one entry of a user's bounded conversation history.
type ChatMessage struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// User is the per-phone document persisted in the store. Phone numbers are
// opaque strings; the store keys rows by them.
type User struct {
	Phone              string              `json:"phone_number"`
	DisplayName        string              `json:"display_name,omitempty"`
	DriverRides        []DriverRide        `json:"driver_rides"`
	HitchhikerRequests []HitchhikerRequest `json:"hitchhiker_requests"`
	ChatHistory        []ChatMessage       `json:"chat_history"`
	LastSeen           time.Time           `json:"last_seen"`
}

// AppendHistory appends a message and truncates to the most recent max
// entries. Oldest entries are dropped first.
func (u *User) AppendHistory(role, text string, now time.Time, max int) {
	u.ChatHistory = append(u.ChatHistory, ChatMessage{Role: role, Text: text, Timestamp: now})
	if max > 0 && len(u.ChatHistory) > max {
		u.ChatHistory = u.ChatHistory[len(u.ChatHistory)-max:]
	}
}

// RecentHistory returns the last n history entries, oldest first.
func (u *User) RecentHistory(n int) []ChatMessage {
	if n <= 0 || len(u.ChatHistory) <= n {
		return u.ChatHistory
	}
	return u.ChatHistory[len(u.ChatHistory)-n:]
}

// DriverRideByID returns the ride with the given id, or nil. Chat surfaces
// show truncated ids, so a unique prefix of at least 8 characters also
// resolves.
func (u *User) DriverRideByID(id string) *DriverRide {
	var hit *DriverRide
	for i := range u.DriverRides {
		if u.DriverRides[i].ID == id {
			return &u.DriverRides[i]
		}
		if idPrefixMatch(u.DriverRides[i].ID, id) {
			if hit != nil {
				return nil
			}
			hit = &u.DriverRides[i]
		}
	}
	return hit
}

// HitchhikerRequestByID returns the request with the given id, or nil.
// Unique prefixes resolve like in DriverRideByID.
func (u *User) HitchhikerRequestByID(id string) *HitchhikerRequest {
	var hit *HitchhikerRequest
	for i := range u.HitchhikerRequests {
		if u.HitchhikerRequests[i].ID == id {
			return &u.HitchhikerRequests[i]
		}
		if idPrefixMatch(u.HitchhikerRequests[i].ID, id) {
			if hit != nil {
				return nil
			}
			hit = &u.HitchhikerRequests[i]
		}
	}
	return hit
}

func idPrefixMatch(full, short string) bool {
	return len(short) >= 8 && len(short) < len(full) && full[:len(short)] == short
}
