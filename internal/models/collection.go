package models

// Collection is a named, ordered set of channels on the DVR. The sync
// engine computes a desired member list and hands the delta to the DVR
// client to apply; it never owns collection state itself.
type Collection struct {
	ID      string   `json:"id"` // slug
	Name    string   `json:"name"`
	Members []string `json:"members"` // ordered channel IDs
}
