package domain

import (
	"fmt"
	"strings"
)

// PostInfo is what the negotiation needs to know about a listing.
type PostInfo struct {
	ID      string
	Exists  bool
	Deleted bool
	OwnerID string
	Title   string
	Barrio  string
}

// MustBeLive turns a missing or soft-deleted post into its domain error.
func (p PostInfo) MustBeLive() error {
	if !p.Exists {
		return Errorf(CodePostNotFound, "post %s not found", p.ID)
	}
	if p.Deleted {
		return Errorf(CodePostDeleted, "post %s was deleted", p.ID)
	}
	return nil
}

// MeetingArea picks where the parties meet. An explicit value wins;
// otherwise it is derived from the barrios of both posts.
func MeetingArea(explicit, requestedBarrio, offeredBarrio string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	r := strings.TrimSpace(requestedBarrio)
	o := strings.TrimSpace(offeredBarrio)
	switch {
	case r != "" && o != "" && r == o:
		return r
	case r != "" && o != "":
		return o + " ↔ " + r
	case r != "":
		return r
	default:
		return o
	}
}

// OfferSummary is the system message seeded into the chat of a new trade.
func OfferSummary(requested PostInfo, offered *PostInfo, itemsText, meetingArea string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nueva propuesta de trueque por %q.", requested.Title)
	var parts []string
	if offered != nil && offered.Title != "" {
		parts = append(parts, fmt.Sprintf("%q", offered.Title))
	}
	if itemsText != "" {
		parts = append(parts, itemsText)
	}
	if len(parts) > 0 {
		b.WriteString(" Ofrece: ")
		b.WriteString(strings.Join(parts, " + "))
		b.WriteString(".")
	}
	if meetingArea != "" {
		b.WriteString(" Zona de encuentro: ")
		b.WriteString(meetingArea)
		b.WriteString(".")
	}
	return b.String()
}
