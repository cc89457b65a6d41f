// Package board talks to the external work-management board that holds
// the canonical client and artist records. Items are addressed by opaque
// identifiers; field writes are best-effort from the engine's point of
// view and must never be made part of a local transaction.
package board

import "context"

// Item is one board item with named field values.
type Item struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields"`
}

// Note is one free-text activity entry on an item.
type Note struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// ItemPage is one page of a board enumeration.
type ItemPage struct {
	Items  []Item `json:"items"`
	Cursor string `json:"cursor,omitempty"`
}

// Client is the contract the engine needs from the booking source.
type Client interface {
	GetItem(ctx context.Context, id string) (Item, error)
	GetBoardItems(ctx context.Context, boardID, cursor string) (ItemPage, error)
	GetItemNotes(ctx context.Context, id string) ([]Note, error)
	SetField(ctx context.Context, id, fieldKey, value string) error
	SetFields(ctx context.Context, id string, fields map[string]string) error
	AppendNote(ctx context.Context, id, text string) error
}
