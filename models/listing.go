package models

import (
	"encoding/json"
	"fmt"
)

// NotAvailable is stored in Description when the detail page could not be read.
const NotAvailable = "N/A"

type Listing struct {
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Location     string `json:"location"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	SourceCursor Cursor `json:"source_cursor"`
}

// Cursor is the pagination position a page was fetched at.
// Browser backends only look at Page, offset backends only at Offset.
type Cursor struct {
	Page   int `json:"page"`
	Offset int `json:"offset"`
}

func (c Cursor) Next(pageSize int) Cursor {
	return Cursor{Page: c.Page + 1, Offset: c.Offset + pageSize}
}

func (c Cursor) String() string {
	return fmt.Sprintf("page=%d offset=%d", c.Page, c.Offset)
}

// RawPage is one page of unparsed listing data as returned by a fetcher.
// HTML holds rendered or fetched markup, Items holds structured payloads.
// A page with neither is the empty-page marker.
type RawPage struct {
	Cursor  Cursor
	BaseURL string
	HTML    string
	Items   []json.RawMessage
}

func (p RawPage) Empty() bool {
	return p.HTML == "" && len(p.Items) == 0
}
