package paging

import "github.com/trezcool/schoolgate/core"

// Page is one fetched page. An empty EndCursor means it is the last page.
type Page struct {
	Number    int
	Rows      []core.Document
	EndCursor core.Cursor
}

func (p Page) HasNext() bool { return p.EndCursor != "" }

// Cache holds the pages of one reader, keyed by page number.
// Rows and end cursor of a page live in the same entry.
type Cache struct {
	pages map[int]Page
}

func NewCache() *Cache {
	return &Cache{pages: make(map[int]Page)}
}

func (c *Cache) Get(number int) (Page, bool) {
	p, ok := c.pages[number]
	return p, ok
}

func (c *Cache) Put(p Page) {
	c.pages[p.Number] = p
}

// Reset drops every cached page.
func (c *Cache) Reset() {
	c.pages = make(map[int]Page)
}

func (c *Cache) Len() int { return len(c.pages) }
