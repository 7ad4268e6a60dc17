package domain

import "time"

// Notebook groups source documents, conversations, crawl jobs, and
// evaluation datasets. Deleting a notebook cascades to everything it owns.
type Notebook struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewNotebook(name, description string) Notebook {
	now := utcNow()
	return Notebook{
		ID:          NewID(),
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Rename returns a copy with the new name and description.
func (n Notebook) Rename(name, description string) Notebook {
	n.Name = name
	n.Description = description
	n.UpdatedAt = utcNow()
	return n
}
