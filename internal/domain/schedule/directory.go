package schedule

import "context"

// Directory answers child-ownership queries from the record store. A child
// with no records yet belongs to nobody and any authenticated user may
// create its first schedule; after that, only the owner.
type Directory struct {
	records Repository
}

func NewDirectory(records Repository) *Directory {
	return &Directory{records: records}
}

func (d *Directory) ChildBelongsTo(ctx context.Context, childID, userID string) (bool, error) {
	owner, err := d.records.OwnerOf(ctx, childID)
	if err != nil {
		return false, err
	}
	return owner == "" || owner == userID, nil
}
