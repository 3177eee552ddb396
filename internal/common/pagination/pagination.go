package pagination

type Page struct {
	Page     int
	PageSize int
	Offset   int
}

// Parse clamps page/pageSize to sane bounds; pageSize caps at 100 so a single
// history fetch cannot drag an entire conversation into memory.
func Parse(page, pageSize int) Page {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 {
		pageSize = 50
	}
	if pageSize > 100 {
		pageSize = 100
	}

	return Page{
		Page:     page,
		PageSize: pageSize,
		Offset:   (page - 1) * pageSize,
	}
}
