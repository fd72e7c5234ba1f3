package dto

// ReviewerQuery filters the reviewer list.
type ReviewerQuery struct {
	Role   string
	Search string
}

// ExportQuery selects the submission export format.
type ExportQuery struct {
	GroupID string
	Format  string
	Status  []string
}
