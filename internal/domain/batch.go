package domain

// DataFile is one CSV file discovered in the data directory. Group names the
// archive it came from, which is one station in agency exports.
type DataFile struct {
	Path  string
	Group string
}

// Batch is the set of kept segments for one station, handed to every loader.
type Batch struct {
	Group    string
	Segments []Series
}

// Category returns the group name as a record category.
func (b Batch) Category() *string {
	if b.Group == "" {
		return nil
	}
	g := b.Group
	return &g
}

// ReadStats describes what happened to the rows of one source file.
type ReadStats struct {
	Rows       int // data rows after skipping header and footer lines
	Filtered   int // rows removed by the quality gate
	Duplicates int // rows dropped because their timestamp was already seen
}
