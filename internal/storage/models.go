package storage

// University is one row of the catalogue: a university offering a specialty.
type University struct {
	Name         string
	City         string
	PassingScore int
	Link         string // Raw stored value; may lack a scheme or be "None"
	Specialty    string
}

// Stats summarizes the catalogue size.
type Stats struct {
	Specialties  int
	Universities int
}
