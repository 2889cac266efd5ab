package model

// Subject is an academic subject such as Mathematics.
type Subject struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// StudentClass is a class group students belong to.
type StudentClass struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AcademicTerm is a term within a session (e.g. "First Term").
type AcademicTerm struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// AcademicSession is a school year (e.g. "2024/2025").
type AcademicSession struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
