// Package student contains the domain model of a registered student.
//
// A Student is created once through registration and is read-only afterwards:
//
//	s, err := NewStudent(NewStudentParams{
//	    ID:          uuid.New().String(),
//	    Name:        "Ana Souza",
//	    Email:       "ana@escola.dev",
//	    DateOfBirth: shared.MustParseDate("2004-03-15"),
//	    Today:       shared.DateOf(time.Now()),
//	})
//
// Students do not own enrollments. The enrollment package references them
// by id, and a student record can only be deleted while none of those
// references is active.
package student
