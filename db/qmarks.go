package db

import "strings"

// QuestionMarks returns a string consisting of N question marks, separated by
// ", ". If n is <= 0, returns an empty string.
func QuestionMarks(n int) string {
	if n <= 0 {
		return ""
	}
	var qmarks strings.Builder
	qmarks.Grow(3 * n)
	for i := range n {
		if i == 0 {
			qmarks.WriteString("?")
		} else {
			qmarks.WriteString(", ?")
		}
	}
	return qmarks.String()
}
