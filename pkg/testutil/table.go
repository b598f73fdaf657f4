package testutil

import "testing"

// TableTest is one named case of a table-driven test.
type TableTest[T any] struct {
	Name  string
	Input T
}

// RunTable runs fn as a subtest for every case.
func RunTable[T any](t *testing.T, cases []TableTest[T], fn func(t *testing.T, in T)) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			fn(t, tc.Input)
		})
	}
}
